package streaming

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"math"
	"os"
	"path/filepath"

	"go.uber.org/zap"

	"github.com/Faultbox/meshstream/internal/logger"
	"github.com/Faultbox/meshstream/pkg/geometry"
)

const linkedMagic = "MSLA"

// ErrDuplicateEntry is returned when two chunks are written under one name.
var ErrDuplicateEntry = errors.New("duplicate entry")

// WriterOptions controls where chunk headers end up.
type WriterOptions struct {
	// Embed stores chunks inside the document. Headers too large for the metadata word
	// are stored as internal linked assets. When false every chunk links an external file
	// written next to the document.
	Embed bool

	// LinkedExtension is appended to entry names to form external file names.
	LinkedExtension string
}

// DefaultWriterOptions embeds everything that fits.
func DefaultWriterOptions() WriterOptions {
	return WriterOptions{Embed: true, LinkedExtension: ".msa"}
}

// Writer builds a stream document.
type Writer struct {
	path string
	file *os.File
	opts WriterOptions
	deps *Dependencies

	entries []Entry
	names   map[string]struct{}
	offset  int64
}

// Create starts a new document at path, truncating any existing file.
func Create(path string, opts WriterOptions) (*Writer, error) {
	if opts.LinkedExtension == "" {
		opts.LinkedExtension = DefaultWriterOptions().LinkedExtension
	}
	file, err := os.Create(path)
	if err != nil {
		return nil, fmt.Errorf("creating document: %w", err)
	}
	w := &Writer{
		path:   path,
		file:   file,
		opts:   opts,
		deps:   NewDependencies(),
		names:  make(map[string]struct{}),
		offset: documentHeaderSize,
	}
	// The header is rewritten with the table location on Close.
	if _, err := file.Write(make([]byte, documentHeaderSize)); err != nil {
		file.Close()
		return nil, fmt.Errorf("writing header: %w", err)
	}
	return w, nil
}

// Dependencies returns the linked asset table being built.
func (w *Writer) Dependencies() *Dependencies {
	return w.deps
}

// WriteGeometry serializes g as a chunk named name.
func (w *Writer) WriteGeometry(name string, g *geometry.Geometry) (Entry, error) {
	header, payload, err := EncodeGeometry(g)
	if err != nil {
		return Entry{}, fmt.Errorf("encoding %s: %w", name, err)
	}
	return w.WriteChunk(name, GeometryAsset, header, payload)
}

// WriteChunk stores a header and payload under name. The header is embedded in the chunk
// when embedding is enabled and it fits the metadata word; otherwise the chunk refers to
// a linked asset holding both.
func (w *Writer) WriteChunk(name string, assetType AssetType, header, payload []byte) (Entry, error) {
	if _, dup := w.names[name]; dup {
		return Entry{}, fmt.Errorf("%w: %s", ErrDuplicateEntry, name)
	}

	var (
		meta    Metadata
		content []byte
		err     error
	)
	if w.opts.Embed && len(header) <= MaxInlineHeaderSize {
		meta, err = EncodeMetadata(true, len(header), assetType)
		if err != nil {
			return Entry{}, err
		}
		content = append(append(content, header...), payload...)
	} else {
		id, err := w.writeLinked(name, assetType, header, payload)
		if err != nil {
			return Entry{}, err
		}
		meta, _ = EncodeMetadata(false, 0, assetType)
		content = EncodeLinkID(id)
	}

	entry := Entry{Name: name, Metadata: meta, Offset: w.offset, Size: int64(len(content))}
	if _, err := w.file.Write(content); err != nil {
		return Entry{}, fmt.Errorf("writing %s: %w", name, err)
	}
	w.offset += entry.Size
	w.entries = append(w.entries, entry)
	w.names[name] = struct{}{}

	logger.Debug("wrote chunk",
		zap.String("name", name),
		zap.Stringer("metadata", meta),
		zap.Int("header", len(header)),
		zap.Int("payload", len(payload)))
	return entry, nil
}

// writeLinked stores the linked form of a chunk, inside the document when embedding and in
// its own file otherwise, and registers it in the dependency table.
func (w *Writer) writeLinked(name string, assetType AssetType, header, payload []byte) (int16, error) {
	if len(header) > math.MaxUint16 {
		return 0, fmt.Errorf("%w: %s has a %d byte header", ErrHeaderTooLarge, name, len(header))
	}
	blob := encodeLinked(assetType, header, payload)

	asset := &LinkedAsset{Length: int64(len(payload))}
	if w.opts.Embed {
		asset.Filename = filepath.Base(w.path)
		asset.LinkType = LinkInternal
		asset.Offset = w.offset
		if _, err := w.file.Write(blob); err != nil {
			return 0, fmt.Errorf("writing linked %s: %w", name, err)
		}
		w.offset += int64(len(blob))
	} else {
		asset.Filename = name + w.opts.LinkedExtension
		asset.LinkType = LinkExternal
		target := filepath.Join(filepath.Dir(w.path), asset.Filename)
		if err := os.WriteFile(target, blob, 0o644); err != nil {
			return 0, fmt.Errorf("writing linked %s: %w", name, err)
		}
	}
	return w.deps.Register(asset)
}

// encodeLinked lays out a linked asset: scene header, big-endian header size, header, payload.
//
// The scene header holds the magic, a big-endian u16 version, u16 asset type, u32 payload
// length and four reserved bytes.
func encodeLinked(assetType AssetType, header, payload []byte) []byte {
	be := binary.BigEndian
	blob := make([]byte, 0, SceneHeaderSize+headerSizeFieldSize+len(header)+len(payload))
	blob = append(blob, linkedMagic...)
	blob = be.AppendUint16(blob, documentVersion)
	blob = be.AppendUint16(blob, uint16(assetType))
	blob = be.AppendUint32(blob, uint32(len(payload)))
	blob = be.AppendUint32(blob, 0)
	blob = be.AppendUint16(blob, uint16(len(header)))
	blob = append(blob, header...)
	return append(blob, payload...)
}

// Close writes the compressed table and the document header.
func (w *Writer) Close() error {
	err := w.finish()
	if cerr := w.file.Close(); err == nil && cerr != nil {
		err = fmt.Errorf("closing document: %w", cerr)
	}
	if err != nil {
		return err
	}

	logger.Info("stream document written",
		zap.String("path", w.path),
		zap.Int("entries", len(w.entries)),
		zap.Int("linked", w.deps.Len()))
	return nil
}

func (w *Writer) finish() error {
	table, err := encodeTable(w.deps.LinkedAssets(), w.entries)
	if err != nil {
		return fmt.Errorf("encoding table: %w", err)
	}
	if _, err := w.file.Write(table); err != nil {
		return fmt.Errorf("writing table: %w", err)
	}

	h := documentHeader{
		Version:     documentVersion,
		EntryCount:  uint32(len(w.entries)),
		TableOffset: uint64(w.offset),
	}
	copy(h.Magic[:], documentMagic)
	if _, err := w.file.Seek(0, io.SeekStart); err != nil {
		return err
	}
	if err := binary.Write(w.file, binary.LittleEndian, &h); err != nil {
		return fmt.Errorf("writing header: %w", err)
	}
	return nil
}
