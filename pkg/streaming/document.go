package streaming

import (
	"bytes"
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/klauspost/compress/zlib"

	"github.com/Faultbox/meshstream/pkg/geometry"
)

const (
	documentMagic      = "MESHSTRM"
	documentVersion    = 1
	documentHeaderSize = 24

	// maxDeflateRatio bounds how far a deflate stream can expand.
	maxDeflateRatio = 1032
)

// Document errors.
var (
	ErrInvalidMagic       = errors.New("invalid stream document magic")
	ErrUnsupportedVersion = errors.New("unsupported stream document version")
	ErrEntryNotFound      = errors.New("entry not found")
	ErrNotGeometry        = errors.New("entry is not a geometry")
	ErrMalformedTable     = errors.New("malformed document table")
)

// documentHeader is the fixed little-endian header at the start of a document.
type documentHeader struct {
	Magic       [8]byte
	Version     uint32
	EntryCount  uint32
	TableOffset uint64
}

// Entry locates one chunk in a document.
type Entry struct {
	Name     string
	Metadata Metadata
	Offset   int64
	Size     int64
}

// Document is an opened stream document.
type Document struct {
	file    *os.File
	path    string
	size    int64
	header  documentHeader
	entries []Entry
	byName  map[string]int
	deps    *Dependencies
}

// Open opens a stream document for reading.
func Open(path string) (*Document, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("opening file: %w", err)
	}

	doc := &Document{
		file:   file,
		path:   path,
		byName: make(map[string]int),
		deps:   NewDependencies(),
	}

	info, err := file.Stat()
	if err != nil {
		file.Close()
		return nil, fmt.Errorf("stat file: %w", err)
	}
	doc.size = info.Size()

	if err := doc.readHeader(); err != nil {
		file.Close()
		return nil, fmt.Errorf("reading header: %w", err)
	}

	if err := doc.readTable(); err != nil {
		file.Close()
		return nil, fmt.Errorf("reading table: %w", err)
	}

	return doc, nil
}

// Close closes the document.
func (d *Document) Close() error {
	if d.file != nil {
		return d.file.Close()
	}
	return nil
}

// Path returns the file the document was opened from.
func (d *Document) Path() string {
	return d.path
}

// Version returns the format version.
func (d *Document) Version() uint32 {
	return d.header.Version
}

func (d *Document) readHeader() error {
	if _, err := d.file.Seek(0, io.SeekStart); err != nil {
		return err
	}

	if err := binary.Read(d.file, binary.LittleEndian, &d.header); err != nil {
		return err
	}

	if string(d.header.Magic[:]) != documentMagic {
		return ErrInvalidMagic
	}

	if d.header.Version != documentVersion {
		return fmt.Errorf("%w: %d", ErrUnsupportedVersion, d.header.Version)
	}

	return nil
}

func (d *Document) readTable() error {
	if _, err := d.file.Seek(int64(d.header.TableOffset), io.SeekStart); err != nil {
		return err
	}

	var compressedSize, uncompressedSize uint32
	if err := binary.Read(d.file, binary.LittleEndian, &compressedSize); err != nil {
		return err
	}
	if err := binary.Read(d.file, binary.LittleEndian, &uncompressedSize); err != nil {
		return err
	}

	if int64(compressedSize) > d.size-int64(d.header.TableOffset)-8 ||
		uint64(uncompressedSize) > uint64(compressedSize)*maxDeflateRatio {
		return fmt.Errorf("%w: table of %d bytes (%d compressed)", ErrMalformedTable, uncompressedSize, compressedSize)
	}

	compressed := make([]byte, compressedSize)
	if _, err := io.ReadFull(d.file, compressed); err != nil {
		return err
	}

	reader, err := zlib.NewReader(bytes.NewReader(compressed))
	if err != nil {
		return err
	}
	defer reader.Close()

	table, err := io.ReadAll(io.LimitReader(reader, int64(uncompressedSize)))
	if err != nil {
		return err
	}
	if len(table) != int(uncompressedSize) {
		return fmt.Errorf("%w: table holds %d of %d bytes", ErrMalformedTable, len(table), uncompressedSize)
	}

	linked, entries, err := decodeTable(table, d.header.EntryCount)
	if err != nil {
		return err
	}
	for _, a := range linked {
		if _, err := d.deps.Register(a); err != nil {
			return err
		}
	}
	for _, e := range entries {
		if e.Offset < 0 || e.Offset > d.size-e.Size {
			return fmt.Errorf("%w: entry %q spans %d+%d of %d bytes", ErrMalformedTable, e.Name, e.Offset, e.Size, d.size)
		}
	}
	d.entries = entries
	for i, e := range entries {
		d.byName[e.Name] = i
	}
	return nil
}

// List returns the entry names in the order they were written.
func (d *Document) List() []string {
	names := make([]string, len(d.entries))
	for i, e := range d.entries {
		names[i] = e.Name
	}
	return names
}

// Entry looks up an entry by name.
func (d *Document) Entry(name string) (Entry, bool) {
	i, ok := d.byName[name]
	if !ok {
		return Entry{}, false
	}
	return d.entries[i], true
}

// Dependencies returns the linked asset table.
func (d *Document) Dependencies() *Dependencies {
	return d.deps
}

// Read returns the raw chunk content of an entry.
func (d *Document) Read(name string) ([]byte, Entry, error) {
	e, ok := d.Entry(name)
	if !ok {
		return nil, Entry{}, fmt.Errorf("%w: %s", ErrEntryNotFound, name)
	}
	content := make([]byte, e.Size)
	if _, err := d.file.ReadAt(content, e.Offset); err != nil {
		return nil, e, fmt.Errorf("reading %s: %w", name, err)
	}
	return content, e, nil
}

// Resolve returns the header of an entry, fetching linked headers through fetcher.
func (d *Document) Resolve(ctx context.Context, name string, fetcher Fetcher) (*Resolved, error) {
	content, e, err := d.Read(name)
	if err != nil {
		return nil, err
	}
	return ResolveHeader(ctx, e.Metadata, content, d.deps, fetcher)
}

// HeaderInfo describes the resolved header of one entry.
type HeaderInfo struct {
	Entry  Entry
	Header GeometryHeader
	Linked *LinkedAsset
}

// Headers resolves and decodes the header of every geometry entry.
func (d *Document) Headers(ctx context.Context, fetcher Fetcher) ([]HeaderInfo, error) {
	var out []HeaderInfo
	for _, e := range d.entries {
		if e.Metadata.AssetType() != GeometryAsset {
			continue
		}
		r, err := d.Resolve(ctx, e.Name, fetcher)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", e.Name, err)
		}
		h, err := DecodeGeometryHeader(r.Header)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", e.Name, err)
		}
		out = append(out, HeaderInfo{Entry: e, Header: h, Linked: r.Linked})
	}
	return out, nil
}

// ReadGeometry resolves an entry and decodes its geometry.
func (d *Document) ReadGeometry(ctx context.Context, name string, fetcher Fetcher) (*geometry.Geometry, error) {
	e, ok := d.Entry(name)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrEntryNotFound, name)
	}
	if e.Metadata.AssetType() != GeometryAsset {
		return nil, fmt.Errorf("%w: %s is %s", ErrNotGeometry, name, e.Metadata.AssetType())
	}
	r, err := d.Resolve(ctx, name, fetcher)
	if err != nil {
		return nil, err
	}
	payload, err := r.ReadPayload(ctx, fetcher)
	if err != nil {
		return nil, err
	}
	return DecodeGeometry(r.Header, payload)
}

// encodeTable compresses the dependency and entry tables, prefixed by their compressed and
// uncompressed sizes.
func encodeTable(linked []*LinkedAsset, entries []Entry) ([]byte, error) {
	le := binary.LittleEndian
	var raw []byte

	raw = le.AppendUint16(raw, uint16(len(linked)))
	for _, a := range linked {
		raw = le.AppendUint16(raw, uint16(len(a.Filename)))
		raw = append(raw, a.Filename...)
		raw = append(raw, uint8(a.LinkType))
		raw = le.AppendUint64(raw, uint64(a.Offset))
		raw = le.AppendUint64(raw, uint64(a.Length))
	}
	for _, e := range entries {
		raw = le.AppendUint16(raw, uint16(len(e.Name)))
		raw = append(raw, e.Name...)
		raw = le.AppendUint32(raw, uint32(e.Metadata))
		raw = le.AppendUint64(raw, uint64(e.Offset))
		raw = le.AppendUint32(raw, uint32(e.Size))
	}

	var compressed bytes.Buffer
	zw := zlib.NewWriter(&compressed)
	if _, err := zw.Write(raw); err != nil {
		return nil, err
	}
	if err := zw.Close(); err != nil {
		return nil, err
	}

	out := le.AppendUint32(nil, uint32(compressed.Len()))
	out = le.AppendUint32(out, uint32(len(raw)))
	return append(out, compressed.Bytes()...), nil
}

func decodeTable(table []byte, entryCount uint32) ([]*LinkedAsset, []Entry, error) {
	r := &byteReader{buf: table, malformed: ErrMalformedTable}

	linked := make([]*LinkedAsset, r.u16())
	for i := range linked {
		a := &LinkedAsset{Filename: r.str(int(r.u16()))}
		a.LinkType = LinkType(r.u8())
		a.Offset = int64(r.u64())
		a.Length = int64(r.u64())
		linked[i] = a
	}

	entries := make([]Entry, 0, min(int(entryCount), len(table)))
	for i := uint32(0); i < entryCount && r.err == nil; i++ {
		var e Entry
		e.Name = r.str(int(r.u16()))
		e.Metadata = Metadata(r.u32())
		e.Offset = int64(r.u64())
		e.Size = int64(r.u32())
		entries = append(entries, e)
	}
	if r.err != nil {
		return nil, nil, r.err
	}
	return linked, entries, nil
}
