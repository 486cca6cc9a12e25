package streaming

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
)

// ByteCache stores fetched byte ranges by key.
type ByteCache interface {
	Get(key string) ([]byte, bool)
	Set(key string, data []byte)
}

// FileFetcher reads linked assets from files under Dir.
type FileFetcher struct {
	Dir   string
	Cache ByteCache
}

// NewFileFetcher creates a fetcher rooted at dir. cache may be nil.
func NewFileFetcher(dir string, cache ByteCache) *FileFetcher {
	return &FileFetcher{Dir: dir, Cache: cache}
}

// Fetch reads length bytes at asset.Offset+offset. A range past the end of the file is an error.
func (f *FileFetcher) Fetch(ctx context.Context, asset *LinkedAsset, offset, length int64) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	start := asset.Offset + offset
	key := fmt.Sprintf("%s@%d+%d", asset.Filename, start, length)
	if f.Cache != nil {
		if data, ok := f.Cache.Get(key); ok {
			return data, nil
		}
	}

	file, err := os.Open(filepath.Join(f.Dir, filepath.Clean("/"+asset.Filename)))
	if err != nil {
		return nil, fmt.Errorf("opening linked asset: %w", err)
	}
	defer file.Close()

	data := make([]byte, length)
	if _, err := io.ReadFull(io.NewSectionReader(file, start, length), data); err != nil {
		return nil, fmt.Errorf("reading %s [%d, %d): %w", asset.Filename, start, start+length, err)
	}
	fetchedBytes.Add(float64(length))

	if f.Cache != nil {
		f.Cache.Set(key, data)
	}
	return data, nil
}
