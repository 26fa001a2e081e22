// Package archive bundles a run's outputs into a single ZIP file whose
// entries are compressed with Zstandard (ZIP method 93).
package archive

import (
	"archive/zip"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/klauspost/compress/zstd"
	"github.com/rs/zerolog/log"
)

// MethodZstd is the ZIP compression method ID for Zstandard (APPNOTE 6.3.7).
const MethodZstd uint16 = 93

// DefaultName is the archive file name written next to the report.
const DefaultName = "valid_sessions.zip"

func init() {
	zip.RegisterCompressor(MethodZstd, func(w io.Writer) (io.WriteCloser, error) {
		return zstd.NewWriter(w, zstd.WithEncoderLevel(zstd.SpeedDefault))
	})
	zip.RegisterDecompressor(MethodZstd, zstd.ZipDecompressor())
}

// Entry is one file to add. Name is the path inside the archive.
type Entry struct {
	Name string
	Path string
}

// DirEntries returns one Entry per regular file directly inside dir, named
// "<prefix>/<file>". A missing directory yields no entries.
func DirEntries(dir, prefix string) ([]Entry, error) {
	items, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("read %s: %w", dir, err)
	}
	var entries []Entry
	for _, it := range items {
		if !it.Type().IsRegular() {
			continue
		}
		entries = append(entries, Entry{
			Name: prefix + "/" + it.Name(),
			Path: filepath.Join(dir, it.Name()),
		})
	}
	return entries, nil
}

// Build writes entries to zipPath and returns the archive size. The file
// is written under a temporary name and renamed into place, so a failed
// build never leaves a truncated archive behind.
func Build(zipPath string, entries []Entry) (int64, error) {
	if err := os.MkdirAll(filepath.Dir(zipPath), 0o755); err != nil {
		return 0, fmt.Errorf("create archive directory: %w", err)
	}
	tmpFile, err := os.CreateTemp(filepath.Dir(zipPath), ".archive-*.zip")
	if err != nil {
		return 0, fmt.Errorf("create temp ZIP: %w", err)
	}
	tmpPath := tmpFile.Name()
	defer os.Remove(tmpPath)

	zw := zip.NewWriter(tmpFile)
	for _, e := range entries {
		if err := addFile(zw, e); err != nil {
			tmpFile.Close()
			return 0, err
		}
	}

	if err := zw.Close(); err != nil {
		tmpFile.Close()
		return 0, fmt.Errorf("close ZIP writer: %w", err)
	}
	if err := tmpFile.Close(); err != nil {
		return 0, fmt.Errorf("close temp ZIP: %w", err)
	}

	info, err := os.Stat(tmpPath)
	if err != nil {
		return 0, fmt.Errorf("stat ZIP file: %w", err)
	}
	if err := os.Rename(tmpPath, zipPath); err != nil {
		return 0, fmt.Errorf("move ZIP into place: %w", err)
	}

	log.Info().
		Str("path", zipPath).
		Int("entries", len(entries)).
		Int64("bytes", info.Size()).
		Msg("Archive written")
	return info.Size(), nil
}

func addFile(zw *zip.Writer, e Entry) error {
	src, err := os.Open(e.Path)
	if err != nil {
		return fmt.Errorf("open %s: %w", e.Path, err)
	}
	defer src.Close()

	modTime := time.Now()
	if info, err := src.Stat(); err == nil {
		modTime = info.ModTime()
	}

	header := &zip.FileHeader{
		Name:   e.Name,
		Method: MethodZstd,
	}
	header.SetModTime(modTime)

	w, err := zw.CreateHeader(header)
	if err != nil {
		return fmt.Errorf("create ZIP entry for %s: %w", e.Name, err)
	}
	if _, err := io.Copy(w, src); err != nil {
		return fmt.Errorf("write to ZIP for %s: %w", e.Name, err)
	}
	return nil
}
