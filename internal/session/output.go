package session

import (
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/rs/zerolog/log"
)

// ResetDir empties dir, creating it if needed. The directory itself is kept.
func ResetDir(dir string) error {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create %s: %w", dir, err)
	}

	entries, err := os.ReadDir(dir)
	if err != nil {
		return fmt.Errorf("read %s: %w", dir, err)
	}
	for _, entry := range entries {
		path := filepath.Join(dir, entry.Name())
		if err := os.RemoveAll(path); err != nil {
			return fmt.Errorf("remove %s: %w", path, err)
		}
	}

	log.Debug().Str("path", dir).Int("removed", len(entries)).Msg("Output directory cleared")
	return nil
}

// CopyArtifact copies the session's artifact into dir, overwriting any file
// with the same name, and returns the destination path. The source is never
// modified.
func CopyArtifact(s Session, dir string) (string, error) {
	dst := filepath.Join(dir, s.ArtifactName())

	src, err := os.Open(s.ArtifactPath)
	if err != nil {
		return "", fmt.Errorf("open artifact: %w", err)
	}
	defer src.Close()

	out, err := os.OpenFile(dst, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o600)
	if err != nil {
		return "", fmt.Errorf("create %s: %w", dst, err)
	}

	if _, err := io.Copy(out, src); err != nil {
		out.Close()
		os.Remove(dst)
		return "", fmt.Errorf("copy artifact: %w", err)
	}
	if err := out.Close(); err != nil {
		os.Remove(dst)
		return "", fmt.Errorf("close %s: %w", dst, err)
	}
	return dst, nil
}
