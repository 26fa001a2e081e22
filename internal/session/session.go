// Package session discovers stored account sessions on disk and manages
// their artifacts: the opaque credential file, the optional JSON sidecar
// holding the second-factor secret, and the valid-output directory.
package session

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/rs/zerolog/log"
)

// DefaultExt is the recognised session artifact extension.
const DefaultExt = ".session"

// Session is one stored account session.
type Session struct {
	// ID is the session identifier, usually a phone number ("+15551234567").
	ID string
	// ArtifactPath is the absolute path of the credential file.
	ArtifactPath string
}

// List returns the sessions found in dir, in the order the filesystem lists
// them. Callers must not assume that order is sorted or stable across
// platforms.
//
// A missing directory is not an error: List logs a warning and returns an
// empty result so the caller can end the run cleanly.
func List(dir, ext string) ([]Session, error) {
	if ext == "" {
		ext = DefaultExt
	}

	f, err := os.Open(dir)
	if err != nil {
		if os.IsNotExist(err) {
			log.Warn().Str("path", dir).Msg("Sessions directory not found")
			return nil, nil
		}
		return nil, fmt.Errorf("open sessions directory: %w", err)
	}
	defer f.Close()

	// (*os.File).ReadDir keeps directory order; os.ReadDir would sort.
	entries, err := f.ReadDir(-1)
	if err != nil {
		return nil, fmt.Errorf("read sessions directory: %w", err)
	}

	absDir, err := filepath.Abs(dir)
	if err != nil {
		absDir = dir
	}

	var sessions []Session
	seen := make(map[string]bool)
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		name := entry.Name()
		if !strings.HasSuffix(name, ext) {
			continue
		}
		id := strings.TrimSuffix(name, ext)
		if id == "" || seen[id] {
			continue
		}
		seen[id] = true
		sessions = append(sessions, Session{
			ID:           id,
			ArtifactPath: filepath.Join(absDir, name),
		})
	}

	log.Info().
		Str("directory", dir).
		Int("total_sessions", len(sessions)).
		Msg("Session scan complete")

	return sessions, nil
}

// ArtifactName returns the artifact's file name.
func (s Session) ArtifactName() string {
	return filepath.Base(s.ArtifactPath)
}
