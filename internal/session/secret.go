package session

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/rs/zerolog/log"
)

// DefaultSecretField is the sidecar field holding the second-factor secret.
const DefaultSecretField = "twoFA"

// ErrMalformedSidecar is returned when a sidecar exists but cannot yield a
// secret: invalid JSON, a missing field, or a non-string value.
var ErrMalformedSidecar = errors.New("malformed sidecar")

// SidecarPath returns the sidecar location for a session identifier.
func SidecarPath(dir, id string) string {
	return filepath.Join(dir, id+".json")
}

// LookupSecret reads the second-factor secret from the sidecar at path.
// A missing sidecar, or an empty secret, returns "" and no error.
func LookupSecret(path, field string) (string, error) {
	if field == "" {
		field = DefaultSecretField
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			log.Debug().Str("file", path).Msg("No sidecar for session")
			return "", nil
		}
		return "", fmt.Errorf("read sidecar: %w", err)
	}

	var record map[string]json.RawMessage
	if err := json.Unmarshal(data, &record); err != nil {
		return "", fmt.Errorf("%w: %s: %v", ErrMalformedSidecar, filepath.Base(path), err)
	}

	raw, ok := record[field]
	if !ok {
		return "", fmt.Errorf("%w: %s: field %q missing", ErrMalformedSidecar, filepath.Base(path), field)
	}

	var secret *string
	if err := json.Unmarshal(raw, &secret); err != nil {
		return "", fmt.Errorf("%w: %s: field %q is not a string", ErrMalformedSidecar, filepath.Base(path), field)
	}
	if secret == nil {
		return "", nil
	}
	return *secret, nil
}
