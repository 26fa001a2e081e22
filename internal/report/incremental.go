package report

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/fpang/session-check/internal/checker"
)

// Incremental appends one line per outcome to an open report file.
// It implements checker.Journal.
type Incremental struct {
	f *os.File
}

// OpenIncremental truncates path, writes the header, and returns a journal
// that appends outcomes as they arrive.
func OpenIncremental(path, runID string, start time.Time) (*Incremental, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("create report directory: %w", err)
	}

	f, err := os.Create(path)
	if err != nil {
		return nil, fmt.Errorf("create report: %w", err)
	}

	ew := &errWriter{w: f}
	writeHeader(ew, runID, start)
	ew.printf("\n")
	if ew.err != nil {
		f.Close()
		return nil, fmt.Errorf("write report header: %w", ew.err)
	}
	return &Incremental{f: f}, nil
}

// Record appends "<id> <status>[: <reason>]".
func (i *Incremental) Record(o checker.Outcome) error {
	line := o.Session.ID + " " + string(o.Status)
	if o.Reason != "" {
		line += ": " + o.Reason
	}
	if _, err := fmt.Fprintln(i.f, line); err != nil {
		return fmt.Errorf("append report line: %w", err)
	}
	return nil
}

// Close closes the report file.
func (i *Incremental) Close() error {
	return i.f.Close()
}
