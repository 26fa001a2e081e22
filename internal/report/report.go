// Package report writes the per-run text report.
//
// Two modes exist. Summary mode (the default) writes the whole report once
// the run is finished: a header, then valid, invalid and skipped sections.
// Incremental mode writes the header up front and appends one line per
// session as soon as it is classified, so a crashed run still leaves a
// partial record. Both modes overwrite the previous run's report.
package report

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/fpang/session-check/internal/checker"
)

// Mode selects how the report is written.
type Mode string

const (
	ModeSummary     Mode = "summary"
	ModeIncremental Mode = "incremental"
)

// ParseMode validates a mode string. Empty means ModeSummary.
func ParseMode(s string) (Mode, error) {
	switch Mode(s) {
	case "", ModeSummary:
		return ModeSummary, nil
	case ModeIncremental:
		return ModeIncremental, nil
	default:
		return "", fmt.Errorf("unknown report mode %q (want %q or %q)", s, ModeSummary, ModeIncremental)
	}
}

// Write renders res to path, replacing any existing file.
func Write(path string, res *checker.Result) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("create report directory: %w", err)
	}

	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create report: %w", err)
	}

	w := bufio.NewWriter(f)
	if err := Render(w, res); err != nil {
		f.Close()
		return err
	}
	if err := w.Flush(); err != nil {
		f.Close()
		return fmt.Errorf("write report: %w", err)
	}
	if err := f.Close(); err != nil {
		return fmt.Errorf("close report: %w", err)
	}

	log.Info().Str("path", path).Int("sessions", res.Total()).Msg("Report written")
	return nil
}

// Render writes the summary report for res to w.
func Render(w io.Writer, res *checker.Result) error {
	ew := &errWriter{w: w}

	writeHeader(ew, res.RunID, res.StartedAt)
	ew.printf("\n")
	section(ew, "Valid sessions:", res.Valid)
	ew.printf("\n")
	section(ew, "Invalid sessions:", res.Invalid)
	ew.printf("\n")
	section(ew, "Skipped sessions:", res.Skipped)

	if ew.err != nil {
		return fmt.Errorf("render report: %w", ew.err)
	}
	return nil
}

func writeHeader(ew *errWriter, runID string, start time.Time) {
	ew.printf("Start time: %s\n", start.Format(time.RFC3339))
	ew.printf("Run ID: %s\n", runID)
}

func section(ew *errWriter, title string, outcomes []checker.Outcome) {
	ew.printf("%s\n", title)
	if len(outcomes) == 0 {
		ew.printf("(none)\n")
		return
	}
	for _, o := range outcomes {
		ew.printf("%s\n", Line(o))
	}
}

// Line formats one outcome as "<id>" or "<id>: <reason>".
// Valid outcomes list only the identifier.
func Line(o checker.Outcome) string {
	if o.Status == checker.StatusValid || o.Reason == "" {
		return o.Session.ID
	}
	return o.Session.ID + ": " + o.Reason
}

// errWriter remembers the first write error so rendering code stays linear.
type errWriter struct {
	w   io.Writer
	err error
}

func (e *errWriter) printf(format string, args ...any) {
	if e.err != nil {
		return
	}
	_, e.err = fmt.Fprintf(e.w, format, args...)
}
