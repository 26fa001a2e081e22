// Package checker runs the batch validation loop: each discovered session is
// driven through a remote client one at a time, classified as valid,
// invalid or skipped, and valid artifacts are copied to the output directory.
package checker

import (
	"context"
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/fpang/session-check/internal/session"
	"github.com/fpang/session-check/internal/telegram"
)

// DefaultProbe is the public entity resolved to prove a session is usable.
const DefaultProbe = "https://t.me/telegram"

// ErrEscalatedFaults is returned by callers that want a non-zero exit when a
// run contained unrecognised failures.
var ErrEscalatedFaults = errors.New("unrecognised remote failures during run")

// ErrValidDirUnsafe is returned by Run when the valid output directory is
// unset or would hold input artifacts when cleared.
var ErrValidDirUnsafe = errors.New("unsafe valid output directory")

// Options configures a Checker.
type Options struct {
	APIID   int
	APIHash string
	Timeout time.Duration
	Proxy   *telegram.Proxy

	// SecretsDir holds <id>.json sidecars.
	SecretsDir  string
	SecretField string

	// ValidDir receives copies of valid artifacts. It is cleared at the start
	// of every run.
	ValidDir string

	Probe string

	// RunID identifies the run in logs and reports. Generated when empty.
	RunID string
}

// Journal receives each outcome as soon as it is known.
type Journal interface {
	Record(o Outcome) error
}

// Checker validates sessions sequentially.
type Checker struct {
	opts     Options
	dial     telegram.Dialer
	progress io.Writer
	journal  Journal
}

// New creates a Checker that acquires clients through dial.
func New(opts Options, dial telegram.Dialer) *Checker {
	if opts.Timeout <= 0 {
		opts.Timeout = telegram.DefaultTimeout
	}
	if opts.Probe == "" {
		opts.Probe = DefaultProbe
	}
	if opts.SecretField == "" {
		opts.SecretField = session.DefaultSecretField
	}
	return &Checker{opts: opts, dial: dial, progress: io.Discard}
}

// WithProgress sets where "<n>/<total> sessions checked" lines are written.
func (c *Checker) WithProgress(w io.Writer) *Checker {
	c.progress = w
	return c
}

// WithJournal sets a sink that sees every outcome as it is produced.
func (c *Checker) WithJournal(j Journal) *Checker {
	c.journal = j
	return c
}

// Run checks every session in order and returns the accumulated result.
// Every session yields exactly one outcome. Run only returns early if the
// output directory cannot be prepared or ctx is cancelled; the partial
// result is returned in the latter case.
func (c *Checker) Run(ctx context.Context, sessions []session.Session) (*Result, error) {
	runID := c.opts.RunID
	if runID == "" {
		runID = uuid.NewString()
	}
	result := &Result{
		RunID:     runID,
		StartedAt: time.Now(),
	}

	if err := c.checkValidDir(sessions); err != nil {
		return nil, err
	}
	if err := session.ResetDir(c.opts.ValidDir); err != nil {
		return nil, fmt.Errorf("prepare valid output directory: %w", err)
	}

	log.Info().
		Str("runId", result.RunID).
		Int("sessions", len(sessions)).
		Str("validDir", c.opts.ValidDir).
		Msg("Starting session check")

	total := len(sessions)
	for i, s := range sessions {
		if err := ctx.Err(); err != nil {
			result.FinishedAt = time.Now()
			return result, err
		}

		outcome := c.check(ctx, s)

		if outcome.Status == StatusValid {
			if _, err := session.CopyArtifact(s, c.opts.ValidDir); err != nil {
				log.Error().Err(err).Str("session", s.ID).Msg("Failed to copy valid artifact")
				outcome = Outcome{
					Session:   s,
					Status:    StatusSkipped,
					Reason:    "copy artifact: " + err.Error(),
					Fault:     outcome.Fault,
					Escalated: true,
				}
			}
		}

		result.add(outcome)
		logOutcome(result.RunID, outcome)

		if c.journal != nil {
			if err := c.journal.Record(outcome); err != nil {
				log.Warn().Err(err).Str("session", s.ID).Msg("Failed to record outcome")
			}
		}

		fmt.Fprintf(c.progress, "%d/%d sessions checked\n", i+1, total)
	}

	result.FinishedAt = time.Now()
	log.Info().
		Str("runId", result.RunID).
		Int("valid", len(result.Valid)).
		Int("invalid", len(result.Invalid)).
		Int("skipped", len(result.Skipped)).
		Int("escalated", result.Escalated).
		Dur("duration", result.Duration()).
		Msg("Session check complete")

	return result, nil
}

// checkValidDir refuses a valid directory that is unset or holds any of
// the input artifacts, since Run empties it first.
func (c *Checker) checkValidDir(sessions []session.Session) error {
	if c.opts.ValidDir == "" {
		return ErrValidDirUnsafe
	}
	valid, err := filepath.Abs(c.opts.ValidDir)
	if err != nil {
		return fmt.Errorf("resolve valid output directory: %w", err)
	}
	for _, s := range sessions {
		dir, err := filepath.Abs(filepath.Dir(s.ArtifactPath))
		if err != nil {
			continue
		}
		if rel, err := filepath.Rel(valid, dir); err == nil && rel != ".." && !strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
			return fmt.Errorf("%w: %s holds input artifact %s", ErrValidDirUnsafe, valid, s.ArtifactName())
		}
	}
	return nil
}

// check drives one session through connect, authorization, optional
// sign-in and the probe. The connection is released on every path.
func (c *Checker) check(ctx context.Context, s session.Session) Outcome {
	client, err := c.dial(telegram.Options{
		SessionPath: s.ArtifactPath,
		APIID:       c.opts.APIID,
		APIHash:     c.opts.APIHash,
		Timeout:     c.opts.Timeout,
		Proxy:       c.opts.Proxy,
	})
	if err != nil {
		return outcomeFor(s, err)
	}
	defer c.release(ctx, s, client)

	if err := client.Connect(ctx); err != nil {
		return outcomeFor(s, err)
	}

	authorized, err := client.IsAuthorized(ctx)
	if err != nil {
		return outcomeFor(s, err)
	}

	if !authorized {
		secret, err := session.LookupSecret(session.SidecarPath(c.opts.SecretsDir, s.ID), c.opts.SecretField)
		if err != nil {
			log.Warn().Err(err).Str("session", s.ID).Msg("Sidecar lookup failed")
			return Outcome{Session: s, Status: StatusSkipped, Reason: "sidecar: " + err.Error()}
		}
		if secret == "" {
			return Outcome{Session: s, Status: StatusSkipped, Reason: ReasonSecretRequired}
		}
		if err := client.SignIn(ctx, secret); err != nil {
			return outcomeFor(s, err)
		}
	}

	if err := client.ResolveEntity(ctx, c.opts.Probe); err != nil {
		return outcomeFor(s, err)
	}
	return Outcome{Session: s, Status: StatusValid}
}

// release disconnects the client. It survives cancellation of ctx so the
// remote side is always told.
func (c *Checker) release(ctx context.Context, s session.Session, client telegram.Client) {
	dctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), c.opts.Timeout)
	defer cancel()
	if err := client.Disconnect(dctx); err != nil {
		log.Warn().Err(err).Str("session", s.ID).Msg("Disconnect failed")
	}
}

func logOutcome(runID string, o Outcome) {
	evt := log.Info()
	switch {
	case o.Escalated:
		evt = log.Error()
	case o.Status == StatusInvalid:
		evt = log.Warn()
	}
	evt = evt.Str("runId", runID).Str("session", o.Session.ID).Str("status", string(o.Status))
	if o.Reason != "" {
		evt = evt.Str("reason", o.Reason)
	}
	if o.Fault != nil {
		evt = evt.Stringer("fault", o.Fault.Kind)
	}
	evt.Msg("Session checked")
}
