package checker

import (
	"time"

	"github.com/fpang/session-check/internal/session"
	"github.com/fpang/session-check/internal/telegram"
)

// Status is the classification of one session.
type Status string

const (
	StatusValid   Status = "valid"
	StatusInvalid Status = "invalid"
	StatusSkipped Status = "skipped"
)

// Skip reasons that do not come from a remote fault.
const (
	ReasonSecretRequired = "second-factor secret required"
	ReasonHashInvalid    = "hash invalid"
)

// Outcome is the result of checking one session.
type Outcome struct {
	Session session.Session
	Status  Status
	// Reason is empty for a clean Valid outcome.
	Reason string
	// Fault is the classified remote failure, if any.
	Fault *telegram.Fault
	// Escalated marks outcomes caused by an unrecognised failure.
	Escalated bool
}

// Result accumulates the outcomes of one run in check order.
type Result struct {
	RunID      string
	StartedAt  time.Time
	FinishedAt time.Time

	Valid   []Outcome
	Invalid []Outcome
	Skipped []Outcome

	// Escalated counts Skipped outcomes caused by unknown failures.
	Escalated int
}

// Total returns the number of classified sessions.
func (r *Result) Total() int {
	return len(r.Valid) + len(r.Invalid) + len(r.Skipped)
}

// Duration returns the wall-clock time of the run.
func (r *Result) Duration() time.Duration {
	if r.FinishedAt.IsZero() {
		return 0
	}
	return r.FinishedAt.Sub(r.StartedAt)
}

func (r *Result) add(o Outcome) {
	switch o.Status {
	case StatusValid:
		r.Valid = append(r.Valid, o)
	case StatusInvalid:
		r.Invalid = append(r.Invalid, o)
	default:
		r.Skipped = append(r.Skipped, o)
	}
	if o.Escalated {
		r.Escalated++
	}
}

// outcomeFor applies the classification policy to a failure from the
// connect/authorize/probe sequence. Every fault kind has an explicit branch;
// the default branch escalates.
func outcomeFor(s session.Session, err error) Outcome {
	fault := telegram.Classify(err)
	if fault == nil {
		return Outcome{Session: s, Status: StatusValid}
	}

	switch fault.Kind {
	case telegram.FaultBanned,
		telegram.FaultDeactivated,
		telegram.FaultDuplicateKey,
		telegram.FaultRevoked:
		return Outcome{Session: s, Status: StatusInvalid, Reason: fault.Error(), Fault: fault}

	case telegram.FaultFloodWait:
		// Rate limiting implies the account itself is usable.
		return Outcome{Session: s, Status: StatusValid, Reason: fault.Error(), Fault: fault}

	case telegram.FaultHashInvalid:
		return Outcome{Session: s, Status: StatusSkipped, Reason: ReasonHashInvalid, Fault: fault}

	default:
		return Outcome{Session: s, Status: StatusSkipped, Reason: fault.Error(), Fault: fault, Escalated: true}
	}
}
