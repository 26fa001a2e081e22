package metrics

import (
	"io"

	"github.com/fpang/session-check/internal/checker"
)

// Namespace is the CloudWatch namespace for session-check metrics.
const Namespace = "SessionCheck"

// RecordRun writes one EMF line summarising a finished run.
func RecordRun(w io.Writer, res *checker.Result) error {
	return New(Namespace).
		To(w).
		Dimension("Service", "session-check").
		Count("SessionsChecked", res.Total()).
		Count("ValidSessions", len(res.Valid)).
		Count("InvalidSessions", len(res.Invalid)).
		Count("SkippedSessions", len(res.Skipped)).
		Count("EscalatedFaults", res.Escalated).
		Metric("RunDurationMs", float64(res.Duration().Milliseconds()), UnitMilliseconds).
		Property("runId", res.RunID).
		Flush()
}
