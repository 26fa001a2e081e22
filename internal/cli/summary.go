package cli

import (
	"fmt"
	"io"

	"github.com/fpang/session-check/internal/checker"
	"github.com/fpang/session-check/internal/report"
)

const (
	banner  = "============================================"
	divider = "--------------------------------------------"
)

// Header describes a run before it starts.
type Header struct {
	BaseDir    string
	Sessions   int
	Gateway    string
	Proxy      string
	ReportMode report.Mode
}

// PrintHeader writes the pre-run banner.
func PrintHeader(w io.Writer, h Header) {
	fmt.Fprintln(w)
	fmt.Fprintln(w, banner)
	fmt.Fprintln(w, "Session Check")
	fmt.Fprintln(w, banner)
	fmt.Fprintf(w, "Directory: %s\n", h.BaseDir)
	fmt.Fprintf(w, "Sessions found: %d\n", h.Sessions)
	fmt.Fprintf(w, "Gateway: %s\n", h.Gateway)
	if h.Proxy != "" {
		fmt.Fprintf(w, "Proxy: %s\n", h.Proxy)
	}
	fmt.Fprintf(w, "Report mode: %s\n", h.ReportMode)
	fmt.Fprintln(w, divider)
}

// PrintSummary writes the post-run report: one section per status, then
// totals and elapsed time.
func PrintSummary(w io.Writer, res *checker.Result, reportPath string) {
	fmt.Fprintln(w)
	fmt.Fprintln(w, banner)
	fmt.Fprintln(w, "Session Report")
	fmt.Fprintln(w, banner)
	fmt.Fprintln(w)

	printSection(w, "VALID", res.Valid)
	printSection(w, "INVALID", res.Invalid)
	printSection(w, "SKIPPED", res.Skipped)

	fmt.Fprintf(w, "Checked %d sessions in %s\n", res.Total(), FormatDurationShort(res.Duration()))
	if res.Escalated > 0 {
		fmt.Fprintf(w, "Unrecognised failures: %d (see log)\n", res.Escalated)
	}
	fmt.Fprintf(w, "Report: %s\n", reportPath)
	fmt.Fprintln(w, banner)
}

func printSection(w io.Writer, title string, outcomes []checker.Outcome) {
	fmt.Fprintf(w, "%s (%d)\n", title, len(outcomes))
	fmt.Fprintln(w, divider)
	if len(outcomes) == 0 {
		fmt.Fprintln(w, "   (none)")
	}
	for i, o := range outcomes {
		fmt.Fprintf(w, "   %2d. %s\n", i+1, o.Session.ID)
		if o.Reason != "" {
			fmt.Fprintf(w, "       %s\n", o.Reason)
		}
	}
	fmt.Fprintln(w)
}
