package report

import (
	"fmt"

	"github.com/psantana5/kiosk-supervisor/internal/process"
)

// Summary is the one-line record of a browser run.
// This is what ops grep for at 03:00.
func Summary(iteration uint64, r *process.Result) string {
	signal := ""
	if r.Signal != "" {
		signal = fmt.Sprintf(" | signal=%s", r.Signal)
	}

	return fmt.Sprintf("BROWSER #%d | reason=%s | runtime=%.0fs | exit=%d | pid=%d%s",
		iteration,
		r.Reason,
		r.Duration.Seconds(),
		r.ExitCode,
		r.PID,
		signal,
	)
}
