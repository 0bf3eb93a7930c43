package process

import (
	"fmt"
	"syscall"
	"time"
)

// ExitReason describes why a child terminated
type ExitReason string

const (
	ExitReasonSuccess ExitReason = "success" // Exit code 0
	ExitReasonError   ExitReason = "error"   // Exit code != 0
	ExitReasonSignal  ExitReason = "signal"  // Killed by signal
	ExitReasonOOM     ExitReason = "oom"     // Exit code 137, usually the OOM killer behind a wrapper script
	ExitReasonStopped ExitReason = "stopped" // Terminated by us during shutdown
	ExitReasonUnknown ExitReason = "unknown"
)

// Result is what one child run left behind. Set once, never changed.
type Result struct {
	PID       int           `json:"pid"`
	ExitCode  int           `json:"exit_code"`
	Reason    ExitReason    `json:"exit_reason"`
	Signal    string        `json:"signal,omitempty"`
	StartedAt time.Time     `json:"started_at"`
	EndedAt   time.Time     `json:"ended_at"`
	Duration  time.Duration `json:"duration"`
}

// DetermineExitReason analyzes a wait status
func DetermineExitReason(exitCode int, status syscall.WaitStatus) ExitReason {
	if status.Exited() {
		switch exitCode {
		case 0:
			return ExitReasonSuccess
		case 137:
			return ExitReasonOOM
		default:
			return ExitReasonError
		}
	}

	if status.Signaled() {
		return ExitReasonSignal
	}

	return ExitReasonUnknown
}

// SignalName returns the signal name for a signal number
func SignalName(sig syscall.Signal) string {
	switch sig {
	case syscall.SIGKILL:
		return "SIGKILL"
	case syscall.SIGTERM:
		return "SIGTERM"
	case syscall.SIGINT:
		return "SIGINT"
	case syscall.SIGHUP:
		return "SIGHUP"
	case syscall.SIGQUIT:
		return "SIGQUIT"
	case syscall.SIGABRT:
		return "SIGABRT"
	case syscall.SIGSEGV:
		return "SIGSEGV"
	case syscall.SIGBUS:
		return "SIGBUS"
	case syscall.SIGTRAP:
		return "SIGTRAP"
	case syscall.SIGPIPE:
		return "SIGPIPE"
	default:
		return fmt.Sprintf("SIG%d", int(sig))
	}
}

// Fields flattens the result for structured logging
func (r *Result) Fields() map[string]interface{} {
	fields := map[string]interface{}{
		"pid":         r.PID,
		"exit_code":   r.ExitCode,
		"exit_reason": string(r.Reason),
		"runtime":     r.Duration.Round(time.Millisecond).String(),
	}
	if r.Signal != "" {
		fields["signal"] = r.Signal
	}
	return fields
}
