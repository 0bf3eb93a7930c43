package report

import (
	"sync"
	"time"

	"github.com/psantana5/kiosk-supervisor/internal/process"
)

// ExitSample is one browser termination as shown on the status page
type ExitSample struct {
	Iteration uint64    `json:"iteration"`
	PID       int       `json:"pid"`
	Reason    string    `json:"reason"`
	Signal    string    `json:"signal,omitempty"`
	ExitCode  int       `json:"exit_code"`
	Duration  float64   `json:"duration_seconds"`
	EndedAt   time.Time `json:"ended_at"`
}

// History keeps the last N exits in a ring buffer.
// Instant root cause for a flapping kiosk without log diving.
type History struct {
	samples []ExitSample
	maxSize int
	mu      sync.RWMutex
}

// NewHistory creates a history with fixed size
func NewHistory(maxSize int) *History {
	if maxSize <= 0 {
		maxSize = 50
	}
	return &History{
		samples: make([]ExitSample, 0, maxSize),
		maxSize: maxSize,
	}
}

// Record adds an exit, dropping the oldest when full
func (h *History) Record(iteration uint64, r *process.Result) {
	sample := ExitSample{
		Iteration: iteration,
		PID:       r.PID,
		Reason:    string(r.Reason),
		Signal:    r.Signal,
		ExitCode:  r.ExitCode,
		Duration:  r.Duration.Seconds(),
		EndedAt:   r.EndedAt,
	}

	h.mu.Lock()
	defer h.mu.Unlock()

	if len(h.samples) >= h.maxSize {
		h.samples = h.samples[1:]
	}
	h.samples = append(h.samples, sample)
}

// Recent returns up to n exits, newest first. n <= 0 means all.
func (h *History) Recent(n int) []ExitSample {
	h.mu.RLock()
	defer h.mu.RUnlock()

	if n <= 0 || n > len(h.samples) {
		n = len(h.samples)
	}

	result := make([]ExitSample, n)
	for i := 0; i < n; i++ {
		result[i] = h.samples[len(h.samples)-1-i]
	}
	return result
}

// Count returns how many exits are held
func (h *History) Count() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.samples)
}
