package report

import (
	"testing"

	"github.com/psantana5/kiosk-supervisor/internal/process"
)

func TestHistoryRingBuffer(t *testing.T) {
	h := NewHistory(3)

	for i := 1; i <= 5; i++ {
		h.Record(uint64(i), &process.Result{PID: 100 + i, Reason: process.ExitReasonError})
	}

	if h.Count() != 3 {
		t.Fatalf("Expected 3 samples, got %d", h.Count())
	}

	recent := h.Recent(0)
	if recent[0].Iteration != 5 || recent[2].Iteration != 3 {
		t.Errorf("Expected iterations 5..3 newest first, got %+v", recent)
	}

	if got := h.Recent(1); len(got) != 1 || got[0].PID != 105 {
		t.Errorf("Expected newest sample only, got %+v", got)
	}
}

func TestHistoryDefaultSize(t *testing.T) {
	h := NewHistory(0)
	if h.maxSize != 50 {
		t.Errorf("Expected default size 50, got %d", h.maxSize)
	}
}
