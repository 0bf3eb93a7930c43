package report

import (
	"io"
	"net/http/httptest"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/psantana5/kiosk-supervisor/internal/process"
)

func TestMetricsCounters(t *testing.T) {
	m := NewMetrics(nil)

	m.LaunchAttempted(1)
	m.LaunchFailed()
	m.CooldownStarted(2 * time.Second)
	m.LaunchAttempted(2)
	m.BrowserExited(&process.Result{Reason: process.ExitReasonError, Duration: 3 * time.Second})
	m.CooldownStarted(2 * time.Second)
	m.CleanupFailed()

	if got := testutil.ToFloat64(m.launches); got != 2 {
		t.Errorf("Expected 2 launches, got %v", got)
	}
	if got := testutil.ToFloat64(m.launchFailures); got != 1 {
		t.Errorf("Expected 1 launch failure, got %v", got)
	}
	if got := testutil.ToFloat64(m.exits.WithLabelValues("error")); got != 1 {
		t.Errorf("Expected 1 error exit, got %v", got)
	}
	if got := testutil.ToFloat64(m.cooldowns); got != 2 {
		t.Errorf("Expected 2 cooldowns, got %v", got)
	}
	if got := testutil.ToFloat64(m.lastCooldown); got != 2 {
		t.Errorf("Expected last cooldown 2s, got %v", got)
	}
	if got := testutil.ToFloat64(m.iteration); got != 2 {
		t.Errorf("Expected iteration 2, got %v", got)
	}
	if got := testutil.ToFloat64(m.cleanupFailures); got != 1 {
		t.Errorf("Expected 1 cleanup failure, got %v", got)
	}
}

func TestMetricsHandler(t *testing.T) {
	pid := os.Getpid()
	m := NewMetrics(func() int { return pid })
	m.LaunchAttempted(1)

	rr := httptest.NewRecorder()
	m.Handler().ServeHTTP(rr, httptest.NewRequest("GET", "/metrics", nil))

	body, _ := io.ReadAll(rr.Body)
	for _, name := range []string{
		"kiosk_launches_total 1",
		"kiosk_browser_up 1",
		"kiosk_browser_rss_bytes",
		"kiosk_browser_processes",
	} {
		if !strings.Contains(string(body), name) {
			t.Errorf("Expected %q in metrics output", name)
		}
	}
}

func TestSummary(t *testing.T) {
	r := &process.Result{
		PID:      4242,
		ExitCode: -1,
		Reason:   process.ExitReasonSignal,
		Signal:   "SIGSEGV",
		Duration: 90 * time.Second,
	}

	got := Summary(7, r)
	expected := "BROWSER #7 | reason=signal | runtime=90s | exit=-1 | pid=4242 | signal=SIGSEGV"
	if got != expected {
		t.Errorf("Expected %q, got %q", expected, got)
	}
}
