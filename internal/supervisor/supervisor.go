// Package supervisor keeps exactly one kiosk browser alive.
//
// Every iteration wipes the scratch profile, launches the browser, waits for
// it to exit for whatever reason and pauses for the cooldown before starting
// over. Nothing that happens to the browser ends the loop; only cancellation
// of the context passed to Run does.
package supervisor

import (
	"context"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v5"
	"github.com/spf13/afero"
	"go.opentelemetry.io/otel/attribute"

	"github.com/psantana5/kiosk-supervisor/internal/launch"
	"github.com/psantana5/kiosk-supervisor/internal/logging"
	"github.com/psantana5/kiosk-supervisor/internal/process"
	"github.com/psantana5/kiosk-supervisor/internal/profile"
	"github.com/psantana5/kiosk-supervisor/internal/report"
	"github.com/psantana5/kiosk-supervisor/internal/tracing"
)

// Launcher runs one browser instance to completion
type Launcher interface {
	Run(ctx context.Context, binary string, args []string) (*process.Result, error)
}

// Observer is notified of every loop event. *report.Metrics implements it.
type Observer interface {
	LaunchAttempted(iteration uint64)
	LaunchFailed()
	BrowserExited(r *process.Result)
	CleanupFailed()
	CooldownStarted(d time.Duration)
}

// SleepFunc pauses for d or until ctx is done
type SleepFunc func(ctx context.Context, d time.Duration) error

// Phase is where the loop currently is
type Phase string

const (
	PhaseIdle      Phase = "idle"
	PhasePreparing Phase = "preparing"
	PhaseRunning   Phase = "running"
	PhaseCooldown  Phase = "cooldown"
	PhaseStopped   Phase = "stopped"
)

// State is the transient supervision state. Never persisted.
type State struct {
	RunID          string          `json:"run_id"`
	Phase          Phase           `json:"phase"`
	Iteration      uint64          `json:"iteration"`
	Launches       uint64          `json:"launches"`
	LaunchFailures uint64          `json:"launch_failures"`
	StartedAt      time.Time       `json:"started_at"`
	LastExit       *process.Result `json:"last_exit,omitempty"`
	LastError      string          `json:"last_error,omitempty"`
}

// Options configure a Supervisor. Launch and Launcher are required.
type Options struct {
	Launch   launch.Config
	Launcher Launcher
	Fs       afero.Fs
	Logger   *logging.Logger

	// Cooldown defaults to a constant DefaultCooldown
	Cooldown backoff.BackOff
	// StableAfter is how long a browser must stay up before the cooldown
	// policy is reset. Only matters for growing policies.
	StableAfter time.Duration

	Sleep    SleepFunc
	Observer Observer
	History  *report.History
	Tracer   *tracing.Provider
	RunID    string
}

// Supervisor owns the restart loop
type Supervisor struct {
	launch      launch.Config
	launcher    Launcher
	fs          afero.Fs
	logger      *logging.Logger
	cooldown    backoff.BackOff
	stableAfter time.Duration
	sleep       SleepFunc
	observer    Observer
	history     *report.History
	tracer      *tracing.Provider

	mu    sync.RWMutex
	state State
}

// New creates a supervisor, filling in defaults for optional dependencies
func New(opts Options) *Supervisor {
	s := &Supervisor{
		launch:      opts.Launch,
		launcher:    opts.Launcher,
		fs:          opts.Fs,
		logger:      opts.Logger,
		cooldown:    opts.Cooldown,
		stableAfter: opts.StableAfter,
		sleep:       opts.Sleep,
		observer:    opts.Observer,
		history:     opts.History,
		tracer:      opts.Tracer,
		state: State{
			RunID: opts.RunID,
			Phase: PhaseIdle,
		},
	}

	if s.fs == nil {
		s.fs = afero.NewOsFs()
	}
	if s.logger == nil {
		s.logger = logging.Discard()
	}
	if s.cooldown == nil {
		s.cooldown = backoff.NewConstantBackOff(DefaultCooldown)
	}
	if s.sleep == nil {
		s.sleep = sleepContext
	}
	if s.observer == nil {
		s.observer = nopObserver{}
	}
	if s.history == nil {
		s.history = report.NewHistory(0)
	}
	if s.tracer == nil {
		s.tracer = tracing.Noop()
	}
	if opts.RunID != "" {
		s.logger = s.logger.WithField("run_id", opts.RunID)
	}

	return s
}

// Run loops until ctx is cancelled and then returns ctx.Err().
// Browser crashes, launch failures and cleanup failures never end it.
func (s *Supervisor) Run(ctx context.Context) error {
	s.mu.Lock()
	s.state.StartedAt = time.Now()
	s.mu.Unlock()

	s.logger.Info("Supervisor started", map[string]interface{}{
		"binary":      s.launch.Binary,
		"target_url":  s.launch.TargetURL,
		"profile_dir": s.launch.ProfileDir,
	})

	for {
		if err := ctx.Err(); err != nil {
			return s.stop(err)
		}

		ran := s.iterate(ctx)
		if err := ctx.Err(); err != nil {
			return s.stop(err)
		}

		wait := s.nextCooldown(ran)
		s.setPhase(PhaseCooldown)
		s.observer.CooldownStarted(wait)
		s.logger.Debug("Cooling down before next launch", map[string]interface{}{
			"cooldown": wait.String(),
		})

		if err := s.sleep(ctx, wait); err != nil {
			return s.stop(err)
		}
	}
}

// iterate runs Prepare, Launch and Wait once. It returns how long the browser
// stayed up, zero when it never started.
func (s *Supervisor) iterate(ctx context.Context) time.Duration {
	s.mu.Lock()
	s.state.Iteration++
	iteration := s.state.Iteration
	s.state.Phase = PhasePreparing
	s.mu.Unlock()

	ctx, span := s.tracer.StartSpan(ctx, "kiosk.iteration",
		attribute.Int64("kiosk.iteration", int64(iteration)),
		attribute.String("kiosk.run_id", s.state.RunID),
	)
	defer span.End()

	log := s.logger.WithField("iteration", iteration)

	if err := profile.Reset(s.fs, s.launch.ProfileDir); err != nil {
		s.observer.CleanupFailed()
		tracing.AddEvent(ctx, "profile.cleanup_failed", attribute.String("error", err.Error()))
		log.Warn("Could not wipe profile dir, launching anyway", map[string]interface{}{
			"profile_dir": s.launch.ProfileDir,
			"error":       err.Error(),
		})
	}

	log.Info("Launching browser", map[string]interface{}{
		"binary":     s.launch.Binary,
		"target_url": s.launch.TargetURL,
	})

	s.mu.Lock()
	s.state.Launches++
	s.state.Phase = PhaseRunning
	s.mu.Unlock()
	s.observer.LaunchAttempted(iteration)

	result, err := s.launcher.Run(ctx, s.launch.Binary, s.launch.Args())
	if err != nil {
		s.observer.LaunchFailed()
		tracing.SetError(ctx, err)
		log.Error("Browser failed to start", map[string]interface{}{"error": err.Error()})

		s.mu.Lock()
		s.state.LaunchFailures++
		s.state.LastError = err.Error()
		s.mu.Unlock()
		return 0
	}

	s.observer.BrowserExited(result)
	s.history.Record(iteration, result)
	span.SetAttributes(
		attribute.Int("kiosk.browser.pid", result.PID),
		attribute.Int("kiosk.browser.exit_code", result.ExitCode),
		attribute.String("kiosk.browser.exit_reason", string(result.Reason)),
	)
	log.Info(report.Summary(iteration, result), result.Fields())

	s.mu.Lock()
	s.state.LastExit = result
	s.state.LastError = ""
	s.mu.Unlock()

	return result.Duration
}

// nextCooldown asks the policy for the next pause. A browser that stayed up
// past stableAfter resets the policy first.
func (s *Supervisor) nextCooldown(ran time.Duration) time.Duration {
	if s.stableAfter > 0 && ran >= s.stableAfter {
		s.cooldown.Reset()
	}

	d := s.cooldown.NextBackOff()
	if d < 0 {
		d = DefaultCooldown
	}
	return d
}

func (s *Supervisor) stop(err error) error {
	s.setPhase(PhaseStopped)
	s.logger.Info("Supervisor stopped", map[string]interface{}{"reason": err.Error()})
	return err
}

func (s *Supervisor) setPhase(p Phase) {
	s.mu.Lock()
	s.state.Phase = p
	s.mu.Unlock()
}

// Snapshot returns a copy of the current state
func (s *Supervisor) Snapshot() State {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state
}

// History returns the recent exit log
func (s *Supervisor) History() *report.History {
	return s.history
}

// Config returns the launch configuration this supervisor was built with
func (s *Supervisor) Config() launch.Config {
	return s.launch
}

func sleepContext(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

type nopObserver struct{}

func (nopObserver) LaunchAttempted(uint64)        {}
func (nopObserver) LaunchFailed()                 {}
func (nopObserver) BrowserExited(*process.Result) {}
func (nopObserver) CleanupFailed()                {}
func (nopObserver) CooldownStarted(time.Duration) {}
