package process

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"sync/atomic"
	"syscall"
	"time"

	gopsprocess "github.com/shirou/gopsutil/v3/process"
	"golang.org/x/sys/unix"

	"github.com/psantana5/kiosk-supervisor/internal/logging"
)

const (
	defaultStopTimeout = 5 * time.Second
	outputWaitDelay    = time.Second
)

// Runner starts one child at a time and waits for it.
// The child gets its own process group so the whole tree can be torn down together.
type Runner struct {
	logger      *logging.Logger
	constraints Constraints
	stopTimeout time.Duration
	cgroupRoot  string
	current     atomic.Int64
	launches    atomic.Int64
}

// NewRunner creates a runner. A zero stopTimeout means 5s.
func NewRunner(logger *logging.Logger, constraints Constraints, stopTimeout time.Duration) *Runner {
	if stopTimeout <= 0 {
		stopTimeout = defaultStopTimeout
	}
	constraints.Validate()

	return &Runner{
		logger:      logger,
		constraints: constraints,
		stopTimeout: stopTimeout,
		cgroupRoot:  DefaultCgroupRoot,
	}
}

// Current returns the PID of the running child, or 0
func (r *Runner) Current() int {
	return int(r.current.Load())
}

// Run starts binary with args and blocks until it exits.
// A start failure is returned as an error with a nil Result.
// When ctx is cancelled the child's process group is terminated and Run
// returns once it is gone.
func (r *Runner) Run(ctx context.Context, binary string, args []string) (*Result, error) {
	cg := r.prepareCgroup()
	if cg != nil {
		defer func() {
			if err := removeCgroup(cg.path); err != nil {
				r.logger.Debug("Failed to remove cgroup", map[string]interface{}{"path": cg.path, "error": err.Error()})
			}
		}()
	}

	startedAt := time.Now()
	cmd, err := r.start(binary, args, cg)
	if err != nil {
		return nil, err
	}

	pid := cmd.Process.Pid
	r.current.Store(int64(pid))
	defer r.current.Store(0)

	r.applyConstraints(pid)

	done := make(chan struct{})
	var stopped atomic.Bool
	watcherDone := make(chan struct{})
	go func() {
		defer close(watcherDone)
		select {
		case <-ctx.Done():
			stopped.Store(true)
			r.terminate(pid, done)
		case <-done:
		}
	}()

	waitErr := cmd.Wait()
	close(done)
	<-watcherDone

	// Helpers still in the group would hold the profile dir into the next launch
	if !stopped.Load() {
		r.killGroup(pid)
	}

	result := &Result{
		PID:       pid,
		StartedAt: startedAt,
		EndedAt:   time.Now(),
	}
	result.Duration = result.EndedAt.Sub(startedAt)
	fillExitStatus(result, cmd.ProcessState)

	var exitErr *exec.ExitError
	if waitErr != nil && !errors.As(waitErr, &exitErr) {
		r.logger.Warn("Wait returned an error", map[string]interface{}{
			"pid":   pid,
			"error": waitErr.Error(),
		})
	}

	if stopped.Load() {
		result.Reason = ExitReasonStopped
	}

	return result, nil
}

func fillExitStatus(result *Result, state *os.ProcessState) {
	if state == nil {
		result.ExitCode = -1
		result.Reason = ExitReasonUnknown
		return
	}

	result.ExitCode = state.ExitCode()
	status, ok := state.Sys().(syscall.WaitStatus)
	if !ok {
		result.Reason = ExitReasonUnknown
		return
	}

	result.Reason = DetermineExitReason(result.ExitCode, status)
	if status.Signaled() {
		result.Signal = SignalName(status.Signal())
	}
}

// applyConstraints applies nice and OOM settings (best effort)
func (r *Runner) applyConstraints(pid int) {
	if err := ApplyNicePriority(pid, r.constraints.NicePriority); err != nil {
		r.logger.Warn("Failed to set nice priority", map[string]interface{}{"error": err.Error()})
	}
	if err := ApplyOOMScoreAdj(pid, r.constraints.OOMScoreAdj); err != nil {
		r.logger.Warn("Failed to set OOM score", map[string]interface{}{"error": err.Error()})
	}
}

// command builds the child in its own process group.
// Pdeathsig takes the browser down if the supervisor itself is killed.
func (r *Runner) command(binary string, args []string) *exec.Cmd {
	cmd := exec.Command(binary, args...)
	cmd.SysProcAttr = &syscall.SysProcAttr{
		Setpgid:   true, // New process group
		Pgid:      0,    // Child becomes its own group leader
		Pdeathsig: syscall.SIGKILL,
	}
	cmd.Stdout = newLineWriter(r.logger, "stdout")
	cmd.Stderr = newLineWriter(r.logger, "stderr")
	// Browser helpers may keep our pipes open after the main process exits
	cmd.WaitDelay = outputWaitDelay
	return cmd
}

// start launches the child, directly inside cg when one is given.
// Kernels without CLONE_INTO_CGROUP fall back to joining right after start.
func (r *Runner) start(binary string, args []string, cg *memoryCgroup) (*exec.Cmd, error) {
	if cg != nil {
		defer cg.dir.Close()

		cmd := r.command(binary, args)
		cmd.SysProcAttr.UseCgroupFD = true
		cmd.SysProcAttr.CgroupFD = int(cg.dir.Fd())
		err := cmd.Start()
		if err == nil {
			return cmd, nil
		}
		r.logger.Warn("Failed to start browser inside memory cgroup, joining after start", map[string]interface{}{
			"path":  cg.path,
			"error": err.Error(),
		})
	}

	cmd := r.command(binary, args)
	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("failed to start %s: %w", binary, err)
	}

	if cg != nil {
		if err := joinCgroup(cg.path, cmd.Process.Pid); err != nil {
			r.logger.Warn("Failed to move browser into cgroup", map[string]interface{}{"path": cg.path, "error": err.Error()})
		}
	}
	return cmd, nil
}

// memoryCgroup is a per-launch cgroup created before the browser starts
type memoryCgroup struct {
	path string
	dir  *os.File
}

// prepareCgroup creates the memory cgroup for the next launch when a limit is set.
// Returns nil when no limit applies.
func (r *Runner) prepareCgroup() *memoryCgroup {
	if r.constraints.MemoryMax <= 0 {
		return nil
	}

	name := fmt.Sprintf("browser-%d-%d", os.Getpid(), r.launches.Add(1))
	path, err := createCgroup(r.cgroupRoot, name, r.constraints.MemoryMax)
	if err != nil {
		r.logger.Warn("Memory limit not applied", map[string]interface{}{"error": err.Error()})
		return nil
	}

	dir, err := os.Open(path)
	if err != nil {
		r.logger.Warn("Memory limit not applied", map[string]interface{}{"path": path, "error": err.Error()})
		removeCgroup(path)
		return nil
	}
	return &memoryCgroup{path: path, dir: dir}
}

// terminate stops the child's process group: SIGTERM, grace period, SIGKILL.
// Descendants that left the group are collected first and killed at the end.
func (r *Runner) terminate(pid int, done <-chan struct{}) {
	strays := descendants(int32(pid))

	r.logger.Info("Stopping browser process group", map[string]interface{}{
		"pid":         pid,
		"descendants": len(strays),
	})

	if err := unix.Kill(-pid, unix.SIGTERM); err != nil && !errors.Is(err, unix.ESRCH) {
		r.logger.Warn("Failed to send SIGTERM to process group", map[string]interface{}{
			"pid":   pid,
			"error": err.Error(),
		})
	}

	timer := time.NewTimer(r.stopTimeout)
	defer timer.Stop()

	select {
	case <-done:
	case <-timer.C:
		r.logger.Warn("Browser did not exit in time, sending SIGKILL", map[string]interface{}{
			"pid":     pid,
			"timeout": r.stopTimeout.String(),
		})
	}

	// Leader gone or overdue: nothing in the group gets to outlive it
	r.killGroup(pid)

	for _, stray := range strays {
		if alive, _ := gopsprocess.PidExists(stray); !alive {
			continue
		}
		r.logger.Debug("Killing stray browser descendant", map[string]interface{}{"pid": stray})
		_ = unix.Kill(int(stray), unix.SIGKILL)
	}
}

// killGroup sends SIGKILL to every process left in the child's group
func (r *Runner) killGroup(pid int) {
	if err := unix.Kill(-pid, unix.SIGKILL); err != nil && !errors.Is(err, unix.ESRCH) {
		r.logger.Warn("Failed to send SIGKILL to process group", map[string]interface{}{
			"pid":   pid,
			"error": err.Error(),
		})
	}
}

// descendants walks the process tree below pid
func descendants(pid int32) []int32 {
	p, err := gopsprocess.NewProcess(pid)
	if err != nil {
		return nil
	}

	children, err := p.Children()
	if err != nil {
		return nil
	}

	var out []int32
	for _, child := range children {
		out = append(out, child.Pid)
		out = append(out, descendants(child.Pid)...)
	}
	return out
}
