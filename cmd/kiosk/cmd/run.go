package cmd

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/afero"
	"github.com/spf13/cobra"

	"github.com/psantana5/kiosk-supervisor/internal/config"
	"github.com/psantana5/kiosk-supervisor/internal/envfile"
	"github.com/psantana5/kiosk-supervisor/internal/launch"
	"github.com/psantana5/kiosk-supervisor/internal/logging"
	"github.com/psantana5/kiosk-supervisor/internal/process"
	"github.com/psantana5/kiosk-supervisor/internal/report"
	"github.com/psantana5/kiosk-supervisor/internal/shutdown"
	"github.com/psantana5/kiosk-supervisor/internal/status"
	"github.com/psantana5/kiosk-supervisor/internal/supervisor"
	"github.com/psantana5/kiosk-supervisor/internal/tracing"
)

const shutdownTimeout = 10 * time.Second

func runSupervisor(cmd *cobra.Command, args []string) error {
	c, err := loadedConfig()
	if err != nil {
		return err
	}

	logger, err := newLogger(c)
	if err != nil {
		return fmt.Errorf("failed to initialize logger: %w", err)
	}
	defer logger.Close()

	runID := uuid.New().String()
	logger.Info("Starting kiosk supervisor", map[string]interface{}{
		"run_id":  runID,
		"version": version,
		"config":  c.File,
	})

	fs := afero.NewOsFs()
	launchCfg := resolveLaunch(fs, c, logger)

	cooldown, err := supervisor.NewCooldown(c.Supervisor.Backoff, c.Supervisor.Cooldown, c.Supervisor.MaxCooldown)
	if err != nil {
		return err
	}

	runner := process.NewRunner(
		logger.WithField("component", "browser"),
		process.Constraints{
			NicePriority: c.Browser.Nice,
			OOMScoreAdj:  c.Browser.OOMScoreAdj,
			MemoryMax:    c.Browser.MemoryLimitMB << 20,
		},
		c.Browser.StopTimeout,
	)
	metrics := report.NewMetrics(runner.Current)
	history := report.NewHistory(c.Supervisor.HistorySize)

	shutdownMgr := shutdown.New(shutdownTimeout, logger)
	ctx, stop := shutdownMgr.Context(cmd.Context())
	defer stop()

	tp, err := tracing.Init(ctx, tracing.Config{
		ServiceName:    "kiosk",
		ServiceVersion: version,
		OTLPEndpoint:   c.Tracing.Endpoint,
		Insecure:       c.Tracing.Insecure,
	})
	if err != nil {
		logger.Warn("Tracing disabled", map[string]interface{}{"error": err.Error()})
		tp = tracing.Noop()
	}
	shutdownMgr.Register("tracing", tp.Shutdown)

	sup := supervisor.New(supervisor.Options{
		Launch:      launchCfg,
		Launcher:    runner,
		Fs:          fs,
		Logger:      logger,
		Cooldown:    cooldown,
		StableAfter: c.Supervisor.StableAfter,
		Observer:    metrics,
		History:     history,
		Tracer:      tp,
		RunID:       runID,
	})

	if c.Metrics.Addr != "" {
		srv := status.New(c.Metrics.Addr, sup, metrics.Handler(), runner.Current, logger)
		if err := srv.Start(); err != nil {
			logger.Warn("Status endpoint disabled", map[string]interface{}{
				"addr":  c.Metrics.Addr,
				"error": err.Error(),
			})
		} else {
			shutdownMgr.Register("status server", shutdown.StopHTTPServer(srv))
		}
	}

	err = sup.Run(ctx)
	shutdownMgr.Shutdown()

	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

// resolveLaunch reads the settings value once and freezes the launch configuration
func resolveLaunch(fs afero.Fs, c *config.Config, logger *logging.Logger) launch.Config {
	value := envfile.Resolve(fs, c.Settings.File, c.Settings.Key, logger)

	return launch.New(launch.Options{
		Binary:     c.Browser.Binary,
		Page:       c.Browser.Page,
		Value:      value,
		ProfileDir: c.Browser.ProfileDir,
		ExtraFlags: c.Browser.ExtraFlags,
	})
}
