package cmd

import (
	"context"
	"strings"

	"github.com/spf13/cobra"

	"github.com/psantana5/kiosk-supervisor/internal/config"
	"github.com/psantana5/kiosk-supervisor/internal/logging"
)

var (
	cfgFile   string
	logLevel  string
	logFormat string

	cfg    *config.Config
	cfgErr error
)

// rootCmd runs the supervisor when called without a subcommand
var rootCmd = &cobra.Command{
	Use:   "kiosk",
	Short: "Keep a kiosk browser running forever",
	Long: `kiosk supervises a single full-screen browser showing a local page.

The value of one key in a KEY=VALUE settings file is read once at startup and
handed to the page as the URL fragment. The browser is then started with a
hardened set of kiosk flags and a freshly wiped profile directory, and is
relaunched after a short cooldown every time it exits, for whatever reason.

Stop it with SIGINT, SIGTERM or SIGHUP; the browser is terminated with it.`,
	SilenceUsage: true,
	Args:         cobra.NoArgs,
}

// Execute adds all child commands to the root command and runs it
func Execute(ctx context.Context) error {
	return rootCmd.ExecuteContext(ctx)
}

func init() {
	// Assigned here: runSupervisor reaches rootCmd through initConfig
	rootCmd.RunE = runSupervisor
	cobra.OnInitialize(initConfig)

	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is /etc/kiosk/config.yaml or $HOME/.kiosk/config.yaml)")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "log level: debug, info, warn, error (default from config)")
	rootCmd.PersistentFlags().StringVar(&logFormat, "log-format", "", "log format: text or json (default from config)")
}

// initConfig reads the config file and KIOSK_* environment variables.
// Errors are kept and reported by the command that needs the config.
func initConfig() {
	v := config.New(cfgFile)
	v.BindPFlag("log.level", rootCmd.PersistentFlags().Lookup("log-level"))
	v.BindPFlag("log.format", rootCmd.PersistentFlags().Lookup("log-format"))

	cfg, cfgErr = config.FromViper(v)
}

func loadedConfig() (*config.Config, error) {
	if cfg == nil && cfgErr == nil {
		initConfig()
	}
	return cfg, cfgErr
}

func newLogger(c *config.Config) (*logging.Logger, error) {
	level := logging.ParseLevel(c.Log.Level)
	jsonFormat := strings.EqualFold(c.Log.Format, "json")

	if c.Log.Dir != "" {
		return logging.NewFileLogger(c.Log.Dir, "kiosk", level, jsonFormat)
	}
	return logging.NewLogger(level, jsonFormat), nil
}
