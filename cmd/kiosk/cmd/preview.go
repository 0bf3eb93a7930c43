package cmd

import (
	"encoding/json"
	"fmt"
	"io"
	"strconv"

	"github.com/olekukonko/tablewriter"
	"github.com/spf13/afero"
	"github.com/spf13/cobra"

	"github.com/psantana5/kiosk-supervisor/internal/config"
	"github.com/psantana5/kiosk-supervisor/internal/launch"
	"github.com/psantana5/kiosk-supervisor/internal/logging"
)

var previewOutput string

var previewCmd = &cobra.Command{
	Use:   "preview",
	Short: "Show the resolved browser command line without launching it",
	Long: `Resolves the settings value exactly as a real run would and prints the
browser binary, target URL and full argument list. Nothing is started and the
profile directory is left alone.`,
	Args: cobra.NoArgs,
	RunE: runPreview,
}

func init() {
	rootCmd.AddCommand(previewCmd)
	previewCmd.Flags().StringVarP(&previewOutput, "output", "o", "table", "output format: table or json")
}

// Preview is the JSON form of the preview output
type Preview struct {
	SettingsFile string        `json:"settings_file"`
	SettingsKey  string        `json:"settings_key"`
	Launch       launch.Config `json:"launch"`
	Argv         []string      `json:"argv"`
}

func runPreview(cmd *cobra.Command, args []string) error {
	c, err := loadedConfig()
	if err != nil {
		return err
	}

	logger, err := newLogger(c)
	if err != nil {
		return fmt.Errorf("failed to initialize logger: %w", err)
	}
	defer logger.Close()
	logger.SetOutput(cmd.ErrOrStderr())

	p := buildPreview(afero.NewOsFs(), c, logger)
	return writePreview(cmd.OutOrStdout(), p, previewOutput)
}

func buildPreview(fs afero.Fs, c *config.Config, logger *logging.Logger) Preview {
	launchCfg := resolveLaunch(fs, c, logger)

	return Preview{
		SettingsFile: c.Settings.File,
		SettingsKey:  c.Settings.Key,
		Launch:       launchCfg,
		Argv:         append([]string{launchCfg.Binary}, launchCfg.Args()...),
	}
}

func writePreview(w io.Writer, p Preview, format string) error {
	switch format {
	case "json":
		output, err := json.MarshalIndent(p, "", "  ")
		if err != nil {
			return fmt.Errorf("failed to marshal JSON: %w", err)
		}
		fmt.Fprintln(w, string(output))
		return nil
	case "table", "":
	default:
		return fmt.Errorf("unknown output format %q (want table or json)", format)
	}

	table := tablewriter.NewWriter(w)
	table.Header("Property", "Value")
	table.Append([]string{"Settings file", p.SettingsFile})
	table.Append([]string{"Settings key", p.SettingsKey})
	table.Append([]string{"Value", strconv.Quote(p.Launch.Value)})
	table.Append([]string{"Binary", p.Launch.Binary})
	table.Append([]string{"Profile dir", p.Launch.ProfileDir})
	table.Append([]string{"Target URL", p.Launch.TargetURL})
	if err := table.Render(); err != nil {
		return err
	}

	fmt.Fprintln(w)

	argv := tablewriter.NewWriter(w)
	argv.Header("#", "Argument")
	for i, arg := range p.Argv {
		argv.Append([]string{strconv.Itoa(i), arg})
	}
	return argv.Render()
}
