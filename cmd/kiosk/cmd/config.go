package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/psantana5/kiosk-supervisor/internal/config"
)

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Inspect the supervisor configuration",
}

var configShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Print the effective configuration as YAML",
	Long: `Prints the configuration after defaults, the config file and KIOSK_*
environment overrides have been applied.`,
	Args: cobra.NoArgs,
	RunE: runConfigShow,
}

var configExampleCmd = &cobra.Command{
	Use:   "example",
	Short: "Print a commented example config file",
	Args:  cobra.NoArgs,
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Fprint(cmd.OutOrStdout(), config.ExampleConfig)
	},
}

func init() {
	rootCmd.AddCommand(configCmd)
	configCmd.AddCommand(configShowCmd)
	configCmd.AddCommand(configExampleCmd)
}

func runConfigShow(cmd *cobra.Command, args []string) error {
	c, err := loadedConfig()
	if err != nil {
		return err
	}

	out, err := c.YAML()
	if err != nil {
		return err
	}

	if c.File != "" {
		fmt.Fprintf(cmd.OutOrStdout(), "# source: %s\n", c.File)
	} else {
		fmt.Fprintln(cmd.OutOrStdout(), "# source: built-in defaults")
	}
	fmt.Fprint(cmd.OutOrStdout(), out)
	return nil
}
