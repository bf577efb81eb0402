package main

import (
	"fmt"
	"os"

	"github.com/fatih/color"
	"github.com/pelletier/go-toml"
	"github.com/spf13/cobra"

	"github.com/panbanda/defectmine/pkg/config"
)

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Configuration management commands",
}

var configValidateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Validate a configuration file",
	Long: `Validates a defectmine configuration file for syntax errors and invalid values.

Examples:
  defectmine config validate                        # Validates default config locations
  defectmine config validate -c defectmine.toml     # Validates specific file
  defectmine config validate -c .defectmine/defectmine.yaml`,
	RunE: runConfigValidate,
}

var configShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Show the effective configuration",
	Long: `Shows the merged configuration from defaults, config file and environment.

Examples:
  defectmine config show                    # Show effective config
  defectmine config show -c defectmine.toml # Show config from specific file`,
	RunE: runConfigShow,
}

func init() {
	configCmd.AddCommand(configValidateCmd)
	configCmd.AddCommand(configShowCmd)
	rootCmd.AddCommand(configCmd)
}

// configSource returns the file the effective config comes from.
func configSource() string {
	if cfgFile != "" {
		return cfgFile
	}
	return config.Locate()
}

func runConfigValidate(cmd *cobra.Command, args []string) error {
	source := configSource()
	cfg := config.DefaultConfig()
	cfg.ApplyEnv(os.LookupEnv)
	if source != "" {
		var err error
		if cfg, err = config.Load(source); err != nil {
			color.Red("Configuration validation failed:")
			fmt.Fprintf(cmd.OutOrStdout(), "  - %s\n", err)
			return err
		}
	}

	if err := cfg.Validate(newLogger(cfg)); err != nil {
		color.Red("Configuration validation failed:")
		fmt.Fprintf(cmd.OutOrStdout(), "  - %s\n", err)
		return err
	}

	if source != "" {
		color.Green("Configuration valid: %s", source)
	} else {
		color.Yellow("No config file found. Default configuration is valid.")
	}
	return nil
}

func runConfigShow(cmd *cobra.Command, args []string) error {
	source := configSource()
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	if source != "" {
		fmt.Fprintf(out, "# Configuration from: %s\n\n", source)
	} else {
		fmt.Fprintln(out, "# Default configuration (no config file found)")
	}

	content, err := toml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}
	fmt.Fprint(out, string(content))
	return nil
}
