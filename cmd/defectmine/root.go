package main

import (
	"fmt"
	"os"
	"runtime"
	"runtime/pprof"

	"github.com/fatih/color"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/panbanda/defectmine/internal/logging"
	"github.com/panbanda/defectmine/internal/output"
	"github.com/panbanda/defectmine/pkg/config"
)

var (
	cfgFile      string
	verbose      bool
	pprofPrefix  string
	pprofCPUFile *os.File
)

var rootCmd = &cobra.Command{
	Use:   "defectmine",
	Short: "Mine defect prediction datasets from Jira and git history",
	Long: `defectmine builds method and class level defect datasets for Java projects
tracked in Jira: it buckets commits into releases, links bug tickets to their
fixes, estimates when each bug was injected, labels buggy classes and methods,
and evaluates classifier pipelines with walk-forward validation.`,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		if pprofPrefix != "" {
			f, err := os.Create(pprofPrefix + ".cpu.pprof")
			if err != nil {
				return fmt.Errorf("failed to create CPU profile: %w", err)
			}
			if err := pprof.StartCPUProfile(f); err != nil {
				f.Close()
				return fmt.Errorf("failed to start CPU profile: %w", err)
			}
			pprofCPUFile = f
		}
		return nil
	},
	PersistentPostRunE: func(cmd *cobra.Command, args []string) error {
		if pprofPrefix != "" {
			pprof.StopCPUProfile()
			if pprofCPUFile != nil {
				pprofCPUFile.Close()
				color.Green("CPU profile written to %s.cpu.pprof", pprofPrefix)
			}

			memFile, err := os.Create(pprofPrefix + ".mem.pprof")
			if err != nil {
				return fmt.Errorf("failed to create memory profile: %w", err)
			}
			defer memFile.Close()

			runtime.GC()
			if err := pprof.WriteHeapProfile(memFile); err != nil {
				return fmt.Errorf("failed to write memory profile: %w", err)
			}
			color.Green("Memory profile written to %s.mem.pprof", pprofPrefix)
		}
		return nil
	},
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&cfgFile, "config", "c", "", "Path to config file (TOML, YAML, or JSON)")
	rootCmd.PersistentFlags().StringP("format", "f", "", "Output format: text, json, toon, markdown")
	rootCmd.PersistentFlags().StringP("output", "o", "", "Write the report to a file instead of stdout")
	rootCmd.PersistentFlags().BoolVar(&verbose, "verbose", false, "Enable verbose output")
	rootCmd.PersistentFlags().StringVar(&pprofPrefix, "pprof", "", "Enable pprof profiling (creates <prefix>.cpu.pprof and <prefix>.mem.pprof)")
}

// loadConfig reads --config, or the standard locations when unset.
func loadConfig() (*config.Config, error) {
	if cfgFile == "" {
		return config.LoadOrDefault(), nil
	}
	cfg, err := config.Load(cfgFile)
	if err != nil {
		return nil, fmt.Errorf("load config %s: %w", cfgFile, err)
	}
	return cfg, nil
}

func newLogger(cfg *config.Config) *logrus.Logger {
	level := cfg.Log.Level
	if verbose || cfg.Output.Verbose {
		level = "debug"
	}
	return logging.New(logging.Options{Level: level, Format: cfg.Log.Format})
}

// getFormat returns the --format flag, or "" to let the output file
// extension or the config decide.
func getFormat(cmd *cobra.Command) output.Format {
	if f, _ := cmd.Flags().GetString("format"); f != "" {
		return output.ParseFormat(f)
	}
	return ""
}

func getOutputFile(cmd *cobra.Command) string {
	path, _ := cmd.Flags().GetString("output")
	return path
}

func newFormatter(cmd *cobra.Command, cfg *config.Config) (*output.Formatter, error) {
	format := getFormat(cmd)
	path := getOutputFile(cmd)
	if format == "" && path == "" {
		format = output.ParseFormat(cfg.Output.Format)
	}
	opts := []output.Option{
		output.WithFormat(format),
		output.WithWriter(cmd.OutOrStdout()),
		output.WithColor(cfg.Output.Color),
	}
	if path != "" {
		opts = append(opts, output.WithFile(path))
	}
	return output.New(opts...)
}
