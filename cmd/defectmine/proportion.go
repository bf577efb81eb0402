package main

import (
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/panbanda/defectmine/internal/output"
	"github.com/panbanda/defectmine/internal/service/mining"
)

var proportionCmd = &cobra.Command{
	Use:   "proportion [project...]",
	Short: "Compute the cold start proportion from a panel of reference projects",
	Long: `Mines the reference projects' tickets from Jira and reports each project's
mean proportion (FV-IV)/(FV-OV) together with the panel median used when a
project has too few tickets of its own.

Examples:
  defectmine proportion
  defectmine proportion AVRO STORM ZOOKEEPER`,
	RunE: runProportion,
}

func init() {
	rootCmd.AddCommand(proportionCmd)
}

func runProportion(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	if len(args) > 0 {
		cfg.Jira.ReferenceProjects = args
	}

	svc, err := mining.New(mining.WithConfig(cfg), mining.WithLogger(newLogger(cfg)))
	if err != nil {
		return err
	}
	cold := svc.ColdStart()
	value, err := cold.Value(cmd.Context())
	if err != nil {
		return err
	}

	formatter, err := newFormatter(cmd, cfg)
	if err != nil {
		return err
	}
	defer formatter.Close()

	panel := cold.Panel()
	rows := make([][]string, 0, len(panel))
	for _, e := range panel {
		used := "no"
		if e.Used {
			used = "yes"
		}
		rows = append(rows, []string{e.Project, strconv.Itoa(e.Tickets), fmt.Sprintf("%.3f", e.Proportion), used})
	}

	return formatter.Output(output.NewTable(
		"Cold start panel",
		[]string{"Project", "Tickets", "Proportion", "Used"},
		rows,
		[]string{"Median", "", fmt.Sprintf("%.3f", value), ""},
		map[string]any{"median": value, "panel": panel},
	))
}
