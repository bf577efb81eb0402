package main

import (
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/panbanda/defectmine/internal/output"
	"github.com/panbanda/defectmine/pkg/ml"
)

var combosCmd = &cobra.Command{
	Use:   "combos",
	Short: "List the classifier pipeline combinations evaluated per iteration",
	RunE:  runCombos,
}

func init() {
	rootCmd.AddCommand(combosCmd)
}

func runCombos(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	formatter, err := newFormatter(cmd, cfg)
	if err != nil {
		return err
	}
	defer formatter.Close()

	combos := ml.Combinations()
	rows := make([][]string, 0, len(combos))
	for i, c := range combos {
		filter := c.Sampling.Filter()
		if filter == "" {
			filter = "-"
		}
		costs := "-"
		if c.CostSensitive {
			costs = fmt.Sprintf("FP=%g FN=%g (threshold %.3f)", c.Costs.FalsePositive, c.Costs.FalseNegative, c.Costs.Threshold())
		}
		rows = append(rows, []string{
			strconv.Itoa(i + 1),
			string(c.Classifier),
			string(c.Selection),
			string(c.Sampling),
			filter,
			costs,
		})
	}

	return formatter.Output(output.NewTable(
		fmt.Sprintf("%d combinations", len(combos)),
		[]string{"#", "Classifier", "Selection", "Sampling", "Filter", "Costs"},
		rows,
		nil,
		combos,
	))
}
