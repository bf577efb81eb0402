package main

import (
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"github.com/panbanda/defectmine/internal/output"
	"github.com/panbanda/defectmine/internal/service/mining"
	"github.com/panbanda/defectmine/pkg/dataset"
	"github.com/panbanda/defectmine/pkg/ml"
	"github.com/panbanda/defectmine/pkg/stats"
)

var evaluateCmd = &cobra.Command{
	Use:   "evaluate <project>",
	Short: "Evaluate classifier pipelines on previously mined class datasets",
	Long: `Reloads the walk-forward training and testing sets written by "mine" and
evaluates every classifier combination on them, rewriting the results CSV.

Examples:
  defectmine evaluate BOOKKEEPER
  defectmine evaluate BOOKKEEPER --output-dir out --seed 7 -f markdown`,
	Args: cobra.ExactArgs(1),
	RunE: runEvaluate,
}

func init() {
	evaluateCmd.Flags().String("output-dir", "", "Root directory the datasets were written to")
	evaluateCmd.Flags().Uint64("seed", 0, "Random seed for sampling and forests (default: config)")

	rootCmd.AddCommand(evaluateCmd)
}

func runEvaluate(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	if v, _ := cmd.Flags().GetString("output-dir"); v != "" {
		cfg.Output.Dir = v
	}
	if cmd.Flags().Changed("seed") {
		cfg.Mining.Seed, _ = cmd.Flags().GetUint64("seed")
	}
	logger := newLogger(cfg)

	project := strings.ToUpper(args[0])
	layout := dataset.Layout{Root: cfg.Output.Dir, Project: project}
	steps, err := layout.LoadSteps()
	if err != nil {
		return err
	}
	if len(steps) == 0 {
		return fmt.Errorf("no class datasets for %s under %s", project, cfg.Output.Dir)
	}

	results, err := mining.Evaluate(cmd.Context(), project, steps, cfg.Mining.Seed, logger)
	if err != nil {
		return err
	}
	if err := mining.WriteResults(layout, results); err != nil {
		return err
	}

	formatter, err := newFormatter(cmd, cfg)
	if err != nil {
		return err
	}
	defer formatter.Close()

	if err := formatter.Output(comboSummary(project, results)); err != nil {
		return err
	}
	formatter.Success("Results written to %s", layout.Results())
	return nil
}

// comboMeans is the mean of each metric of one combo across iterations.
type comboMeans struct {
	Combo      string  `json:"combo" toon:"combo"`
	Iterations int     `json:"iterations" toon:"iterations"`
	Precision  float64 `json:"precision" toon:"precision"`
	Recall     float64 `json:"recall" toon:"recall"`
	AUC        float64 `json:"auc" toon:"auc"`
	Kappa      float64 `json:"kappa" toon:"kappa"`
}

// summarize averages every metric per combo, in first-seen order, ignoring
// undefined values. A metric undefined on every iteration averages to 0.
func summarize(results []ml.Result) []comboMeans {
	type acc struct {
		n                      int
		precision, recall, auc []float64
		kappa                  []float64
	}
	var order []string
	byCombo := make(map[string]*acc)
	for _, r := range results {
		label := r.Combo.Label()
		a, ok := byCombo[label]
		if !ok {
			a = &acc{}
			byCombo[label] = a
			order = append(order, label)
		}
		a.n++
		a.precision = appendDefined(a.precision, r.Metrics.Precision)
		a.recall = appendDefined(a.recall, r.Metrics.Recall)
		a.auc = appendDefined(a.auc, r.Metrics.AUC)
		a.kappa = appendDefined(a.kappa, r.Metrics.Kappa)
	}

	out := make([]comboMeans, 0, len(order))
	for _, label := range order {
		a := byCombo[label]
		out = append(out, comboMeans{
			Combo:      label,
			Iterations: a.n,
			Precision:  stats.Mean(a.precision),
			Recall:     stats.Mean(a.recall),
			AUC:        stats.Mean(a.auc),
			Kappa:      stats.Mean(a.kappa),
		})
	}
	return out
}

func appendDefined(xs []float64, v float64) []float64 {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return xs
	}
	return append(xs, v)
}

func comboSummary(project string, results []ml.Result) *output.Table {
	means := summarize(results)
	rows := make([][]string, 0, len(means))
	for _, m := range means {
		rows = append(rows, []string{
			m.Combo,
			strconv.Itoa(m.Iterations),
			fmt.Sprintf("%.3f", m.Precision),
			fmt.Sprintf("%.3f", m.Recall),
			fmt.Sprintf("%.3f", m.AUC),
			fmt.Sprintf("%.3f", m.Kappa),
		})
	}
	return output.NewTable(
		fmt.Sprintf("%s: mean over %d evaluations", project, len(results)),
		[]string{"Combo", "Iterations", "Precision", "Recall", "AUC", "Kappa"},
		rows,
		nil,
		means,
	)
}
