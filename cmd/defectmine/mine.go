package main

import (
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/spf13/cobra"

	"github.com/panbanda/defectmine/internal/output"
	"github.com/panbanda/defectmine/internal/pmd"
	"github.com/panbanda/defectmine/internal/progress"
	"github.com/panbanda/defectmine/internal/service/mining"
	"github.com/panbanda/defectmine/internal/workorder"
	"github.com/panbanda/defectmine/pkg/config"
)

var mineCmd = &cobra.Command{
	Use:   "mine [workorder]",
	Short: "Mine defect datasets for the projects of a work order",
	Long: `Mines every project of a work order: a JSON or YAML object mapping Jira
project keys to git repository URLs, processed in file order.

Examples:
  defectmine mine projects.json
  defectmine mine --project BOOKKEEPER --repo https://github.com/apache/bookkeeper
  defectmine mine projects.yaml --no-pmd --cut 0.6 --workers 2`,
	Args: cobra.MaximumNArgs(1),
	RunE: runMine,
}

func init() {
	addMineFlags(mineCmd)
	rootCmd.AddCommand(mineCmd)
}

func addMineFlags(cmd *cobra.Command) {
	cmd.Flags().String("project", "", "Jira project key (instead of a work order file)")
	cmd.Flags().String("repo", "", "Repository URL for --project")
	cmd.Flags().Bool("no-pmd", false, "Skip code smell analysis")
	cmd.Flags().Bool("no-evaluate", false, "Write datasets without evaluating classifiers")
	cmd.Flags().Float64("cut", 0, "Fraction of releases kept for the class datasets")
	cmd.Flags().Bool("parquet", false, "Also write the method dataset as Parquet")
	cmd.Flags().Int("workers", 0, "Projects and files processed concurrently (default: CPU count)")
	cmd.Flags().String("output-dir", "", "Root directory for datasets, reports and summaries")
}

func readWorkOrder(cmd *cobra.Command, args []string) (*workorder.WorkOrder, error) {
	project, _ := cmd.Flags().GetString("project")
	repo, _ := cmd.Flags().GetString("repo")

	switch {
	case len(args) == 1 && project != "":
		return nil, errors.New("pass either a work order file or --project, not both")
	case len(args) == 1:
		return workorder.Load(args[0])
	case project != "" && repo != "":
		return workorder.Single(project, repo), nil
	case project != "":
		return nil, errors.New("--project requires --repo")
	default:
		return nil, errors.New("a work order file or --project and --repo is required")
	}
}

// applyMineFlags overrides cfg with the flags the user set explicitly.
func applyMineFlags(cmd *cobra.Command, cfg *config.Config) {
	flags := cmd.Flags()
	if v, _ := flags.GetBool("no-pmd"); v {
		cfg.PMD.Enabled = false
	}
	if v, _ := flags.GetBool("no-evaluate"); v {
		cfg.Mining.Evaluate = false
	}
	if flags.Changed("cut") {
		cfg.Dataset.CutPercentage, _ = flags.GetFloat64("cut")
	}
	if v, _ := flags.GetBool("parquet"); v {
		cfg.Dataset.Parquet = true
	}
	if flags.Changed("workers") {
		cfg.Mining.Workers, _ = flags.GetInt("workers")
	}
	if v, _ := flags.GetString("output-dir"); v != "" {
		cfg.Output.Dir = v
	}
}

func runMine(cmd *cobra.Command, args []string) error {
	wo, err := readWorkOrder(cmd, args)
	if err != nil {
		return err
	}

	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	applyMineFlags(cmd, cfg)

	logger := newLogger(cfg)
	if err := cfg.Validate(logger); err != nil {
		return err
	}

	formatter, err := newFormatter(cmd, cfg)
	if err != nil {
		return err
	}
	defer formatter.Close()

	svc, err := mining.New(
		mining.WithConfig(cfg),
		mining.WithLogger(logger),
		mining.WithProgress(progress.Options{Quiet: formatter.Format() != output.FormatText}),
	)
	if err != nil {
		return err
	}

	results, err := svc.MineAll(cmd.Context(), wo)
	if err != nil {
		return err
	}

	if err := formatter.Output(mineReport(results)); err != nil {
		return err
	}

	var failed int
	for _, res := range results {
		if res != nil && res.Err != nil {
			failed++
		}
	}
	if failed > 0 {
		return fmt.Errorf("%d of %d projects failed", failed, len(results))
	}
	formatter.Success("Datasets written to %s", cfg.Output.Dir)
	return nil
}

// minedProject is the serialized outcome of one project.
type minedProject struct {
	Project  string         `json:"project" toon:"project"`
	Status   string         `json:"status" toon:"status"`
	Error    string         `json:"error,omitempty" toon:"error,omitempty"`
	Duration string         `json:"duration" toon:"duration"`
	Summary  mining.Summary `json:"summary" toon:"summary"`
}

func mineReport(results []*mining.Result) *output.Report {
	rows := make([][]string, 0, len(results))
	data := make([]minedProject, 0, len(results))
	for _, res := range results {
		if res == nil {
			continue
		}
		state, detail := "completed", ""
		if res.Err != nil {
			state, detail = "failed", res.Err.Error()
		}
		data = append(data, minedProject{
			Project:  res.Project,
			Status:   state,
			Error:    detail,
			Duration: res.Duration.Round(time.Millisecond).String(),
			Summary:  res.Summary,
		})
		s := res.Summary
		rows = append(rows, []string{
			res.Project,
			state,
			fmt.Sprintf("%d/%d", s.KeptReleases, s.Releases),
			strconv.Itoa(s.Tickets),
			strconv.Itoa(s.EstimatedTickets),
			fmt.Sprintf("%d/%d", s.BuggyClasses, s.Classes),
			fmt.Sprintf("%d/%d", s.BuggyMethods, s.Methods),
			strconv.Itoa(s.Iterations),
			res.Duration.Round(time.Millisecond).String(),
			detail,
		})
	}

	table := output.NewTable(
		"Mined projects",
		[]string{"Project", "Status", "Releases", "Tickets", "Estimated", "Buggy classes", "Buggy methods", "Iterations", "Duration", "Error"},
		rows,
		nil,
		data,
	).WithStateColumn(1)

	report := &output.Report{Title: "defectmine", Tables: []*output.Table{table}, Data: data}
	for _, res := range results {
		if res == nil || len(res.Smells) == 0 {
			continue
		}
		report.Tables = append(report.Tables, smellTable(res.Project+" smell reports", res.Smells))
	}
	return report
}

func smellTable(title string, tasks []*pmd.Task) *output.Table {
	rows := make([][]string, 0, len(tasks))
	for _, t := range tasks {
		state := t.State().String()
		if t.Reused() {
			state = "reused"
		}
		errText := ""
		if err := t.Err(); err != nil {
			errText = err.Error()
		}
		rows = append(rows, []string{strconv.Itoa(t.Release), t.Commit, state, t.Duration().Round(time.Millisecond).String(), errText})
	}
	return output.NewTable(title, []string{"Report", "Commit", "State", "Duration", "Error"}, rows, nil, nil).WithStateColumn(2)
}
