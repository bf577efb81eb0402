package mining

import (
	"context"
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"runtime"
	"sort"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/panbanda/defectmine/internal/pmd"
	"github.com/panbanda/defectmine/internal/workorder"
	"github.com/panbanda/defectmine/pkg/analyzer/age"
	"github.com/panbanda/defectmine/pkg/analyzer/callgraph"
	"github.com/panbanda/defectmine/pkg/analyzer/churn"
	"github.com/panbanda/defectmine/pkg/analyzer/defect"
	"github.com/panbanda/defectmine/pkg/analyzer/smells"
	"github.com/panbanda/defectmine/pkg/dataset"
	"github.com/panbanda/defectmine/pkg/linker"
	"github.com/panbanda/defectmine/pkg/ml"
	"github.com/panbanda/defectmine/pkg/models"
	"github.com/panbanda/defectmine/pkg/snapshot"
	"github.com/panbanda/defectmine/pkg/timeline"
)

// ErrNoReleases is returned when no release keeps a commit after bucketing.
var ErrNoReleases = errors.New("no release has commits")

// Result is the outcome of mining one project.
type Result struct {
	Project   string            `json:"project"`
	Releases  []*models.Release `json:"-"`
	Tickets   []*models.Ticket  `json:"-"`
	Commits   []*models.Commit  `json:"-"`
	Estimates []defect.Estimate `json:"-"`
	Smells    []*pmd.Task       `json:"-"`
	Evaluated []ml.Result       `json:"-"`
	Summary   Summary           `json:"summary"`
	Duration  time.Duration     `json:"duration"`
	Err       error             `json:"-"`
}

// run carries the state of one project through the phases.
type run struct {
	*Service
	project workorder.Project
	layout  dataset.Layout
	log     logrus.FieldLogger
	res     *Result
	start   time.Time

	repo      Repository
	fixes     map[string]bool // hashes of commits linked to a ticket
	churn     *churn.Analyzer
	byRelease map[int][]*models.Class
	kept      []*models.Release // releases surviving the dataset cut
	labeler   *defect.Labeler
}

func (s *Service) workers() int {
	if s.config.Mining.Workers > 0 {
		return s.config.Mining.Workers
	}
	return runtime.NumCPU()
}

// Layout returns the output layout of project.
func (s *Service) Layout(project string) dataset.Layout {
	return dataset.Layout{Root: s.config.Output.Dir, Project: project}
}

// Mine runs every phase for one project.
func (s *Service) Mine(ctx context.Context, project workorder.Project) (*Result, error) {
	start := time.Now()
	r := &run{
		Service: s,
		project: project,
		layout:  s.Layout(project.Name),
		log:     s.logger.WithField("project", project.Name),
		res:     &Result{Project: project.Name},
		start:   start,
	}

	phases := []struct {
		name string
		fn   func(context.Context) error
	}{
		{"timeline", r.buildTimeline},
		{"tickets", r.ingestTickets},
		{"snapshots", r.extractSnapshots},
		{"labels", r.label},
		{"cut", r.cut},
		{"metrics", r.computeMetrics},
		{"smells", r.correlateSmells},
		{"methods", r.writeMethods},
		{"datasets", r.walkForward},
		{"summaries", r.writeSummaries},
	}
	for _, p := range phases {
		if err := ctx.Err(); err != nil {
			return r.res, err
		}
		phaseStart := time.Now()
		r.log.WithField("phase", p.name).Info("phase started")
		if err := p.fn(ctx); err != nil {
			return r.res, fmt.Errorf("%s: %s: %w", project.Name, p.name, err)
		}
		r.log.WithFields(logrus.Fields{"phase": p.name, "elapsed": time.Since(phaseStart).Round(time.Millisecond)}).
			Info("phase finished")
	}

	r.res.Duration = time.Since(start)
	return r.res, nil
}

func (r *run) buildTimeline(ctx context.Context) error {
	versions, err := r.tracker.Releases(ctx, r.project.Name)
	if err != nil {
		return fmt.Errorf("fetch releases: %w", err)
	}

	spinner := r.progress.NewSpinner(r.project.Name + " clone")
	repo, err := r.opener(ctx, r.project.Repository, cloneDir(r.config.Mining.Workdir, r.project.Name))
	if err != nil {
		spinner.FinishError(err)
		return fmt.Errorf("open repository: %w", err)
	}
	spinner.FinishSuccess()
	r.repo = repo

	commits, err := repo.Commits(ctx)
	if err != nil {
		return fmt.Errorf("read commits: %w", err)
	}

	releases, commits := timeline.Build(versions, commits)
	if len(releases) == 0 {
		return ErrNoReleases
	}
	r.res.Releases = releases
	r.res.Commits = commits
	r.log.WithFields(logrus.Fields{"releases": len(releases), "commits": len(commits)}).Info("timeline built")
	return nil
}

func (r *run) ingestTickets(ctx context.Context) error {
	issues, err := r.tracker.Issues(ctx, r.project.Name)
	if err != nil {
		return fmt.Errorf("fetch issues: %w", err)
	}
	tickets := defect.Tickets(issues, r.res.Releases)

	estimates, err := defect.NewEstimator(r.res.Releases, r.cold, r.log).Apply(ctx, tickets)
	if err != nil {
		return fmt.Errorf("estimate injected versions: %w", err)
	}
	r.res.Estimates = estimates

	linked := linker.Link(tickets, r.res.Commits)
	r.res.Tickets = linked.Tickets
	r.fixes = linked.WithIssues
	r.res.Summary.CommitsWithTickets = len(linked.WithIssues)
	r.log.WithFields(logrus.Fields{"issues": len(issues), "tickets": len(tickets), "linked": len(linked.Tickets)}).
		Info("tickets linked")
	return nil
}

func (r *run) extractSnapshots(ctx context.Context) error {
	r.churn = churn.New(r.repo, churn.WithWorkers(r.workers()), churn.WithLogger(r.log))

	tracker := r.progress.NewTracker(r.project.Name+" snapshots", len(r.res.Releases))
	byRelease := make(map[int][]*models.Class, len(r.res.Releases))
	ext := snapshot.New(r.repo, r.churn, snapshot.WithWorkers(r.workers()), snapshot.WithLogger(r.log))
	for _, rel := range r.res.Releases {
		classes, err := ext.Release(ctx, rel)
		if err != nil {
			tracker.FinishError(err)
			return fmt.Errorf("release %d: %w", rel.ID, err)
		}
		byRelease[rel.ID] = classes
		tracker.Tick()
	}
	tracker.FinishSuccess()
	r.byRelease = byRelease
	r.res.Summary.ParseFailures = ext.ParseFailures()
	if n := r.res.Summary.ParseFailures; n > 0 {
		r.log.WithField("files", n).Warn("some files could not be parsed")
	}
	return nil
}

// computeMetrics fills history, call graph and age metrics release by
// release in ascending id order.
func (r *run) computeMetrics(ctx context.Context) error {
	ages := age.NewTracker(r.byRelease)
	for _, id := range r.releaseIDs() {
		classes := r.byRelease[id]
		r.churn.MethodHistories(ctx, classes)
		if err := r.churn.ClassAggregates(ctx, classes, r.fixes); err != nil {
			return fmt.Errorf("release %d aggregates: %w", id, err)
		}
		callgraph.Compute(classes)
		ages.Apply(classes)
	}
	return ctx.Err()
}

func (r *run) label(ctx context.Context) error {
	r.labeler = defect.NewLabeler(r.churn, r.log)
	labels, err := r.labeler.Label(ctx, r.res.Tickets, r.byRelease)
	if err != nil {
		return err
	}
	r.res.Summary.BuggyPerRelease = labels.PerRelease()
	return nil
}

// cut drops the tail releases after labelling, so the labels of kept
// releases still see tickets fixed in the dropped ones. Every later phase
// only sees the kept releases.
func (r *run) cut(_ context.Context) error {
	r.kept = dataset.Cut(r.res.Releases, r.config.Dataset.CutPercentage, r.log)
	limit := 0
	if len(r.kept) > 0 {
		limit = r.kept[len(r.kept)-1].ID
	}
	for id := range r.byRelease {
		if id > limit {
			delete(r.byRelease, id)
		}
	}
	for id := range r.res.Summary.BuggyPerRelease {
		if id > limit {
			delete(r.res.Summary.BuggyPerRelease, id)
		}
	}
	r.res.Summary.KeptReleases = len(r.kept)
	r.log.WithFields(logrus.Fields{"releases": len(r.res.Releases), "kept": len(r.kept)}).Info("timeline cut")
	return nil
}

func (r *run) correlateSmells(ctx context.Context) error {
	if !r.config.PMD.Enabled {
		r.log.Info("code smell analysis disabled")
		r.progress.NewTracker(r.project.Name+" smells", len(r.kept)+1).FinishSkipped("pmd disabled")
		return nil
	}
	runner, err := r.smells(r.repo, filepath.Join(r.config.Output.Dir, "smells", r.project.Name))
	if err != nil {
		return err
	}
	tasks, err := runner.Schedule(ctx, r.kept)
	if err != nil {
		return err
	}
	r.res.Smells = tasks

	reports, err := smells.LoadReports(runner.ReportDir(), len(r.kept))
	if err != nil {
		return err
	}
	smells.Correlate(r.byRelease, reports)
	return nil
}

func (r *run) writeMethods(_ context.Context) error {
	records := dataset.MethodRecords(r.byRelease)
	r.res.Summary.Methods = len(records)
	for _, rec := range records {
		if rec.Buggy {
			r.res.Summary.BuggyMethods++
		}
	}
	for _, classes := range r.byRelease {
		r.res.Summary.Classes += len(classes)
		for _, c := range classes {
			if c.Buggy {
				r.res.Summary.BuggyClasses++
			}
		}
	}

	if err := dataset.WriteFile(r.layout.MethodCSV(), func(w io.Writer) error {
		return dataset.WriteMethodCSV(w, records)
	}); err != nil {
		return err
	}
	if r.config.Dataset.Parquet {
		return dataset.WriteMethodsParquet(records, r.layout.MethodParquet())
	}
	return nil
}

// walkForward writes the class training and testing sets and evaluates
// them. It runs after the method dataset is written because relabelling at
// each horizon overwrites the full-knowledge labels of earlier releases.
func (r *run) walkForward(ctx context.Context) error {
	relabel := func(ctx context.Context, horizon int) error {
		_, err := r.labeler.Horizon(ctx, r.res.Tickets, r.byRelease, horizon)
		return err
	}

	steps, err := dataset.WalkForward(ctx, r.kept, r.byRelease, relabel)
	if err != nil {
		return err
	}
	for _, step := range steps {
		if err := r.layout.WriteStep(step); err != nil {
			return err
		}
	}
	r.res.Summary.Iterations = len(steps)

	if !r.config.Mining.Evaluate {
		return nil
	}
	results, err := Evaluate(ctx, r.project.Name, steps, r.config.Mining.Seed, r.log)
	if err != nil {
		return err
	}
	r.res.Evaluated = results
	return WriteResults(r.layout, results)
}

// Evaluate runs every classifier combination over the walk-forward steps.
func Evaluate(ctx context.Context, project string, steps []dataset.Step, seed uint64, logger logrus.FieldLogger) ([]ml.Result, error) {
	runner := ml.NewRunner(ml.WithSeed(seed), ml.WithLogger(logger))
	return runner.Run(ctx, project, dataset.Iterations(project, steps))
}

// WriteResults writes the results CSV of layout.
func WriteResults(layout dataset.Layout, results []ml.Result) error {
	return dataset.WriteFile(layout.Results(), func(w io.Writer) error {
		return dataset.WriteResults(w, results)
	})
}

func (r *run) releaseIDs() []int {
	ids := make([]int, 0, len(r.byRelease))
	for id := range r.byRelease {
		ids = append(ids, id)
	}
	sort.Ints(ids)
	return ids
}
