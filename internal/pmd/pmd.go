// Package pmd runs the PMD static analyzer over release snapshots of a
// repository and leaves one CSV report per release.
package pmd

import (
	"bytes"
	"context"
	_ "embed"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"runtime"
	"sort"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/panbanda/defectmine/internal/logging"
	"github.com/panbanda/defectmine/internal/vcs"
	"github.com/panbanda/defectmine/pkg/analyzer/smells"
	"github.com/panbanda/defectmine/pkg/models"
)

// DefaultTimeout bounds a single PMD run.
const DefaultTimeout = 5 * time.Minute

// PMD exits with 4 when it found violations and still wrote the report.
const exitViolations = 4

var (
	// ErrTimeout is returned when a run exceeds its timeout.
	ErrTimeout = errors.New("pmd: analysis timed out")
	// ErrNoHome is returned when no PMD installation directory is set.
	ErrNoHome = errors.New("pmd: installation directory not set")
)

//go:embed ruleset.xml
var defaultRuleset []byte

// Analyzer runs PMD against the working tree of one repository.
type Analyzer struct {
	home      string
	ruleset   string
	timeout   time.Duration
	reportDir string
	repoPath  string
	worktree  vcs.Worktree
	logger    logrus.FieldLogger
}

// Option configures an Analyzer.
type Option func(*Analyzer)

// WithRuleset uses the ruleset file at path instead of the bundled one.
func WithRuleset(path string) Option {
	return func(a *Analyzer) { a.ruleset = path }
}

// WithTimeout overrides DefaultTimeout.
func WithTimeout(d time.Duration) Option {
	return func(a *Analyzer) {
		if d > 0 {
			a.timeout = d
		}
	}
}

// WithLogger sets the logger.
func WithLogger(l logrus.FieldLogger) Option {
	return func(a *Analyzer) { a.logger = l }
}

// New creates an analyzer for the working tree at repoPath, writing reports
// into reportDir.
func New(home, repoPath, reportDir string, wt vcs.Worktree, opts ...Option) (*Analyzer, error) {
	if home == "" {
		return nil, ErrNoHome
	}
	a := &Analyzer{
		home:      home,
		timeout:   DefaultTimeout,
		reportDir: reportDir,
		repoPath:  repoPath,
		worktree:  wt,
	}
	for _, opt := range opts {
		opt(a)
	}
	a.logger = logging.OrDiscard(a.logger)

	if err := os.MkdirAll(reportDir, 0o755); err != nil {
		return nil, fmt.Errorf("create report dir: %w", err)
	}
	if a.ruleset == "" {
		path := filepath.Join(reportDir, "ruleset.xml")
		if err := os.WriteFile(path, defaultRuleset, 0o644); err != nil {
			return nil, fmt.Errorf("write default ruleset: %w", err)
		}
		a.ruleset = path
	}
	return a, nil
}

// Binary returns the path of the PMD launcher under home.
func Binary(home string) string {
	name := "pmd"
	if runtime.GOOS == "windows" {
		name = "pmd.bat"
	}
	return filepath.Join(home, "bin", name)
}

// Args returns the command line of an analysis run, without the binary.
func Args(repo, ruleset, report string) []string {
	return []string{"check", "-d", repo, "-R", ruleset, "-f", "csv", "--no-cache", "-r", report}
}

// ReportDir returns the directory reports are written to.
func (a *Analyzer) ReportDir() string {
	return a.reportDir
}

// Verify checks that the PMD launcher can be started.
func (a *Analyzer) Verify(ctx context.Context) error {
	cmd := exec.CommandContext(ctx, Binary(a.home), "--version")
	if out, err := cmd.CombinedOutput(); err != nil {
		return fmt.Errorf("cannot run pmd at %s: %w: %s", a.home, err, bytes.TrimSpace(out))
	}
	return nil
}

// Plan lists the tasks for the given releases: report 0 on the first commit
// of release 1 and report N on the last commit of release N.
func (a *Analyzer) Plan(releases []*models.Release) []*Task {
	ordered := make([]*models.Release, len(releases))
	copy(ordered, releases)
	sort.Slice(ordered, func(i, j int) bool { return ordered[i].ID < ordered[j].ID })

	var tasks []*Task
	for _, r := range ordered {
		if r.ID <= 1 {
			if first := r.FirstCommit(); first != nil {
				tasks = append(tasks, NewTask(0, first.Hash, smells.ReportPath(a.reportDir, 0)))
			}
		}
		if last := r.LastCommit(); last != nil {
			tasks = append(tasks, NewTask(r.ID, last.Hash, smells.ReportPath(a.reportDir, r.ID)))
		}
	}
	return tasks
}

// Schedule runs every planned task in order, reusing existing reports, and
// restores the working tree's original ref when done. Timed-out and failed
// runs are logged and skipped; only cancellation stops the schedule.
func (a *Analyzer) Schedule(ctx context.Context, releases []*models.Release) ([]*Task, error) {
	tasks := a.Plan(releases)

	pending := tasks[:0:0]
	for _, t := range tasks {
		if _, err := os.Stat(t.Report); err == nil {
			if err := t.markReused(); err != nil {
				return tasks, err
			}
			continue
		}
		pending = append(pending, t)
	}
	if len(pending) == 0 {
		return tasks, nil
	}

	ref, err := a.worktree.CurrentRef()
	if err != nil {
		return tasks, fmt.Errorf("read current ref: %w", err)
	}
	defer func() {
		if err := a.worktree.Restore(ref); err != nil {
			a.logger.WithField("ref", ref).Warnf("restoring working tree failed: %v", err)
		}
	}()

	for _, t := range pending {
		if err := ctx.Err(); err != nil {
			return tasks, err
		}
		log := a.logger.WithFields(logrus.Fields{"release": t.Release, "commit": t.Commit})

		if err := a.worktree.Checkout(ctx, t.Commit); err != nil {
			if ctx.Err() != nil {
				return tasks, ctx.Err()
			}
			_ = t.transition(Failed, fmt.Errorf("checkout: %w", err))
			log.Warnf("skipping pmd run: checkout failed: %v", err)
			continue
		}

		log.Infof("running pmd for report %d", t.Release)
		err := a.Run(ctx, t)
		switch {
		case err == nil:
			log.WithField("took", t.Duration().Round(time.Millisecond)).Info("pmd done")
		case errors.Is(err, ErrTimeout):
			log.Warnf("pmd timed out after %s, skipping", a.timeout)
		case ctx.Err() != nil:
			return tasks, ctx.Err()
		default:
			log.Warnf("pmd failed, skipping: %v", err)
		}
	}
	return tasks, nil
}

// Run executes one task against whatever is checked out. A run that times
// out or fails leaves no report behind.
func (a *Analyzer) Run(ctx context.Context, t *Task) error {
	if err := t.transition(Running, nil); err != nil {
		return err
	}

	runCtx, cancel := context.WithTimeout(ctx, a.timeout)
	defer cancel()

	cmd := exec.CommandContext(runCtx, Binary(a.home), Args(a.repoPath, a.ruleset, t.Report)...)
	cmd.Dir = a.repoPath
	cmd.WaitDelay = time.Second
	out, err := cmd.CombinedOutput()
	t.setOutput(out)

	var exitErr *exec.ExitError
	switch {
	case errors.Is(runCtx.Err(), context.DeadlineExceeded) && ctx.Err() == nil:
		os.Remove(t.Report)
		err = fmt.Errorf("release %d: %w", t.Release, ErrTimeout)
		_ = t.transition(TimedOut, err)
		return err
	case err == nil, errors.As(err, &exitErr) && exitErr.ExitCode() == exitViolations:
		if _, statErr := os.Stat(t.Report); statErr != nil {
			err = fmt.Errorf("release %d: no report written: %w", t.Release, statErr)
			_ = t.transition(Failed, err)
			return err
		}
		return t.transition(Completed, nil)
	default:
		os.Remove(t.Report)
		err = fmt.Errorf("release %d: %w: %s", t.Release, err, tail(out))
		_ = t.transition(Failed, err)
		return err
	}
}

func tail(out []byte) string {
	out = bytes.TrimSpace(out)
	if len(out) > 300 {
		out = out[len(out)-300:]
	}
	return string(out)
}
