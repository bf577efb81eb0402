// Package churn measures how method bodies and class files change across the
// commits inside a release.
package churn

import (
	"context"
	"fmt"
	"runtime"
	"strings"
	"sync"

	"github.com/panbanda/defectmine/internal/logging"
	"github.com/panbanda/defectmine/pkg/models"
	"github.com/panbanda/defectmine/pkg/parser"
	"github.com/sirupsen/logrus"
	"github.com/sourcegraph/conc/iter"
	"github.com/sourcegraph/conc/pool"
	"golang.org/x/sync/singleflight"
)

// History reads file contents and diffs at historical commits.
type History interface {
	FileAt(ctx context.Context, hash, path string) (string, error)
	Changes(ctx context.Context, hash string) ([]models.FileChange, error)
}

// Analyzer computes method churn and class LOC aggregates.
type Analyzer struct {
	history History
	workers int
	logger  logrus.FieldLogger

	mu      sync.Mutex
	changes map[string][]models.FileChange
	flight  singleflight.Group
}

// Option is a functional option for configuring Analyzer.
type Option func(*Analyzer)

// WithWorkers bounds the number of classes processed concurrently.
func WithWorkers(n int) Option {
	return func(a *Analyzer) {
		if n > 0 {
			a.workers = n
		}
	}
}

// WithLogger sets the logger.
func WithLogger(l logrus.FieldLogger) Option {
	return func(a *Analyzer) {
		a.logger = l
	}
}

// New creates a churn analyzer reading history from h.
func New(h History, opts ...Option) *Analyzer {
	a := &Analyzer{
		history: h,
		workers: runtime.NumCPU(),
		changes: make(map[string][]models.FileChange),
	}
	for _, opt := range opts {
		opt(a)
	}
	a.logger = logging.OrDiscard(a.logger)
	return a
}

// LineSetChurn compares two bodies as sets of lines. added counts lines of
// newBody absent from oldBody, removed counts lines of oldBody absent from
// newBody. Repeated lines count once per occurrence.
func LineSetChurn(oldBody, newBody string) (added, removed int) {
	if oldBody == newBody {
		return 0, 0
	}
	oldLines := strings.Split(oldBody, "\n")
	newLines := strings.Split(newBody, "\n")

	oldSet := make(map[string]struct{}, len(oldLines))
	for _, l := range oldLines {
		oldSet[l] = struct{}{}
	}
	newSet := make(map[string]struct{}, len(newLines))
	for _, l := range newLines {
		newSet[l] = struct{}{}
	}

	for _, l := range newLines {
		if _, ok := oldSet[l]; !ok {
			added++
		}
	}
	for _, l := range oldLines {
		if _, ok := newSet[l]; !ok {
			removed++
		}
	}
	return added, removed
}

// MethodHistories runs MethodHistory over classes concurrently.
func (a *Analyzer) MethodHistories(ctx context.Context, classes []*models.Class) {
	p := pool.New().WithMaxGoroutines(a.workers)
	for _, cls := range classes {
		if len(cls.Commits) < 2 {
			resetHistory(cls)
			continue
		}
		p.Go(func() {
			psr := parser.New()
			defer psr.Close()
			a.methodHistory(ctx, psr, cls)
		})
	}
	p.Wait()
}

// MethodHistory accumulates churn for every method of cls across the commits
// that touched it. Each method body is compared with its body at the previous
// revision where it existed; the last revision is the snapshot itself.
// History metrics are reset first, so repeated calls give the same result.
func (a *Analyzer) MethodHistory(ctx context.Context, cls *models.Class) {
	psr := parser.New()
	defer psr.Close()
	a.methodHistory(ctx, psr, cls)
}

func (a *Analyzer) methodHistory(ctx context.Context, psr *parser.Parser, cls *models.Class) {
	resetHistory(cls)
	if len(cls.Commits) < 2 {
		return
	}

	revisions := make([]map[string]string, len(cls.Commits))
	last := len(cls.Commits) - 1
	for i, commit := range cls.Commits[:last] {
		bodies, err := a.bodiesAt(ctx, psr, commit.Hash, cls.Path)
		if err != nil {
			a.logger.WithFields(logrus.Fields{
				"class":  cls.Path,
				"commit": commit.Hash,
			}).WithError(err).Warn("skipping revision")
			continue
		}
		revisions[i] = bodies
	}
	current := make(map[string]string, len(cls.Methods))
	for sig, m := range cls.Methods {
		current[sig] = m.Body
	}
	revisions[last] = current

	for sig, m := range cls.Methods {
		prev, seen := "", false
		for i, rev := range revisions {
			body, ok := rev[sig]
			if !ok {
				continue
			}
			if seen && body != prev {
				added, removed := LineSetChurn(prev, body)
				m.Metrics.Added += added
				m.Metrics.Removed += removed
				if c := added + removed; c > m.Metrics.MaxChurn {
					m.Metrics.MaxChurn = c
				}
				m.Metrics.Changes++
				m.Metrics.Authors.Add(cls.Commits[i].Author)
			}
			prev, seen = body, true
		}
	}
}

func (a *Analyzer) bodiesAt(ctx context.Context, psr *parser.Parser, hash, path string) (map[string]string, error) {
	content, err := a.history.FileAt(ctx, hash, path)
	if err != nil {
		return nil, err
	}
	result, err := psr.Parse([]byte(content), path)
	if err != nil {
		return nil, err
	}
	cu := parser.Extract(result)
	bodies := make(map[string]string, len(cu.Methods))
	for _, m := range cu.Methods {
		bodies[m.Signature] = m.Body
	}
	return bodies, nil
}

func resetHistory(cls *models.Class) {
	for _, m := range cls.Methods {
		m.Metrics.ResetHistory()
	}
}

// ClassAggregates fills ClassMetrics for every class with a parallel map over
// disjoint classes. fixes holds the hashes of commits linked to a ticket.
func (a *Analyzer) ClassAggregates(ctx context.Context, classes []*models.Class, fixes map[string]bool) error {
	var (
		mu   sync.Mutex
		errs []error
	)
	it := iter.Iterator[*models.Class]{MaxGoroutines: a.workers}
	it.ForEach(classes, func(cp **models.Class) {
		cls := *cp
		if err := a.collectLOC(ctx, cls); err != nil {
			mu.Lock()
			errs = append(errs, fmt.Errorf("%s: %w", cls.Path, err))
			mu.Unlock()
		}
		Aggregate(cls, fixes)
	})
	if len(errs) > 0 {
		return fmt.Errorf("class aggregates: %d classes failed (first: %w)", len(errs), errs[0])
	}
	return nil
}

// collectLOC records added/removed line counts of cls.Path for each touching
// commit. Commits without a parent have no diff and are skipped.
func (a *Analyzer) collectLOC(ctx context.Context, cls *models.Class) error {
	cls.LOCAdded = cls.LOCAdded[:0]
	cls.LOCRemoved = cls.LOCRemoved[:0]
	for _, commit := range cls.Commits {
		if !commit.HasParent() {
			continue
		}
		changes, err := a.Changes(ctx, commit.Hash)
		if err != nil {
			return err
		}
		for _, ch := range changes {
			if ch.Path == cls.Path {
				cls.LOCAdded = append(cls.LOCAdded, ch.Added)
				cls.LOCRemoved = append(cls.LOCRemoved, ch.Removed)
			}
		}
	}
	return nil
}

// Changes returns the diff of a commit, fetching it from the history at most
// once per Analyzer.
func (a *Analyzer) Changes(ctx context.Context, hash string) ([]models.FileChange, error) {
	if cached, ok := a.cachedChanges(hash); ok {
		return cached, nil
	}

	v, err, _ := a.flight.Do(hash, func() (any, error) {
		if cached, ok := a.cachedChanges(hash); ok {
			return cached, nil
		}
		changes, err := a.history.Changes(ctx, hash)
		if err != nil {
			return nil, err
		}
		a.mu.Lock()
		a.changes[hash] = changes
		a.mu.Unlock()
		return changes, nil
	})
	if err != nil {
		return nil, err
	}
	return v.([]models.FileChange), nil
}

func (a *Analyzer) cachedChanges(hash string) ([]models.FileChange, bool) {
	a.mu.Lock()
	defer a.mu.Unlock()
	cached, ok := a.changes[hash]
	return cached, ok
}

// Aggregate computes ClassMetrics from the class source, its touching commits
// and the per-commit LOC lists. Averages divide by the revision count.
func Aggregate(cls *models.Class, fixes map[string]bool) {
	m := models.ClassMetrics{
		Size:      countLines(cls.Source),
		Revisions: len(cls.Commits),
	}

	authors := make(map[string]struct{})
	for _, c := range cls.Commits {
		if fixes[c.Hash] {
			m.DefectFixes++
		}
		authors[c.Author] = struct{}{}
	}
	m.Authors = len(authors)

	n := max(len(cls.LOCAdded), len(cls.LOCRemoved))
	for i := range n {
		hasAdded, hasRemoved := i < len(cls.LOCAdded), i < len(cls.LOCRemoved)
		var added, removed int
		if hasAdded {
			added = cls.LOCAdded[i]
			update(&m.LOCAdded, added)
		}
		if hasRemoved {
			removed = cls.LOCRemoved[i]
			update(&m.LOCRemoved, removed)
		}
		if hasAdded && hasRemoved {
			update(&m.Churn, abs(added-removed))
		}
		update(&m.LOCTouched, added+removed)
	}

	if m.Revisions > 0 {
		revs := float64(m.Revisions)
		if len(cls.LOCAdded) > 0 {
			m.LOCAdded.Avg = float64(m.LOCAdded.Val) / revs
		}
		if len(cls.LOCRemoved) > 0 {
			m.LOCRemoved.Avg = float64(m.LOCRemoved.Val) / revs
		}
		if n > 0 {
			m.Churn.Avg = float64(m.Churn.Val) / revs
			m.LOCTouched.Avg = float64(m.LOCTouched.Val) / revs
		}
	}

	cls.Metrics = m
}

func update(a *models.Aggregate, v int) {
	a.Val += v
	if v > a.Max {
		a.Max = v
	}
}

func abs(x int) int {
	if x < 0 {
		return -x
	}
	return x
}

// countLines counts lines split on \r\n, \r or \n.
func countLines(s string) int {
	if s == "" {
		return 1
	}
	s = strings.ReplaceAll(s, "\r\n", "\n")
	s = strings.ReplaceAll(s, "\r", "\n")
	return len(strings.Split(strings.TrimRight(s, "\n"), "\n"))
}
