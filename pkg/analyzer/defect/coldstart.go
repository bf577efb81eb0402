package defect

import (
	"context"
	"sync"
	"sync/atomic"

	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"github.com/panbanda/defectmine/internal/logging"
	"github.com/panbanda/defectmine/pkg/models"
	"github.com/panbanda/defectmine/pkg/stats"
)

// ReferenceProjects is the default panel mined for the cold start value.
var ReferenceProjects = []string{"AVRO", "SYNCOPE", "STORM", "TAJO", "ZOOKEEPER"}

// PanelSource returns the ingested tickets of a reference project.
type PanelSource interface {
	Tickets(ctx context.Context, project string) ([]*models.Ticket, error)
}

// PanelEntry is one reference project's contribution to the cold start.
type PanelEntry struct {
	Project    string  `json:"project"`
	Tickets    int     `json:"tickets"`
	Proportion float64 `json:"proportion"`
	Used       bool    `json:"used"`
}

// ColdStart computes the median proportion of a reference panel once and
// serves it until Reset. It is safe for concurrent use.
type ColdStart struct {
	source   PanelSource
	projects []string
	logger   logrus.FieldLogger

	mu    sync.Mutex
	ready atomic.Bool
	value float64
	panel []PanelEntry
}

// NewColdStart creates a cache mining projects (ReferenceProjects when empty)
// through source.
func NewColdStart(source PanelSource, projects []string, logger logrus.FieldLogger) *ColdStart {
	if len(projects) == 0 {
		projects = ReferenceProjects
	}
	return &ColdStart{source: source, projects: projects, logger: logging.OrDiscard(logger)}
}

// Value returns the cached median, computing it on first use.
func (c *ColdStart) Value(ctx context.Context) (float64, error) {
	if c.ready.Load() {
		return c.value, nil
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.ready.Load() {
		return c.value, nil
	}

	panel, err := c.mine(ctx)
	if err != nil {
		return 0, err
	}

	var used []float64
	for _, e := range panel {
		if e.Used {
			used = append(used, e.Proportion)
		}
	}
	c.value = stats.Median(used)
	c.panel = panel
	c.ready.Store(true)

	c.logger.WithFields(logrus.Fields{
		"median":   c.value,
		"projects": len(used),
	}).Info("cold start proportion computed")
	return c.value, nil
}

// Preset stores v as the cached value without mining the panel.
func (c *ColdStart) Preset(v float64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.value = v
	c.panel = nil
	c.ready.Store(true)
}

// Reset forgets the cached value so the next Value call recomputes it.
func (c *ColdStart) Reset() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.ready.Store(false)
	c.value = 0
	c.panel = nil
}

// Panel returns the per-project breakdown of the last computation.
func (c *ColdStart) Panel() []PanelEntry {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]PanelEntry, len(c.panel))
	copy(out, c.panel)
	return out
}

// mine fetches every reference project concurrently. A project that cannot
// be fetched is logged and left out; only cancellation aborts the run.
func (c *ColdStart) mine(ctx context.Context) ([]PanelEntry, error) {
	panel := make([]PanelEntry, len(c.projects))
	g, gctx := errgroup.WithContext(ctx)
	for i, project := range c.projects {
		g.Go(func() error {
			entry := PanelEntry{Project: project}
			tickets, err := c.source.Tickets(gctx, project)
			if err != nil {
				if ctxErr := gctx.Err(); ctxErr != nil {
					return ctxErr
				}
				c.logger.WithError(err).WithField("project", project).Warn("skipping reference project")
				panel[i] = entry
				return nil
			}

			correct := Correct(tickets)
			entry.Tickets = len(correct)
			if len(correct) >= ColdStartThreshold {
				entry.Proportion = Mean(correct)
				entry.Used = true
			}
			panel[i] = entry
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return panel, nil
}

// Tracker is the issue-tracker access a TrackerPanel needs.
type Tracker interface {
	Releases(ctx context.Context, project string) ([]*models.Release, error)
	Issues(ctx context.Context, project string) ([]models.Issue, error)
}

// TrackerPanel ingests reference projects straight from the tracker, using
// its dated versions as the release timeline.
type TrackerPanel struct {
	Tracker Tracker
}

// Tickets implements PanelSource.
func (p TrackerPanel) Tickets(ctx context.Context, project string) ([]*models.Ticket, error) {
	releases, err := p.Tracker.Releases(ctx, project)
	if err != nil {
		return nil, err
	}
	issues, err := p.Tracker.Issues(ctx, project)
	if err != nil {
		return nil, err
	}
	return Tickets(issues, releases), nil
}
