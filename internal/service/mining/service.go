// Package mining runs the end-to-end dataset pipeline for each project of a
// work order: release timeline, tickets, snapshots, metrics, labels, code
// smells, datasets and classifier evaluation.
package mining

import (
	"context"
	"path/filepath"
	"strings"

	"github.com/sirupsen/logrus"

	"github.com/panbanda/defectmine/internal/cache"
	"github.com/panbanda/defectmine/internal/jira"
	"github.com/panbanda/defectmine/internal/logging"
	"github.com/panbanda/defectmine/internal/pmd"
	"github.com/panbanda/defectmine/internal/progress"
	"github.com/panbanda/defectmine/internal/vcs"
	"github.com/panbanda/defectmine/pkg/analyzer/defect"
	"github.com/panbanda/defectmine/pkg/config"
	"github.com/panbanda/defectmine/pkg/models"
)

// Repository is the VCS access the pipeline needs.
type Repository interface {
	vcs.Repository
	vcs.Worktree
}

// Opener returns the repository of url, cloning it into dir when needed.
type Opener func(ctx context.Context, url, dir string) (Repository, error)

// SmellRunner produces the code smell reports of a project.
type SmellRunner interface {
	Schedule(ctx context.Context, releases []*models.Release) ([]*pmd.Task, error)
	ReportDir() string
}

// SmellFactory builds the SmellRunner of one project. reportDir is where its
// reports are kept.
type SmellFactory func(repo Repository, reportDir string) (SmellRunner, error)

// Service orchestrates mining runs.
type Service struct {
	config   *config.Config
	tracker  defect.Tracker
	opener   Opener
	smells   SmellFactory
	cold     *defect.ColdStart
	logger   logrus.FieldLogger
	progress progress.Options
}

// Option configures a Service.
type Option func(*Service)

// WithConfig sets the configuration.
func WithConfig(cfg *config.Config) Option {
	return func(s *Service) {
		s.config = cfg
	}
}

// WithTracker sets the issue tracker (for testing).
func WithTracker(t defect.Tracker) Option {
	return func(s *Service) {
		s.tracker = t
	}
}

// WithOpener sets the repository opener (for testing).
func WithOpener(o Opener) Option {
	return func(s *Service) {
		s.opener = o
	}
}

// WithSmellFactory replaces the PMD runner factory.
func WithSmellFactory(f SmellFactory) Option {
	return func(s *Service) {
		s.smells = f
	}
}

// WithColdStart shares a cold start cache across services.
func WithColdStart(c *defect.ColdStart) Option {
	return func(s *Service) {
		s.cold = c
	}
}

// WithLogger sets the logger.
func WithLogger(l logrus.FieldLogger) Option {
	return func(s *Service) {
		s.logger = l
	}
}

// WithProgress configures the progress bars.
func WithProgress(p progress.Options) Option {
	return func(s *Service) {
		s.progress = p
	}
}

// New creates a mining service. Unset collaborators default to the Jira
// client, go-git and PMD as configured.
func New(opts ...Option) (*Service, error) {
	s := &Service{}
	for _, opt := range opts {
		opt(s)
	}
	if s.config == nil {
		s.config = config.LoadOrDefault()
	}
	s.logger = logging.OrDiscard(s.logger)

	if s.tracker == nil {
		ch := cache.Disabled()
		if s.config.Cache.Enabled {
			var err error
			ch, err = cache.New(filepath.Join(s.config.Cache.Dir, "jira"), s.config.CacheTTL(), true)
			if err != nil {
				return nil, err
			}
		}
		s.tracker = jira.New(s.config.Jira.BaseURL,
			jira.WithRateLimit(s.config.Jira.Rate),
			jira.WithCache(ch),
			jira.WithLogger(s.logger),
		)
	}
	if s.opener == nil {
		s.opener = s.openGit
	}
	if s.smells == nil {
		s.smells = s.newPMD
	}
	if s.cold == nil {
		s.cold = defect.NewColdStart(defect.TrackerPanel{Tracker: s.tracker}, s.config.Jira.ReferenceProjects, s.logger)
	}
	return s, nil
}

// Config returns the effective configuration.
func (s *Service) Config() *config.Config {
	return s.config
}

// ColdStart returns the shared cold start cache.
func (s *Service) ColdStart() *defect.ColdStart {
	return s.cold
}

func (s *Service) openGit(ctx context.Context, url, dir string) (Repository, error) {
	repo, err := vcs.OpenOrClone(ctx, url, dir, vcs.WithLogger(s.logger))
	if err != nil {
		return nil, err
	}
	return repo, nil
}

func (s *Service) newPMD(repo Repository, reportDir string) (SmellRunner, error) {
	opts := []pmd.Option{pmd.WithTimeout(s.config.PMDTimeout()), pmd.WithLogger(s.logger)}
	if s.config.PMD.Ruleset != "" {
		opts = append(opts, pmd.WithRuleset(s.config.PMD.Ruleset))
	}
	a, err := pmd.New(s.config.PMD.Home, repo.Path(), reportDir, repo, opts...)
	if err != nil {
		return nil, err
	}
	return a, nil
}

func cloneDir(workdir, project string) string {
	return filepath.Join(workdir, strings.ToLower(project))
}
