// Package snapshot turns the end state of each release into parsed classes
// with their baseline method metrics.
package snapshot

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/sirupsen/logrus"

	"github.com/panbanda/defectmine/internal/fileproc"
	"github.com/panbanda/defectmine/internal/logging"
	"github.com/panbanda/defectmine/internal/vcs"
	"github.com/panbanda/defectmine/pkg/analyzer/complexity"
	"github.com/panbanda/defectmine/pkg/analyzer/halstead"
	"github.com/panbanda/defectmine/pkg/models"
	"github.com/panbanda/defectmine/pkg/parser"
)

// Tree lists the files of a commit.
type Tree interface {
	Files(ctx context.Context, hash string, keep func(path string) bool) ([]vcs.File, error)
}

// ChangeSource returns a commit's diff against its first parent.
type ChangeSource interface {
	Changes(ctx context.Context, hash string) ([]models.FileChange, error)
}

// Extractor builds per-release class snapshots.
type Extractor struct {
	tree    Tree
	changes ChangeSource
	workers int
	logger  logrus.FieldLogger

	mu       sync.Mutex
	failures int
}

// Option is a functional option for configuring Extractor.
type Option func(*Extractor)

// WithWorkers bounds the number of files parsed concurrently.
func WithWorkers(n int) Option {
	return func(e *Extractor) {
		e.workers = n
	}
}

// WithLogger sets the logger.
func WithLogger(l logrus.FieldLogger) Option {
	return func(e *Extractor) {
		e.logger = l
	}
}

// New creates an Extractor reading trees from tree and diffs from changes.
func New(tree Tree, changes ChangeSource, opts ...Option) *Extractor {
	e := &Extractor{tree: tree, changes: changes}
	for _, opt := range opts {
		opt(e)
	}
	e.logger = logging.OrDiscard(e.logger)
	return e
}

// All extracts every release and returns the classes keyed by release id.
func (e *Extractor) All(ctx context.Context, releases []*models.Release) (map[int][]*models.Class, error) {
	out := make(map[int][]*models.Class, len(releases))
	for _, r := range releases {
		classes, err := e.Release(ctx, r)
		if err != nil {
			return nil, fmt.Errorf("release %s: %w", r.Name, err)
		}
		out[r.ID] = classes
	}
	return out, nil
}

// ParseFailures returns how many files failed to parse across every
// release extracted so far.
func (e *Extractor) ParseFailures() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.failures
}

// Release parses the production Java files at the release's last commit.
// Files that fail to parse are logged, counted and skipped. Each class is
// then given the commits of the release that touched its path.
func (e *Extractor) Release(ctx context.Context, r *models.Release) ([]*models.Class, error) {
	last := r.LastCommit()
	if last == nil {
		return nil, nil
	}

	files, err := e.tree.Files(ctx, last.Hash, parser.IsJavaSource)
	if err != nil {
		return nil, err
	}
	sources := make([]fileproc.Source, len(files))
	for i, f := range files {
		sources[i] = fileproc.Source{Path: f.Path, Content: []byte(f.Content)}
	}

	log := e.logger.WithFields(logrus.Fields{"release": r.ID, "commit": last.Hash})
	classes, errs := fileproc.MapSourcesCollectErrors(ctx, sources, e.workers,
		func(psr *parser.Parser, src fileproc.Source) (*models.Class, error) {
			return BuildClass(psr, src, r)
		},
	)
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if errs != nil {
		for _, pe := range errs.Errors {
			log.WithError(pe.Err).WithField("file", pe.Path).Warn("skipping unparsable file")
		}
		e.mu.Lock()
		e.failures += errs.Len()
		e.mu.Unlock()
	}
	log.WithField("classes", len(classes)).Debug("release snapshot extracted")

	if err := e.attachCommits(ctx, r, classes); err != nil {
		return nil, err
	}
	return classes, nil
}

// attachCommits records, for every class, the release commits whose diff
// touches the class path. Root commits have no diff and are left out.
func (e *Extractor) attachCommits(ctx context.Context, r *models.Release, classes []*models.Class) error {
	byPath := make(map[string]*models.Class, len(classes))
	for _, cls := range classes {
		cls.Commits = nil
		byPath[cls.Path] = cls
	}

	for _, c := range r.Commits {
		if !c.HasParent() {
			continue
		}
		changes, err := e.changes.Changes(ctx, c.Hash)
		if errors.Is(err, vcs.ErrNoParent) {
			continue
		}
		if err != nil {
			return fmt.Errorf("diff %s: %w", c.Hash, err)
		}
		for _, ch := range changes {
			if cls, ok := byPath[ch.Path]; ok && !cls.HasCommit(c.Hash) {
				cls.Commits = append(cls.Commits, c)
			}
		}
	}
	return nil
}

// BuildClass parses one source file into a Class of release r with baseline
// metrics on every method.
func BuildClass(psr *parser.Parser, src fileproc.Source, r *models.Release) (*models.Class, error) {
	result, err := psr.Parse(src.Content, src.Path)
	if err != nil {
		return nil, err
	}
	cu := parser.Extract(result)

	cls := &models.Class{
		Path:    src.Path,
		Package: cu.Package,
		Name:    cu.PrimaryType(),
		Source:  string(src.Content),
		Release: r,
		Methods: make(map[string]*models.Method, len(cu.Methods)),
	}

	lines := strings.Split(string(src.Content), "\n")
	h := halstead.New()
	for _, decl := range cu.Methods {
		if decl.Begin == 0 || decl.End == 0 {
			continue
		}
		if _, dup := cls.Methods[decl.Signature]; dup {
			continue
		}
		m := &models.Method{
			Signature: decl.Signature,
			Name:      decl.Name,
			Body:      decl.Body,
			Begin:     decl.Begin,
			End:       decl.End,
			Params:    decl.Params,
			Calls:     make([]models.Call, len(decl.Calls)),
		}
		for i, c := range decl.Calls {
			m.Calls[i] = models.Call{Name: c.Name, Arity: c.Arity}
		}
		m.Metrics = Baseline(decl, lines, h, result.Source)
		cls.Methods[m.Signature] = m
	}
	return cls, nil
}

// Baseline computes the AST-derived metrics of a declaration. lines is the
// file split on "\n".
func Baseline(decl parser.MethodDecl, lines []string, h *halstead.Analyzer, source []byte) models.MethodMetrics {
	cx := complexity.Analyze(decl)

	var effort float64
	if decl.BodyNode != nil {
		effort = h.Analyze(decl.BodyNode, source).Effort()
	}

	accessor := decl.Access
	if accessor == "" {
		accessor = models.AccessPackagePrivate
	}

	return models.MethodMetrics{
		LOC:            LOC(decl, lines),
		Statements:     parser.StatementCount(decl.BodyNode),
		Cyclomatic:     cx.Cyclomatic,
		Cognitive:      cx.Cognitive,
		NestingDepth:   cx.MaxNesting,
		Parameters:     decl.Params,
		Accessor:       accessor,
		HalsteadEffort: effort,
		CommentDensity: CommentDensity(decl),
	}
}

// LOC is the method span minus blank lines, lines holding only "{" or "}",
// and lines covered by a comment. Declarations without a body count their
// whole span. The result is never below 1.
func LOC(decl parser.MethodDecl, lines []string) int {
	span := decl.End - decl.Begin + 1
	if decl.BodyNode == nil {
		return max(span, 1)
	}

	commented := make(map[int]bool)
	for _, c := range decl.Comments {
		for l := c.Begin; l <= c.End; l++ {
			commented[l] = true
		}
	}

	skip := 0
	for l := decl.Begin; l <= decl.End; l++ {
		text := ""
		if l-1 < len(lines) {
			text = strings.TrimSpace(lines[l-1])
		}
		if text == "" || text == "{" || text == "}" || commented[l] {
			skip++
		}
	}
	return max(span-skip, 1)
}

// CommentDensity is the total line span of the comments inside the method
// divided by the method span.
func CommentDensity(decl parser.MethodDecl) float64 {
	span := decl.End - decl.Begin + 1
	if span <= 0 {
		return 0
	}
	covered := 0
	for _, c := range decl.Comments {
		covered += c.Lines()
	}
	return float64(covered) / float64(span)
}
