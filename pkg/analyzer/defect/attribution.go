package defect

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"

	"github.com/RoaringBitmap/roaring/v2"
	"github.com/cespare/xxhash/v2"
	"github.com/sirupsen/logrus"

	"github.com/panbanda/defectmine/internal/logging"
	"github.com/panbanda/defectmine/internal/vcs"
	"github.com/panbanda/defectmine/pkg/models"
	"github.com/panbanda/defectmine/pkg/parser"
)

// ChangeSource returns a commit's diff against its first parent.
type ChangeSource interface {
	Changes(ctx context.Context, hash string) ([]models.FileChange, error)
}

// Labels records, per class path, the release ids in which it was buggy.
type Labels struct {
	byPath map[string]*roaring.Bitmap
}

func newLabels() *Labels {
	return &Labels{byPath: make(map[string]*roaring.Bitmap)}
}

func (l *Labels) add(path string, release int) {
	bm, ok := l.byPath[path]
	if !ok {
		bm = roaring.New()
		l.byPath[path] = bm
	}
	bm.Add(uint32(release))
}

// IsBuggy reports whether path was labeled buggy in release.
func (l *Labels) IsBuggy(path string, release int) bool {
	bm, ok := l.byPath[path]
	return ok && bm.Contains(uint32(release))
}

// Releases returns the buggy release ids of path in ascending order.
func (l *Labels) Releases(path string) []int {
	bm, ok := l.byPath[path]
	if !ok {
		return nil
	}
	ids := make([]int, 0, bm.GetCardinality())
	it := bm.Iterator()
	for it.HasNext() {
		ids = append(ids, int(it.Next()))
	}
	return ids
}

// Paths returns every path that was buggy at least once, sorted.
func (l *Labels) Paths() []string {
	paths := make([]string, 0, len(l.byPath))
	for p := range l.byPath {
		paths = append(paths, p)
	}
	sort.Strings(paths)
	return paths
}

// PerRelease counts buggy classes for each release id.
func (l *Labels) PerRelease() map[int]int {
	counts := make(map[int]int)
	for _, bm := range l.byPath {
		it := bm.Iterator()
		for it.HasNext() {
			counts[int(it.Next())]++
		}
	}
	return counts
}

// Labeler marks buggy classes and methods from linked tickets.
type Labeler struct {
	changes ChangeSource
	logger  logrus.FieldLogger

	mu      sync.Mutex
	touched map[string][]string
	prints  map[*models.Method]uint64
}

// NewLabeler creates a Labeler reading diffs from changes.
func NewLabeler(changes ChangeSource, logger logrus.FieldLogger) *Labeler {
	return &Labeler{
		changes: changes,
		logger:  logging.OrDiscard(logger),
		touched: make(map[string][]string),
		prints:  make(map[*models.Method]uint64),
	}
}

// Label resets every class and method label in byRelease and then applies
// tickets. For each linked commit dated inside the ticket's [created,
// resolved] window, every production Java file it touched is buggy in the
// releases IV <= r < R, where R is the release of the commit. Inside those
// classes a method is buggy when the class at release R lacks it or holds a
// different body.
func (l *Labeler) Label(ctx context.Context, tickets []*models.Ticket, byRelease map[int][]*models.Class) (*Labels, error) {
	return l.label(ctx, tickets, byRelease, 0)
}

// Horizon labels as if only the tickets fixed by release i were known:
// tickets with a fixed release after i are ignored and only releases up to
// i are touched. Classes of later releases keep their current labels.
func (l *Labeler) Horizon(ctx context.Context, tickets []*models.Ticket, byRelease map[int][]*models.Class, i int) (*Labels, error) {
	known := make([]*models.Ticket, 0, len(tickets))
	for _, t := range tickets {
		if t.FixedID() <= i {
			known = append(known, t)
		}
	}
	return l.label(ctx, known, byRelease, i)
}

// label applies tickets to the releases up to horizon (all when 0).
func (l *Labeler) label(ctx context.Context, tickets []*models.Ticket, byRelease map[int][]*models.Class, horizon int) (*Labels, error) {
	index := make(map[int]map[string]*models.Class, len(byRelease))
	for id, classes := range byRelease {
		within := horizon == 0 || id <= horizon
		byPath := make(map[string]*models.Class, len(classes))
		for _, cls := range classes {
			byPath[cls.Path] = cls
			if within {
				cls.Buggy = false
				for _, m := range cls.Methods {
					m.Metrics.Buggy = false
				}
			}
		}
		index[id] = byPath
	}

	labels := newLabels()
	for _, t := range tickets {
		if t.Injected == nil {
			continue
		}
		from, to := models.Day(t.Created), models.Day(t.Resolved)
		for _, c := range t.Commits {
			day := models.Day(c.When)
			if day.Before(from) || day.After(to) || !c.HasParent() {
				continue
			}
			paths, err := l.touchedPaths(ctx, c.Hash)
			if err != nil {
				return nil, fmt.Errorf("ticket %s commit %s: %w", t.Key, c.Hash, err)
			}
			fixedID := c.ReleaseID()
			for _, path := range paths {
				l.mark(index, labels, path, t.InjectedID(), fixedID, horizon)
			}
		}
	}
	return labels, nil
}

func (l *Labeler) mark(index map[int]map[string]*models.Class, labels *Labels, path string, iv, fixedID, horizon int) {
	upper := fixedID
	if horizon > 0 {
		upper = min(upper, horizon+1)
	}
	fixedClass := index[fixedID][path]

	for id := iv; id < upper; id++ {
		cls, ok := index[id][path]
		if !ok {
			continue
		}
		cls.Buggy = true
		labels.add(path, id)
		if fixedClass == nil {
			continue
		}
		for sig, m := range cls.Methods {
			fm, ok := fixedClass.Methods[sig]
			if !ok || l.fingerprint(fm) != l.fingerprint(m) {
				m.Metrics.Buggy = true
			}
		}
	}
}

func (l *Labeler) fingerprint(m *models.Method) uint64 {
	l.mu.Lock()
	defer l.mu.Unlock()
	if fp, ok := l.prints[m]; ok {
		return fp
	}
	fp := xxhash.Sum64String(m.Body)
	l.prints[m] = fp
	return fp
}

// touchedPaths returns the production Java files a commit modified or
// added, memoized per commit.
func (l *Labeler) touchedPaths(ctx context.Context, hash string) ([]string, error) {
	l.mu.Lock()
	paths, ok := l.touched[hash]
	l.mu.Unlock()
	if ok {
		return paths, nil
	}

	changes, err := l.changes.Changes(ctx, hash)
	if err != nil && !errors.Is(err, vcs.ErrNoParent) {
		return nil, err
	}
	paths = []string{}
	for _, ch := range changes {
		if !ch.Deleted && parser.IsJavaSource(ch.Path) {
			paths = append(paths, ch.Path)
		}
	}

	l.mu.Lock()
	l.touched[hash] = paths
	l.mu.Unlock()
	return paths, nil
}
