// Package dataset truncates the release timeline, builds walk-forward
// training and test sets, and writes the method and class datasets.
package dataset

import (
	"context"
	"fmt"
	"math"
	"sort"

	"github.com/sirupsen/logrus"

	"github.com/panbanda/defectmine/internal/logging"
	"github.com/panbanda/defectmine/pkg/ml"
	"github.com/panbanda/defectmine/pkg/models"
)

// DefaultCut is the share of releases kept when the configured one is
// unusable.
const DefaultCut = 0.5

// ValidCut reports whether pct is a usable cut percentage.
func ValidCut(pct float64) bool {
	return pct > 0 && pct <= 1
}

// Cut keeps the releases with id <= floor(len(releases)*pct). A percentage
// outside (0, 1] is replaced by DefaultCut with a warning.
func Cut(releases []*models.Release, pct float64, logger logrus.FieldLogger) []*models.Release {
	if !ValidCut(pct) {
		logging.OrDiscard(logger).Warnf("cut percentage %v is not in (0, 1], using %v", pct, DefaultCut)
		pct = DefaultCut
	}
	limit := int(math.Floor(float64(len(releases)) * pct))

	kept := make([]*models.Release, 0, limit)
	for _, r := range releases {
		if r.ID <= limit {
			kept = append(kept, r)
		}
	}
	sort.Slice(kept, func(i, j int) bool { return kept[i].ID < kept[j].ID })
	return kept
}

// ClassRow is a frozen copy of one class's features and label.
type ClassRow struct {
	Release int
	Path    string
	Metrics models.ClassMetrics
	Buggy   bool
}

// ClassFeatures are the numeric attributes of the class dataset, in file
// order.
var ClassFeatures = []string{
	"SIZE",
	"LOC_ADDED", "LOC_ADDED_AVG", "LOC_ADDED_MAX",
	"LOC_REMOVED", "LOC_REMOVED_AVG", "LOC_REMOVED_MAX",
	"LOC_TOUCHED", "LOC_TOUCHED_AVG", "LOC_TOUCHED_MAX",
	"CHURN", "CHURN_AVG", "CHURN_MAX",
	"NUMBER_OF_REVISIONS",
	"NUMBER_OF_DEFECT_FIXES",
	"NUMBER_OF_AUTHORS",
}

// Features returns the row's values in ClassFeatures order.
func (r ClassRow) Features() []float64 {
	m := r.Metrics
	agg := func(a models.Aggregate) []float64 {
		return []float64{float64(a.Val), a.Avg, float64(a.Max)}
	}
	out := make([]float64, 0, len(ClassFeatures))
	out = append(out, float64(m.Size))
	out = append(out, agg(m.LOCAdded)...)
	out = append(out, agg(m.LOCRemoved)...)
	out = append(out, agg(m.LOCTouched)...)
	out = append(out, agg(m.Churn)...)
	out = append(out, float64(m.Revisions), float64(m.DefectFixes), float64(m.Authors))
	return out
}

// Rows snapshots the classes of the given release ids, ordered by release
// then path.
func Rows(byRelease map[int][]*models.Class, ids ...int) []ClassRow {
	sort.Ints(ids)
	var rows []ClassRow
	for _, id := range ids {
		classes := append([]*models.Class(nil), byRelease[id]...)
		sort.Slice(classes, func(i, j int) bool { return classes[i].Path < classes[j].Path })
		for _, c := range classes {
			rows = append(rows, ClassRow{Release: id, Path: c.Path, Metrics: c.Metrics, Buggy: c.Buggy})
		}
	}
	return rows
}

// ToDataset converts rows to an ml.Dataset over ClassFeatures.
func ToDataset(name string, rows []ClassRow) *ml.Dataset {
	d := ml.NewDataset(name, ClassFeatures)
	for _, r := range rows {
		d.Add(r.Features(), r.Buggy)
	}
	return d
}

// Step is one walk-forward split.
type Step struct {
	Iteration int
	Training  []ClassRow // releases 1..Iteration, labelled at horizon Iteration
	Testing   []ClassRow // release Iteration+1
}

// Relabel recomputes class labels using only knowledge available at the end
// of release horizon.
type Relabel func(ctx context.Context, horizon int) error

// WalkForward yields one step per i in 1..len(releases)/2. Before each
// step the classes are relabelled at horizon i; rows are copied right away
// so later relabelling does not alter earlier steps.
func WalkForward(ctx context.Context, releases []*models.Release, byRelease map[int][]*models.Class, relabel Relabel) ([]Step, error) {
	ids := make([]int, len(releases))
	for i, r := range releases {
		ids[i] = r.ID
	}
	sort.Ints(ids)

	steps := make([]Step, 0, len(ids)/2)
	for i := 1; i <= len(ids)/2; i++ {
		if err := ctx.Err(); err != nil {
			return steps, err
		}
		if relabel != nil {
			if err := relabel(ctx, ids[i-1]); err != nil {
				return steps, fmt.Errorf("relabel at release %d: %w", ids[i-1], err)
			}
		}
		steps = append(steps, Step{
			Iteration: i,
			Training:  Rows(byRelease, ids[:i]...),
			Testing:   Rows(byRelease, ids[i]),
		})
	}
	return steps, nil
}

// Iterations converts steps to classifier iterations.
func Iterations(project string, steps []Step) []ml.Iteration {
	out := make([]ml.Iteration, len(steps))
	for i, s := range steps {
		out[i] = ml.Iteration{
			Index: s.Iteration,
			Train: ToDataset(fmt.Sprintf("%s_%d_training", project, s.Iteration), s.Training),
			Test:  ToDataset(fmt.Sprintf("%s_%d_testing", project, s.Iteration), s.Testing),
		}
	}
	return out
}
