package defect

import (
	"context"
	"math"

	"github.com/sirupsen/logrus"

	"github.com/panbanda/defectmine/internal/logging"
	"github.com/panbanda/defectmine/pkg/models"
	"github.com/panbanda/defectmine/pkg/stats"
	"github.com/panbanda/defectmine/pkg/timeline"
)

// ColdStartThreshold is the number of correct tickets a project needs before
// its own proportion is trusted.
const ColdStartThreshold = 5

// Of returns (FV-IV)/max(1, FV-OV) for a ticket whose injected release is
// known.
func Of(t *models.Ticket) float64 {
	fv, ov, iv := t.FixedID(), t.OpeningID(), t.InjectedID()
	den := max(1, fv-ov)
	return float64(fv-iv) / float64(den)
}

// Mean returns the average proportion over a pool of correct tickets.
func Mean(pool []*models.Ticket) float64 {
	ps := make([]float64, len(pool))
	for i, t := range pool {
		ps[i] = Of(t)
	}
	return stats.Mean(ps)
}

// InjectedID estimates the injected release id from the fixed and opening
// ids and a proportion: FV - round((FV-OV)*P), or FV - round(P) when the
// bug was opened and fixed in the same release. The result is kept inside
// [1, FV].
func InjectedID(fv, ov int, p float64) int {
	var iv int
	if fv == ov {
		iv = fv - int(math.Round(p))
	} else {
		iv = fv - int(math.Round(float64(fv-ov)*p))
	}
	return min(max(1, iv), max(1, fv))
}

// Estimate records how one ticket's injected release was obtained.
type Estimate struct {
	Key        string  `json:"key"`
	Pool       int     `json:"pool"`
	Proportion float64 `json:"proportion"`
	ColdStart  bool    `json:"cold_start"`
	Injected   int     `json:"injected"`
	Estimated  bool    `json:"estimated"`
}

// ColdStartValue supplies the proportion used while the project pool is
// below ColdStartThreshold.
type ColdStartValue interface {
	Value(ctx context.Context) (float64, error)
}

// Estimator assigns injected releases and rewrites affected versions.
type Estimator struct {
	releases []*models.Release
	cold     ColdStartValue
	logger   logrus.FieldLogger
}

// NewEstimator creates an Estimator over the project's releases.
func NewEstimator(releases []*models.Release, cold ColdStartValue, logger logrus.FieldLogger) *Estimator {
	return &Estimator{releases: releases, cold: cold, logger: logging.OrDiscard(logger)}
}

// Apply walks tickets in resolution order. Tickets without affected versions
// get IV from the running pool mean, or from the cold start value while the
// pool holds fewer than ColdStartThreshold tickets. Every ticket then has its
// affected versions rewritten to IV..FV-1, and correct tickets join the pool
// after they are processed.
func (e *Estimator) Apply(ctx context.Context, tickets []*models.Ticket) ([]Estimate, error) {
	SortByResolution(tickets)

	var pool []*models.Ticket
	estimates := make([]Estimate, 0, len(tickets))
	for _, t := range tickets {
		est := Estimate{Key: t.Key, Pool: len(pool)}
		correct := t.IsCorrect()

		if correct {
			if t.Injected == nil {
				t.Injected = t.Affected[0]
			}
		} else {
			p, cold, err := e.proportion(ctx, pool)
			if err != nil {
				return estimates, err
			}
			iv := InjectedID(t.FixedID(), t.OpeningID(), p)
			t.Injected = models.ReleaseByID(e.releases, iv)
			est.Proportion, est.ColdStart, est.Estimated = p, cold, true
			e.logger.WithFields(logrus.Fields{
				"ticket":     t.Key,
				"proportion": p,
				"cold_start": cold,
				"injected":   iv,
			}).Debug("estimated injected release")
		}

		t.Affected = timeline.Span(e.releases, t.InjectedID(), t.FixedID()-1)
		est.Injected = t.InjectedID()
		estimates = append(estimates, est)

		if correct {
			pool = append(pool, t)
		}
	}
	return estimates, nil
}

func (e *Estimator) proportion(ctx context.Context, pool []*models.Ticket) (float64, bool, error) {
	if len(pool) >= ColdStartThreshold {
		return Mean(pool), false, nil
	}
	p, err := e.cold.Value(ctx)
	if err != nil {
		return 0, true, err
	}
	return p, true, nil
}
