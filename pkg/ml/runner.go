package ml

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/sirupsen/logrus"
	"github.com/sourcegraph/conc/pool"

	"github.com/panbanda/defectmine/internal/logging"
)

// Iteration is one walk-forward step: train on Train, evaluate on Test.
type Iteration struct {
	Index int
	Train *Dataset
	Test  *Dataset
}

// Result is the evaluation of one combo on one iteration.
type Result struct {
	Dataset         string  `json:"dataset"`
	Iteration       int     `json:"iteration"`
	TrainingPercent float64 `json:"training_percent"`
	Combo           Combo   `json:"combo"`
	Metrics         Metrics `json:"metrics"`
}

// TrainingShare returns 100*train/(train+test).
func TrainingShare(train, test int) float64 {
	if train+test == 0 {
		return 0
	}
	return 100 * float64(train) / float64(train+test)
}

// Runner evaluates every combo on every iteration.
type Runner struct {
	combos []Combo
	seed   uint64
	logger logrus.FieldLogger
}

// RunnerOption configures a Runner.
type RunnerOption func(*Runner)

// WithCombos replaces the default Combinations.
func WithCombos(c []Combo) RunnerOption {
	return func(r *Runner) { r.combos = c }
}

// WithSeed sets the base seed of every pipeline.
func WithSeed(seed uint64) RunnerOption {
	return func(r *Runner) { r.seed = seed }
}

// WithLogger sets the logger.
func WithLogger(l logrus.FieldLogger) RunnerOption {
	return func(r *Runner) { r.logger = l }
}

// NewRunner creates a runner over Combinations.
func NewRunner(opts ...RunnerOption) *Runner {
	r := &Runner{combos: Combinations(), seed: 1}
	for _, opt := range opts {
		opt(r)
	}
	r.logger = logging.OrDiscard(r.logger)
	return r
}

// Run evaluates the iterations concurrently, one goroutine each. A combo
// that fails, or an iteration that panics, is logged and left out of the
// results. Results are ordered by iteration, then combo.
func (r *Runner) Run(ctx context.Context, dataset string, iterations []Iteration) ([]Result, error) {
	var (
		mu      sync.Mutex
		results []Result
	)

	p := pool.New()
	for _, it := range iterations {
		p.Go(func() {
			log := r.logger.WithFields(logrus.Fields{"dataset": dataset, "iteration": it.Index})
			defer func() {
				if v := recover(); v != nil {
					log.Errorf("iteration panicked: %v", v)
				}
			}()

			local := r.iteration(ctx, dataset, it, log)
			mu.Lock()
			results = append(results, local...)
			mu.Unlock()
		})
	}
	p.Wait()

	if err := ctx.Err(); err != nil {
		return nil, err
	}

	order := make(map[string]int, len(r.combos))
	for i, c := range r.combos {
		order[c.Label()] = i
	}
	sort.SliceStable(results, func(i, j int) bool {
		if results[i].Iteration != results[j].Iteration {
			return results[i].Iteration < results[j].Iteration
		}
		return order[results[i].Combo.Label()] < order[results[j].Combo.Label()]
	})
	return results, nil
}

func (r *Runner) iteration(ctx context.Context, dataset string, it Iteration, log logrus.FieldLogger) []Result {
	share := TrainingShare(it.Train.Len(), it.Test.Len())
	out := make([]Result, 0, len(r.combos))
	for i, c := range r.combos {
		if ctx.Err() != nil {
			return out
		}
		p := NewPipeline(c, r.seed+uint64(it.Index)*1000+uint64(i))
		if err := p.Fit(it.Train); err != nil {
			log.WithField("combo", c.Label()).Warnf("skipping combo: %v", err)
			continue
		}
		out = append(out, Result{
			Dataset:         dataset,
			Iteration:       it.Index,
			TrainingPercent: share,
			Combo:           c,
			Metrics:         p.Evaluate(it.Test),
		})
	}
	log.Debugf("evaluated %d combos", len(out))
	return out
}

// Fields returns the results-report cells of the result, with "None" for
// absent pipeline stages.
func (res Result) Fields() []string {
	selection, balancing, cost := "None", "None", "None"
	if res.Combo.Selection != NoSelection {
		selection = string(res.Combo.Selection)
	}
	if res.Combo.Sampling != NoSampling {
		balancing = res.Combo.Sampling.Filter()
	}
	if res.Combo.CostSensitive {
		cost = "SensitiveLearning"
	}
	m := res.Metrics
	return []string{
		res.Dataset,
		fmt.Sprint(res.Iteration),
		formatFloat(res.TrainingPercent),
		string(res.Combo.Classifier),
		selection,
		balancing,
		cost,
		formatFloat(m.Precision),
		formatFloat(m.Recall),
		formatFloat(m.AUC),
		formatFloat(m.Kappa),
		fmt.Sprint(m.TP),
		fmt.Sprint(m.FP),
		fmt.Sprint(m.TN),
		fmt.Sprint(m.FN),
	}
}
