package ml

import (
	"fmt"
	"math/rand/v2"
)

// Pipeline is a Combo bound to fitted state: the selected columns and the
// trained model.
type Pipeline struct {
	Combo Combo

	rng       *rand.Rand
	cols      []int
	model     Model
	threshold float64
}

// NewPipeline creates an unfitted pipeline. The seed makes sampling and
// forest construction reproducible.
func NewPipeline(c Combo, seed uint64) *Pipeline {
	return &Pipeline{Combo: c, rng: rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15))}
}

// Fit runs feature selection, balancing and training, in that order.
func (p *Pipeline) Fit(train *Dataset) error {
	if train.Len() == 0 {
		return ErrEmptyTraining
	}

	p.cols = make([]int, len(train.Features))
	for j := range p.cols {
		p.cols[j] = j
	}
	if p.Combo.Selection == BestFirst {
		p.cols = SelectFeatures(train)
	}

	data := Balance(p.Combo.Sampling, train.Project(p.cols), p.rng)
	if data.Len() == 0 {
		return fmt.Errorf("%s: %w after %s", p.Combo.Label(), ErrEmptyTraining, p.Combo.Sampling)
	}

	model, err := NewModel(p.Combo.Classifier, p.rng)
	if err != nil {
		return err
	}
	if err := model.Fit(data); err != nil {
		return fmt.Errorf("%s: %w", p.Combo.Label(), err)
	}
	p.model = model

	p.threshold = 0.5
	if p.Combo.CostSensitive {
		p.threshold = p.Combo.Costs.Threshold()
	}
	return nil
}

// Selected returns the names of the features the model was trained on.
func (p *Pipeline) Selected(d *Dataset) []string {
	names := make([]string, len(p.cols))
	for i, j := range p.cols {
		names[i] = d.Features[j]
	}
	return names
}

// Scores returns the buggy probability of every test row.
func (p *Pipeline) Scores(test *Dataset) []float64 {
	scores := make([]float64, test.Len())
	for i, row := range test.X {
		scores[i] = p.model.Prob(projectRow(row, p.cols))
	}
	return scores
}

// Evaluate scores the test set and compares against its labels.
func (p *Pipeline) Evaluate(test *Dataset) Metrics {
	return Evaluate(p.Scores(test), test.Y, p.threshold)
}
