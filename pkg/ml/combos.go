// Package ml generates and evaluates classifier pipelines over the class
// dataset: a learner, an optional feature selection, an optional balancing
// filter and optional cost-sensitive prediction.
package ml

import "fmt"

// Classifier names a learning algorithm.
type Classifier string

const (
	RandomForest Classifier = "RandomForest"
	NaiveBayes   Classifier = "NaiveBayes"
	IBk          Classifier = "IBk"
)

// Selection names a feature selection strategy.
type Selection string

const (
	NoSelection Selection = "NoSelection"
	BestFirst   Selection = "BestFirst"
)

// Sampling names a training set balancing filter.
type Sampling string

const (
	NoSampling    Sampling = "NoSampling"
	Oversampling  Sampling = "Oversampling"
	Undersampling Sampling = "Undersampling"
	SMOTE         Sampling = "SMOTE"
)

// Filter returns the name of the filter implementing the sampling.
func (s Sampling) Filter() string {
	switch s {
	case Oversampling:
		return "Resample"
	case Undersampling:
		return "SpreadSubsample"
	case SMOTE:
		return "SMOTE"
	default:
		return ""
	}
}

// Classifiers lists the learners in generation order.
var Classifiers = []Classifier{RandomForest, NaiveBayes, IBk}

// Selections lists the feature selection strategies in generation order.
var Selections = []Selection{NoSelection, BestFirst}

// Samplings lists the balancing filters in generation order.
var Samplings = []Sampling{NoSampling, Oversampling, Undersampling, SMOTE}

// CostMatrix holds the misclassification costs of the two error kinds.
type CostMatrix struct {
	FalsePositive float64
	FalseNegative float64
}

// DefaultCostMatrix weighs a missed defect ten times a false alarm.
var DefaultCostMatrix = CostMatrix{FalsePositive: 1, FalseNegative: 10}

// Threshold returns the buggy-probability above which predicting buggy has
// the lower expected cost.
func (m CostMatrix) Threshold() float64 {
	return m.FalsePositive / (m.FalsePositive + m.FalseNegative)
}

// Combo is one pipeline configuration.
type Combo struct {
	Classifier    Classifier `json:"classifier"`
	Selection     Selection  `json:"selection"`
	Sampling      Sampling   `json:"sampling"`
	CostSensitive bool       `json:"cost_sensitive"`
	Costs         CostMatrix `json:"costs"`
}

// Label returns a descriptive name such as
// "RandomForest+BestFirst+SMOTE+CostSensitive".
func (c Combo) Label() string {
	cost := "CostInsensitive"
	if c.CostSensitive {
		cost = "CostSensitive"
	}
	return fmt.Sprintf("%s+%s+%s+%s", c.Classifier, c.Selection, c.Sampling, cost)
}

func (c Combo) String() string { return c.Label() }

// Combinations returns the cartesian product of classifiers, selections,
// samplings and cost sensitivity, classifier-major. Every combo carries
// DefaultCostMatrix.
func Combinations() []Combo {
	combos := make([]Combo, 0, len(Classifiers)*len(Selections)*len(Samplings)*2)
	for _, cl := range Classifiers {
		for _, sel := range Selections {
			for _, smp := range Samplings {
				for _, cost := range []bool{false, true} {
					combos = append(combos, Combo{
						Classifier:    cl,
						Selection:     sel,
						Sampling:      smp,
						CostSensitive: cost,
						Costs:         DefaultCostMatrix,
					})
				}
			}
		}
	}
	return combos
}

// SamplingParams derives the filter parameters from the training class
// counts: the Resample size as a percentage of the training set, twice the
// share of the majority, and the SMOTE percentage of synthetic minority
// instances, zero when there is no minority or it outnumbers the majority.
func SamplingParams(majority, minority int) (resamplePercent, smotePercent float64) {
	if majority+minority > 0 {
		resamplePercent = 100 * float64(majority) / float64(majority+minority) * 2
	}
	if minority > 0 && minority <= majority {
		smotePercent = 100 * float64(majority-minority) / float64(minority)
	}
	return resamplePercent, smotePercent
}
