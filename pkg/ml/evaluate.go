package ml

import (
	"encoding/json"
	"math"
	"strconv"

	"gonum.org/v1/gonum/integrate"
	"gonum.org/v1/gonum/stat"
)

// Metrics summarizes predictions on a test set. Precision and recall are
// NaN when their denominator is zero; AUC is NaN when the test set holds a
// single class.
type Metrics struct {
	TP, FP, TN, FN int
	Precision      float64
	Recall         float64
	AUC            float64
	Kappa          float64
}

// Evaluate scores predictions against the actual labels. A row is predicted
// buggy when its score exceeds threshold.
func Evaluate(scores []float64, actual []bool, threshold float64) Metrics {
	var m Metrics
	for i, s := range scores {
		predicted := s > threshold
		switch {
		case predicted && actual[i]:
			m.TP++
		case predicted && !actual[i]:
			m.FP++
		case !predicted && actual[i]:
			m.FN++
		default:
			m.TN++
		}
	}
	m.Precision = ratio(m.TP, m.TP+m.FP)
	m.Recall = ratio(m.TP, m.TP+m.FN)
	m.AUC = AUC(scores, actual)
	m.Kappa = Kappa(m.TP, m.FP, m.TN, m.FN)
	return m
}

func ratio(num, den int) float64 {
	if den == 0 {
		return math.NaN()
	}
	return float64(num) / float64(den)
}

// AUC returns the area under the ROC curve of the scores.
func AUC(scores []float64, actual []bool) float64 {
	pos, neg := 0, 0
	for _, a := range actual {
		if a {
			pos++
		} else {
			neg++
		}
	}
	if pos == 0 || neg == 0 {
		return math.NaN()
	}

	y := append([]float64(nil), scores...)
	classes := append([]bool(nil), actual...)
	stat.SortWeightedLabeled(y, classes, nil)
	tpr, fpr, _ := stat.ROC(nil, y, classes, nil)
	return integrate.Trapezoidal(fpr, tpr)
}

// Kappa returns Cohen's kappa of the confusion matrix. Full chance
// agreement yields 1.
func Kappa(tp, fp, tn, fn int) float64 {
	n := float64(tp + fp + tn + fn)
	if n == 0 {
		return math.NaN()
	}
	observed := float64(tp+tn) / n
	chance := (float64(tp+fp)*float64(tp+fn) + float64(fn+tn)*float64(fp+tn)) / (n * n)
	if chance >= 1 {
		return 1
	}
	return (observed - chance) / (1 - chance)
}

type metricsJSON struct {
	TP        int      `json:"true_positives"`
	FP        int      `json:"false_positives"`
	TN        int      `json:"true_negatives"`
	FN        int      `json:"false_negatives"`
	Precision *float64 `json:"precision"`
	Recall    *float64 `json:"recall"`
	AUC       *float64 `json:"auc"`
	Kappa     *float64 `json:"kappa"`
}

// MarshalJSON encodes undefined rates as null.
func (m Metrics) MarshalJSON() ([]byte, error) {
	return json.Marshal(metricsJSON{
		TP: m.TP, FP: m.FP, TN: m.TN, FN: m.FN,
		Precision: finite(m.Precision),
		Recall:    finite(m.Recall),
		AUC:       finite(m.AUC),
		Kappa:     finite(m.Kappa),
	})
}

func finite(v float64) *float64 {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return nil
	}
	return &v
}

// formatFloat renders v in the shortest exact form, NaN as "NaN".
func formatFloat(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}
