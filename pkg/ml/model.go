package ml

import (
	"errors"
	"fmt"
	"math"
	"math/rand/v2"
	"sort"

	"gonum.org/v1/gonum/stat"
	"gonum.org/v1/gonum/stat/distuv"
)

// ErrEmptyTraining is returned when a model is fitted on no rows.
var ErrEmptyTraining = errors.New("ml: empty training set")

// Model is a fitted binary classifier.
type Model interface {
	Fit(d *Dataset) error
	// Prob returns the estimated probability that x is buggy.
	Prob(x []float64) float64
}

// NewModel returns an unfitted model for the classifier.
func NewModel(c Classifier, rng *rand.Rand) (Model, error) {
	switch c {
	case RandomForest:
		return NewForest(rng), nil
	case NaiveBayes:
		return &GaussianNB{}, nil
	case IBk:
		return &NearestNeighbor{}, nil
	default:
		return nil, fmt.Errorf("ml: unknown classifier %q", c)
	}
}

const minStdDev = 1e-3

// GaussianNB is naive Bayes with a normal distribution per feature and
// class.
type GaussianNB struct {
	logPrior [2]float64
	dists    [2][]distuv.Normal
	present  [2]bool
}

// Fit estimates Laplace-smoothed priors and per-class feature moments.
func (nb *GaussianNB) Fit(d *Dataset) error {
	if d.Len() == 0 {
		return ErrEmptyTraining
	}
	buggy, clean := d.indices()
	n := float64(d.Len())
	for c, rows := range [2][]int{clean, buggy} {
		nb.present[c] = len(rows) > 0
		nb.logPrior[c] = math.Log((float64(len(rows)) + 1) / (n + 2))
		nb.dists[c] = make([]distuv.Normal, len(d.Features))
		if !nb.present[c] {
			continue
		}
		for j := range d.Features {
			col := make([]float64, len(rows))
			for k, i := range rows {
				col[k] = d.X[i][j]
			}
			mean, sd := col[0], minStdDev
			if len(col) > 1 {
				var variance float64
				mean, variance = stat.MeanVariance(col, nil)
				sd = math.Max(math.Sqrt(variance), minStdDev)
			}
			nb.dists[c][j] = distuv.Normal{Mu: mean, Sigma: sd}
		}
	}
	return nil
}

// Prob returns the posterior probability of the buggy class.
func (nb *GaussianNB) Prob(x []float64) float64 {
	switch {
	case !nb.present[1]:
		return 0
	case !nb.present[0]:
		return 1
	}
	var logp [2]float64
	for c := range logp {
		logp[c] = nb.logPrior[c]
		for j, v := range x {
			logp[c] += nb.dists[c][j].LogProb(v)
		}
	}
	return 1 / (1 + math.Exp(logp[0]-logp[1]))
}

// NearestNeighbor is a 1-nearest-neighbour classifier using Euclidean
// distance over features min-max normalised on the training set.
type NearestNeighbor struct {
	min, span []float64
	x         [][]float64
	y         []bool
}

// Fit stores the normalised training rows.
func (nn *NearestNeighbor) Fit(d *Dataset) error {
	if d.Len() == 0 {
		return ErrEmptyTraining
	}
	m := len(d.Features)
	nn.min = make([]float64, m)
	nn.span = make([]float64, m)
	for j := range m {
		lo, hi := math.Inf(1), math.Inf(-1)
		for _, row := range d.X {
			lo = math.Min(lo, row[j])
			hi = math.Max(hi, row[j])
		}
		nn.min[j] = lo
		nn.span[j] = hi - lo
	}
	nn.x = make([][]float64, d.Len())
	for i, row := range d.X {
		nn.x[i] = nn.normalize(row)
	}
	nn.y = append([]bool(nil), d.Y...)
	return nil
}

func (nn *NearestNeighbor) normalize(row []float64) []float64 {
	out := make([]float64, len(row))
	for j, v := range row {
		if nn.span[j] > 0 {
			out[j] = (v - nn.min[j]) / nn.span[j]
		}
	}
	return out
}

// Prob returns 1 when the nearest training row is buggy and 0 otherwise.
// Ties go to the earliest row.
func (nn *NearestNeighbor) Prob(x []float64) float64 {
	q := nn.normalize(x)
	best, bestDist := -1, math.Inf(1)
	for i, row := range nn.x {
		var dist float64
		for j, v := range row {
			diff := v - q[j]
			dist += diff * diff
		}
		if dist < bestDist {
			best, bestDist = i, dist
		}
	}
	if best >= 0 && nn.y[best] {
		return 1
	}
	return 0
}

// Forest is a bagged ensemble of Gini decision trees, each split choosing
// among a random subset of log2(m)+1 features.
type Forest struct {
	Trees    int
	MaxDepth int
	MinLeaf  int

	rng   *rand.Rand
	roots []*treeNode
}

// NewForest returns a forest of 100 trees of depth at most 8.
func NewForest(rng *rand.Rand) *Forest {
	if rng == nil {
		rng = rand.New(rand.NewPCG(1, 1))
	}
	return &Forest{Trees: 100, MaxDepth: 8, MinLeaf: 1, rng: rng}
}

type treeNode struct {
	feature   int
	threshold float64
	left      *treeNode
	right     *treeNode
	prob      float64 // buggy share at a leaf
}

func (n *treeNode) leaf() bool { return n.left == nil }

// Fit grows every tree on its own bootstrap sample.
func (f *Forest) Fit(d *Dataset) error {
	if d.Len() == 0 {
		return ErrEmptyTraining
	}
	mtry := int(math.Log2(float64(len(d.Features)))) + 1
	mtry = min(mtry, len(d.Features))

	f.roots = make([]*treeNode, f.Trees)
	for t := range f.roots {
		sample := make([]int, d.Len())
		for i := range sample {
			sample[i] = f.rng.IntN(d.Len())
		}
		f.roots[t] = f.grow(d, sample, 0, mtry)
	}
	return nil
}

func (f *Forest) grow(d *Dataset, rows []int, depth, mtry int) *treeNode {
	pos := 0
	for _, i := range rows {
		if d.Y[i] {
			pos++
		}
	}
	node := &treeNode{prob: float64(pos) / float64(len(rows))}
	if depth >= f.MaxDepth || pos == 0 || pos == len(rows) || len(rows) < 2*f.MinLeaf {
		return node
	}

	parent := gini(pos, len(rows))
	bestScore, bestFeature, bestThreshold := parent, -1, 0.0
	sorted := make([]int, len(rows))

	for _, j := range f.rng.Perm(len(d.Features))[:mtry] {
		copy(sorted, rows)
		sort.Slice(sorted, func(a, b int) bool { return d.X[sorted[a]][j] < d.X[sorted[b]][j] })

		leftPos := 0
		for k := 0; k < len(sorted)-1; k++ {
			if d.Y[sorted[k]] {
				leftPos++
			}
			lo, hi := d.X[sorted[k]][j], d.X[sorted[k+1]][j]
			nl := k + 1
			nr := len(sorted) - nl
			if lo == hi || nl < f.MinLeaf || nr < f.MinLeaf {
				continue
			}
			score := (float64(nl)*gini(leftPos, nl) + float64(nr)*gini(pos-leftPos, nr)) / float64(len(sorted))
			if score < bestScore {
				bestScore, bestFeature, bestThreshold = score, j, (lo+hi)/2
			}
		}
	}
	if bestFeature < 0 {
		return node
	}

	var left, right []int
	for _, i := range rows {
		if d.X[i][bestFeature] <= bestThreshold {
			left = append(left, i)
		} else {
			right = append(right, i)
		}
	}
	node.feature = bestFeature
	node.threshold = bestThreshold
	node.left = f.grow(d, left, depth+1, mtry)
	node.right = f.grow(d, right, depth+1, mtry)
	return node
}

func gini(pos, n int) float64 {
	if n == 0 {
		return 0
	}
	p := float64(pos) / float64(n)
	return 1 - p*p - (1-p)*(1-p)
}

// Prob averages the leaf buggy shares over all trees.
func (f *Forest) Prob(x []float64) float64 {
	if len(f.roots) == 0 {
		return 0
	}
	var sum float64
	for _, n := range f.roots {
		for !n.leaf() {
			if x[n.feature] <= n.threshold {
				n = n.left
			} else {
				n = n.right
			}
		}
		sum += n.prob
	}
	return sum / float64(len(f.roots))
}
