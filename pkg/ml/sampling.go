package ml

import (
	"math"
	"math/rand/v2"
	"sort"
)

// smoteNeighbors is the neighbourhood size used to pick interpolation
// partners.
const smoteNeighbors = 5

// Balance applies the sampling filter to a training set. Clean rows are
// treated as the majority and buggy rows as the minority.
func Balance(s Sampling, d *Dataset, rng *rand.Rand) *Dataset {
	buggy, clean := d.Counts()
	resample, smote := SamplingParams(clean, buggy)
	switch s {
	case Oversampling:
		return Resample(d, resample, rng)
	case Undersampling:
		return SpreadSubsample(d, rng)
	case SMOTE:
		return Smote(d, smote, smoteNeighbors, rng)
	default:
		return d
	}
}

// Resample draws, with replacement, a sample of percent% of the rows with a
// uniform class distribution: every present class contributes the same
// number of rows.
func Resample(d *Dataset, percent float64, rng *rand.Rand) *Dataset {
	size := int(math.Round(float64(d.Len()) * percent / 100))
	buggy, clean := d.indices()

	var groups [][]int
	for _, g := range [][]int{buggy, clean} {
		if len(g) > 0 {
			groups = append(groups, g)
		}
	}
	if size <= 0 || len(groups) == 0 {
		return d.subset(nil)
	}

	idx := make([]int, 0, size)
	for gi, g := range groups {
		share := size / len(groups)
		if gi < size%len(groups) {
			share++
		}
		for range share {
			idx = append(idx, g[rng.IntN(len(g))])
		}
	}
	return d.subset(idx)
}

// SpreadSubsample drops random rows of the larger class until both classes
// have the same count. A set missing either class is returned unchanged.
func SpreadSubsample(d *Dataset, rng *rand.Rand) *Dataset {
	buggy, clean := d.indices()
	if len(buggy) == 0 || len(clean) == 0 {
		return d
	}
	small, large := buggy, clean
	if len(small) > len(large) {
		small, large = large, small
	}

	keep := append([]int(nil), small...)
	for _, k := range rng.Perm(len(large))[:len(small)] {
		keep = append(keep, large[k])
	}
	sort.Ints(keep)
	return d.subset(keep)
}

// Smote appends percent% synthetic buggy rows, each interpolated between a
// buggy row and one of its k nearest buggy neighbours. Source rows are
// taken in turn. Fewer than two buggy rows or a zero percentage leave the
// set unchanged.
func Smote(d *Dataset, percent float64, k int, rng *rand.Rand) *Dataset {
	minority, _ := d.indices()
	synth := int(math.Round(float64(len(minority)) * percent / 100))
	if synth <= 0 || len(minority) < 2 {
		return d
	}
	k = min(k, len(minority)-1)

	span := make([]float64, len(d.Features))
	for j := range span {
		lo, hi := math.Inf(1), math.Inf(-1)
		for _, row := range d.X {
			lo = math.Min(lo, row[j])
			hi = math.Max(hi, row[j])
		}
		span[j] = hi - lo
	}

	neighbors := make(map[int][]int, len(minority))
	for _, i := range minority {
		neighbors[i] = nearest(d.X, i, minority, span, k)
	}

	out := &Dataset{Name: d.Name, Features: d.Features}
	out.X = append(out.X, d.X...)
	out.Y = append(out.Y, d.Y...)
	for s := range synth {
		i := minority[s%len(minority)]
		nb := neighbors[i][rng.IntN(len(neighbors[i]))]
		gap := rng.Float64()
		row := make([]float64, len(d.Features))
		for j := range row {
			row[j] = d.X[i][j] + gap*(d.X[nb][j]-d.X[i][j])
		}
		out.X = append(out.X, row)
		out.Y = append(out.Y, true)
	}
	return out
}

func nearest(x [][]float64, i int, candidates []int, span []float64, k int) []int {
	type cand struct {
		row  int
		dist float64
	}
	var cs []cand
	for _, c := range candidates {
		if c == i {
			continue
		}
		var dist float64
		for j, v := range x[c] {
			diff := v - x[i][j]
			if span[j] > 0 {
				diff /= span[j]
			}
			dist += diff * diff
		}
		cs = append(cs, cand{c, dist})
	}
	sort.SliceStable(cs, func(a, b int) bool { return cs[a].dist < cs[b].dist })
	out := make([]int, 0, k)
	for _, c := range cs[:k] {
		out = append(out, c.row)
	}
	return out
}
