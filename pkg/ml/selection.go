package ml

import (
	"math"
	"sort"
	"strconv"
	"strings"

	"gonum.org/v1/gonum/stat"
)

// searchTermination is the number of consecutive non-improving expansions
// after which the best-first search gives up.
const searchTermination = 5

// SelectFeatures picks a feature subset with a bidirectional best-first
// search over correlation-based subset merit: high correlation with the
// label, low correlation among the chosen features. Absolute Pearson
// correlation stands in for both. It falls back to every feature when no
// subset has positive merit.
func SelectFeatures(d *Dataset) []int {
	m := len(d.Features)
	all := make([]int, m)
	for j := range all {
		all[j] = j
	}
	if m == 0 || d.Len() < 2 {
		return all
	}

	labels := d.Labels()
	cols := make([][]float64, m)
	rcf := make([]float64, m)
	for j := range m {
		cols[j] = d.Column(j)
		rcf[j] = absCorrelation(cols[j], labels)
	}
	rff := make([][]float64, m)
	for i := range m {
		rff[i] = make([]float64, m)
		for j := range i {
			rff[i][j] = absCorrelation(cols[i], cols[j])
			rff[j][i] = rff[i][j]
		}
	}

	merit := func(set []int) float64 {
		if len(set) == 0 {
			return 0
		}
		var num, inter float64
		for a, i := range set {
			num += rcf[i]
			for _, j := range set[a+1:] {
				inter += rff[i][j]
			}
		}
		return num / math.Sqrt(float64(len(set))+2*inter)
	}

	type node struct {
		set   []int
		merit float64
	}
	best := node{}
	open := []node{best}
	visited := map[string]bool{subsetKey(nil): true}

	for stale := 0; len(open) > 0 && stale < searchTermination; {
		sort.SliceStable(open, func(a, b int) bool {
			if open[a].merit != open[b].merit {
				return open[a].merit > open[b].merit
			}
			return len(open[a].set) < len(open[b].set)
		})
		cur := open[0]
		open = open[1:]

		improved := false
		for j := range m {
			child := toggle(cur.set, j)
			key := subsetKey(child)
			if visited[key] {
				continue
			}
			visited[key] = true
			n := node{set: child, merit: merit(child)}
			open = append(open, n)
			if n.merit > best.merit+1e-12 {
				best = n
				improved = true
			}
		}
		if improved {
			stale = 0
		} else {
			stale++
		}
	}

	if len(best.set) == 0 {
		return all
	}
	return best.set
}

func absCorrelation(x, y []float64) float64 {
	r := stat.Correlation(x, y, nil)
	if math.IsNaN(r) {
		return 0
	}
	return math.Abs(r)
}

// toggle adds j to a sorted set, or removes it when present.
func toggle(set []int, j int) []int {
	out := make([]int, 0, len(set)+1)
	found := false
	for _, i := range set {
		if i == j {
			found = true
			continue
		}
		out = append(out, i)
	}
	if !found {
		out = append(out, j)
		sort.Ints(out)
	}
	return out
}

func subsetKey(set []int) string {
	parts := make([]string, len(set))
	for i, j := range set {
		parts[i] = strconv.Itoa(j)
	}
	return strings.Join(parts, ",")
}
