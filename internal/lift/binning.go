package lift

import (
	"math"
	"sort"

	"github.com/montanaflynn/stats"
	"gonum.org/v1/gonum/floats"

	"goglm/domain/dataset"
)

// Binning selects how wide numeric variables are grouped
type Binning string

const (
	BinningEqualWidth Binning = "equal_width"
	BinningQuantile   Binning = "quantile"
)

// OthersLabel groups the categorical levels beyond MaxLevels-1
const OthersLabel = "Others"

// grouping maps each row value to a labelled group, in display order
type grouping struct {
	labels []string
	index  []int
	points []float64
	edges  []float64
	// levels maps every categorical level, folded ones included, to its group
	levels map[string]int
}

// locate returns the group a numeric value falls in: its bin, or the nearest natural value
func (g grouping) locate(x float64) int {
	switch {
	case g.edges != nil:
		return edgeBin(g.edges, x)
	case len(g.points) > 0:
		return nearest(g.points, x)
	}
	return -1
}

// groupCategorical orders levels lexicographically. With maxLevels > 1 and more levels than
// that, the maxLevels-1 heaviest levels are kept and the rest fold into a trailing Others group.
func groupCategorical(values []string, weights []float64, maxLevels int) grouping {
	exposure := make(map[string]float64)
	for i, v := range values {
		exposure[v] += weights[i]
	}
	levels := make([]string, 0, len(exposure))
	for level := range exposure {
		levels = append(levels, level)
	}
	sort.Strings(levels)

	kept := levels
	folded := false
	if maxLevels > 1 && len(levels) > maxLevels {
		byWeight := append([]string(nil), levels...)
		sort.SliceStable(byWeight, func(a, b int) bool {
			return exposure[byWeight[a]] > exposure[byWeight[b]]
		})
		kept = byWeight[:maxLevels-1]
		sort.Strings(kept)
		folded = true
	}

	position := make(map[string]int, len(levels))
	labels := make([]string, 0, len(kept)+1)
	for i, level := range kept {
		position[level] = i
		labels = append(labels, level)
	}
	others := len(kept)
	if folded {
		labels = append(labels, OthersLabel)
	}

	g := grouping{labels: labels, index: make([]int, len(values)), levels: make(map[string]int, len(levels))}
	for _, level := range levels {
		p, ok := position[level]
		if !ok {
			p = others
		}
		g.levels[level] = p
	}
	for i, v := range values {
		g.index[i] = g.levels[v]
	}
	return g
}

// groupNumeric keeps natural values when there are at most maxBins distinct ones, otherwise
// bins them equal-width or by quantile, labelling each bin by its midpoint.
func groupNumeric(xs []float64, maxBins int, binning Binning) (grouping, error) {
	distinct := distinctSorted(xs)
	if maxBins < 1 || len(distinct) <= maxBins {
		position := make(map[float64]int, len(distinct))
		labels := make([]string, len(distinct))
		for i, x := range distinct {
			position[x] = i
			labels[i] = dataset.FormatNumber(x)
		}
		g := grouping{labels: labels, index: make([]int, len(xs)), points: distinct}
		for i, x := range xs {
			g.index[i] = position[x]
		}
		return g, nil
	}

	lo, hi := floats.Min(xs), floats.Max(xs)
	var edges []float64
	if binning == BinningQuantile {
		cuts, err := quantileCuts(xs, maxBins)
		if err != nil {
			return grouping{}, err
		}
		edges = append(append([]float64{lo}, cuts...), hi)
	} else {
		edges = floats.Span(make([]float64, maxBins+1), lo, hi)
	}

	bins := len(edges) - 1
	labels := make([]string, bins)
	for b := 0; b < bins; b++ {
		labels[b] = dataset.FormatNumber((edges[b] + edges[b+1]) / 2)
	}

	g := grouping{labels: labels, index: make([]int, len(xs)), edges: edges}
	for i, x := range xs {
		g.index[i] = edgeBin(edges, x)
	}
	return g, nil
}

// edgeBin places x in the bin (edges[b], edges[b+1]]; the lowest edge belongs to bin 0
func edgeBin(edges []float64, x float64) int {
	b := sort.SearchFloat64s(edges[1:], x)
	if b > len(edges)-2 {
		b = len(edges) - 2
	}
	return b
}

// quantileCuts returns the distinct interior cut points splitting xs into n groups
func quantileCuts(xs []float64, n int) ([]float64, error) {
	data := stats.Float64Data(xs)
	lo, hi := floats.Min(xs), floats.Max(xs)
	var cuts []float64
	for k := 1; k < n; k++ {
		p, err := data.Percentile(100 * float64(k) / float64(n))
		if err != nil {
			return nil, err
		}
		if p <= lo || p >= hi {
			continue
		}
		if len(cuts) > 0 && p <= cuts[len(cuts)-1] {
			continue
		}
		cuts = append(cuts, p)
	}
	return cuts, nil
}

// nearest finds the closest point in an ascending slice; ties go to the lower point
func nearest(points []float64, x float64) int {
	i := sort.SearchFloat64s(points, x)
	switch {
	case i == 0:
		return 0
	case i == len(points):
		return len(points) - 1
	case points[i]-x < x-points[i-1]:
		return i
	default:
		return i - 1
	}
}

func distinctSorted(xs []float64) []float64 {
	seen := make(map[float64]bool, len(xs))
	var out []float64
	for _, x := range xs {
		if math.IsNaN(x) || seen[x] {
			continue
		}
		seen[x] = true
		out = append(out, x)
	}
	sort.Float64s(out)
	return out
}
