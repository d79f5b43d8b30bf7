package optimizer

import (
	"math"
	"sort"
)

// Performance indicators for Pareto-front quality. Fronts are passed as
// raw objective vectors under maximize-is-better semantics. GD and IGD
// need a reference front and are mainly used for benchmarking; spacing
// and hypervolume work on the obtained front alone.

// GenerationalDistance is the mean Euclidean distance from each obtained
// point to its nearest reference point. Lower is better.
func GenerationalDistance(front, reference [][]float64) float64 {
	if len(front) == 0 || len(reference) == 0 {
		return 0
	}
	var sum float64
	for _, p := range front {
		sum += nearestDistance(p, reference)
	}
	return sum / float64(len(front))
}

// InvertedGenerationalDistance measures coverage of the reference front
// by the obtained front. Lower is better.
func InvertedGenerationalDistance(front, reference [][]float64) float64 {
	return GenerationalDistance(reference, front)
}

// Spacing is the standard deviation of nearest-neighbor distances within
// a front; lower indicates more uniform coverage.
func Spacing(front [][]float64) float64 {
	if len(front) < 2 {
		return 0
	}
	dists := make([]float64, len(front))
	for i, p := range front {
		nearest := math.Inf(1)
		for j, q := range front {
			if i == j {
				continue
			}
			if d := euclidean(p, q); d < nearest {
				nearest = d
			}
		}
		dists[i] = nearest
	}
	var mean float64
	for _, d := range dists {
		mean += d
	}
	mean /= float64(len(dists))
	var variance float64
	for _, d := range dists {
		variance += (d - mean) * (d - mean)
	}
	return math.Sqrt(variance / float64(len(dists)))
}

// Hypervolume is the volume of objective space dominated by the front
// relative to a reference point that every front point must dominate.
// Exact for one and two objectives; higher dimensions use a recursive
// slicing sweep over the first objective, which matches the simplified
// scheme this indicator has always used rather than a full WFG
// implementation.
func Hypervolume(front [][]float64, reference []float64) float64 {
	points := make([][]float64, 0, len(front))
	for _, p := range front {
		if dominatesPoint(p, reference) {
			points = append(points, p)
		}
	}
	if len(points) == 0 {
		return 0
	}
	points = nonDominatedPoints(points)

	switch len(reference) {
	case 1:
		best := math.Inf(-1)
		for _, p := range points {
			if p[0] > best {
				best = p[0]
			}
		}
		return best - reference[0]
	case 2:
		return hypervolume2D(points, reference)
	default:
		return hypervolumeSweep(points, reference)
	}
}

// hypervolume2D sweeps the front sorted by the first objective
// descending, accumulating the staircase area.
func hypervolume2D(points [][]float64, reference []float64) float64 {
	sorted := make([][]float64, len(points))
	copy(sorted, points)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i][0] > sorted[j][0]
	})
	var volume float64
	prev := reference[1]
	for _, p := range sorted {
		if p[1] <= prev {
			continue
		}
		volume += (p[0] - reference[0]) * (p[1] - prev)
		prev = p[1]
	}
	return volume
}

// hypervolumeSweep slices along the first objective and recurses on the
// projection of the accumulated points.
func hypervolumeSweep(points [][]float64, reference []float64) float64 {
	sorted := make([][]float64, len(points))
	copy(sorted, points)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i][0] > sorted[j][0]
	})

	var volume float64
	for i, p := range sorted {
		lower := reference[0]
		if i+1 < len(sorted) {
			lower = sorted[i+1][0]
		}
		width := p[0] - lower
		if width <= 0 {
			continue
		}
		slab := make([][]float64, 0, i+1)
		for _, q := range sorted[:i+1] {
			slab = append(slab, q[1:])
		}
		volume += width * Hypervolume(slab, reference[1:])
	}
	return volume
}

func nearestDistance(p []float64, set [][]float64) float64 {
	nearest := math.Inf(1)
	for _, q := range set {
		if d := euclidean(p, q); d < nearest {
			nearest = d
		}
	}
	return nearest
}

func euclidean(a, b []float64) float64 {
	var sum float64
	for i := range a {
		d := a[i] - b[i]
		sum += d * d
	}
	return math.Sqrt(sum)
}

// dominatesPoint reports p strictly better than reference in every
// objective; only such points contribute dominated volume.
func dominatesPoint(p, reference []float64) bool {
	for i := range p {
		if p[i] <= reference[i] {
			return false
		}
	}
	return true
}

func nonDominatedPoints(points [][]float64) [][]float64 {
	var out [][]float64
	for i, p := range points {
		dominated := false
		for j, q := range points {
			if i != j && Dominates(q, p) {
				dominated = true
				break
			}
		}
		if !dominated {
			out = append(out, p)
		}
	}
	return out
}
