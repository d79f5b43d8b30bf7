package optimizer

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestGenerationalDistance(t *testing.T) {
	// Single obtained point at distance 5 from the only reference point.
	front := [][]float64{{0, 0}}
	reference := [][]float64{{3, 4}}
	assert.InDelta(t, 5.0, GenerationalDistance(front, reference), 1e-12)

	// A front sitting on the reference scores zero.
	assert.Zero(t, GenerationalDistance(reference, reference))

	assert.Zero(t, GenerationalDistance(nil, reference))
	assert.Zero(t, GenerationalDistance(front, nil))
}

func TestInvertedGenerationalDistance(t *testing.T) {
	front := [][]float64{{0, 0}, {10, 10}}
	reference := [][]float64{{0, 0}, {5, 5}, {10, 10}}

	// Every reference point's nearest obtained point: 0, sqrt(50), 0.
	want := (0 + 7.0710678118654755 + 0) / 3
	assert.InDelta(t, want, InvertedGenerationalDistance(front, reference), 1e-9)
}

func TestSpacing(t *testing.T) {
	// Evenly spaced collinear points have identical nearest-neighbor
	// distances, so spacing is zero.
	uniform := [][]float64{{0, 0}, {1, 1}, {2, 2}, {3, 3}}
	assert.InDelta(t, 0, Spacing(uniform), 1e-12)

	// Bunching two points must raise the spread.
	clumped := [][]float64{{0, 0}, {0.1, 0.1}, {2, 2}, {3, 3}}
	assert.Greater(t, Spacing(clumped), 0.0)

	assert.Zero(t, Spacing([][]float64{{1, 2}}))
}

func TestHypervolume1D(t *testing.T) {
	front := [][]float64{{2}, {5}, {3}}
	assert.Equal(t, 4.0, Hypervolume(front, []float64{1}))
}

func TestHypervolume2DHandComputed(t *testing.T) {
	front := [][]float64{{1, 5}, {3, 3}, {5, 1}}
	reference := []float64{0, 0}

	// Staircase area: 5*1 + 3*2 + 1*2 = 13.
	assert.InDelta(t, 13.0, Hypervolume(front, reference), 1e-9)
}

func TestHypervolumeIgnoresDominatedPoints(t *testing.T) {
	front := [][]float64{{1, 5}, {3, 3}, {5, 1}}
	withDominated := append(append([][]float64{}, front...), []float64{2, 2})
	reference := []float64{0, 0}

	assert.InDelta(t, Hypervolume(front, reference), Hypervolume(withDominated, reference), 1e-9)
}

func TestHypervolumeDropsPointsOutsideReference(t *testing.T) {
	// A point not strictly dominating the reference contributes nothing.
	front := [][]float64{{5, -1}}
	assert.Zero(t, Hypervolume(front, []float64{0, 0}))

	mixed := [][]float64{{5, -1}, {2, 2}}
	assert.InDelta(t, 4.0, Hypervolume(mixed, []float64{0, 0}), 1e-9)
}

func TestHypervolume3DBox(t *testing.T) {
	// A single point spans an axis-aligned box against the reference.
	front := [][]float64{{2, 3, 4}}
	assert.InDelta(t, 24.0, Hypervolume(front, []float64{0, 0, 0}), 1e-9)
}

func TestHypervolume3DTwoBoxes(t *testing.T) {
	// Union of a 2x2x1 box and a 1x1x2 box sharing a 1x1x1 corner:
	// 4 + 2 - 1 = 5.
	front := [][]float64{{2, 2, 1}, {1, 1, 2}}
	assert.InDelta(t, 5.0, Hypervolume(front, []float64{0, 0, 0}), 1e-9)
}
