package optimizer

import (
	"math/rand"
	"testing"

	"unicorn/internal/testutils"
)

func BenchmarkRepair(b *testing.B) {
	space := testSpace()
	rng := rand.New(rand.NewSource(1))
	individuals := make([]Individual, 64)
	for i := range individuals {
		individuals[i] = Individual{
			"ma_period":   rng.Float64() * 100,
			"stop_loss":   rng.Float64(),
			"take_profit": rng.Float64(),
		}
	}

	tracker := testutils.StartBenchmark(b)
	for i := 0; i < b.N; i++ {
		space.Repair(individuals[i%len(individuals)])
	}
	tracker.Finish()
}

func BenchmarkNonDominatedSort(b *testing.B) {
	rng := rand.New(rand.NewSource(1))
	population := make([]*Evaluated, 200)
	for i := range population {
		population[i] = &Evaluated{
			Objectives: []float64{rng.Float64(), rng.Float64(), rng.Float64()},
		}
	}

	tracker := testutils.StartBenchmark(b)
	for i := 0; i < b.N; i++ {
		NonDominatedSort(population)
	}
	tracker.Finish()
}

func BenchmarkHypervolume2D(b *testing.B) {
	rng := rand.New(rand.NewSource(1))
	front := make([][]float64, 100)
	for i := range front {
		front[i] = []float64{rng.Float64() * 10, rng.Float64() * 10}
	}
	reference := []float64{0, 0}

	tracker := testutils.StartBenchmark(b)
	for i := 0; i < b.N; i++ {
		Hypervolume(front, reference)
	}
	tracker.Finish()
}
