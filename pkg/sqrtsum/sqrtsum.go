// Package sqrtsum compares several ways of computing sum(sqrt(x)) over a
// large vector: a plain loop, the gonum floats and mat packages, and a
// parallel reduction.
package sqrtsum

import (
	"context"
	"math"
	"runtime"

	"golang.org/x/sync/errgroup"
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"
)

// DefaultN is the default vector length.
const DefaultN = 5_000_000

// Loop sums square roots one element at a time.
func Loop(xs []float64) float64 {
	var sum float64
	for _, v := range xs {
		sum += math.Sqrt(v)
	}
	return sum
}

// Floats takes the square roots of a copy with floats and sums it.
func Floats(xs []float64) float64 {
	roots := make([]float64, len(xs))
	copy(roots, xs)
	for i, v := range roots {
		roots[i] = math.Sqrt(v)
	}
	return floats.Sum(roots)
}

// Dense applies sqrt elementwise to a matrix and sums the result.
func Dense(m *mat.Dense) float64 {
	var roots mat.Dense
	roots.Apply(func(_, _ int, v float64) float64 {
		return math.Sqrt(v)
	}, m)
	return mat.Sum(&roots)
}

// DenseFromSlice is Dense including the conversion of xs into a matrix.
func DenseFromSlice(xs []float64) float64 {
	if len(xs) == 0 {
		return 0
	}
	data := make([]float64, len(xs))
	copy(data, xs)
	return Dense(mat.NewDense(1, len(data), data))
}

// Parallel splits xs into chunks summed concurrently. workers <= 0 means
// GOMAXPROCS.
func Parallel(ctx context.Context, xs []float64, workers int) (float64, error) {
	if workers <= 0 {
		workers = runtime.GOMAXPROCS(0)
	}
	if workers > len(xs) {
		workers = len(xs)
	}
	if workers <= 1 {
		return Loop(xs), nil
	}

	partial := make([]float64, workers)
	chunk := (len(xs) + workers - 1) / workers

	g, ctx := errgroup.WithContext(ctx)
	for w := 0; w < workers; w++ {
		lo := w * chunk
		hi := min(lo+chunk, len(xs))
		if lo >= hi {
			break
		}
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			partial[w] = Loop(xs[lo:hi])
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return 0, err
	}
	return floats.Sum(partial), nil
}

// RelErr returns |a-b| / max(|a|, |b|), or 0 when both are zero. A NaN
// on either side is infinitely wrong.
func RelErr(a, b float64) float64 {
	if math.IsNaN(a) || math.IsNaN(b) {
		return math.Inf(1)
	}
	scale := math.Max(math.Abs(a), math.Abs(b))
	if scale == 0 {
		return 0
	}
	return math.Abs(a-b) / scale
}
