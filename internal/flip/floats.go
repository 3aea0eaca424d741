package flip

import "math"

// Column aggregations skip NaN the way the rest of the engine expects:
// a sum over no valid values is 0, a mean over no valid values is NaN.

func nanSum(xs []float64) float64 {
	var sum float64
	for _, x := range xs {
		if !math.IsNaN(x) {
			sum += x
		}
	}
	return sum
}

func nanMean(xs []float64) float64 {
	var sum float64
	var n int
	for _, x := range xs {
		if !math.IsNaN(x) {
			sum += x
			n++
		}
	}
	if n == 0 {
		return math.NaN()
	}
	return sum / float64(n)
}

// tail returns the last n elements, or all of them when fewer exist.
func tail(xs []float64, n int) []float64 {
	if len(xs) <= n {
		return xs
	}
	return xs[len(xs)-n:]
}

// Finite returns a pointer to f, or nil when f is NaN or infinite. Boundary
// serializers use it to turn degenerate scalars into JSON null.
func Finite(f float64) *float64 {
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return nil
	}
	return &f
}
