package flip

import (
	"math"
	"time"
)

// Sampling points along the row-ordered history and their weights: recent
// movement dominates, with a small anchor near the start of the window.
var (
	defaultPositionsPct = []float64{0.01, 0.5, 0.75}
	defaultWeights      = []float64{0.2, 0.3, 0.5}
)

// recentWindow is the number of most recent rows averaged into the reference
// value (about two minutes of 20-second samples).
const recentWindow = 6

// weightedRateOfChange estimates the fractional-per-minute drift of a column.
// For each fractional position it compares the value there against the mean
// of the most recent rows, normalized by the value and the elapsed minutes.
// Degenerate positions (non-positive value or elapsed time) contribute a zero
// rate; if no position can contribute at all the result is NaN. A stable
// column with usable positions yields a rate of zero, not NaN.
func weightedRateOfChange(values []float64, times []time.Time, positionsPct, weights []float64, window int) float64 {
	n := len(values)
	if n == 0 || len(times) != n {
		return math.NaN()
	}

	recent := nanMean(tail(values, window))
	last := times[n-1]

	rates := make([]float64, len(positionsPct))
	usable := false
	for i, pct := range positionsPct {
		pos := int(float64(n) * pct)
		if pos >= n {
			pos = n - 1
		}

		value := values[pos]
		minutes := last.Sub(times[pos]).Minutes()

		if value > 0 && minutes > 0 {
			rates[i] = (recent - value) / (value * minutes)
			usable = true
		}
	}

	if !usable {
		return math.NaN()
	}

	var num, den float64
	for i, r := range rates {
		num += r * weights[i]
		den += weights[i]
	}
	return num / den
}
