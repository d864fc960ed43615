package common

import (
	"math"
	"sort"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"
)

// Basic statistical helpers shared by the beat and onset algorithms, backed by gonum

// Mean calculates the arithmetic mean of a slice using gonum
func Mean(data []float64) float64 {
	if len(data) == 0 {
		return 0.0
	}
	return stat.Mean(data, nil)
}

// StandardDeviation calculates the sample standard deviation (n-1 denominator)
func StandardDeviation(data []float64) float64 {
	if len(data) < 2 {
		return 0.0
	}
	return stat.StdDev(data, nil)
}

// Median returns the median of data without modifying it
func Median(data []float64) float64 {
	if len(data) == 0 {
		return math.NaN()
	}

	sorted := make([]float64, len(data))
	copy(sorted, data)
	sort.Float64s(sorted)

	mid := len(sorted) / 2
	if len(sorted)%2 == 0 {
		return (sorted[mid-1] + sorted[mid]) / 2
	}
	return sorted[mid]
}

// RMS calculates root mean square
func RMS(data []float64) float64 {
	if len(data) == 0 {
		return 0.0
	}

	sumSquares := 0.0
	for _, val := range data {
		sumSquares += val * val
	}

	return math.Sqrt(sumSquares / float64(len(data)))
}

// ArgMax returns the index of the first maximum, or -1 for an empty slice
func ArgMax(data []float64) int {
	if len(data) == 0 {
		return -1
	}
	return floats.MaxIdx(data)
}

// AnyPositive reports whether any element is strictly greater than zero
func AnyPositive(data []float64) bool {
	for _, v := range data {
		if v > 0 {
			return true
		}
	}
	return false
}

// LocalMax marks x[i] > x[i-1] && x[i] >= x[i+1], with the edges padded by
// their own value (so index 0 is never a local maximum).
func LocalMax(data []float64) []bool {
	maxes := make([]bool, len(data))
	for i := range data {
		left := data[max(i-1, 0)]
		right := data[min(i+1, len(data)-1)]
		maxes[i] = data[i] > left && data[i] >= right
	}
	return maxes
}
