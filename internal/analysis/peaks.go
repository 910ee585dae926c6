package analysis

import "sort"

// FindPeaks returns the indices of local maxima in values, in index order.
//
// A sample is a candidate when it is strictly greater than its left
// neighbour and the run of equal values it starts is followed by a strictly
// smaller value; for flat tops the middle index (rounded down) is reported.
// The first and last samples are never candidates. Candidates below
// minHeight are dropped. Then, visiting candidates from highest to lowest,
// each kept peak removes every remaining candidate less than distance
// indices away. Among equal heights the later index is visited first.
func FindPeaks(values []float64, distance int, minHeight float64) []int {
	peaks := localMaxima(values)

	kept := peaks[:0]
	for _, p := range peaks {
		if values[p] >= minHeight {
			kept = append(kept, p)
		}
	}
	peaks = kept

	if distance > 1 && len(peaks) > 1 {
		peaks = selectByDistance(values, peaks, distance)
	}
	return peaks
}

func localMaxima(x []float64) []int {
	var peaks []int
	n := len(x)
	i := 1
	for i < n-1 {
		if x[i-1] < x[i] {
			ahead := i + 1
			for ahead < n-1 && x[ahead] == x[i] {
				ahead++
			}
			if x[ahead] < x[i] {
				left, right := i, ahead-1
				peaks = append(peaks, (left+right)/2)
				i = ahead
				continue
			}
		}
		i++
	}
	return peaks
}

func selectByDistance(x []float64, peaks []int, distance int) []int {
	n := len(peaks)
	keep := make([]bool, n)
	for i := range keep {
		keep[i] = true
	}

	order := make([]int, n)
	for i := range order {
		order[i] = i
	}
	sort.SliceStable(order, func(a, b int) bool {
		return x[peaks[order[a]]] < x[peaks[order[b]]]
	})

	for i := n - 1; i >= 0; i-- {
		j := order[i]
		if !keep[j] {
			continue
		}
		for k := j - 1; k >= 0 && peaks[j]-peaks[k] < distance; k-- {
			keep[k] = false
		}
		for k := j + 1; k < n && peaks[k]-peaks[j] < distance; k++ {
			keep[k] = false
		}
	}

	out := make([]int, 0, n)
	for i, p := range peaks {
		if keep[i] {
			out = append(out, p)
		}
	}
	return out
}
