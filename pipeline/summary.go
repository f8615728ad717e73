package pipeline

import (
	"io"

	"github.com/aybabtme/uniplot/histogram"
	"lukechampine.com/frand"
)

// Histogram draws the distribution of the run's ratings.
func (s Summary) Histogram(w io.Writer, bins, width int) error {
	if len(s.Ratings) == 0 {
		return nil
	}
	h := histogram.Hist(bins, s.Ratings)
	return histogram.Fprint(w, h, histogram.Linear(width))
}

// Sample returns n positions picked at random, in their original order.
// A non-positive n or one covering the whole list returns fens unchanged.
func Sample(fens []string, n int) []string {
	if n <= 0 || n >= len(fens) {
		return fens
	}
	idx := make([]int, len(fens))
	for i := range idx {
		idx[i] = i
	}
	frand.Shuffle(len(idx), func(i, j int) { idx[i], idx[j] = idx[j], idx[i] })
	keep := make([]bool, len(fens))
	for _, i := range idx[:n] {
		keep[i] = true
	}
	out := make([]string, 0, n)
	for i, f := range fens {
		if keep[i] {
			out = append(out, f)
		}
	}
	return out
}
