package winprob

import (
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"

	"gonum.org/v1/gonum/optimize"
)

// Sample is one observed game: the evaluation in centipawns from one
// side's point of view and that side's result in [0, 1].
type Sample struct {
	Centipawns float64
	Result     float64
}

// ParseResult accepts PGN-style results ("1-0", "0-1", "1/2-1/2") or a
// plain number in [0, 1].
func ParseResult(s string) (float64, error) {
	switch strings.TrimSpace(s) {
	case "1-0":
		return 1.0, nil
	case "0-1":
		return 0.0, nil
	case "1/2-1/2", "1/2", "0.5":
		return 0.5, nil
	}
	f, err := strconv.ParseFloat(strings.TrimSpace(s), 64)
	if err != nil {
		return 0, fmt.Errorf("cannot parse result: %q", s)
	}
	if f < 0 || f > 1 {
		return 0, fmt.Errorf("result out of [0,1]: %v", f)
	}
	return f, nil
}

func sigmoid(k, cp float64) float64 {
	z := k * cp
	if z > 40 {
		return 1
	}
	if z < -40 {
		return 0
	}
	return 1 / (1 + math.Exp(-z))
}

// Loss is the mean squared error of the model's expected score against the
// samples.
func Loss(k float64, samples []Sample) float64 {
	if len(samples) == 0 {
		return 0
	}
	sum := 0.0
	for _, s := range samples {
		d := sigmoid(k, s.Centipawns) - s.Result
		sum += d * d
	}
	return sum / float64(len(samples))
}

// FitK refines the logistic slope starting at k0 by minimizing Loss.
func FitK(samples []Sample, k0 float64) (Model, error) {
	if len(samples) == 0 {
		return Model{}, errors.New("no samples")
	}
	if k0 <= 0 {
		k0 = DefaultK
	}
	// Optimize in units of k0 so the simplex steps are well scaled.
	p := optimize.Problem{
		Func: func(x []float64) float64 {
			return Loss(x[0]*k0, samples)
		},
	}
	res, err := optimize.Minimize(p, []float64{1}, nil, &optimize.NelderMead{})
	if err != nil {
		return Model{}, err
	}
	k := res.X[0] * k0
	if k <= 0 || math.IsNaN(k) {
		return Model{}, fmt.Errorf("fit diverged: k=%v", k)
	}
	return Model{K: k}, nil
}
