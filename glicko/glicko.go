// Package glicko folds skill-tier outcomes into a single puzzle rating with
// the Glicko-2 update.
package glicko

import (
	"errors"
	"math"
	"strconv"

	"golang.org/x/exp/slices"
)

const (
	scale  = 173.7178
	center = 1500.0
)

// Rating is a Glicko-2 player state on the display scale.
type Rating struct {
	Rating     float64
	Deviation  float64
	Volatility float64
}

// Match is one game against an opponent; Score is 1 for a win and 0 for a
// loss.
type Match struct {
	Rating    float64
	Deviation float64
	Score     float64
}

type Params struct {
	Base              Rating
	Tau               float64
	OpponentDeviation float64
	Epsilon           float64
}

func DefaultParams() Params {
	return Params{
		Base:              Rating{Rating: 1500, Deviation: 1000, Volatility: 0.1},
		Tau:               0.8,
		OpponentDeviation: 200,
		Epsilon:           1e-6,
	}
}

func g(phi float64) float64 {
	return 1 / math.Sqrt(1+3*phi*phi/(math.Pi*math.Pi))
}

func expected(mu, muj, phij float64) float64 {
	return 1 / (1 + math.Exp(-g(phij)*(mu-muj)))
}

// Update runs one rating period. With no matches only the deviation grows.
func Update(r Rating, matches []Match, tau, eps float64) Rating {
	mu := (r.Rating - center) / scale
	phi := r.Deviation / scale
	sigma := r.Volatility

	if len(matches) == 0 {
		return Rating{
			Rating:     r.Rating,
			Deviation:  math.Sqrt(phi*phi+sigma*sigma) * scale,
			Volatility: sigma,
		}
	}

	var vinv, sum float64
	for _, m := range matches {
		muj := (m.Rating - center) / scale
		phij := m.Deviation / scale
		gj := g(phij)
		e := expected(mu, muj, phij)
		vinv += gj * gj * e * (1 - e)
		sum += gj * (m.Score - e)
	}
	v := 1 / vinv
	delta := v * sum

	a := math.Log(sigma * sigma)
	f := func(x float64) float64 {
		ex := math.Exp(x)
		d := phi*phi + v + ex
		return ex*(delta*delta-phi*phi-v-ex)/(2*d*d) - (x-a)/(tau*tau)
	}
	lo, hi := VolatilityBounds(f, a, delta, phi, v, tau)
	x, _ := FindRoot(f, lo, hi, eps)
	sigmaNew := math.Exp(x / 2)

	phiStar := math.Sqrt(phi*phi + sigmaNew*sigmaNew)
	phiNew := 1 / math.Sqrt(1/(phiStar*phiStar)+1/v)
	muNew := mu + phiNew*phiNew*sum

	return Rating{
		Rating:     center + scale*muNew,
		Deviation:  scale * phiNew,
		Volatility: sigmaNew,
	}
}

// VolatilityBounds returns the initial bracket [A, B] for the volatility
// root of f.
func VolatilityBounds(f func(float64) float64, a, delta, phi, v, tau float64) (A, B float64) {
	A = a
	if d2 := delta * delta; d2 > phi*phi+v {
		return A, math.Log(d2 - phi*phi - v)
	}
	k := 1.0
	for f(a-k*tau) < 0 {
		k++
	}
	return A, a - k*tau
}

var ErrNoSignChange = errors.New("glicko: root not bracketed")

// FindRoot locates a zero of f between a and b with the Illinois variant
// of regula falsi, stopping once the bracket is narrower than eps. The
// returned error reports a bracket without a sign change; the estimate is
// still the best endpoint found.
func FindRoot(f func(float64) float64, a, b, eps float64) (float64, error) {
	fa, fb := f(a), f(b)
	if fa == 0 {
		return a, nil
	}
	if fb == 0 {
		return b, nil
	}
	var err error
	if fa*fb > 0 {
		err = ErrNoSignChange
	}
	for i := 0; math.Abs(b-a) > eps && i < 1000; i++ {
		c := a + (a-b)*fa/(fb-fa)
		fc := f(c)
		if fc*fb <= 0 {
			a, fa = b, fb
		} else {
			fa /= 2
		}
		b, fb = c, fc
		if fb == 0 {
			return b, err
		}
	}
	return a, err
}

// Matches turns tier outcomes into games against each tier's numeric
// label. Labels that are not numbers are skipped. Tiers are visited in
// sorted label order so the match list is reproducible.
func Matches(outcomes map[string][]bool, opponentDeviation float64) []Match {
	labels := make([]string, 0, len(outcomes))
	for l := range outcomes {
		labels = append(labels, l)
	}
	slices.Sort(labels)

	var ms []Match
	for _, l := range labels {
		r, err := strconv.ParseFloat(l, 64)
		if err != nil || math.IsNaN(r) || math.IsInf(r, 0) {
			continue
		}
		for _, held := range outcomes[l] {
			s := 0.0
			if held {
				s = 1
			}
			ms = append(ms, Match{Rating: r, Deviation: opponentDeviation, Score: s})
		}
	}
	return ms
}

// PuzzleRating is the rounded rating after one period against every
// recorded outcome.
func PuzzleRating(outcomes map[string][]bool, p Params) int {
	r := Update(p.Base, Matches(outcomes, p.OpponentDeviation), p.Tau, p.Epsilon)
	return int(math.RoundToEven(r.Rating))
}
