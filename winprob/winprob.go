// Package winprob maps engine evaluations to a 0-100 win probability.
package winprob

import (
	"math"

	"puzzle-rater/position"
	"puzzle-rater/uci"
)

// DefaultK is the logistic slope mapping centipawns to win percentage.
// It was fit on rated games; see FitK to refit it.
const DefaultK = 0.00368208

// Model is the centipawn-to-win-percentage curve.
type Model struct {
	K float64
}

// Default returns the model with DefaultK.
func Default() Model {
	return Model{K: DefaultK}
}

// FromCentipawns converts a centipawn score from the perspective of the
// side we care about into a win percentage.
func (m Model) FromCentipawns(cp int) float64 {
	return 50 + 50*(2/(1+math.Exp(-m.K*float64(cp)))-1)
}

// Of converts an evaluation reported for a position where toMove is on
// move into a win percentage for pov. ok is false when the evaluation
// carries neither a score nor a mate.
func (m Model) Of(ev uci.Evaluation, toMove, pov position.Color) (pct float64, ok bool) {
	if !ev.HasVerdict() {
		return 0, false
	}
	if ev.Mate != nil {
		// Positive mate distance: the side to move mates. "mate 0" means
		// the side to move has already been mated.
		winner := toMove
		if *ev.Mate <= 0 {
			winner = toMove.Other()
		}
		if winner == pov {
			return 100, true
		}
		return 0, true
	}
	cp := *ev.Score
	if toMove != pov {
		cp = -cp
	}
	return m.FromCentipawns(cp), true
}

// Terminal scores a finished game for pov: the mated side has lost and a
// stalemate is even.
func (m Model) Terminal(status position.Status, toMove, pov position.Color) (pct float64, ok bool) {
	switch status {
	case position.Checkmate:
		if toMove == pov {
			return 0, true
		}
		return 100, true
	case position.Stalemate:
		return 50, true
	}
	return 0, false
}
