// Package survival measures how well a position's advantage holds up when a
// weak engine picks the defender's moves and a strong engine answers them.
package survival

import (
	"errors"
	"fmt"

	"github.com/rs/zerolog/log"

	"puzzle-rater/position"
	"puzzle-rater/uci"
	"puzzle-rater/winprob"
)

// Evaluator is the strong side of the search.
type Evaluator interface {
	EvaluateBest(fen string, depth int) (uci.Evaluation, error)
}

// MoveSuggester is a skill tier: it proposes the moves a player of that
// strength would consider.
type MoveSuggester interface {
	TopMoves(fen string, count int) ([]string, error)
}

type Config struct {
	// Depth is the strong engine's search depth for every query.
	Depth int
	// Candidates is how many moves the weak engine proposes per defender
	// turn.
	Candidates int
	// MovesToSurvive is the number of defender moves in each line. Every
	// defender move but the last is answered by the strong engine.
	MovesToSurvive int
	// DropThreshold is the largest loss of win percentage, exclusive,
	// that still counts as holding the position.
	DropThreshold float64
}

func DefaultConfig() Config {
	return Config{
		Depth:          11,
		Candidates:     1,
		MovesToSurvive: 2,
		DropThreshold:  40,
	}
}

func (c Config) Validate() error {
	switch {
	case c.Depth < 1:
		return fmt.Errorf("depth must be positive, got %d", c.Depth)
	case c.Candidates < 1:
		return fmt.Errorf("candidates must be positive, got %d", c.Candidates)
	case c.MovesToSurvive < 1:
		return fmt.Errorf("moves to survive must be positive, got %d", c.MovesToSurvive)
	case c.DropThreshold <= 0:
		return fmt.Errorf("drop threshold must be positive, got %v", c.DropThreshold)
	}
	return nil
}

// MaxOutcomes is the most lines a single tier can produce.
func (c Config) MaxOutcomes() int {
	n := 1
	for i := 0; i < c.MovesToSurvive; i++ {
		n *= c.Candidates
	}
	return n
}

// Outcome is one tier's verdicts, one per explored line, in exploration
// order.
type Outcome struct {
	Tier string `yaml:"tier"`
	Held []bool `yaml:"held"`
}

// Holds counts the true verdicts.
func (o Outcome) Holds() int {
	n := 0
	for _, h := range o.Held {
		if h {
			n++
		}
	}
	return n
}

var ErrNoPosition = errors.New("survival: nil position")

type Searcher struct {
	strong Evaluator
	model  winprob.Model
	cfg    Config
}

func NewSearcher(strong Evaluator, model winprob.Model, cfg Config) *Searcher {
	return &Searcher{strong: strong, model: model, cfg: cfg}
}

func (s *Searcher) Config() Config { return s.cfg }

// Initial evaluates pos with the strong engine and converts the result to
// pov's win percentage. ok is false when the engine gave no verdict.
func (s *Searcher) Initial(pos *position.Position, pov position.Color) (pct float64, ok bool, ev uci.Evaluation, err error) {
	if pos == nil {
		return 0, false, ev, ErrNoPosition
	}
	ev, err = s.strong.EvaluateBest(pos.FEN(), s.cfg.Depth)
	if err != nil {
		return 0, false, ev, fmt.Errorf("initial evaluation: %w", err)
	}
	pct, ok = s.model.Of(ev, pos.SideToMove(), pov)
	return pct, ok, ev, nil
}

// Run explores every line the tier proposes from pos. Per-line problems
// (illegal suggestions, missing replies, undefined evaluations) become
// false verdicts; only engine failures are returned as errors.
func (s *Searcher) Run(tier string, weak MoveSuggester, pos *position.Position, pov position.Color, initial float64, initialOK bool) (Outcome, error) {
	out := Outcome{Tier: tier}
	if pos == nil {
		return out, ErrNoPosition
	}
	if !initialOK {
		// Nothing to compare against: every line of the full tree fails
		// without spending engine time on it.
		out.Held = make([]bool, s.cfg.MaxOutcomes())
		log.Debug().Str("tier", tier).Int("lines", len(out.Held)).Msg("survival: no initial evaluation")
		return out, nil
	}
	l := line{s: s, weak: weak, pov: pov, initial: initial}
	if err := l.defend(pos, s.cfg.MovesToSurvive, &out.Held); err != nil {
		return out, fmt.Errorf("tier %s: %w", tier, err)
	}
	log.Debug().Str("tier", tier).Int("lines", len(out.Held)).Int("held", out.Holds()).Msg("survival")
	return out, nil
}

// line carries the fixed inputs of one tier's exploration.
type line struct {
	s       *Searcher
	weak    MoveSuggester
	pov     position.Color
	initial float64
}

// holds is the leaf comparison.
func (l *line) holds(final float64, ok bool) bool {
	if !ok {
		return false
	}
	return l.initial-final < l.s.cfg.DropThreshold
}

// terminal scores a finished game instead of asking the engine about it.
func (l *line) terminal(pos *position.Position) (bool, bool) {
	st := pos.Status()
	if st == position.Ongoing {
		return false, false
	}
	pct, ok := l.s.model.Terminal(st, pos.SideToMove(), l.pov)
	return l.holds(pct, ok), true
}

func (l *line) defend(pos *position.Position, left int, held *[]bool) error {
	fen := pos.FEN()
	cands, err := l.weak.TopMoves(fen, l.s.cfg.Candidates)
	if err != nil {
		return fmt.Errorf("top moves: %w", err)
	}
	for _, mv := range cands {
		next, err := pos.Apply(mv)
		if err != nil {
			log.Debug().Str("fen", fen).Str("move", mv).Msg("weak move rejected")
			*held = append(*held, false)
			continue
		}
		if v, done := l.terminal(next); done {
			*held = append(*held, v)
			continue
		}
		if left <= 1 {
			v, err := l.leaf(next)
			if err != nil {
				return err
			}
			*held = append(*held, v)
			continue
		}
		after, ok, err := l.reply(next)
		if err != nil {
			return err
		}
		if !ok {
			*held = append(*held, false)
			continue
		}
		if v, done := l.terminal(after); done {
			*held = append(*held, v)
			continue
		}
		if err := l.defend(after, left-1, held); err != nil {
			return err
		}
	}
	return nil
}

// leaf is the final strong evaluation of a line.
func (l *line) leaf(pos *position.Position) (bool, error) {
	ev, err := l.s.strong.EvaluateBest(pos.FEN(), l.s.cfg.Depth)
	if err != nil {
		return false, fmt.Errorf("final evaluation: %w", err)
	}
	pct, ok := l.s.model.Of(ev, pos.SideToMove(), l.pov)
	return l.holds(pct, ok), nil
}

// reply plays the strong engine's answer. ok is false when the line is lost
// already: a forced mate against pov, or no usable reply.
func (l *line) reply(pos *position.Position) (*position.Position, bool, error) {
	ev, err := l.s.strong.EvaluateBest(pos.FEN(), l.s.cfg.Depth)
	if err != nil {
		return nil, false, fmt.Errorf("strong reply: %w", err)
	}
	if ev.Mate != nil {
		if pct, _ := l.s.model.Of(ev, pos.SideToMove(), l.pov); pct == 0 {
			return nil, false, nil
		}
	}
	if ev.BestMove == "" {
		return nil, false, nil
	}
	after, err := pos.Apply(ev.BestMove)
	if err != nil {
		log.Debug().Str("fen", pos.FEN()).Str("move", ev.BestMove).Msg("strong reply rejected")
		return nil, false, nil
	}
	return after, true, nil
}
