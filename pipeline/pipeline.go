// Package pipeline rates a list of puzzle positions: it screens each one
// with the strong engine, runs the survival search for every tier, folds
// the outcomes into a rating and stores it.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"io"
	"math"

	"github.com/rs/zerolog/log"
	"gonum.org/v1/gonum/stat"
	"gopkg.in/yaml.v3"

	"puzzle-rater/glicko"
	"puzzle-rater/position"
	"puzzle-rater/results"
	"puzzle-rater/survival"
	"puzzle-rater/winprob"
)

var (
	// ErrScreened marks a position the defender is already losing, or one
	// where the game is over.
	ErrScreened = errors.New("position screened out")
)

// Tier is one skill level taking part in a run.
type Tier struct {
	Label string
	Weak  survival.MoveSuggester
}

type Options struct {
	Search survival.Config
	Model  winprob.Model
	Rating glicko.Params
	// ScreenCentipawns skips positions whose evaluation for the side to
	// move is below its negation.
	ScreenCentipawns int
	// OutcomeLog, when set, receives a YAML list item per rated position.
	OutcomeLog io.Writer
	// Done holds positions rated by an earlier run; they are skipped.
	Done map[string]int
}

type Pipeline struct {
	tiers    []Tier
	store    results.Store
	opts     Options
	searcher *survival.Searcher
}

func New(strong survival.Evaluator, tiers []Tier, store results.Store, opts Options) *Pipeline {
	return &Pipeline{
		tiers:    tiers,
		store:    store,
		opts:     opts,
		searcher: survival.NewSearcher(strong, opts.Model, opts.Search),
	}
}

// Rating is the result for one position.
type Rating struct {
	FEN      string             `yaml:"fen"`
	Rating   int                `yaml:"rating"`
	Initial  float64            `yaml:"initial_win_pct"`
	BestMove string             `yaml:"best_move,omitempty"` // SAN
	Outcomes []survival.Outcome `yaml:"tiers"`
}

// RatePosition runs the whole procedure for one FEN without storing the
// result. Invalid FENs return an error wrapping position.ErrInvalidFEN and
// screened positions one wrapping ErrScreened; any other error comes from
// an engine.
func (p *Pipeline) RatePosition(fen string) (Rating, error) {
	r := Rating{FEN: fen}
	pos, err := position.Parse(fen)
	if err != nil {
		return r, err
	}
	if st := pos.Status(); st != position.Ongoing {
		return r, fmt.Errorf("%w: game over (%s)", ErrScreened, st)
	}
	pov := pos.SideToMove()
	initial, ok, ev, err := p.searcher.Initial(pos, pov)
	if err != nil {
		return r, err
	}
	if ev.Mate != nil && *ev.Mate <= 0 {
		return r, fmt.Errorf("%w: mated in %d", ErrScreened, -*ev.Mate)
	}
	if ev.Mate == nil && ev.Score != nil && *ev.Score < -p.opts.ScreenCentipawns {
		return r, fmt.Errorf("%w: %s for %s", ErrScreened, ev, pov)
	}
	r.Initial = initial
	if ev.BestMove != "" {
		r.BestMove = pos.SAN(ev.BestMove)
	}

	for _, t := range p.tiers {
		out, err := p.searcher.Run(t.Label, t.Weak, pos, pov, initial, ok)
		if err != nil {
			return r, err
		}
		r.Outcomes = append(r.Outcomes, out)
	}
	r.Rating = glicko.PuzzleRating(r.byTier(), p.opts.Rating)
	return r, nil
}

// byTier groups the verdicts by tier label.
func (r Rating) byTier() map[string][]bool {
	m := make(map[string][]bool, len(r.Outcomes))
	for _, o := range r.Outcomes {
		m[o.Tier] = append(m[o.Tier], o.Held...)
	}
	return m
}

// Summary counts what a run did.
type Summary struct {
	Total    int
	Invalid  int
	Screened int
	Resumed  int
	Rated    int
	Mean     float64
	StdDev   float64
	// Ratings are the stored ratings in order.
	Ratings []float64
}

// Run rates fens in order, appending each rating to the store. Cancellation
// is checked between positions; queries in flight are not interrupted. An
// engine failure after ctx is done is reported as a cancellation, since the
// engine most likely died of the same interrupt. Engine and store failures
// stop the run.
func (p *Pipeline) Run(ctx context.Context, fens []string) (s Summary, err error) {
	s.Total = len(fens)
	defer func() {
		s.Mean, s.StdDev = meanStdDev(s.Ratings)
	}()

	for i, fen := range fens {
		if err := ctx.Err(); err != nil {
			return s, err
		}
		logger := log.With().Int("index", i+1).Int("total", len(fens)).Str("fen", fen).Logger()
		if _, ok := p.opts.Done[fen]; ok {
			s.Resumed++
			logger.Debug().Msg("already rated")
			continue
		}
		r, err := p.RatePosition(fen)
		switch {
		case errors.Is(err, position.ErrInvalidFEN):
			s.Invalid++
			logger.Warn().Err(err).Msg("skipping invalid position")
			continue
		case errors.Is(err, ErrScreened):
			s.Screened++
			logger.Info().Err(err).Msg("skipping position")
			continue
		case err != nil:
			err = fmt.Errorf("rating %q: %w", fen, err)
			if cerr := ctx.Err(); cerr != nil {
				return s, errors.Join(cerr, err)
			}
			return s, err
		}
		if p.store != nil {
			if err := p.store.Append(fen, r.Rating); err != nil {
				return s, fmt.Errorf("storing rating: %w", err)
			}
		}
		if err := p.logOutcome(r); err != nil {
			logger.Error().Err(err).Msg("writing outcome log")
		}
		s.Rated++
		s.Ratings = append(s.Ratings, float64(r.Rating))
		logger.Info().Int("rating", r.Rating).Float64("initial", r.Initial).Msg("rated")
	}
	return s, nil
}

func (p *Pipeline) logOutcome(r Rating) error {
	if p.opts.OutcomeLog == nil {
		return nil
	}
	out, err := yaml.Marshal([]Rating{r})
	if err != nil {
		return err
	}
	_, err = p.opts.OutcomeLog.Write(out)
	return err
}

func meanStdDev(xs []float64) (float64, float64) {
	switch len(xs) {
	case 0:
		return 0, 0
	case 1:
		return xs[0], 0
	}
	m, sd := stat.MeanStdDev(xs, nil)
	if math.IsNaN(sd) {
		sd = 0
	}
	return m, sd
}
