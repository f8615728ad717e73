package pipeline

import (
	"context"
	"errors"
	"fmt"

	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"

	"puzzle-rater/config"
	"puzzle-rater/uci"
)

// Starter opens one engine. uci.Start is the real one.
type Starter func(ctx context.Context, name, command string, opts uci.Options) (uci.Analyzer, error)

func startSession(ctx context.Context, name, command string, opts uci.Options) (uci.Analyzer, error) {
	return uci.Start(ctx, name, command, opts)
}

// Engines are the sessions a run needs: one strong engine and one per
// tier, in configuration order.
type Engines struct {
	Strong uci.Analyzer
	Tiers  []TierEngine
}

type TierEngine struct {
	Label  string
	Engine uci.Analyzer
}

// SearchTiers adapts the tier sessions for New.
func (e *Engines) SearchTiers() []Tier {
	out := make([]Tier, len(e.Tiers))
	for i, t := range e.Tiers {
		out[i] = Tier{Label: t.Label, Weak: t.Engine}
	}
	return out
}

// OpenEngines starts every configured engine concurrently. If any of them
// fails the ones already running are closed before returning.
func OpenEngines(ctx context.Context, cfg config.Config, start Starter) (*Engines, error) {
	if start == nil {
		start = startSession
	}
	base := uci.Options{
		HandshakeTimeout: cfg.HandshakeTimeout,
		StartAttempts:    cfg.StartAttempts,
	}

	e := &Engines{Tiers: make([]TierEngine, len(cfg.Tiers))}
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		opts := base
		opts.EngineOptions = cfg.StrongOptions
		a, err := start(gctx, "strong", cfg.StrongCommand, opts)
		if err != nil {
			return fmt.Errorf("strong engine: %w", err)
		}
		e.Strong = a
		return nil
	})
	for i, t := range cfg.Tiers {
		i, t := i, t
		g.Go(func() error {
			opts := base
			opts.EngineOptions = t.Options
			a, err := start(gctx, "tier-"+t.Label, t.Command, opts)
			if err != nil {
				return fmt.Errorf("tier %s: %w", t.Label, err)
			}
			e.Tiers[i] = TierEngine{Label: t.Label, Engine: a}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		e.Close()
		return nil, err
	}
	log.Info().Int("tiers", len(e.Tiers)).Msg("engines ready")
	return e, nil
}

// Close shuts every session down. Failures are logged and joined; callers
// usually only log them again.
func (e *Engines) Close() error {
	var errs []error
	if e.Strong != nil {
		if err := e.Strong.Close(); err != nil {
			log.Warn().Err(err).Msg("closing strong engine")
			errs = append(errs, err)
		}
		e.Strong = nil
	}
	for i, t := range e.Tiers {
		if t.Engine == nil {
			continue
		}
		if err := t.Engine.Close(); err != nil {
			log.Warn().Err(err).Str("tier", t.Label).Msg("closing tier engine")
			errs = append(errs, err)
		}
		e.Tiers[i].Engine = nil
	}
	return errors.Join(errs...)
}
