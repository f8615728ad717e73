package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"puzzle-rater/config"
	"puzzle-rater/evalcache"
	"puzzle-rater/pipeline"
	"puzzle-rater/results"
)

var rateCmd = &cobra.Command{
	Use:   "rate",
	Short: "Rate every position in the input file",
	Long: `Reads one FEN per line from --input and appends "<fen>\t<rating>" for each
rated position to --output. An output ending in .db or .sqlite is written as
a SQLite database instead.`,
	Args: cobra.NoArgs,
	RunE: runRate,
}

func init() {
	f := rateCmd.Flags()
	f.String("input", "puzzles.txt", "newline-separated FEN list")
	f.String("output", "puzzle_ratings.tsv", "where ratings are appended")
	f.String("outcome-log", "", "append a YAML record of every tier outcome here")
	f.Bool("resume", false, "skip positions already present in the output")
	f.Int("sample", 0, "rate only this many positions picked at random, 0 rates all")
	f.Bool("histogram", false, "print a histogram of the new ratings")
}

// starter is replaced by tests.
var starter pipeline.Starter

func runRate(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	in, err := os.Open(cfg.Input)
	if err != nil {
		return err
	}
	fens, err := pipeline.ReadPositions(in)
	in.Close()
	if err != nil {
		return fmt.Errorf("reading %s: %w", cfg.Input, err)
	}
	log.Info().Int("positions", len(fens)).Str("input", cfg.Input).Msg("loaded positions")
	if cfg.Sample > 0 {
		fens = pipeline.Sample(fens, cfg.Sample)
		log.Info().Int("positions", len(fens)).Msg("sampled")
	}

	var done map[string]int
	if cfg.Resume {
		if done, err = results.Existing(cfg.Output); err != nil {
			return err
		}
		log.Info().Int("rated", len(done)).Msg("resuming")
	}

	store, err := results.Open(cfg.Output)
	if err != nil {
		return err
	}
	defer store.Close()

	var outcomes io.Writer
	if cfg.OutcomeLog != "" {
		f, err := os.OpenFile(cfg.OutcomeLog, os.O_WRONLY|os.O_CREATE|os.O_APPEND, 0o644)
		if err != nil {
			return err
		}
		defer f.Close()
		outcomes = f
	}

	summary, err := rate(ctx, cfg, fens, store, outcomes, done)
	log.Info().
		Int("total", summary.Total).
		Int("rated", summary.Rated).
		Int("invalid", summary.Invalid).
		Int("screened", summary.Screened).
		Int("resumed", summary.Resumed).
		Float64("mean", summary.Mean).
		Float64("stddev", summary.StdDev).
		Msg("done")
	if cfg.Histogram {
		if herr := summary.Histogram(cmd.OutOrStdout(), 10, 50); herr != nil {
			log.Error().Err(herr).Msg("drawing histogram")
		}
	}
	if err != nil && (errors.Is(err, context.Canceled) || ctx.Err() != nil) {
		log.Warn().Err(err).Msg("interrupted; ratings so far are saved")
		return nil
	}
	return err
}

// rate owns the engines for the duration of a run.
func rate(ctx context.Context, cfg config.Config, fens []string, store results.Store, outcomes io.Writer, done map[string]int) (pipeline.Summary, error) {
	if _, skipped := cfg.NumericLabels(); len(skipped) > 0 {
		log.Warn().Strs("tiers", skipped).Msg("non-numeric tier labels do not count towards ratings")
	}
	engines, err := pipeline.OpenEngines(ctx, cfg, starter)
	if err != nil {
		return pipeline.Summary{Total: len(fens)}, err
	}
	defer engines.Close()

	cache := evalcache.New(engines.Strong, cfg.CacheSize)
	defer cache.LogStats()
	p := pipeline.New(cache, engines.SearchTiers(), store, pipeline.Options{
		Search:           cfg.Search(),
		Model:            cfg.Model(),
		Rating:           cfg.Rating(),
		ScreenCentipawns: cfg.ScreenCentipawns,
		OutcomeLog:       outcomes,
		Done:             done,
	})
	return p.Run(ctx, fens)
}
