// Command puzzle-rater rates chess puzzle positions by how well human-like
// engines of several strengths hold them against a strong engine.
package main

import (
	"context"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/mattn/go-isatty"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"puzzle-rater/config"
)

var (
	v          = config.New()
	configPath string

	rootCmd = &cobra.Command{
		Use:   "puzzle-rater",
		Short: "Rate chess puzzles with a strong engine and skill-tier engines",
		Long: `puzzle-rater plays each position's defender with weak engines of several
strengths against a strong engine and turns how often the defender keeps
the advantage into a Glicko-2 rating.`,
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if err := config.BindFlags(v, cmd.Flags()); err != nil {
				return err
			}
			setupLogging(v.GetString("log_level"))
			return nil
		},
	}
)

func init() {
	pf := rootCmd.PersistentFlags()
	pf.StringVar(&configPath, "config", "", "YAML configuration file")
	pf.String("log-level", "info", "trace, debug, info, warn or error")
	pf.String("strong-command", "stockfish", "command line of the strong engine")
	pf.String("weights-dir", "weights", "directory holding maia-<label>.pb.gz networks")
	pf.StringSlice("labels", config.DefaultLabels, "skill tier labels, used when no tiers are configured")
	pf.Int("depth", 11, "strong engine search depth")
	pf.Int("candidates", 1, "moves each tier proposes per defender turn")
	pf.Int("moves-to-survive", 2, "defender moves per explored line")
	pf.Float64("drop-threshold", 40, "largest win percentage drop that still holds")
	pf.Int("screen-centipawns", 200, "skip positions evaluated below minus this for the side to move")
	pf.Duration("handshake-timeout", 30*time.Second, "how long to wait for an engine to become ready")
	pf.Uint("start-attempts", 1, "how many times to launch each engine")
	pf.Int("cache-size", 4096, "strong evaluations kept in memory, 0 disables")

	rootCmd.AddCommand(rateCmd, evalCmd, ratingCmd)
}

func loadConfig() (config.Config, error) {
	return config.Load(v, configPath)
}

func setupLogging(level string) {
	lvl, err := zerolog.ParseLevel(strings.ToLower(level))
	if err != nil || lvl == zerolog.NoLevel {
		lvl = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(lvl)
	var logger zerolog.Logger
	if isatty.IsTerminal(os.Stderr.Fd()) || isatty.IsCygwinTerminal(os.Stderr.Fd()) {
		logger = zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.Kitchen})
	} else {
		logger = zerolog.New(os.Stderr)
	}
	logger = logger.Level(lvl).With().Timestamp().Logger()
	zerolog.DefaultContextLogger = &logger
	log.Logger = logger
	if err != nil {
		log.Warn().Str("level", level).Msg("unknown log level, using info")
	}
}

func execute(ctx context.Context, args []string) error {
	rootCmd.SetArgs(args)
	return rootCmd.ExecuteContext(ctx)
}

func main() {
	if err := execute(context.Background(), os.Args[1:]); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}
