package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"puzzle-rater/glicko"
)

var ratingCmd = &cobra.Command{
	Use:   "rating <label>=<outcomes>...",
	Short: "Aggregate tier outcomes into a rating",
	Long: `Each argument is a tier label and its outcomes as a string of t and f,
for example "1500=ttf 1900=ff". Useful to check what a set of outcomes is
worth without running any engine.`,
	Args: cobra.ArbitraryArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		outcomes, err := parseOutcomes(args)
		if err != nil {
			return err
		}
		p := cfg.Rating()
		r := glicko.Update(p.Base, glicko.Matches(outcomes, p.OpponentDeviation), p.Tau, p.Epsilon)
		fmt.Fprintf(cmd.OutOrStdout(), "%d\t(rd %.1f, volatility %.4f)\n", glicko.PuzzleRating(outcomes, p), r.Deviation, r.Volatility)
		return nil
	},
}

func parseOutcomes(args []string) (map[string][]bool, error) {
	out := map[string][]bool{}
	for _, a := range args {
		label, s, ok := strings.Cut(a, "=")
		if !ok || label == "" {
			return nil, fmt.Errorf("expected <label>=<outcomes>, got %q", a)
		}
		held := out[label]
		for _, c := range strings.ToLower(s) {
			switch c {
			case 't', '1', '+':
				held = append(held, true)
			case 'f', '0', '-':
				held = append(held, false)
			default:
				return nil, fmt.Errorf("bad outcome %q in %q", c, a)
			}
		}
		out[label] = held
	}
	return out, nil
}
