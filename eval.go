package main

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"puzzle-rater/evalcache"
	"puzzle-rater/pipeline"
	"puzzle-rater/position"
)

var evalCmd = &cobra.Command{
	Use:   "eval <fen>",
	Short: "Rate a single position and print every tier's outcomes",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		if _, err := position.Parse(args[0]); err != nil {
			return err
		}
		engines, err := pipeline.OpenEngines(cmd.Context(), cfg, starter)
		if err != nil {
			return err
		}
		defer engines.Close()

		p := pipeline.New(evalcache.New(engines.Strong, cfg.CacheSize), engines.SearchTiers(), nil, pipeline.Options{
			Search:           cfg.Search(),
			Model:            cfg.Model(),
			Rating:           cfg.Rating(),
			ScreenCentipawns: cfg.ScreenCentipawns,
		})
		r, err := p.RatePosition(args[0])
		if errors.Is(err, pipeline.ErrScreened) {
			fmt.Fprintln(cmd.OutOrStdout(), err)
			return nil
		}
		if err != nil {
			return err
		}
		out, err := yaml.Marshal(r)
		if err != nil {
			return err
		}
		_, err = cmd.OutOrStdout().Write(out)
		return err
	},
}
