// Package config loads the rater's settings from defaults, an optional
// YAML file, PUZZLERATE_* environment variables and command-line flags,
// in increasing order of precedence.
package config

import (
	"errors"
	"fmt"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"puzzle-rater/glicko"
	"puzzle-rater/survival"
	"puzzle-rater/winprob"
)

const EnvPrefix = "PUZZLERATE"

// DefaultLabels are the Maia networks used as skill tiers.
var DefaultLabels = []string{"1100", "1300", "1500", "1700", "1800", "1900"}

// Tier is a weak engine standing in for players of one strength. Label
// doubles as the opponent rating when the outcomes are aggregated.
type Tier struct {
	Label   string            `mapstructure:"label" yaml:"label"`
	Command string            `mapstructure:"command" yaml:"command"`
	Options map[string]string `mapstructure:"options" yaml:"options,omitempty"`
}

type Glicko struct {
	Rating            float64 `mapstructure:"rating"`
	Deviation         float64 `mapstructure:"deviation"`
	Volatility        float64 `mapstructure:"volatility"`
	Tau               float64 `mapstructure:"tau"`
	OpponentDeviation float64 `mapstructure:"opponent_deviation"`
	Epsilon           float64 `mapstructure:"epsilon"`
}

type Config struct {
	StrongCommand string            `mapstructure:"strong_command"`
	StrongOptions map[string]string `mapstructure:"strong_options"`
	// Tiers, when empty, is built from Labels and WeightsDir.
	Tiers      []Tier   `mapstructure:"tiers"`
	Labels     []string `mapstructure:"labels"`
	WeightsDir string   `mapstructure:"weights_dir"`

	Depth            int     `mapstructure:"depth"`
	Candidates       int     `mapstructure:"candidates"`
	MovesToSurvive   int     `mapstructure:"moves_to_survive"`
	DropThreshold    float64 `mapstructure:"drop_threshold"`
	ScreenCentipawns int     `mapstructure:"screen_centipawns"`
	LogisticK        float64 `mapstructure:"logistic_k"`
	Glicko           Glicko  `mapstructure:"glicko"`

	HandshakeTimeout time.Duration `mapstructure:"handshake_timeout"`
	StartAttempts    uint          `mapstructure:"start_attempts"`

	Input      string `mapstructure:"input"`
	Output     string `mapstructure:"output"`
	OutcomeLog string `mapstructure:"outcome_log"`
	Resume     bool   `mapstructure:"resume"`
	Sample     int    `mapstructure:"sample"`
	Histogram  bool   `mapstructure:"histogram"`
	CacheSize  int    `mapstructure:"cache_size"`
	LogLevel   string `mapstructure:"log_level"`
}

// SetDefaults registers every default on v.
func SetDefaults(v *viper.Viper) {
	g := glicko.DefaultParams()
	s := survival.DefaultConfig()
	v.SetDefault("strong_command", "stockfish")
	v.SetDefault("labels", DefaultLabels)
	v.SetDefault("weights_dir", "weights")
	v.SetDefault("depth", s.Depth)
	v.SetDefault("candidates", s.Candidates)
	v.SetDefault("moves_to_survive", s.MovesToSurvive)
	v.SetDefault("drop_threshold", s.DropThreshold)
	v.SetDefault("screen_centipawns", 200)
	v.SetDefault("logistic_k", winprob.DefaultK)
	v.SetDefault("glicko.rating", g.Base.Rating)
	v.SetDefault("glicko.deviation", g.Base.Deviation)
	v.SetDefault("glicko.volatility", g.Base.Volatility)
	v.SetDefault("glicko.tau", g.Tau)
	v.SetDefault("glicko.opponent_deviation", g.OpponentDeviation)
	v.SetDefault("glicko.epsilon", g.Epsilon)
	v.SetDefault("handshake_timeout", 30*time.Second)
	v.SetDefault("start_attempts", 1)
	v.SetDefault("input", "puzzles.txt")
	v.SetDefault("output", "puzzle_ratings.tsv")
	v.SetDefault("cache_size", 4096)
	v.SetDefault("log_level", "info")
}

// BindFlags wires the flags that override configuration keys. Flag names
// use dashes; keys use underscores.
func BindFlags(v *viper.Viper, fs *pflag.FlagSet) error {
	var errs []error
	fs.VisitAll(func(f *pflag.Flag) {
		key := strings.ReplaceAll(f.Name, "-", "_")
		if key == "config" {
			return
		}
		errs = append(errs, v.BindPFlag(key, f))
	})
	return errors.Join(errs...)
}

// New returns a viper instance with defaults and the environment set up.
func New() *viper.Viper {
	v := viper.New()
	SetDefaults(v)
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	v.AutomaticEnv()
	return v
}

// Load reads the optional file at path into v and decodes the result.
func Load(v *viper.Viper, path string) (Config, error) {
	var cfg Config
	if path != "" {
		v.SetConfigFile(path)
		v.SetConfigType("yaml")
		if err := v.ReadInConfig(); err != nil {
			return cfg, fmt.Errorf("error reading config file %s: %w", path, err)
		}
	}
	if err := v.Unmarshal(&cfg); err != nil {
		return cfg, fmt.Errorf("error decoding configuration: %w", err)
	}
	// A comma list from the environment arrives as one element.
	if len(cfg.Labels) == 1 && strings.Contains(cfg.Labels[0], ",") {
		cfg.Labels = splitList(cfg.Labels[0])
	}
	if len(cfg.Tiers) == 0 {
		cfg.Tiers = MaiaTiers(cfg.WeightsDir, cfg.Labels)
	}
	return cfg, cfg.Validate()
}

func splitList(s string) []string {
	var out []string
	for _, p := range strings.Split(s, ",") {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

// MaiaTiers builds one lc0 tier per label, each loading maia-<label>.pb.gz
// from dir.
func MaiaTiers(dir string, labels []string) []Tier {
	tiers := make([]Tier, 0, len(labels))
	for _, l := range labels {
		w := filepath.Join(dir, "maia-"+l+".pb.gz")
		tiers = append(tiers, Tier{
			Label:   l,
			Command: "lc0 --backend=blas --weights=" + w,
		})
	}
	return tiers
}

func (c Config) Validate() error {
	var errs []error
	if strings.TrimSpace(c.StrongCommand) == "" {
		errs = append(errs, errors.New("strong_command is empty"))
	}
	if len(c.Tiers) == 0 {
		errs = append(errs, errors.New("no skill tiers configured"))
	}
	seen := map[string]bool{}
	for i, t := range c.Tiers {
		if t.Label == "" {
			errs = append(errs, fmt.Errorf("tier %d has no label", i))
		}
		if seen[t.Label] {
			errs = append(errs, fmt.Errorf("tier label %q repeated", t.Label))
		}
		seen[t.Label] = true
		if strings.TrimSpace(t.Command) == "" {
			errs = append(errs, fmt.Errorf("tier %q has no command", t.Label))
		}
	}
	if err := c.Search().Validate(); err != nil {
		errs = append(errs, err)
	}
	if c.ScreenCentipawns < 0 {
		errs = append(errs, fmt.Errorf("screen_centipawns must not be negative, got %d", c.ScreenCentipawns))
	}
	if c.LogisticK <= 0 {
		errs = append(errs, fmt.Errorf("logistic_k must be positive, got %v", c.LogisticK))
	}
	if c.Glicko.Tau <= 0 || c.Glicko.Epsilon <= 0 || c.Glicko.Deviation <= 0 || c.Glicko.Volatility <= 0 {
		errs = append(errs, errors.New("glicko parameters must be positive"))
	}
	if c.CacheSize < 0 {
		errs = append(errs, fmt.Errorf("cache_size must not be negative, got %d", c.CacheSize))
	}
	return errors.Join(errs...)
}

func (c Config) Search() survival.Config {
	return survival.Config{
		Depth:          c.Depth,
		Candidates:     c.Candidates,
		MovesToSurvive: c.MovesToSurvive,
		DropThreshold:  c.DropThreshold,
	}
}

func (c Config) Model() winprob.Model {
	return winprob.Model{K: c.LogisticK}
}

func (c Config) Rating() glicko.Params {
	return glicko.Params{
		Base: glicko.Rating{
			Rating:     c.Glicko.Rating,
			Deviation:  c.Glicko.Deviation,
			Volatility: c.Glicko.Volatility,
		},
		Tau:               c.Glicko.Tau,
		OpponentDeviation: c.Glicko.OpponentDeviation,
		Epsilon:           c.Glicko.Epsilon,
	}
}

// NumericLabels reports tiers whose label cannot serve as a rating; their
// outcomes are ignored by the aggregator.
func (c Config) NumericLabels() (ok, skipped []string) {
	for _, t := range c.Tiers {
		if _, err := strconv.ParseFloat(t.Label, 64); err != nil {
			skipped = append(skipped, t.Label)
			continue
		}
		ok = append(ok, t.Label)
	}
	return ok, skipped
}
