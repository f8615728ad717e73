package pipeline

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/matryer/is"

	"puzzle-rater/config"
	"puzzle-rater/uci"
)

type stubEngine struct {
	name   string
	closed bool
}

func (s *stubEngine) EvaluateBest(string, int) (uci.Evaluation, error) { return uci.Evaluation{}, nil }
func (s *stubEngine) TopMoves(string, int) ([]string, error)           { return nil, nil }
func (s *stubEngine) Close() error {
	s.closed = true
	return nil
}

type stubStarter struct {
	mu      sync.Mutex
	fail    string
	started []*stubEngine
	opts    map[string]uci.Options
}

func (s *stubStarter) start(ctx context.Context, name, command string, opts uci.Options) (uci.Analyzer, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if command == s.fail {
		return nil, uci.ErrEngineUnreachable
	}
	e := &stubEngine{name: name}
	s.started = append(s.started, e)
	if s.opts == nil {
		s.opts = map[string]uci.Options{}
	}
	s.opts[name] = opts
	return e, nil
}

func testConfig() config.Config {
	cfg, err := config.Load(config.New(), "")
	if err != nil {
		panic(err)
	}
	cfg.StrongOptions = map[string]string{"threads": "4"}
	cfg.Tiers = []config.Tier{
		{Label: "1100", Command: "weak-1100"},
		{Label: "1500", Command: "weak-1500", Options: map[string]string{"threads": "1"}},
		{Label: "1900", Command: "weak-1900"},
	}
	return cfg
}

func TestOpenEngines(t *testing.T) {
	is := is.New(t)
	st := &stubStarter{}
	e, err := OpenEngines(context.Background(), testConfig(), st.start)
	is.NoErr(err)
	is.Equal(len(st.started), 4)
	is.Equal(e.Tiers[0].Label, "1100")
	is.Equal(e.Tiers[2].Label, "1900")
	is.Equal(st.opts["strong"].EngineOptions["threads"], "4")
	is.Equal(st.opts["tier-1500"].EngineOptions["threads"], "1")

	tiers := e.SearchTiers()
	is.Equal(len(tiers), 3)
	is.Equal(tiers[1].Label, "1500")

	is.NoErr(e.Close())
	for _, s := range st.started {
		is.True(s.closed)
	}
	// Closing twice is harmless.
	is.NoErr(e.Close())
}

func TestOpenEnginesClosesOnFailure(t *testing.T) {
	is := is.New(t)
	st := &stubStarter{fail: "weak-1500"}
	e, err := OpenEngines(context.Background(), testConfig(), st.start)
	is.True(e == nil)
	is.True(errors.Is(err, uci.ErrEngineUnreachable))
	is.Equal(len(st.started), 3)
	for _, s := range st.started {
		is.True(s.closed)
	}
}
