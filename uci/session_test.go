package uci

import (
	"context"
	"errors"
	"os"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/kballard/go-shellquote"
	"github.com/matryer/is"

	"puzzle-rater/uci/ucitest"
)

const (
	startFEN = "rnbqkbnr/pppppppp/8/8/8/8/PPPPPPPP/RNBQKBNR w KQkq - 0 1"
	e4FEN    = "rnbqkbnr/pppppppp/8/8/4P3/8/PPPP1PPP/RNBQKBNR b KQkq e3 0 1"
)

func newPipeSession(t *testing.T, script ucitest.Script, opts Options) (*Session, *ucitest.Engine) {
	t.Helper()
	r, w, eng := ucitest.Pipe(script)
	if opts.HandshakeTimeout == 0 {
		opts.HandshakeTimeout = 2 * time.Second
	}
	s := NewSession("test", r, w, opts)
	t.Cleanup(func() { s.Close() })
	if err := s.Handshake(context.Background()); err != nil {
		t.Fatalf("handshake: %v", err)
	}
	return s, eng
}

func countPrefix(lines []string, prefix string) int {
	n := 0
	for _, l := range lines {
		if strings.HasPrefix(l, prefix) {
			n++
		}
	}
	return n
}

func TestHandshakeSendsOptions(t *testing.T) {
	is := is.New(t)
	s, eng := newPipeSession(t, ucitest.Script{}, Options{
		EngineOptions: map[string]string{"Threads": "2", "Hash": "64"},
	})
	is.Equal(s.State(), Ready)
	is.Equal(eng.Option("Threads"), "2")
	is.Equal(eng.Option("Hash"), "64")
	cmds := eng.Commands()
	is.Equal(cmds[0], "uci")
	is.Equal(cmds[len(cmds)-1], "isready")
}

func TestHandshakeFailsFastOnSilentEngine(t *testing.T) {
	is := is.New(t)
	r, w, _ := ucitest.Pipe(ucitest.Script{Mute: true})
	s := NewSession("mute", r, w, Options{HandshakeTimeout: 50 * time.Millisecond})
	defer s.Close()

	start := time.Now()
	err := s.Handshake(context.Background())
	is.True(errors.Is(err, ErrEngineUnreachable))
	is.True(time.Since(start) < time.Second)
	is.Equal(s.State(), Created)

	var opErr *OpError
	is.True(errors.As(err, &opErr))
	is.Equal(opErr.Op, "handshake")
}

func TestQueryBeforeHandshake(t *testing.T) {
	is := is.New(t)
	r, w, _ := ucitest.Pipe(ucitest.Script{})
	s := NewSession("early", r, w, Options{})
	defer s.Close()
	_, err := s.EvaluateBest(startFEN, 5)
	is.True(errors.Is(err, ErrNotReady))
}

func TestEvaluateBestCentipawns(t *testing.T) {
	is := is.New(t)
	s, eng := newPipeSession(t, ucitest.Script{
		Best: map[string]ucitest.Reply{startFEN: ucitest.Cp(150, "e2e4")},
	}, Options{})

	ev, err := s.EvaluateBest(startFEN, 11)
	is.NoErr(err)
	is.Equal(*ev.Score, 150)
	is.True(ev.Mate == nil)
	is.Equal(ev.BestMove, "e2e4")
	is.Equal(ev.Depth, 11)
	is.Equal(s.State(), Ready)

	cmds := eng.Commands()
	is.Equal(cmds[len(cmds)-2], "position fen "+startFEN)
	is.Equal(cmds[len(cmds)-1], "go depth 11")
}

func TestEvaluateBestLastScoreKindWins(t *testing.T) {
	is := is.New(t)
	s, _ := newPipeSession(t, ucitest.Script{
		Best: map[string]ucitest.Reply{
			startFEN: {Info: []string{
				"info depth 10 score cp 300 pv d1h5",
				"info depth 12 score mate 4 pv d1h5",
			}, BestMove: "d1h5"},
			e4FEN: {Info: []string{
				"info depth 10 score mate 7 pv e7e5",
				"info depth 12 score cp 80 pv e7e5",
				"info string NNUE evaluation",
			}, BestMove: "e7e5"},
		},
	}, Options{})

	ev, err := s.EvaluateBest(startFEN, 12)
	is.NoErr(err)
	is.True(ev.Score == nil)
	is.Equal(*ev.Mate, 4)

	ev, err = s.EvaluateBest(e4FEN, 12)
	is.NoErr(err)
	is.True(ev.Mate == nil)
	is.Equal(*ev.Score, 80)
}

func TestEvaluateBestIgnoresSecondaryLines(t *testing.T) {
	is := is.New(t)
	s, _ := newPipeSession(t, ucitest.Script{
		Best: map[string]ucitest.Reply{
			startFEN: {Info: []string{
				"info depth 9 multipv 1 score cp 25 pv e2e4",
				"info depth 9 multipv 2 score cp -400 pv f2f3",
			}, BestMove: "e2e4"},
		},
	}, Options{})
	ev, err := s.EvaluateBest(startFEN, 9)
	is.NoErr(err)
	is.Equal(*ev.Score, 25)
}

func TestEvaluateBestNoMove(t *testing.T) {
	is := is.New(t)
	s, _ := newPipeSession(t, ucitest.Script{
		Default: ucitest.Reply{Info: []string{"info depth 0 score mate 0"}},
	}, Options{})
	ev, err := s.EvaluateBest(startFEN, 11)
	is.NoErr(err)
	is.Equal(ev.BestMove, "")
	is.Equal(*ev.Mate, 0)
}

func TestTopMoves(t *testing.T) {
	is := is.New(t)
	s, eng := newPipeSession(t, ucitest.Script{
		Top: map[string]ucitest.Reply{
			startFEN: ucitest.Top("e2e4", "d2d4", "g1f3"),
		},
	}, Options{})

	moves, err := s.TopMoves(startFEN, 3)
	is.NoErr(err)
	is.Equal(moves, []string{"e2e4", "d2d4", "g1f3"})
	is.Equal(eng.Option("MultiPV"), "3")

	moves, err = s.TopMoves(startFEN, 2)
	is.NoErr(err)
	is.Equal(moves, []string{"e2e4", "d2d4"})
	is.Equal(eng.Option("MultiPV"), "2")

	_, err = s.TopMoves(startFEN, 2)
	is.NoErr(err)
	cmds := eng.Commands()
	is.Equal(countPrefix(cmds, "setoption name MultiPV"), 2)
	is.Equal(countPrefix(cmds, "go nodes 1"), 3)
}

func TestTopMovesDedupesAndPads(t *testing.T) {
	is := is.New(t)
	s, _ := newPipeSession(t, ucitest.Script{
		Top: map[string]ucitest.Reply{
			startFEN: {Info: []string{
				"info depth 1 multipv 1 score cp 12 pv e2e4 e7e5",
				"info depth 1 multipv 2 score cp 10 pv e2e4",
			}, BestMove: "e2e4"},
			e4FEN: {Info: []string{"info depth 1 multipv 1 score cp 3 pv c7c5"}, BestMove: "e7e5"},
		},
	}, Options{})

	moves, err := s.TopMoves(startFEN, 3)
	is.NoErr(err)
	is.Equal(moves, []string{"e2e4", "e2e4", "e2e4"})

	moves, err = s.TopMoves(e4FEN, 3)
	is.NoErr(err)
	is.Equal(moves, []string{"c7c5", "e7e5", "c7c5"})
}

func TestTopMovesSingleCandidate(t *testing.T) {
	is := is.New(t)
	s, _ := newPipeSession(t, ucitest.Script{
		Top: map[string]ucitest.Reply{startFEN: ucitest.Top("g1f3")},
	}, Options{})
	moves, err := s.TopMoves(startFEN, 1)
	is.NoErr(err)
	is.Equal(moves, []string{"g1f3"})
}

func TestTopMovesEmptyDegradesToNullMove(t *testing.T) {
	is := is.New(t)
	s, _ := newPipeSession(t, ucitest.Script{}, Options{})
	moves, err := s.TopMoves(startFEN, 2)
	is.NoErr(err)
	is.Equal(moves, []string{NullMove, NullMove})

	_, err = s.TopMoves(startFEN, 0)
	is.True(err != nil)
}

func TestEngineExitMidQuery(t *testing.T) {
	is := is.New(t)
	s, _ := newPipeSession(t, ucitest.Script{HangupOnGo: true}, Options{})

	_, err := s.EvaluateBest(startFEN, 11)
	is.True(errors.Is(err, ErrEngineExited))
	is.Equal(s.State(), Closed)

	_, err = s.TopMoves(startFEN, 1)
	is.True(errors.Is(err, ErrSessionClosed))
}

func TestClosedSessionRejectsQueries(t *testing.T) {
	is := is.New(t)
	s, eng := newPipeSession(t, ucitest.Script{}, Options{})
	is.NoErr(s.Close())
	is.NoErr(s.Close())
	is.Equal(s.State(), Closed)

	_, err := s.EvaluateBest(startFEN, 1)
	is.True(errors.Is(err, ErrSessionClosed))

	deadline := time.Now().Add(time.Second)
	for countPrefix(eng.Commands(), "quit") == 0 && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
	is.Equal(countPrefix(eng.Commands(), "quit"), 1)
}

func TestCloseWaitsForQuery(t *testing.T) {
	is := is.New(t)
	s, eng := newPipeSession(t, ucitest.Script{
		Best: map[string]ucitest.Reply{startFEN: ucitest.Cp(20, "e2e4")},
	}, Options{QuitGrace: time.Second})

	// Hold the query lock as an in-flight query would; quit must not be
	// written until it is released.
	s.query.Lock()
	closed := make(chan error, 1)
	go func() { closed <- s.Close() }()
	time.Sleep(50 * time.Millisecond)
	is.Equal(countPrefix(eng.Commands(), "quit"), 0)
	s.query.Unlock()

	is.NoErr(<-closed)
	deadline := time.Now().Add(time.Second)
	for countPrefix(eng.Commands(), "quit") == 0 && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
	is.Equal(countPrefix(eng.Commands(), "quit"), 1)
}

func TestCloseDuringStalledQuery(t *testing.T) {
	is := is.New(t)
	s, eng := newPipeSession(t, ucitest.Script{StallOnGo: true}, Options{QuitGrace: 50 * time.Millisecond})

	queried := make(chan error, 1)
	go func() {
		_, err := s.EvaluateBest(startFEN, 11)
		queried <- err
	}()
	deadline := time.Now().Add(time.Second)
	for eng.Searches() == 0 && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
	is.Equal(eng.Searches(), 1)

	is.NoErr(s.Close())
	select {
	case err := <-queried:
		is.True(errors.Is(err, ErrEngineExited))
	case <-time.After(2 * time.Second):
		t.Fatal("query still blocked after close")
	}
	is.Equal(countPrefix(eng.Commands(), "quit"), 0)
	is.Equal(s.State(), Closed)
}

func TestQueriesAreSerialized(t *testing.T) {
	is := is.New(t)
	s, eng := newPipeSession(t, ucitest.Script{
		Best: map[string]ucitest.Reply{
			startFEN: ucitest.Cp(20, "e2e4"),
			e4FEN:    ucitest.Cp(-20, "c7c5"),
		},
	}, Options{})

	var wg sync.WaitGroup
	errs := make(chan error, 20)
	for i := 0; i < 10; i++ {
		wg.Add(2)
		go func() {
			defer wg.Done()
			ev, err := s.EvaluateBest(startFEN, 11)
			if err == nil && ev.BestMove != "e2e4" {
				err = errors.New("crossed answer for start position")
			}
			errs <- err
		}()
		go func() {
			defer wg.Done()
			ev, err := s.EvaluateBest(e4FEN, 11)
			if err == nil && ev.BestMove != "c7c5" {
				err = errors.New("crossed answer for e4 position")
			}
			errs <- err
		}()
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		is.NoErr(err)
	}
	is.Equal(eng.Searches(), 20)
}

// TestHelperProcess is not a real test; Start re-executes the test binary
// with this test selected to get a real engine subprocess.
func TestHelperProcess(t *testing.T) {
	if os.Getenv("UCITEST_HELPER") != "1" {
		return
	}
	script := ucitest.Script{
		Name: "helper",
		Best: map[string]ucitest.Reply{startFEN: ucitest.Cp(35, "d2d4")},
		Top:  map[string]ucitest.Reply{startFEN: ucitest.Top("e2e4", "d2d4")},
		Mute: os.Getenv("UCITEST_MUTE") == "1",
	}
	ucitest.New(script).Serve(os.Stdin, os.Stdout)
	os.Exit(0)
}

func helperCommand() string {
	return shellquote.Join(os.Args[0], "-test.run=^TestHelperProcess$")
}

func TestStartSubprocess(t *testing.T) {
	is := is.New(t)
	t.Setenv("UCITEST_HELPER", "1")

	s, err := Start(context.Background(), "helper", helperCommand(), Options{HandshakeTimeout: 5 * time.Second})
	is.NoErr(err)
	defer s.Close()

	ev, err := s.EvaluateBest(startFEN, 11)
	is.NoErr(err)
	is.Equal(*ev.Score, 35)
	is.Equal(ev.BestMove, "d2d4")

	moves, err := s.TopMoves(startFEN, 2)
	is.NoErr(err)
	is.Equal(moves, []string{"e2e4", "d2d4"})

	is.NoErr(s.Close())
	is.Equal(s.State(), Closed)
}

func TestStartUnreachableSubprocess(t *testing.T) {
	is := is.New(t)
	t.Setenv("UCITEST_HELPER", "1")
	t.Setenv("UCITEST_MUTE", "1")

	_, err := Start(context.Background(), "mute", helperCommand(), Options{
		HandshakeTimeout: 100 * time.Millisecond,
		StartAttempts:    2,
		RetryDelay:       time.Millisecond,
	})
	is.True(errors.Is(err, ErrEngineUnreachable))
}

func TestStartMissingBinary(t *testing.T) {
	is := is.New(t)
	_, err := Start(context.Background(), "nope", "/nonexistent/engine-binary --flag", Options{StartAttempts: 3})
	is.True(err != nil)

	_, err = Start(context.Background(), "empty", "   ", Options{})
	is.True(err != nil)

	_, err = Start(context.Background(), "quote", `lc0 "--weights=unterminated`, Options{})
	is.True(err != nil)
}
