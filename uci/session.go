// Package uci drives external analysis engines over the Universal Chess
// Interface. All protocol parsing lives here; callers see typed requests
// and Evaluation results.
package uci

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os/exec"
	"strings"
	"sync"
	"time"

	"github.com/avast/retry-go/v4"
	"github.com/kballard/go-shellquote"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/samber/lo"
)

const (
	DefaultHandshakeTimeout = 30 * time.Second
	DefaultQuitGrace        = 2 * time.Second
	maxLineBytes            = 1 << 20
)

// Analyzer is everything the rest of the program needs from an engine.
type Analyzer interface {
	EvaluateBest(fen string, depth int) (Evaluation, error)
	TopMoves(fen string, count int) ([]string, error)
	Close() error
}

var _ Analyzer = (*Session)(nil)

// State is the lifecycle of a Session.
type State int

const (
	Created State = iota
	Ready
	Querying
	Closed
)

func (s State) String() string {
	switch s {
	case Created:
		return "created"
	case Ready:
		return "ready"
	case Querying:
		return "querying"
	case Closed:
		return "closed"
	}
	return fmt.Sprintf("state(%d)", int(s))
}

// Options configures a Session.
type Options struct {
	// HandshakeTimeout bounds the wait for uciok/readyok. Zero means
	// DefaultHandshakeTimeout; negative waits forever.
	HandshakeTimeout time.Duration
	// QuitGrace is how long Close waits for the process after "quit"
	// before killing it.
	QuitGrace time.Duration
	// StartAttempts is how many times Start launches the process before
	// giving up.
	StartAttempts uint
	RetryDelay    time.Duration
	// EngineOptions are sent as "setoption name K value V" during the
	// handshake.
	EngineOptions map[string]string
	Logger        *zerolog.Logger
}

func (o Options) handshakeTimeout() time.Duration {
	if o.HandshakeTimeout == 0 {
		return DefaultHandshakeTimeout
	}
	return o.HandshakeTimeout
}

func (o Options) quitGrace() time.Duration {
	if o.QuitGrace <= 0 {
		return DefaultQuitGrace
	}
	return o.QuitGrace
}

// Session owns one engine. Queries are strictly serialized: a second
// caller blocks until the first query's bestmove line has been read.
type Session struct {
	name string
	opts Options
	log  zerolog.Logger

	query sync.Mutex // held for the whole request/response exchange

	mu    sync.Mutex
	state State
	shut  bool

	w        io.Writer
	lines    chan string
	stop     chan struct{}
	stopOnce sync.Once
	cmd      *exec.Cmd
	multiPV  int
}

// Start launches command (split like a shell would), performs the
// handshake and returns a Ready session.
func Start(ctx context.Context, name, command string, opts Options) (*Session, error) {
	args, err := shellquote.Split(command)
	if err != nil {
		return nil, &OpError{Engine: name, Op: "start", Err: err}
	}
	if len(args) == 0 {
		return nil, &OpError{Engine: name, Op: "start", Err: errors.New("empty command")}
	}
	attempts := opts.StartAttempts
	if attempts == 0 {
		attempts = 1
	}
	retryOpts := []retry.Option{
		retry.Context(ctx),
		retry.Attempts(attempts),
		retry.LastErrorOnly(true),
		retry.RetryIf(func(err error) bool {
			return !errors.Is(err, exec.ErrNotFound)
		}),
		retry.OnRetry(func(n uint, err error) {
			log.Warn().Err(err).Str("engine", name).Uint("attempt", n+1).Msg("engine start failed, retrying")
		}),
	}
	if opts.RetryDelay > 0 {
		retryOpts = append(retryOpts, retry.Delay(opts.RetryDelay))
	}
	var s *Session
	err = retry.Do(func() error {
		var err error
		s, err = startOnce(ctx, name, args, opts)
		return err
	}, retryOpts...)
	if err != nil {
		return nil, err
	}
	return s, nil
}

func startOnce(ctx context.Context, name string, args []string, opts Options) (*Session, error) {
	cmd := exec.Command(args[0], args[1:]...)
	detach(cmd)
	stdin, err := cmd.StdinPipe()
	if err != nil {
		return nil, &OpError{Engine: name, Op: "start", Err: err}
	}
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, &OpError{Engine: name, Op: "start", Err: err}
	}
	if err := cmd.Start(); err != nil {
		return nil, &OpError{Engine: name, Op: "start", Err: err}
	}
	s := NewSession(name, stdout, stdin, opts)
	s.cmd = cmd
	s.log.Debug().Strs("args", args).Int("pid", cmd.Process.Pid).Msg("engine started")
	if err := s.Handshake(ctx); err != nil {
		s.kill()
		return nil, err
	}
	return s, nil
}

// NewSession wraps an already-running engine reachable through r and w.
// The session is Created; call Handshake before querying.
func NewSession(name string, r io.Reader, w io.Writer, opts Options) *Session {
	logger := log.Logger
	if opts.Logger != nil {
		logger = *opts.Logger
	}
	s := &Session{
		name:  name,
		opts:  opts,
		log:   logger.With().Str("engine", name).Logger(),
		w:     w,
		lines: make(chan string, 64),
		stop:  make(chan struct{}),
	}
	go s.pump(r)
	return s
}

// State returns the current lifecycle state.
func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

func (s *Session) pump(r io.Reader) {
	defer close(s.lines)
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 64*1024), maxLineBytes)
	for sc.Scan() {
		select {
		case s.lines <- sc.Text():
		case <-s.stop:
			return
		}
	}
	if err := sc.Err(); err != nil {
		s.log.Debug().Err(err).Msg("engine output closed")
	}
}

func (s *Session) send(format string, args ...any) error {
	line := fmt.Sprintf(format, args...)
	s.log.Trace().Str("cmd", line).Msg(">>")
	_, err := io.WriteString(s.w, line+"\n")
	return err
}

func (s *Session) readLine(ctx context.Context) (string, error) {
	select {
	case line, ok := <-s.lines:
		if !ok {
			return "", ErrEngineExited
		}
		s.log.Trace().Str("line", line).Msg("<<")
		return line, nil
	case <-ctx.Done():
		return "", ctx.Err()
	}
}

// waitFor reads until a line whose first token is token.
func (s *Session) waitFor(ctx context.Context, token string) error {
	for {
		line, err := s.readLine(ctx)
		if err != nil {
			return err
		}
		if fields := strings.Fields(line); len(fields) > 0 && fields[0] == token {
			return nil
		}
	}
}

// Handshake performs uci/uciok, applies the configured engine options and
// waits for readyok. It fails with ErrEngineUnreachable rather than
// hanging when the engine stays silent past the handshake timeout.
func (s *Session) Handshake(ctx context.Context) error {
	s.query.Lock()
	defer s.query.Unlock()
	switch st := s.State(); st {
	case Closed:
		return &OpError{Engine: s.name, Op: "handshake", Err: ErrSessionClosed}
	case Ready:
		return nil
	}
	if timeout := s.opts.handshakeTimeout(); timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}
	unreachable := func(err error) error {
		return &OpError{Engine: s.name, Op: "handshake", Err: fmt.Errorf("%w: %v", ErrEngineUnreachable, err)}
	}
	if err := s.send("uci"); err != nil {
		return unreachable(err)
	}
	if err := s.waitFor(ctx, "uciok"); err != nil {
		return unreachable(err)
	}
	for _, name := range sortedKeys(s.opts.EngineOptions) {
		if err := s.send("setoption name %s value %s", name, s.opts.EngineOptions[name]); err != nil {
			return unreachable(err)
		}
	}
	if err := s.send("isready"); err != nil {
		return unreachable(err)
	}
	if err := s.waitFor(ctx, "readyok"); err != nil {
		return unreachable(err)
	}
	s.mu.Lock()
	if s.state == Created {
		s.state = Ready
	}
	s.mu.Unlock()
	s.log.Debug().Msg("engine ready")
	return nil
}

func (s *Session) begin(op string) error {
	s.query.Lock()
	s.mu.Lock()
	defer s.mu.Unlock()
	switch s.state {
	case Closed:
		s.query.Unlock()
		return &OpError{Engine: s.name, Op: op, Err: ErrSessionClosed}
	case Created:
		s.query.Unlock()
		return &OpError{Engine: s.name, Op: op, Err: ErrNotReady}
	}
	s.state = Querying
	return nil
}

func (s *Session) end() {
	s.mu.Lock()
	if s.state == Querying {
		s.state = Ready
	}
	s.mu.Unlock()
	s.query.Unlock()
}

// fail marks a session whose engine stopped talking; every later call
// fails fast instead of blocking on a dead pipe.
func (s *Session) fail(op string, err error) error {
	s.mu.Lock()
	s.state = Closed
	s.mu.Unlock()
	return &OpError{Engine: s.name, Op: op, Err: err}
}

// EvaluateBest searches fen to a fixed depth and returns the last score
// reported before bestmove. There is no timeout: an engine that never
// answers blocks the caller.
func (s *Session) EvaluateBest(fen string, depth int) (Evaluation, error) {
	const op = "evaluate"
	if err := s.begin(op); err != nil {
		return Evaluation{}, err
	}
	defer s.end()
	if err := s.send("position fen %s", fen); err != nil {
		return Evaluation{}, s.fail(op, err)
	}
	if err := s.send("go depth %d", depth); err != nil {
		return Evaluation{}, s.fail(op, err)
	}
	var ev Evaluation
	for {
		line, err := s.readLine(context.Background())
		if err != nil {
			return Evaluation{}, s.fail(op, err)
		}
		if best, _, ok := ParseBestMove(line); ok {
			ev.BestMove = best
			return ev, nil
		}
		info, ok := ParseInfo(line)
		if !ok || info.MultiPV > 1 {
			continue
		}
		// Deeper iterations overwrite shallower ones, and whichever kind of
		// score arrived last is the one that counts.
		switch {
		case info.Mate != nil:
			ev.Mate, ev.Score, ev.Depth = info.Mate, nil, info.Depth
		case info.Score != nil:
			ev.Score, ev.Mate, ev.Depth = info.Score, nil, info.Depth
		}
	}
}

// TopMoves asks for count principal variations with a minimal-effort
// search, so the answer reflects the engine's first impression rather
// than a deep search. The result always has exactly count entries.
func (s *Session) TopMoves(fen string, count int) ([]string, error) {
	const op = "topmoves"
	if count < 1 {
		return nil, &OpError{Engine: s.name, Op: op, Err: fmt.Errorf("count must be positive, got %d", count)}
	}
	if err := s.begin(op); err != nil {
		return nil, err
	}
	defer s.end()
	if s.multiPV != count {
		if err := s.send("setoption name MultiPV value %d", count); err != nil {
			return nil, s.fail(op, err)
		}
		s.multiPV = count
	}
	if err := s.send("position fen %s", fen); err != nil {
		return nil, s.fail(op, err)
	}
	if err := s.send("go nodes 1"); err != nil {
		return nil, s.fail(op, err)
	}
	var moves []string
	for {
		line, err := s.readLine(context.Background())
		if err != nil {
			return nil, s.fail(op, err)
		}
		if best, _, ok := ParseBestMove(line); ok {
			if best != "" && !lo.Contains(moves, best) {
				moves = append(moves, best)
			}
			return PadMoves(moves, count), nil
		}
		info, ok := ParseInfo(line)
		if !ok || len(info.PV) == 0 {
			continue
		}
		if !lo.Contains(moves, info.PV[0]) {
			moves = append(moves, info.PV[0])
		}
	}
}

// PadMoves returns exactly count moves: duplicates are dropped, a short
// list is padded by repeating its first move, and an empty list becomes
// count null moves.
func PadMoves(moves []string, count int) []string {
	if count < 1 {
		return nil
	}
	out := lo.Uniq(moves)
	if len(out) == 0 {
		return lo.Times(count, func(int) string { return NullMove })
	}
	if len(out) > count {
		return out[:count]
	}
	for len(out) < count {
		out = append(out, out[0])
	}
	return out
}

// Close sends quit and stops the process, killing it if it lingers. A query
// in flight gets the quit grace period to finish; after that the engine's
// input is closed without quit and the query fails with ErrEngineExited.
// Errors are not interesting to callers beyond logging.
func (s *Session) Close() error {
	s.mu.Lock()
	if s.shut {
		s.mu.Unlock()
		return nil
	}
	s.shut = true
	s.state = Closed
	cmd := s.cmd
	s.mu.Unlock()

	if s.lockQuery(s.opts.quitGrace()) {
		_ = s.send("quit")
		s.query.Unlock()
	} else {
		s.log.Warn().Msg("query still running at close, skipping quit")
	}
	if c, ok := s.w.(io.Closer); ok {
		c.Close()
	}
	s.stopPump()
	if cmd == nil {
		return nil
	}
	exited := make(chan error, 1)
	go func() { exited <- cmd.Wait() }()
	select {
	case err := <-exited:
		s.log.Debug().Err(err).Msg("engine exited")
	case <-time.After(s.opts.quitGrace()):
		s.log.Warn().Msg("engine ignored quit, killing")
		_ = cmd.Process.Kill()
		<-exited
	}
	return nil
}

// lockQuery waits up to wait for the query lock.
func (s *Session) lockQuery(wait time.Duration) bool {
	deadline := time.Now().Add(wait)
	for !s.query.TryLock() {
		if time.Now().After(deadline) {
			return false
		}
		time.Sleep(5 * time.Millisecond)
	}
	return true
}

func (s *Session) stopPump() {
	s.stopOnce.Do(func() { close(s.stop) })
}

func (s *Session) kill() {
	s.mu.Lock()
	s.shut = true
	s.state = Closed
	cmd := s.cmd
	s.mu.Unlock()
	if c, ok := s.w.(io.Closer); ok {
		c.Close()
	}
	s.stopPump()
	if cmd != nil && cmd.Process != nil {
		_ = cmd.Process.Kill()
		_ = cmd.Wait()
	}
}
