// Package ucitest provides a scripted UCI engine. It answers "go depth"
// and "go nodes" from a per-position script, which makes engine-driven
// code testable without a real engine binary.
package ucitest

import (
	"bufio"
	"fmt"
	"io"
	"strconv"
	"strings"
	"sync"
)

// Reply is the scripted answer to one search. Info lines are written
// verbatim before the bestmove line. If Moves is set and Info is not, one
// "info ... multipv i ... pv <move>" line is generated per move, limited by
// the current MultiPV setting.
type Reply struct {
	Info     []string `yaml:"info,omitempty"`
	Moves    []string `yaml:"moves,omitempty"`
	BestMove string   `yaml:"bestmove,omitempty"`
}

// Cp is a reply reporting a centipawn score for the side to move.
func Cp(cp int, best string) Reply {
	return Reply{
		Info: []string{
			fmt.Sprintf("info depth 1 seldepth 1 multipv 1 score cp %d nodes 20 pv %s", cp, best),
			fmt.Sprintf("info depth 11 seldepth 14 multipv 1 score cp %d nodes 52341 nps 1200000 time 43 pv %s", cp, best),
		},
		BestMove: best,
	}
}

// Mate is a reply reporting a forced mate; positive n means the side to
// move mates.
func Mate(n int, best string) Reply {
	return Reply{
		Info:     []string{fmt.Sprintf("info depth 11 seldepth 4 multipv 1 score mate %d nodes 812 pv %s", n, best)},
		BestMove: best,
	}
}

// Top is a reply listing candidate moves in preference order.
func Top(moves ...string) Reply {
	r := Reply{Moves: moves}
	if len(moves) > 0 {
		r.BestMove = moves[0]
	}
	return r
}

// Script maps positions to replies. Keys are FEN strings as sent by the
// client.
type Script struct {
	Name string           `yaml:"name"`
	Best map[string]Reply `yaml:"best"`
	Top  map[string]Reply `yaml:"top"`
	// Default answers positions missing from the maps.
	Default Reply `yaml:"default"`
	// Mute makes the engine ignore "uci" forever.
	Mute bool `yaml:"mute"`
	// HangupOnGo makes the engine exit when asked to search.
	HangupOnGo bool `yaml:"hangup_on_go"`
	// StallOnGo makes the engine accept searches and never answer them.
	StallOnGo bool `yaml:"stall_on_go"`
}

// Engine serves one Script. It is safe to inspect Commands while Serve runs.
type Engine struct {
	script Script

	mu       sync.Mutex
	commands []string
	options  map[string]string
	fen      string
	multiPV  int
}

func New(script Script) *Engine {
	return &Engine{script: script, options: map[string]string{}, multiPV: 1}
}

// Commands returns every line received so far.
func (e *Engine) Commands() []string {
	e.mu.Lock()
	defer e.mu.Unlock()
	return append([]string(nil), e.commands...)
}

// Searches counts the "go" commands received.
func (e *Engine) Searches() int {
	n := 0
	for _, c := range e.Commands() {
		if strings.HasPrefix(c, "go") {
			n++
		}
	}
	return n
}

// Option returns the last value set for an engine option.
func (e *Engine) Option(name string) string {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.options[strings.ToLower(name)]
}

// Serve runs the UCI loop until "quit" or end of input.
func (e *Engine) Serve(r io.Reader, w io.Writer) error {
	scanner := bufio.NewScanner(r)
	out := bufio.NewWriter(w)
	defer out.Flush()
	say := func(format string, args ...any) {
		fmt.Fprintf(out, format+"\n", args...)
	}
	for scanner.Scan() {
		line := scanner.Text()
		tokens := strings.Fields(line)
		if len(tokens) == 0 {
			continue
		}
		e.mu.Lock()
		e.commands = append(e.commands, line)
		e.mu.Unlock()

		switch strings.ToLower(tokens[0]) {
		case "uci":
			if e.script.Mute {
				continue
			}
			name := e.script.Name
			if name == "" {
				name = "ucitest"
			}
			say("id name %s", name)
			say("id author puzzle-rater")
			say("option name MultiPV type spin default 1 min 1 max 500")
			say("uciok")
		case "isready":
			say("readyok")
		case "ucinewgame":
			e.setPosition("")
		case "quit":
			return out.Flush()
		case "setoption":
			e.setOption(tokens)
		case "position":
			fen, err := parsePosition(tokens)
			if err != nil {
				say("info string %v", err)
				continue
			}
			e.setPosition(fen)
		case "go":
			if e.script.HangupOnGo {
				return out.Flush()
			}
			if e.script.StallOnGo {
				continue
			}
			e.search(tokens, say)
		default:
			say("info string Unknown command: %s", line)
		}
		if err := out.Flush(); err != nil {
			return err
		}
	}
	return scanner.Err()
}

func (e *Engine) setPosition(fen string) {
	e.mu.Lock()
	e.fen = fen
	e.mu.Unlock()
}

func (e *Engine) setOption(tokens []string) {
	// setoption name <name...> value <value...>
	var name, value []string
	var into *[]string
	for _, tok := range tokens[1:] {
		switch strings.ToLower(tok) {
		case "name":
			into = &name
		case "value":
			into = &value
		default:
			if into != nil {
				*into = append(*into, tok)
			}
		}
	}
	key := strings.ToLower(strings.Join(name, " "))
	val := strings.Join(value, " ")
	e.mu.Lock()
	defer e.mu.Unlock()
	e.options[key] = val
	if key == "multipv" {
		if n, err := strconv.Atoi(val); err == nil && n > 0 {
			e.multiPV = n
		}
	}
}

func parsePosition(tokens []string) (string, error) {
	if len(tokens) < 2 {
		return "", fmt.Errorf("malformed position command")
	}
	switch strings.ToLower(tokens[1]) {
	case "startpos":
		return "rnbqkbnr/pppppppp/8/8/8/8/PPPPPPPP/RNBQKBNR w KQkq - 0 1", nil
	case "fen":
		var fen []string
		for _, tok := range tokens[2:] {
			if strings.ToLower(tok) == "moves" {
				break
			}
			fen = append(fen, tok)
		}
		if len(fen) == 0 {
			return "", fmt.Errorf("invalid fen position")
		}
		return strings.Join(fen, " "), nil
	}
	return "", fmt.Errorf("invalid position subcommand")
}

func (e *Engine) search(tokens []string, say func(string, ...any)) {
	shallow := len(tokens) > 1 && strings.ToLower(tokens[1]) == "nodes"
	e.mu.Lock()
	fen, multiPV := e.fen, e.multiPV
	table := e.script.Best
	if shallow {
		table = e.script.Top
	}
	reply, ok := table[fen]
	e.mu.Unlock()
	if !ok {
		reply = e.script.Default
	}

	if len(reply.Info) > 0 {
		for _, l := range reply.Info {
			say("%s", l)
		}
	} else {
		for i, mv := range reply.Moves {
			if i >= multiPV {
				break
			}
			say("info depth 1 seldepth 1 multipv %d score cp %d nodes 1 pv %s", i+1, -10*i, mv)
		}
	}
	best := reply.BestMove
	if best == "" {
		best = "(none)"
	}
	say("bestmove %s", best)
}

// Pipe starts an Engine for script on in-memory pipes. The returned
// reader carries the engine's output and the writer feeds its input.
func Pipe(script Script) (fromEngine io.Reader, toEngine io.WriteCloser, e *Engine) {
	inR, inW := io.Pipe()
	outR, outW := io.Pipe()
	e = New(script)
	go func() {
		err := e.Serve(inR, outW)
		outW.CloseWithError(err)
		inR.Close()
	}()
	return outR, inW, e
}
