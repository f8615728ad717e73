package uci

import (
	"strconv"
	"strings"
)

// NullMove is the UCI null move. TopMoves degrades to it when the engine
// proposes nothing, so callers see an illegal move rather than an empty set.
const NullMove = "0000"

// Bound qualifies a score that came from an aspiration window fail.
type Bound string

const (
	Exact      Bound = ""
	LowerBound Bound = "lowerbound"
	UpperBound Bound = "upperbound"
)

// Info is one parsed "info" line.
type Info struct {
	Depth    int
	SelDepth int
	MultiPV  int
	Score    *int
	Mate     *int
	Bound    Bound
	Nodes    int64
	PV       []string
}

// Evaluation is the engine's verdict on one position. Score and Mate are
// from the point of view of the side to move in the queried position; at
// most one of them is set and Mate wins when both were reported.
type Evaluation struct {
	Score    *int
	Mate     *int
	BestMove string
	Depth    int
}

// HasVerdict reports whether the engine produced a score or a mate.
func (e Evaluation) HasVerdict() bool {
	return e.Score != nil || e.Mate != nil
}

// String renders the score the way GUIs do: "+1.25", "-0.50", "#3", "#-5".
func (e Evaluation) String() string {
	if e.Mate != nil {
		return "#" + strconv.Itoa(*e.Mate)
	}
	if e.Score == nil {
		return "?"
	}
	cp := *e.Score
	sign := "+"
	if cp < 0 {
		sign = "-"
		cp = -cp
	}
	frac := cp % 100
	if frac < 10 {
		return sign + strconv.Itoa(cp/100) + ".0" + strconv.Itoa(frac)
	}
	return sign + strconv.Itoa(cp/100) + "." + strconv.Itoa(frac)
}

// ParseInfo parses an "info" line. Lines that are not info lines, and
// "info string" chatter, return ok=false.
func ParseInfo(line string) (info Info, ok bool) {
	tokens := strings.Fields(line)
	if len(tokens) < 2 || tokens[0] != "info" || tokens[1] == "string" {
		return Info{}, false
	}
	for i := 1; i < len(tokens); i++ {
		switch tokens[i] {
		case "depth":
			info.Depth, i = intAt(tokens, i+1), i+1
		case "seldepth":
			info.SelDepth, i = intAt(tokens, i+1), i+1
		case "multipv":
			info.MultiPV, i = intAt(tokens, i+1), i+1
		case "nodes":
			if i+1 < len(tokens) {
				info.Nodes, _ = strconv.ParseInt(tokens[i+1], 10, 64)
			}
			i++
		case "score":
			if i+2 >= len(tokens) {
				return info, true
			}
			v, err := strconv.Atoi(tokens[i+2])
			if err != nil {
				i += 2
				continue
			}
			switch tokens[i+1] {
			case "cp":
				info.Score, info.Mate = &v, nil
			case "mate":
				info.Mate, info.Score = &v, nil
			}
			i += 2
			if i+1 < len(tokens) && (tokens[i+1] == string(LowerBound) || tokens[i+1] == string(UpperBound)) {
				info.Bound = Bound(tokens[i+1])
				i++
			}
		case "wdl":
			i += 3
		case "currmove", "currmovenumber", "time", "nps", "hashfull", "tbhits", "cpuload", "refutation", "currline", "sbhits":
			i++
		case "pv":
			info.PV = append([]string(nil), tokens[i+1:]...)
			return info, true
		case "string":
			return info, true
		}
	}
	return info, true
}

// ParseBestMove parses a "bestmove" line. An engine with no move to play
// reports "(none)" or "0000"; both come back as "".
func ParseBestMove(line string) (move, ponder string, ok bool) {
	tokens := strings.Fields(line)
	if len(tokens) == 0 || tokens[0] != "bestmove" {
		return "", "", false
	}
	if len(tokens) > 1 && tokens[1] != "(none)" && tokens[1] != NullMove {
		move = tokens[1]
	}
	if len(tokens) > 3 && tokens[2] == "ponder" {
		ponder = tokens[3]
	}
	return move, ponder, true
}

func intAt(tokens []string, i int) int {
	if i >= len(tokens) {
		return 0
	}
	v, _ := strconv.Atoi(tokens[i])
	return v
}
