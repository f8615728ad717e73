// Package position wraps a chess board into an immutable value that knows
// its legal moves and can produce successor positions.
package position

import (
	"errors"
	"fmt"
	"math/bits"
	"strings"

	"github.com/dylhunn/dragontoothmg"
	"github.com/notnil/chess"
)

// Startpos is the FEN of the standard initial position.
const Startpos = "rnbqkbnr/pppppppp/8/8/8/8/PPPPPPPP/RNBQKBNR w KQkq - 0 1"

var (
	ErrInvalidFEN  = errors.New("invalid fen")
	ErrIllegalMove = errors.New("illegal move")
)

// Color is the side to move.
type Color uint8

const (
	White Color = iota
	Black
)

func (c Color) String() string {
	if c == White {
		return "white"
	}
	return "black"
}

// Other returns the opposing color.
func (c Color) Other() Color {
	return c ^ 1
}

// Status describes whether the side to move still has a game to play.
type Status uint8

const (
	Ongoing Status = iota
	// Checkmate means the side to move is mated.
	Checkmate
	Stalemate
)

func (s Status) String() string {
	switch s {
	case Checkmate:
		return "checkmate"
	case Stalemate:
		return "stalemate"
	}
	return "ongoing"
}

// Position is a board state. Apply never mutates the receiver; it returns
// a new Position.
type Position struct {
	fen   string
	board dragontoothmg.Board
	legal []dragontoothmg.Move
}

// Parse validates fen and builds a Position from it.
func Parse(fen string) (*Position, error) {
	fields := strings.Fields(fen)
	if len(fields) == 4 {
		// EPD-style records omit the move counters.
		fields = append(fields, "0", "1")
	}
	fen = strings.Join(fields, " ")
	if _, err := chess.FEN(fen); err != nil {
		return nil, fmt.Errorf("%w: %q: %v", ErrInvalidFEN, fen, err)
	}
	board, err := parseBoard(fen)
	if err != nil {
		return nil, err
	}
	if bits.OnesCount64(board.White.Kings) != 1 || bits.OnesCount64(board.Black.Kings) != 1 {
		return nil, fmt.Errorf("%w: %q: each side needs exactly one king", ErrInvalidFEN, fen)
	}
	return newPosition(board), nil
}

// MustParse is Parse for known-good FENs; it panics on error.
func MustParse(fen string) *Position {
	p, err := Parse(fen)
	if err != nil {
		panic(err)
	}
	return p
}

// dragontoothmg indexes into the FEN without bounds checks, so a
// structurally odd string that slipped past validation is turned into an
// error here rather than a crash.
func parseBoard(fen string) (b dragontoothmg.Board, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("%w: %q: %v", ErrInvalidFEN, fen, r)
		}
	}()
	b = dragontoothmg.ParseFen(fen)
	return b, nil
}

func newPosition(b dragontoothmg.Board) *Position {
	return &Position{
		fen:   b.ToFen(),
		board: b,
		legal: b.GenerateLegalMoves(),
	}
}

// FEN returns the serialized position.
func (p *Position) FEN() string {
	return p.fen
}

func (p *Position) String() string {
	return p.fen
}

// SideToMove returns whose move it is.
func (p *Position) SideToMove() Color {
	if p.board.Wtomove {
		return White
	}
	return Black
}

// LegalMoves returns the legal moves in UCI notation.
func (p *Position) LegalMoves() []string {
	moves := make([]string, 0, len(p.legal))
	for _, m := range p.legal {
		moves = append(moves, m.String())
	}
	return moves
}

// IsLegal reports whether the UCI move is legal here.
func (p *Position) IsLegal(uci string) bool {
	_, ok := p.find(uci)
	return ok
}

func (p *Position) find(uci string) (dragontoothmg.Move, bool) {
	uci = strings.ToLower(strings.TrimSpace(uci))
	if len(uci) < 4 || len(uci) > 5 {
		return 0, false
	}
	for _, m := range p.legal {
		if m.String() == uci {
			return m, true
		}
	}
	return 0, false
}

// Apply plays a UCI move and returns the resulting position. Moves that are
// not legal here, including unparsable strings and the null move, return
// ErrIllegalMove.
func (p *Position) Apply(uci string) (*Position, error) {
	m, ok := p.find(uci)
	if !ok {
		return nil, fmt.Errorf("%w: %q in %s", ErrIllegalMove, uci, p.fen)
	}
	next := p.board
	next.Apply(m)
	return newPosition(next), nil
}

// Status reports whether the side to move is mated, stalemated, or still
// playing.
func (p *Position) Status() Status {
	if len(p.legal) > 0 {
		return Ongoing
	}
	if p.board.OurKingInCheck() {
		return Checkmate
	}
	return Stalemate
}

// SAN renders a legal UCI move in standard algebraic notation. Moves that
// cannot be rendered are returned unchanged.
func (p *Position) SAN(uci string) string {
	if !p.IsLegal(uci) {
		return uci
	}
	uci = strings.ToLower(strings.TrimSpace(uci))
	opt, err := chess.FEN(p.fen)
	if err != nil {
		return uci
	}
	pos := chess.NewGame(opt).Position()
	m, err := chess.UCINotation{}.Decode(pos, uci)
	if err != nil {
		return uci
	}
	return chess.AlgebraicNotation{}.Encode(pos, m)
}
