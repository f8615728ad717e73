package position

import (
	"errors"
	"testing"

	"github.com/matryer/is"
)

const kiwipete = "r3k2r/p1ppqpb1/bn2pnp1/3PN3/1p2P3/2N2Q1p/PPPBBPPP/R3K2R w KQkq - 0 1"

func TestPerftInitialPosition(t *testing.T) {
	is := is.New(t)
	p, err := Parse(Startpos)
	is.NoErr(err)
	is.Equal(Perft(p, 1), uint64(20))
	is.Equal(Perft(p, 2), uint64(400))
	is.Equal(Perft(p, 3), uint64(8902))
}

func TestPerftKiwipete(t *testing.T) {
	is := is.New(t)
	p, err := Parse(kiwipete)
	is.NoErr(err)
	is.Equal(Perft(p, 1), uint64(48))
	is.Equal(Perft(p, 2), uint64(2039))
}

func TestPerftDivideSumsToPerft(t *testing.T) {
	is := is.New(t)
	p := MustParse(kiwipete)
	var sum uint64
	for _, n := range PerftDivide(p, 2) {
		sum += n
	}
	is.Equal(sum, Perft(p, 2))
}

func TestParseRejectsMalformed(t *testing.T) {
	is := is.New(t)
	for _, fen := range []string{
		"",
		"not a fen",
		"rnbqkbnr/pppppppp/8/8/8/8/PPPPPPPP w KQkq - 0 1",
		"rnbqkbnr/pppppppp/8/8/8/8/PPPPPPPP/RNBQKBNR x KQkq - 0 1",
		"8/8/8/8/8/8/8/8 w - - 0 1",
	} {
		_, err := Parse(fen)
		is.True(errors.Is(err, ErrInvalidFEN))
	}
}

func TestSideToMove(t *testing.T) {
	is := is.New(t)
	p := MustParse(Startpos)
	is.Equal(p.SideToMove(), White)
	next, err := p.Apply("e2e4")
	is.NoErr(err)
	is.Equal(next.SideToMove(), Black)
	is.Equal(White.Other(), Black)
}

func TestApplyDoesNotMutate(t *testing.T) {
	is := is.New(t)
	p := MustParse(Startpos)
	before := p.FEN()
	next, err := p.Apply("g1f3")
	is.NoErr(err)
	is.Equal(p.FEN(), before)
	is.True(next.FEN() != before)
	is.Equal(len(p.LegalMoves()), 20)
}

func TestApplyRejectsIllegal(t *testing.T) {
	is := is.New(t)
	p := MustParse(Startpos)
	for _, mv := range []string{"e2e5", "e7e5", "0000", "a1a1", "", "zz", "e2e4q"} {
		next, err := p.Apply(mv)
		is.True(errors.Is(err, ErrIllegalMove))
		is.True(next == nil)
		is.True(!p.IsLegal(mv))
	}
}

func TestApplyRoundTripsThroughFEN(t *testing.T) {
	is := is.New(t)
	p := MustParse(kiwipete)
	for _, mv := range p.LegalMoves() {
		next, err := p.Apply(mv)
		is.NoErr(err)
		again, err := Parse(next.FEN())
		is.NoErr(err)
		is.Equal(again.FEN(), next.FEN())
		is.Equal(len(again.LegalMoves()), len(next.LegalMoves()))
	}
}

func TestPromotion(t *testing.T) {
	is := is.New(t)
	p := MustParse("8/P6k/8/8/8/8/8/K7 w - - 0 1")
	is.True(p.IsLegal("a7a8q"))
	is.True(p.IsLegal("a7a8n"))
	is.True(!p.IsLegal("a7a8"))
	next, err := p.Apply("A7A8Q")
	is.NoErr(err)
	is.Equal(next.SideToMove(), Black)
}

func TestCheckmateFoolsMate(t *testing.T) {
	is := is.New(t)
	// Black just played Qh4#.
	p := MustParse("rnb1kbnr/pppp1ppp/8/4p3/6Pq/5P2/PPPPP2P/RNBQKBNR w KQkq - 1 3")
	is.Equal(p.Status(), Checkmate)
	is.Equal(len(p.LegalMoves()), 0)
}

func TestStalemate(t *testing.T) {
	is := is.New(t)
	p := MustParse("7k/5Q2/6K1/8/8/8/8/8 b - - 0 1")
	is.Equal(p.Status(), Stalemate)
}

func TestMateInOneMakeAndDetect(t *testing.T) {
	is := is.New(t)
	p := MustParse("7k/6pp/6Q1/8/8/2B5/8/6K1 w - - 0 1")
	is.Equal(p.Status(), Ongoing)
	next, err := p.Apply("g6g7")
	is.NoErr(err)
	is.Equal(next.Status(), Checkmate)
}

func TestSAN(t *testing.T) {
	is := is.New(t)
	p := MustParse(Startpos)
	is.Equal(p.SAN("g1f3"), "Nf3")
	is.Equal(p.SAN("e2e4"), "e4")
	is.Equal(p.SAN("e2e5"), "e2e5")
}

func TestParseFillsMissingCounters(t *testing.T) {
	is := is.New(t)
	p, err := Parse("rnbqkbnr/pppppppp/8/8/4P3/8/PPPP1PPP/RNBQKBNR b KQkq -")
	is.NoErr(err)
	is.Equal(p.SideToMove(), Black)
	is.Equal(len(p.LegalMoves()), 20)
}
