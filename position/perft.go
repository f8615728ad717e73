package position

import "github.com/dylhunn/dragontoothmg"

// Perft counts the leaf nodes of the legal move tree to the given depth.
func Perft(p *Position, depth int) uint64 {
	if depth <= 0 {
		return 1
	}
	b := p.board
	return perft(&b, depth)
}

func perft(b *dragontoothmg.Board, depth int) uint64 {
	moves := b.GenerateLegalMoves()
	if depth == 1 {
		return uint64(len(moves))
	}
	var nodes uint64
	for _, m := range moves {
		unapply := b.Apply(m)
		nodes += perft(b, depth-1)
		unapply()
	}
	return nodes
}

// PerftDivide returns the perft count below each root move.
func PerftDivide(p *Position, depth int) map[string]uint64 {
	out := make(map[string]uint64, len(p.legal))
	if depth <= 0 {
		return out
	}
	b := p.board
	for _, m := range p.legal {
		unapply := b.Apply(m)
		if depth == 1 {
			out[m.String()] = 1
		} else {
			out[m.String()] = perft(&b, depth-1)
		}
		unapply()
	}
	return out
}
