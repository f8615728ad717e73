// Command fakeuci is a scripted UCI engine for dry runs of the rater. It
// answers searches from a YAML script instead of thinking:
//
//	name: weak-1500
//	top:
//	  "<fen>": {moves: [e2e4, d2d4]}
//	best:
//	  "<fen>": {info: ["info depth 11 score cp 35 pv d2d4"], bestmove: d2d4}
//	default: {bestmove: "(none)"}
package main

import (
	"flag"
	"fmt"
	"os"

	"puzzle-rater/uci/ucitest"
)

func main() {
	script := flag.String("script", "", "YAML script (required)")
	flag.Parse()
	if *script == "" {
		fmt.Fprintln(os.Stderr, "Usage:")
		flag.PrintDefaults()
		os.Exit(2)
	}
	s, err := ucitest.LoadScript(*script)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	if err := ucitest.New(s).Serve(os.Stdin, os.Stdout); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
