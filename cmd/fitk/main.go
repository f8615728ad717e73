// Command fitk refits the centipawn to win-percentage slope from a CSV of
// "centipawns,result" rows, where result is 1-0, 0-1, 1/2-1/2 or a number
// in [0,1] from the same side's point of view.
package main

import (
	"encoding/csv"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"puzzle-rater/winprob"
)

var (
	dataPath = flag.String("data", "", "Path to CSV with centipawns and result")
	k0       = flag.Float64("k", winprob.DefaultK, "Starting slope")
	maxRows  = flag.Int("max_rows", 0, "Optional cap on rows loaded (0=all)")
)

func main() {
	flag.Parse()
	if *dataPath == "" {
		fmt.Println("Usage:")
		flag.PrintDefaults()
		os.Exit(2)
	}
	f, err := os.Open(*dataPath)
	if err != nil {
		panic(err)
	}
	samples, err := loadSamples(f, *maxRows)
	f.Close()
	if err != nil {
		panic(err)
	}
	fmt.Printf("Loaded %d samples\n", len(samples))

	m, err := winprob.FitK(samples, *k0)
	if err != nil {
		panic(err)
	}
	fmt.Printf("k=%.8f loss=%.6f (start k=%.8f loss=%.6f)\n",
		m.K, winprob.Loss(m.K, samples), *k0, winprob.Loss(*k0, samples))
	fmt.Printf("+150cp -> %.2f%%\n", m.FromCentipawns(150))
}

func loadSamples(r io.Reader, max int) ([]winprob.Sample, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1
	cr.Comment = '#'
	var out []winprob.Sample
	for line := 1; ; line++ {
		rec, err := cr.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, err
		}
		if len(rec) < 2 {
			return nil, fmt.Errorf("line %d: want 2 fields, got %d", line, len(rec))
		}
		cp, err := strconv.ParseFloat(strings.TrimSpace(rec[0]), 64)
		if err != nil {
			if line == 1 {
				// header
				continue
			}
			return nil, fmt.Errorf("line %d: %w", line, err)
		}
		res, err := winprob.ParseResult(rec[1])
		if err != nil {
			return nil, fmt.Errorf("line %d: %w", line, err)
		}
		out = append(out, winprob.Sample{Centipawns: cp, Result: res})
		if max > 0 && len(out) >= max {
			break
		}
	}
	return out, nil
}
