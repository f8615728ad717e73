package pipeline

import (
	"bufio"
	"io"
	"strings"
)

// ReadPositions returns the non-blank lines of r, trimmed. Validation is
// left to the pipeline so a bad line costs only itself.
func ReadPositions(r io.Reader) ([]string, error) {
	var fens []string
	sc := bufio.NewScanner(r)
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if line == "" {
			continue
		}
		fens = append(fens, line)
	}
	return fens, sc.Err()
}
