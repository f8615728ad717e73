// Package results persists one rating per puzzle position.
package results

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
)

const header = "FEN\tRating"

// Record is one rated position.
type Record struct {
	FEN    string
	Rating int
}

// Store receives ratings as they are produced.
type Store interface {
	Append(fen string, rating int) error
	Close() error
}

// IsSQLite reports whether path names a database rather than a TSV file.
func IsSQLite(path string) bool {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".db", ".sqlite", ".sqlite3":
		return true
	}
	return false
}

// Open picks the store from the file extension.
func Open(path string) (Store, error) {
	if IsSQLite(path) {
		return OpenSQLite(path)
	}
	return OpenTSV(path)
}

// Existing returns what an earlier run already stored at path. A missing
// file is not an error.
func Existing(path string) (map[string]int, error) {
	if IsSQLite(path) {
		if _, err := os.Stat(path); errors.Is(err, fs.ErrNotExist) {
			return map[string]int{}, nil
		}
		db, err := OpenSQLite(path)
		if err != nil {
			return nil, err
		}
		defer db.Close()
		return db.Ratings()
	}
	f, err := os.Open(path)
	if errors.Is(err, fs.ErrNotExist) {
		return map[string]int{}, nil
	}
	if err != nil {
		return nil, err
	}
	defer f.Close()
	recs, err := ReadTSV(f)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	out := make(map[string]int, len(recs))
	for _, r := range recs {
		out[r.FEN] = r.Rating
	}
	return out, nil
}

// TSV appends tab-separated records to a file, writing the header only
// when the file is new.
type TSV struct {
	mu sync.Mutex
	f  *os.File
	w  *bufio.Writer
}

func OpenTSV(path string) (*TSV, error) {
	_, err := os.Stat(path)
	fresh := errors.Is(err, fs.ErrNotExist)
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_APPEND, 0o644)
	if err != nil {
		return nil, err
	}
	t := &TSV{f: f, w: bufio.NewWriter(f)}
	if fresh {
		if _, err := t.w.WriteString(header + "\n"); err != nil {
			f.Close()
			return nil, err
		}
		if err := t.w.Flush(); err != nil {
			f.Close()
			return nil, err
		}
	}
	return t, nil
}

// Append writes one line and flushes it, so an interrupted run keeps every
// rating it finished.
func (t *TSV) Append(fen string, rating int) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.f == nil {
		return os.ErrClosed
	}
	fmt.Fprintf(t.w, "%s\t%d\n", fen, rating)
	return t.w.Flush()
}

func (t *TSV) Close() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.f == nil {
		return nil
	}
	err := t.w.Flush()
	if cerr := t.f.Close(); err == nil {
		err = cerr
	}
	t.f = nil
	return err
}

// ReadTSV parses a result file. The header line is optional and blank
// lines are ignored.
func ReadTSV(r io.Reader) ([]Record, error) {
	var recs []Record
	sc := bufio.NewScanner(r)
	lineno := 0
	for sc.Scan() {
		lineno++
		line := strings.TrimRight(sc.Text(), "\r")
		if strings.TrimSpace(line) == "" || line == header {
			continue
		}
		fen, rating, ok := strings.Cut(line, "\t")
		if !ok {
			return nil, fmt.Errorf("line %d: missing tab", lineno)
		}
		n, err := strconv.Atoi(strings.TrimSpace(rating))
		if err != nil {
			return nil, fmt.Errorf("line %d: bad rating %q", lineno, rating)
		}
		recs = append(recs, Record{FEN: fen, Rating: n})
	}
	return recs, sc.Err()
}
