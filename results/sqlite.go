package results

import (
	"database/sql"
	"fmt"

	_ "modernc.org/sqlite"
)

const schema = `CREATE TABLE IF NOT EXISTS ratings (
	fen        TEXT NOT NULL,
	rating     INTEGER NOT NULL,
	created_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP
)`

// SQLite stores ratings in a single table.
type SQLite struct {
	db *sql.DB
}

func OpenSQLite(path string) (*SQLite, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}
	// One writer; the driver serializes anyway.
	db.SetMaxOpenConns(1)
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("creating schema in %s: %w", path, err)
	}
	return &SQLite{db: db}, nil
}

func (s *SQLite) Append(fen string, rating int) error {
	_, err := s.db.Exec(`INSERT INTO ratings (fen, rating) VALUES (?, ?)`, fen, rating)
	return err
}

// Ratings returns the latest rating stored for each FEN.
func (s *SQLite) Ratings() (map[string]int, error) {
	rows, err := s.db.Query(`SELECT fen, rating FROM ratings ORDER BY rowid`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := map[string]int{}
	for rows.Next() {
		var r Record
		if err := rows.Scan(&r.FEN, &r.Rating); err != nil {
			return nil, err
		}
		out[r.FEN] = r.Rating
	}
	return out, rows.Err()
}

func (s *SQLite) Close() error {
	return s.db.Close()
}
