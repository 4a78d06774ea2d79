package leaderboard

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"

	_ "github.com/mattn/go-sqlite3"
)

// SQLiteStore keeps the board in a single table. Save replaces every row in
// one transaction so the table always holds a complete document.
type SQLiteStore struct {
	db *sql.DB
}

func OpenSQLite(dsn string) (*SQLiteStore, error) {
	dir := filepath.Dir(dsn)
	if dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("mkdir %s: %w", dir, err)
		}
	}

	db, err := sql.Open("sqlite3", dsn+"?_busy_timeout=5000&_journal_mode=WAL")
	if err != nil {
		return nil, err
	}
	if _, err := db.Exec(`CREATE TABLE IF NOT EXISTS leaderboard (
		name TEXT PRIMARY KEY,
		total_points INTEGER NOT NULL DEFAULT 0,
		total_rounds INTEGER NOT NULL DEFAULT 0
	)`); err != nil {
		db.Close()
		return nil, fmt.Errorf("create leaderboard table: %w", err)
	}
	return &SQLiteStore{db: db}, nil
}

func (s *SQLiteStore) Load(ctx context.Context) (Board, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT name, total_points, total_rounds FROM leaderboard`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	board := Board{}
	for rows.Next() {
		var name string
		var e Entry
		if err := rows.Scan(&name, &e.TotalPoints, &e.TotalRounds); err != nil {
			return nil, err
		}
		board[name] = e
	}
	return board, rows.Err()
}

func (s *SQLiteStore) Save(ctx context.Context, b Board) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM leaderboard`); err != nil {
		_ = tx.Rollback()
		return fmt.Errorf("clear leaderboard: %w", err)
	}
	stmt, err := tx.PrepareContext(ctx, `INSERT INTO leaderboard (name, total_points, total_rounds) VALUES (?, ?, ?)`)
	if err != nil {
		_ = tx.Rollback()
		return err
	}
	defer stmt.Close()
	for name, e := range b {
		if _, err := stmt.ExecContext(ctx, name, e.TotalPoints, e.TotalRounds); err != nil {
			_ = tx.Rollback()
			return fmt.Errorf("insert %s: %w", name, err)
		}
	}
	return tx.Commit()
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}
