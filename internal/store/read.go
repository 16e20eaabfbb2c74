package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/roach88/enmod/internal/snapshot"
)

// ErrNotFound is returned when no run matches.
var ErrNotFound = errors.New("run not found")

// Load reads and decodes the run with the given id. The stored content
// hash is checked against the decoded snapshot.
func (s *Store) Load(ctx context.Context, id string) (*snapshot.Snapshot, error) {
	var (
		hash string
		data []byte
	)
	err := s.db.QueryRowContext(ctx, `
		SELECT content_hash, snapshot
		FROM runs
		WHERE id = ?
	`, id).Scan(&hash, &data)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("load run %s: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("load run %s: %w", id, err)
	}

	snap, err := snapshot.Decode(data)
	if err != nil {
		return nil, fmt.Errorf("load run %s: %w", id, err)
	}
	got, err := snapshot.ContentHash(snap)
	if err != nil {
		return nil, fmt.Errorf("load run %s: %w", id, err)
	}
	if got != hash {
		return nil, fmt.Errorf("load run %s: content hash mismatch: stored %s, computed %s", id, hash, got)
	}
	return snap, nil
}

// Latest returns the most recently created run.
func (s *Store) Latest(ctx context.Context) (*snapshot.Snapshot, error) {
	var id string
	err := s.db.QueryRowContext(ctx, `
		SELECT id FROM runs
		ORDER BY id DESC COLLATE BINARY
		LIMIT 1
	`).Scan(&id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("latest run: %w", ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("latest run: %w", err)
	}
	return s.Load(ctx, id)
}

// List returns all runs in creation order.
func (s *Store) List(ctx context.Context) ([]RunInfo, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, content_hash, solver, status, objective, solved_at
		FROM runs
		ORDER BY id ASC COLLATE BINARY
	`)
	if err != nil {
		return nil, fmt.Errorf("list runs: %w", err)
	}
	defer rows.Close()
	return scanRuns(rows)
}

// FindByHash returns the runs whose snapshot has the given content hash,
// in creation order.
func (s *Store) FindByHash(ctx context.Context, hash string) ([]RunInfo, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, content_hash, solver, status, objective, solved_at
		FROM runs
		WHERE content_hash = ?
		ORDER BY id ASC COLLATE BINARY
	`, hash)
	if err != nil {
		return nil, fmt.Errorf("find runs: %w", err)
	}
	defer rows.Close()
	return scanRuns(rows)
}

func scanRuns(rows *sql.Rows) ([]RunInfo, error) {
	var out []RunInfo
	for rows.Next() {
		var (
			info     RunInfo
			solvedAt string
		)
		if err := rows.Scan(&info.ID, &info.ContentHash, &info.Solver, &info.Status, &info.Objective, &solvedAt); err != nil {
			return nil, fmt.Errorf("scan run: %w", err)
		}
		t, err := time.Parse(time.RFC3339Nano, solvedAt)
		if err != nil {
			return nil, fmt.Errorf("scan run %s: %w", info.ID, err)
		}
		info.SolvedAt = t
		out = append(out, info)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate runs: %w", err)
	}
	return out, nil
}
