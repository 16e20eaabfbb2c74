package store

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/roach88/enmod/internal/snapshot"
)

// RunInfo is the listing row of a stored run.
type RunInfo struct {
	ID          string    `json:"id"`
	ContentHash string    `json:"content_hash"`
	Solver      string    `json:"solver"`
	Status      string    `json:"status"`
	Objective   float64   `json:"objective"`
	SolvedAt    time.Time `json:"solved_at"`
}

// Save stores snap and returns its listing row. A snapshot without a run
// id is assigned a fresh UUIDv7 first.
//
// Saving a run id that is already stored keeps the first row.
func (s *Store) Save(ctx context.Context, snap *snapshot.Snapshot) (RunInfo, error) {
	if snap.RunID == "" {
		snap.RunID = uuid.Must(uuid.NewV7()).String()
	}
	hash, err := snapshot.ContentHash(snap)
	if err != nil {
		return RunInfo{}, fmt.Errorf("save run: %w", err)
	}
	data, err := snapshot.Encode(snap)
	if err != nil {
		return RunInfo{}, fmt.Errorf("save run: %w", err)
	}

	info := RunInfo{
		ID:          snap.RunID,
		ContentHash: hash,
		Solver:      snap.Solver,
		Status:      snap.Status,
		Objective:   snap.Objective,
		SolvedAt:    snap.SolvedAt.UTC(),
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO runs
		(id, content_hash, solver, status, objective, solved_at, schema_version, snapshot)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO NOTHING
	`,
		info.ID,
		info.ContentHash,
		info.Solver,
		info.Status,
		info.Objective,
		info.SolvedAt.Format(time.RFC3339Nano),
		snap.Version,
		data,
	)
	if err != nil {
		return RunInfo{}, fmt.Errorf("save run: %w", err)
	}

	s.logger.Info("run stored", "run_id", info.ID, "hash", info.ContentHash[:12], "bytes", len(data))
	return info, nil
}

// Delete removes a run. Deleting an unknown id is not an error.
func (s *Store) Delete(ctx context.Context, id string) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM runs WHERE id = ?`, id); err != nil {
		return fmt.Errorf("delete run: %w", err)
	}
	return nil
}
