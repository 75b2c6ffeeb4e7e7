package db

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"wealthsim/internal/game"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

const snapshotSchema = `
CREATE TABLE IF NOT EXISTS game_snapshots (
	game_id TEXT PRIMARY KEY,
	version BIGINT NOT NULL,
	payload JSONB NOT NULL,
	taken_at TIMESTAMPTZ NOT NULL
)`

// querier is the subset of *pgxpool.Pool the snapshot store needs.
type querier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// Snapshots keeps the latest store snapshot per game in Postgres.
type Snapshots struct {
	db     querier
	gameID string
}

func NewSnapshots(db querier, gameID string) *Snapshots {
	if gameID == "" {
		gameID = "default"
	}
	return &Snapshots{db: db, gameID: gameID}
}

func (s *Snapshots) EnsureSchema(ctx context.Context) error {
	if _, err := s.db.Exec(ctx, snapshotSchema); err != nil {
		return fmt.Errorf("create snapshot table: %w", err)
	}
	return nil
}

// SaveSnapshot upserts the snapshot unless a newer version is already stored.
func (s *Snapshots) SaveSnapshot(ctx context.Context, snap game.Snapshot) error {
	payload, err := json.Marshal(snap)
	if err != nil {
		return fmt.Errorf("encode snapshot: %w", err)
	}
	_, err = s.db.Exec(ctx, `
		INSERT INTO game_snapshots (game_id, version, payload, taken_at)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (game_id) DO UPDATE
		SET version = EXCLUDED.version,
			payload = EXCLUDED.payload,
			taken_at = EXCLUDED.taken_at
		WHERE game_snapshots.version < EXCLUDED.version
	`, s.gameID, snap.Version, payload, snap.TakenAt)
	if err != nil {
		return fmt.Errorf("save snapshot v%d: %w", snap.Version, err)
	}
	return nil
}

// LoadLatest returns the stored snapshot. ok is false when nothing was saved.
func (s *Snapshots) LoadLatest(ctx context.Context) (snap game.Snapshot, ok bool, err error) {
	var payload []byte
	err = s.db.QueryRow(ctx, `
		SELECT payload FROM game_snapshots WHERE game_id = $1
	`, s.gameID).Scan(&payload)
	if errors.Is(err, pgx.ErrNoRows) {
		return game.Snapshot{}, false, nil
	}
	if err != nil {
		return game.Snapshot{}, false, fmt.Errorf("load snapshot: %w", err)
	}
	if err := json.Unmarshal(payload, &snap); err != nil {
		return game.Snapshot{}, false, fmt.Errorf("decode snapshot: %w", err)
	}
	return snap, true, nil
}
