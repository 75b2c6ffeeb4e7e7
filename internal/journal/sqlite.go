// Package journal keeps an append-only record of every settlement in SQLite.
package journal

import (
	"context"
	cryptorand "crypto/rand"
	"database/sql"
	"encoding/binary"
	"fmt"
	"io"
	mathrand "math/rand"
	"sync"
	"time"

	"wealthsim/internal/game"

	_ "github.com/mattn/go-sqlite3"
	"github.com/oklog/ulid/v2"
)

type SQLite struct {
	db *sql.DB

	mu      sync.Mutex
	entropy io.Reader
}

func NewSQLite(path string) (*SQLite, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(1)
	if _, err := db.Exec(Schema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("apply journal schema: %w", err)
	}

	var seed int64
	_ = binary.Read(cryptorand.Reader, binary.LittleEndian, &seed)
	if seed == 0 {
		seed = time.Now().UnixNano()
	}
	return &SQLite{
		db:      db,
		entropy: ulid.Monotonic(mathrand.New(mathrand.NewSource(seed)), 0),
	}, nil
}

// newID returns a ULID so rows written in one settlement sort in insert order.
func (j *SQLite) newID(at time.Time) (string, error) {
	j.mu.Lock()
	defer j.mu.Unlock()
	id, err := ulid.New(ulid.Timestamp(at), j.entropy)
	if err != nil {
		return "", err
	}
	return id.String(), nil
}

// RecordSettlement writes one row per player inside a single transaction.
func (j *SQLite) RecordSettlement(ctx context.Context, report game.SettlementReport) error {
	tx, err := j.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	settledAt := report.SettledAt.UTC()
	for _, pr := range report.Results {
		id, err := j.newID(settledAt)
		if err != nil {
			return err
		}
		r := pr.Result
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO settlements
			(id, round, player, net_worth, multiple, volatility, risk_adjusted, loan, cash, settled_at)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			id, report.Round, pr.Name, r.NetWorth, r.Multiple, r.Volatility,
			r.RiskAdjusted, r.Loan, r.Cash, settledAt.Format(time.RFC3339Nano),
		); err != nil {
			return fmt.Errorf("insert settlement for %q: %w", pr.Name, err)
		}
	}
	return tx.Commit()
}

// Settlements lists journal rows for one round, or every round when round is 0.
func (j *SQLite) Settlements(ctx context.Context, round int) ([]game.JournalEntry, error) {
	query := `
		SELECT id, round, player, net_worth, multiple, volatility, risk_adjusted, loan, cash, settled_at
		FROM settlements`
	var args []any
	if round > 0 {
		query += ` WHERE round = ?`
		args = append(args, round)
	}
	query += ` ORDER BY id`

	rows, err := j.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := []game.JournalEntry{}
	for rows.Next() {
		var (
			e         game.JournalEntry
			settledAt string
		)
		if err := rows.Scan(&e.ID, &e.Round, &e.Player, &e.NetWorth, &e.Multiple,
			&e.Volatility, &e.RiskAdjusted, &e.Loan, &e.Cash, &settledAt); err != nil {
			return nil, err
		}
		e.SettledAt, err = time.Parse(time.RFC3339Nano, settledAt)
		if err != nil {
			return nil, fmt.Errorf("parse settled_at %q: %w", settledAt, err)
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

func (j *SQLite) Close() error {
	return j.db.Close()
}
