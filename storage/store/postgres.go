package store

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v4/pgxpool"
	"github.com/sirupsen/logrus"
)

const createJournalTable = `
CREATE TABLE IF NOT EXISTS tx_journal (
	ref        TEXT PRIMARY KEY,
	kind       TEXT NOT NULL,
	tx_hash    TEXT NOT NULL,
	status     TEXT NOT NULL,
	height     BIGINT NOT NULL DEFAULT 0,
	error      TEXT NOT NULL DEFAULT '',
	created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
	updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
)`

// PostgresJournal is the Postgres-backed transaction journal.
type PostgresJournal struct {
	pool   *pgxpool.Pool
	logger *logrus.Logger
}

var _ TxJournal = (*PostgresJournal)(nil) // Compile-time interface check

// NewPostgresJournal connects to Postgres and ensures the journal table
// exists.
func NewPostgresJournal(ctx context.Context, dsn string, minConns, maxConns int, logger *logrus.Logger) (*PostgresJournal, error) {
	if logger == nil {
		logger = logrus.New()
	}

	poolCfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to parse journal DSN: %w", err)
	}
	poolCfg.MinConns = int32(minConns)
	poolCfg.MaxConns = int32(maxConns)

	pool, err := pgxpool.ConnectConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to journal database: %w", err)
	}

	if _, err := pool.Exec(ctx, createJournalTable); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to ensure journal table: %w", err)
	}

	logger.Info("Transaction journal connected")
	return &PostgresJournal{pool: pool, logger: logger}, nil
}

// RecordSubmitted inserts a new journal row in SUBMITTED status.
func (j *PostgresJournal) RecordSubmitted(ctx context.Context, ref string, kind TxKind, txHash string) error {
	_, err := j.pool.Exec(ctx,
		`INSERT INTO tx_journal (ref, kind, tx_hash, status) VALUES ($1, $2, $3, $4)`,
		ref, string(kind), txHash, string(StatusSubmitted))
	if err != nil {
		return fmt.Errorf("failed to journal submission %s: %w", ref, err)
	}
	return nil
}

// MarkConfirmed moves a row to CONFIRMED with the inclusion height.
func (j *PostgresJournal) MarkConfirmed(ctx context.Context, ref string, height uint64) error {
	tag, err := j.pool.Exec(ctx,
		`UPDATE tx_journal SET status = $1, height = $2, updated_at = now() WHERE ref = $3`,
		string(StatusConfirmed), int64(height), ref)
	if err != nil {
		return fmt.Errorf("failed to mark %s confirmed: %w", ref, err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("%w: %s", ErrNotFound, ref)
	}
	return nil
}

// MarkFailed moves a row to FAILED with the failure reason.
func (j *PostgresJournal) MarkFailed(ctx context.Context, ref string, reason string) error {
	tag, err := j.pool.Exec(ctx,
		`UPDATE tx_journal SET status = $1, error = $2, updated_at = now() WHERE ref = $3`,
		string(StatusFailed), reason, ref)
	if err != nil {
		return fmt.Errorf("failed to mark %s failed: %w", ref, err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("%w: %s", ErrNotFound, ref)
	}
	return nil
}

// Get returns the journal row for a reference.
func (j *PostgresJournal) Get(ctx context.Context, ref string) (*Record, error) {
	var rec Record
	var kind, status string
	var height int64
	err := j.pool.QueryRow(ctx,
		`SELECT ref, kind, tx_hash, status, height, error, created_at, updated_at FROM tx_journal WHERE ref = $1`,
		ref).Scan(&rec.Ref, &kind, &rec.TxHash, &status, &height, &rec.Error, &rec.CreatedAt, &rec.UpdatedAt)
	if err != nil {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, ref)
	}
	rec.Kind = TxKind(kind)
	rec.Status = Status(status)
	rec.Height = uint64(height)
	return &rec, nil
}

// Close releases the connection pool.
func (j *PostgresJournal) Close() {
	j.pool.Close()
}
