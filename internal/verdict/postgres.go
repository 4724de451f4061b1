package verdict

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/MrWong99/amdetect/pkg/amd"
)

// Schema is the SQL DDL for the amd_verdicts table. Execute it via
// [PostgresStore.Migrate] or apply it manually during deployment.
const Schema = `
CREATE TABLE IF NOT EXISTS amd_verdicts (
    call_id           TEXT PRIMARY KEY,
    file_name         TEXT NOT NULL DEFAULT '',
    status            TEXT NOT NULL,
    cause             TEXT NOT NULL DEFAULT '',
    elapsed_ms        BIGINT NOT NULL,
    words             INTEGER NOT NULL DEFAULT 0,
    voice_duration_ms BIGINT NOT NULL DEFAULT 0,
    decided_at        TIMESTAMPTZ NOT NULL DEFAULT now()
);
CREATE INDEX IF NOT EXISTS idx_amd_verdicts_decided_at ON amd_verdicts(decided_at DESC);
CREATE INDEX IF NOT EXISTS idx_amd_verdicts_status ON amd_verdicts(status);
`

// DB is the database interface used by [PostgresStore]. Both *pgxpool.Pool
// and *pgx.Conn satisfy this interface.
type DB interface {
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Ping(ctx context.Context) error
}

// PostgresStore is a [Store] backed by a PostgreSQL database. Durations are
// stored as whole milliseconds.
type PostgresStore struct {
	db DB
}

// NewPostgresStore creates a [PostgresStore] that uses the given connection
// or pool. The caller is responsible for calling [PostgresStore.Migrate].
func NewPostgresStore(db DB) *PostgresStore {
	return &PostgresStore{db: db}
}

// OpenPool parses dsn and opens a pgx connection pool. The pool is pinged
// once before it is returned.
func OpenPool(ctx context.Context, dsn string) (*pgxpool.Pool, error) {
	cfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("verdict: parse dsn: %w", err)
	}
	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("verdict: create pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("verdict: ping: %w", err)
	}
	return pool, nil
}

// Migrate executes the [Schema] DDL. It is idempotent.
func (s *PostgresStore) Migrate(ctx context.Context) error {
	if _, err := s.db.Exec(ctx, Schema); err != nil {
		return fmt.Errorf("verdict: migrate: %w", err)
	}
	return nil
}

// Save implements [Store]. An existing record for the same call ID is
// replaced.
func (s *PostgresStore) Save(ctx context.Context, r Record) error {
	if r.CallID == "" {
		return errors.New("verdict: save: empty call id")
	}
	decidedAt := r.DecidedAt
	if decidedAt.IsZero() {
		decidedAt = time.Now().UTC()
	}
	_, err := s.db.Exec(ctx, `
		INSERT INTO amd_verdicts (call_id, file_name, status, cause, elapsed_ms, words, voice_duration_ms, decided_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		ON CONFLICT (call_id) DO UPDATE SET
			file_name = EXCLUDED.file_name,
			status = EXCLUDED.status,
			cause = EXCLUDED.cause,
			elapsed_ms = EXCLUDED.elapsed_ms,
			words = EXCLUDED.words,
			voice_duration_ms = EXCLUDED.voice_duration_ms,
			decided_at = EXCLUDED.decided_at`,
		r.CallID, r.FileName, string(r.Status), string(r.Cause),
		r.Elapsed.Milliseconds(), r.Words, r.VoiceDuration.Milliseconds(), decidedAt,
	)
	if err != nil {
		return fmt.Errorf("verdict: save %q: %w", r.CallID, err)
	}
	return nil
}

// Get implements [Store].
func (s *PostgresStore) Get(ctx context.Context, callID string) (Record, error) {
	row := s.db.QueryRow(ctx, `
		SELECT call_id, file_name, status, cause, elapsed_ms, words, voice_duration_ms, decided_at
		FROM amd_verdicts WHERE call_id = $1`, callID)
	r, err := scanRecord(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Record{}, ErrNotFound
		}
		return Record{}, fmt.Errorf("verdict: get %q: %w", callID, err)
	}
	return r, nil
}

// Recent returns up to limit records, most recently decided first.
func (s *PostgresStore) Recent(ctx context.Context, limit int) ([]Record, error) {
	if limit <= 0 {
		return nil, nil
	}
	rows, err := s.db.Query(ctx, `
		SELECT call_id, file_name, status, cause, elapsed_ms, words, voice_duration_ms, decided_at
		FROM amd_verdicts ORDER BY decided_at DESC LIMIT $1`, limit)
	if err != nil {
		return nil, fmt.Errorf("verdict: recent: %w", err)
	}
	defer rows.Close()

	var out []Record
	for rows.Next() {
		r, err := scanRecord(rows)
		if err != nil {
			return nil, fmt.Errorf("verdict: recent: scan: %w", err)
		}
		out = append(out, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("verdict: recent: %w", err)
	}
	return out, nil
}

// Ping implements [Store].
func (s *PostgresStore) Ping(ctx context.Context) error {
	if err := s.db.Ping(ctx); err != nil {
		return fmt.Errorf("verdict: ping: %w", err)
	}
	return nil
}

func scanRecord(row pgx.Row) (Record, error) {
	var (
		r              Record
		status, cause  string
		elapsed, voice int64
	)
	if err := row.Scan(&r.CallID, &r.FileName, &status, &cause, &elapsed, &r.Words, &voice, &r.DecidedAt); err != nil {
		return Record{}, err
	}
	r.Status = amd.Status(status)
	r.Cause = amd.Cause(cause)
	r.Elapsed = time.Duration(elapsed) * time.Millisecond
	r.VoiceDuration = time.Duration(voice) * time.Millisecond
	return r, nil
}
