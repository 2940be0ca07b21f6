package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"

	"github.com/kirillkom/file-toolbox/internal/core/domain"
)

type BatchRepository struct {
	db *sql.DB
}

func NewBatchRepository(db *sql.DB) *BatchRepository {
	return &BatchRepository{db: db}
}

func OpenDB(dsn string) (*sql.DB, error) {
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, fmt.Errorf("sql open: %w", err)
	}
	db.SetMaxOpenConns(10)
	db.SetMaxIdleConns(10)
	db.SetConnMaxLifetime(30 * time.Minute)

	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("db ping: %w", err)
	}
	return db, nil
}

func (r *BatchRepository) EnsureSchema(ctx context.Context) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin schema tx: %w", err)
	}
	defer func() {
		_ = tx.Rollback()
	}()

	// Serialize bootstrap DDL across api/worker startups.
	if _, err := tx.ExecContext(ctx, `SELECT pg_advisory_xact_lock($1)`, int64(2026101701)); err != nil {
		return fmt.Errorf("acquire schema lock: %w", err)
	}

	const query = `
CREATE TABLE IF NOT EXISTS conversion_batches (
	batch_id TEXT PRIMARY KEY,
	tool_id TEXT NOT NULL,
	filename TEXT NOT NULL UNIQUE,
	file_count INTEGER NOT NULL,
	created_at TIMESTAMPTZ NOT NULL,
	released_at TIMESTAMPTZ,
	release_reason TEXT
);

CREATE INDEX IF NOT EXISTS idx_conversion_batches_unreleased
	ON conversion_batches(created_at) WHERE released_at IS NULL;
`
	if _, err := tx.ExecContext(ctx, query); err != nil {
		return fmt.Errorf("execute schema ddl: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit schema tx: %w", err)
	}
	return nil
}

func (r *BatchRepository) Record(ctx context.Context, event domain.ConversionCompleted) error {
	const query = `
INSERT INTO conversion_batches (batch_id, tool_id, filename, file_count, created_at)
VALUES ($1, $2, $3, $4, $5)
ON CONFLICT (batch_id) DO NOTHING
`
	if _, err := r.db.ExecContext(ctx, query,
		event.BatchID,
		event.ToolID,
		event.Filename,
		event.FileCount,
		event.CreatedAt.UTC(),
	); err != nil {
		return fmt.Errorf("insert conversion batch: %w", err)
	}
	return nil
}

// MarkReleased stamps the first release of an artifact. A second release of the same
// filename reports ErrArtifactNotFound.
func (r *BatchRepository) MarkReleased(ctx context.Context, filename string, reason domain.ReleaseReason, at time.Time) error {
	const query = `
UPDATE conversion_batches
SET released_at = $2, release_reason = $3
WHERE filename = $1 AND released_at IS NULL
`
	res, err := r.db.ExecContext(ctx, query, filename, at.UTC(), string(reason))
	if err != nil {
		return fmt.Errorf("mark batch released: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if affected == 0 {
		return domain.WrapError(domain.ErrArtifactNotFound, "mark batch released", errors.New(filename))
	}
	return nil
}

func (r *BatchRepository) ListUnreleased(ctx context.Context, createdBefore time.Time, limit int) ([]domain.ConversionCompleted, error) {
	if limit <= 0 {
		limit = 100
	}
	const query = `
SELECT batch_id, tool_id, filename, file_count, created_at
FROM conversion_batches
WHERE released_at IS NULL AND created_at < $1
ORDER BY created_at ASC
LIMIT $2
`
	rows, err := r.db.QueryContext(ctx, query, createdBefore.UTC(), limit)
	if err != nil {
		return nil, fmt.Errorf("query unreleased batches: %w", err)
	}
	defer rows.Close()

	out := make([]domain.ConversionCompleted, 0, limit)
	for rows.Next() {
		var event domain.ConversionCompleted
		if err := rows.Scan(&event.BatchID, &event.ToolID, &event.Filename, &event.FileCount, &event.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan conversion batch: %w", err)
		}
		out = append(out, event)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate conversion batches: %w", err)
	}
	return out, nil
}
