package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/FranksOps/gotot/internal/storage"
	"github.com/jackc/pgx/v5/pgxpool"
)

// ensure postgresBackend implements storage.Backend
var _ storage.Backend = (*postgresBackend)(nil)

type postgresBackend struct {
	pool *pgxpool.Pool
}

const schema = `
CREATE TABLE IF NOT EXISTS hop_records (
	id TEXT PRIMARY KEY,
	search_id TEXT NOT NULL,
	hop INTEGER NOT NULL,
	url TEXT NOT NULL,
	target_ms BIGINT NOT NULL,
	has_range BOOLEAN NOT NULL,
	oldest_ms BIGINT NOT NULL,
	newest_ms BIGINT NOT NULL,
	items INTEGER NOT NULL,
	direction TEXT NOT NULL DEFAULT '',
	next_url TEXT NOT NULL DEFAULT '',
	via TEXT NOT NULL DEFAULT '',
	outcome TEXT NOT NULL,
	reason TEXT NOT NULL DEFAULT '',
	duration_ms BIGINT NOT NULL,
	created_at TIMESTAMPTZ NOT NULL,
	error TEXT NOT NULL DEFAULT ''
);
CREATE INDEX IF NOT EXISTS hop_records_search_idx ON hop_records (search_id, hop);
`

const columns = `id, search_id, hop, url, target_ms, has_range, oldest_ms, newest_ms, items, direction, next_url, via, outcome, reason, duration_ms, created_at, error`

// New creates a new Postgres-backed storage.Backend.
func New(ctx context.Context, dsn string) (storage.Backend, error) {
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}

	if _, err := pool.Exec(ctx, schema); err != nil {
		pool.Close()
		return nil, fmt.Errorf("create schema: %w", err)
	}

	return &postgresBackend{pool: pool}, nil
}

func (b *postgresBackend) Save(ctx context.Context, r *storage.HopRecord) error {
	query := `INSERT INTO hop_records (` + columns + `)
	VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17)`

	_, err := b.pool.Exec(ctx, query,
		r.ID, r.SearchID, r.Hop, r.URL, r.Target,
		r.HasRange, r.Oldest, r.Newest, r.Items,
		r.Direction, r.Next, r.Via, r.Outcome, r.Reason,
		r.Duration.Milliseconds(), r.CreatedAt, r.Error,
	)
	if err != nil {
		return fmt.Errorf("insert hop record: %w", err)
	}
	return nil
}

func (b *postgresBackend) Query(ctx context.Context, filter storage.Filter) ([]*storage.HopRecord, error) {
	query := `SELECT ` + columns + ` FROM hop_records WHERE 1=1`
	args := []any{}

	arg := func(v any) string {
		args = append(args, v)
		return fmt.Sprintf("$%d", len(args))
	}

	if filter.SearchID != "" {
		query += ` AND search_id = ` + arg(filter.SearchID)
	}
	if filter.Outcome != "" {
		query += ` AND outcome = ` + arg(filter.Outcome)
	}
	if filter.Since != nil {
		query += ` AND created_at >= ` + arg(*filter.Since)
	}

	query += ` ORDER BY created_at DESC, hop DESC`

	if filter.Limit > 0 {
		query += ` LIMIT ` + arg(filter.Limit)
	}
	if filter.Offset > 0 {
		query += ` OFFSET ` + arg(filter.Offset)
	}

	rows, err := b.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query hop records: %w", err)
	}
	defer rows.Close()

	var results []*storage.HopRecord
	for rows.Next() {
		var r storage.HopRecord
		var durationMs int64

		err := rows.Scan(
			&r.ID, &r.SearchID, &r.Hop, &r.URL, &r.Target,
			&r.HasRange, &r.Oldest, &r.Newest, &r.Items,
			&r.Direction, &r.Next, &r.Via, &r.Outcome, &r.Reason,
			&durationMs, &r.CreatedAt, &r.Error,
		)
		if err != nil {
			return nil, fmt.Errorf("scan hop record: %w", err)
		}
		r.Duration = time.Duration(durationMs) * time.Millisecond

		results = append(results, &r)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate hop records: %w", err)
	}

	return results, nil
}

func (b *postgresBackend) Close() error {
	b.pool.Close()
	return nil
}
