package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/FranksOps/gotot/internal/storage"
	_ "modernc.org/sqlite"
)

// ensure sqliteBackend implements storage.Backend
var _ storage.Backend = (*sqliteBackend)(nil)

type sqliteBackend struct {
	db *sql.DB
}

const schema = `
CREATE TABLE IF NOT EXISTS hop_records (
	id TEXT PRIMARY KEY,
	search_id TEXT NOT NULL,
	hop INTEGER NOT NULL,
	url TEXT NOT NULL,
	target_ms INTEGER NOT NULL,
	has_range BOOLEAN NOT NULL,
	oldest_ms INTEGER NOT NULL,
	newest_ms INTEGER NOT NULL,
	items INTEGER NOT NULL,
	direction TEXT,
	next_url TEXT,
	via TEXT,
	outcome TEXT NOT NULL,
	reason TEXT,
	duration_ms INTEGER NOT NULL,
	created_at DATETIME NOT NULL,
	error TEXT
);
CREATE INDEX IF NOT EXISTS hop_records_search_idx ON hop_records (search_id, hop);
`

const columns = `id, search_id, hop, url, target_ms, has_range, oldest_ms, newest_ms, items, direction, next_url, via, outcome, reason, duration_ms, created_at, error`

// New creates a new SQLite-backed storage.Backend.
func New(dsn string) (storage.Backend, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}

	if _, err := db.Exec(schema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("create schema: %w", err)
	}

	return &sqliteBackend{db: db}, nil
}

func (b *sqliteBackend) Save(ctx context.Context, r *storage.HopRecord) error {
	query := `INSERT INTO hop_records (` + columns + `) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`

	_, err := b.db.ExecContext(ctx, query,
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

func (b *sqliteBackend) Query(ctx context.Context, filter storage.Filter) ([]*storage.HopRecord, error) {
	query := `SELECT ` + columns + ` FROM hop_records WHERE 1=1`
	args := []any{}

	if filter.SearchID != "" {
		query += ` AND search_id = ?`
		args = append(args, filter.SearchID)
	}
	if filter.Outcome != "" {
		query += ` AND outcome = ?`
		args = append(args, filter.Outcome)
	}
	if filter.Since != nil {
		query += ` AND created_at >= ?`
		args = append(args, *filter.Since)
	}

	query += ` ORDER BY created_at DESC, hop DESC`

	if filter.Limit > 0 {
		query += ` LIMIT ?`
		args = append(args, filter.Limit)
	} else if filter.Offset > 0 {
		query += ` LIMIT -1`
	}
	if filter.Offset > 0 {
		query += ` OFFSET ?`
		args = append(args, filter.Offset)
	}

	rows, err := b.db.QueryContext(ctx, query, args...)
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

func (b *sqliteBackend) Close() error {
	return b.db.Close()
}
