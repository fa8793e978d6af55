package csvbackend

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"sync"
	"time"

	"github.com/FranksOps/gotot/internal/storage"
)

// ensure csvBackend implements storage.Backend
var _ storage.Backend = (*csvBackend)(nil)

type csvBackend struct {
	mu   sync.Mutex
	file *os.File
}

// headers defines the CSV column order
var headers = []string{
	"id",
	"search_id",
	"hop",
	"url",
	"target_ms",
	"has_range",
	"oldest_ms",
	"newest_ms",
	"items",
	"direction",
	"next_url",
	"via",
	"outcome",
	"reason",
	"duration_ms",
	"created_at",
	"error",
}

// New creates a new CSV-backed storage.Backend. A header row is written when
// the file is empty.
func New(filePath string) (storage.Backend, error) {
	f, err := os.OpenFile(filePath, os.O_APPEND|os.O_CREATE|os.O_RDWR, 0644)
	if err != nil {
		return nil, fmt.Errorf("open journal: %w", err)
	}

	info, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("stat journal: %w", err)
	}

	if info.Size() == 0 {
		if err := writeRow(f, headers); err != nil {
			f.Close()
			return nil, err
		}
	}

	return &csvBackend{file: f}, nil
}

func writeRow(w io.Writer, row []string) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(row); err != nil {
		return fmt.Errorf("write csv row: %w", err)
	}
	cw.Flush()
	if err := cw.Error(); err != nil {
		return fmt.Errorf("flush csv row: %w", err)
	}
	return nil
}

func encode(r *storage.HopRecord) []string {
	return []string{
		r.ID,
		r.SearchID,
		strconv.Itoa(r.Hop),
		r.URL,
		strconv.FormatInt(r.Target, 10),
		strconv.FormatBool(r.HasRange),
		strconv.FormatInt(r.Oldest, 10),
		strconv.FormatInt(r.Newest, 10),
		strconv.Itoa(r.Items),
		r.Direction,
		r.Next,
		r.Via,
		r.Outcome,
		r.Reason,
		strconv.FormatInt(r.Duration.Milliseconds(), 10),
		r.CreatedAt.Format(time.RFC3339Nano),
		r.Error,
	}
}

func decode(row []string) *storage.HopRecord {
	hop, _ := strconv.Atoi(row[2])
	target, _ := strconv.ParseInt(row[4], 10, 64)
	hasRange, _ := strconv.ParseBool(row[5])
	oldest, _ := strconv.ParseInt(row[6], 10, 64)
	newest, _ := strconv.ParseInt(row[7], 10, 64)
	items, _ := strconv.Atoi(row[8])
	durationMs, _ := strconv.ParseInt(row[14], 10, 64)
	createdAt, _ := time.Parse(time.RFC3339Nano, row[15])

	return &storage.HopRecord{
		ID:        row[0],
		SearchID:  row[1],
		Hop:       hop,
		URL:       row[3],
		Target:    target,
		HasRange:  hasRange,
		Oldest:    oldest,
		Newest:    newest,
		Items:     items,
		Direction: row[9],
		Next:      row[10],
		Via:       row[11],
		Outcome:   row[12],
		Reason:    row[13],
		Duration:  time.Duration(durationMs) * time.Millisecond,
		CreatedAt: createdAt,
		Error:     row[16],
	}
}

func (b *csvBackend) Save(ctx context.Context, record *storage.HopRecord) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if _, err := b.file.Seek(0, io.SeekEnd); err != nil {
		return fmt.Errorf("seek journal: %w", err)
	}
	return writeRow(b.file, encode(record))
}

func (b *csvBackend) Query(ctx context.Context, filter storage.Filter) ([]*storage.HopRecord, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if _, err := b.file.Seek(0, io.SeekStart); err != nil {
		return nil, fmt.Errorf("rewind journal: %w", err)
	}
	defer func() {
		_, _ = b.file.Seek(0, io.SeekEnd)
	}()

	r := csv.NewReader(b.file)
	r.FieldsPerRecord = -1

	if _, err := r.Read(); err != nil {
		if errors.Is(err, io.EOF) {
			return []*storage.HopRecord{}, nil
		}
		return nil, fmt.Errorf("read csv header: %w", err)
	}

	var matched []*storage.HopRecord
	for {
		row, err := r.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("read csv row: %w", err)
		}
		if len(row) != len(headers) {
			continue // malformed
		}

		rec := decode(row)
		if filter.Match(rec) {
			matched = append(matched, rec)
		}
	}

	return filter.Page(matched), nil
}

func (b *csvBackend) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.file.Close()
}
