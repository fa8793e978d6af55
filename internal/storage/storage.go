package storage

import (
	"context"
	"time"
)

// Outcome values stored in HopRecord.Outcome.
const (
	OutcomeScanning = "scanning" // the page was left through Next
	OutcomeLanded   = "landed"
	OutcomeAborted  = "aborted"
	OutcomeDeadEnd  = "dead_end"
	OutcomeError    = "error"
)

// HopRecord is the journal entry written for every page a search evaluates.
// Instants are epoch milliseconds; Oldest and Newest are meaningful only when
// HasRange is set.
type HopRecord struct {
	ID        string
	SearchID  string
	Hop       int
	URL       string
	Target    int64
	HasRange  bool
	Oldest    int64
	Newest    int64
	Items     int
	Direction string
	Next      string
	Via       string // how Next was chosen: "timestamp", "newest" or "fallback"
	Outcome   string
	Reason    string
	Duration  time.Duration
	CreatedAt time.Time
	Error     string
}

// Terminal reports whether the record closed its search.
func (r *HopRecord) Terminal() bool {
	return r.Outcome != OutcomeScanning
}

// Filter allows querying for specific HopRecords.
type Filter struct {
	SearchID string
	Outcome  string
	Since    *time.Time
	Limit    int
	Offset   int
}

// Match reports whether r passes the field filters (Limit and Offset aside).
func (f Filter) Match(r *HopRecord) bool {
	if f.SearchID != "" && r.SearchID != f.SearchID {
		return false
	}
	if f.Outcome != "" && r.Outcome != f.Outcome {
		return false
	}
	if f.Since != nil && r.CreatedAt.Before(*f.Since) {
		return false
	}
	return true
}

// Page orders records newest first and applies Offset and Limit. It is meant
// for file backends that filter in memory; records must be in insertion order.
func (f Filter) Page(records []*HopRecord) []*HopRecord {
	for i, j := 0, len(records)-1; i < j; i, j = i+1, j-1 {
		records[i], records[j] = records[j], records[i]
	}

	if f.Offset > 0 {
		if f.Offset >= len(records) {
			return []*HopRecord{}
		}
		records = records[f.Offset:]
	}
	if f.Limit > 0 && f.Limit < len(records) {
		records = records[:f.Limit]
	}
	return records
}

// Backend defines the interface for storing and querying the scan journal.
type Backend interface {
	Save(ctx context.Context, record *HopRecord) error
	Query(ctx context.Context, filter Filter) ([]*HopRecord, error)
	Close() error
}
