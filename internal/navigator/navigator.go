// Package navigator finds the page of a reverse-chronological board listing
// that covers a target date, by hopping along the board's pager links.
package navigator

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/FranksOps/gotot/internal/dates"
	"github.com/FranksOps/gotot/internal/listing"
	"github.com/FranksOps/gotot/internal/metrics"
	"github.com/FranksOps/gotot/internal/storage"
	"github.com/google/uuid"
	"github.com/juju/clock"
)

// Loader fetches and parses one listing page.
type Loader interface {
	Load(ctx context.Context, rawURL string) (*listing.Page, error)
}

// Clock is the part of clock.Clock a search needs.
type Clock interface {
	Now() time.Time
}

// Config holds the optional collaborators of a Navigator.
type Config struct {
	// Location of the board's calendar. Nil means time.Local.
	Location *time.Location
	// Clock defaults to the wall clock.
	Clock Clock
	// Journal, when set, receives a record for every evaluated page.
	Journal storage.Backend
}

// Navigator runs searches. It keeps no per-search state and may be shared.
type Navigator struct {
	loader    Loader
	extractor listing.Extractor
	clock     Clock
	journal   storage.Backend
	logger    *slog.Logger
}

// New creates a Navigator loading pages through loader.
func New(cfg Config, loader Loader, logger *slog.Logger) *Navigator {
	if cfg.Clock == nil {
		cfg.Clock = clock.WallClock
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Navigator{
		loader:    loader,
		extractor: listing.Extractor{Location: cfg.Location},
		clock:     cfg.Clock,
		journal:   cfg.Journal,
		logger:    logger,
	}
}

// Step describes one evaluated page.
type Step struct {
	Hop       int
	URL       string
	Range     listing.Range
	HasRange  bool
	Items     int
	Direction Direction
	// Next is the link followed from this page, empty on the last step.
	Next     string
	Via      listing.Source
	Outcome  Outcome
	Reason   string
	Duration time.Duration
}

// Result is the outcome of a finished search. URL is always a page that was
// fetched during the search.
type Result struct {
	SearchID string
	Outcome  Outcome
	URL      string
	Target   dates.Instant
	// Clamped is set when a future target was pulled back to now.
	Clamped bool
	Hops    int
	Steps   []Step
	// Page is the landing page document.
	Page *listing.Page
}

// Search scans from startURL towards target. A page that cannot be loaded
// ends the search with the loader's error and no Result.
func (n *Navigator) Search(ctx context.Context, startURL string, target dates.Instant) (*Result, error) {
	now := dates.FromTime(n.clock.Now())
	res := &Result{SearchID: uuid.NewString(), Target: target}
	if target > now {
		res.Target, res.Clamped = now, true
		n.logger.Debug("target in the future, clamped to now", "target", target, "now", now)
	}

	state := NewState(startURL, res.Target)
	logger := n.logger.With("search", res.SearchID)

	for state.Outcome == Scanning {
		started := time.Now()
		page, err := n.loader.Load(ctx, state.CurrentURL)
		if err != nil {
			n.record(ctx, res, &Step{Hop: state.Hops, URL: state.CurrentURL, Duration: time.Since(started)}, err)
			metrics.RecordSearch(storage.OutcomeError, state.Hops)
			return nil, fmt.Errorf("search hop %d: %w", state.Hops, err)
		}

		state.Loaded(page.URL)
		step := n.evaluate(state, page, now)
		step.Duration = time.Since(started)

		if step.Outcome == Scanning && !state.Advance(step.Next) {
			step.Outcome = Aborted
			step.Reason = fmt.Sprintf("hop limit %d reached", MaxHops)
		}
		if step.Outcome != Scanning {
			state.Outcome = step.Outcome
			res.Page = page
		}

		logger.Debug("evaluated page",
			"hop", step.Hop,
			"url", step.URL,
			"items", step.Items,
			"direction", step.Direction,
			"next", step.Next,
			"outcome", step.Outcome,
		)
		res.Steps = append(res.Steps, *step)
		n.record(ctx, res, step, nil)
	}

	res.Outcome = state.Outcome
	res.URL = state.CurrentURL
	res.Hops = state.Hops
	metrics.RecordSearch(res.Outcome.String(), res.Hops)

	logger.Info("search finished", "outcome", res.Outcome, "hops", res.Hops, "url", res.URL)
	return res, nil
}

// evaluate decides what to do with the page at state.CurrentURL. The returned
// step is Scanning with Next set when the search should move on.
func (n *Navigator) evaluate(state *State, page *listing.Page, now dates.Instant) *Step {
	step := &Step{
		Hop:   state.Hops,
		URL:   state.CurrentURL,
		Items: n.extractor.Items(page),
	}

	r, ok := n.extractor.ExtractRange(page)
	if !ok {
		step.Outcome, step.Reason = Landed, "no dated items"
		return step
	}
	step.Range, step.HasRange = r, true

	if r.Contains(state.Target) {
		step.Outcome, step.Reason = Landed, "target within page"
		return step
	}

	step.Direction = Newer
	if r.Oldest > state.Target {
		step.Direction = Older
	}

	next, via, found := selectCandidate(n.extractor.ExtractCandidates(page, now), r, step.Direction, state.Target)
	if !found {
		if step.Direction == Older {
			next, found = listing.FindOlderFallback(page)
		} else {
			next, found = listing.FindNewerFallback(page)
		}
		via = listing.SourceFallback
	}
	if !found {
		step.Outcome, step.Reason = DeadEnd, fmt.Sprintf("no %s link", step.Direction)
		return step
	}

	if state.Seen(next) {
		step.Outcome, step.Reason = Landed, "link already visited"
		return step
	}

	step.Next, step.Via, step.Outcome = next, via, Scanning
	return step
}

// selectCandidate picks the dated link strictly beyond r in direction dir
// that lands closest to target. Ties go to the first link in the document.
func selectCandidate(cands []listing.Candidate, r listing.Range, dir Direction, target dates.Instant) (string, listing.Source, bool) {
	var (
		best     listing.Candidate
		bestDist int64
		found    bool
	)
	for _, c := range cands {
		if !c.Known {
			continue
		}
		if dir == Older && c.Instant >= r.Oldest {
			continue
		}
		if dir == Newer && c.Instant <= r.Newest {
			continue
		}
		d := c.Instant.Distance(target)
		if !found || d < bestDist {
			best, bestDist, found = c, d, true
		}
	}
	return best.URL, best.Source, found
}

func (n *Navigator) record(ctx context.Context, res *Result, step *Step, loadErr error) {
	if n.journal == nil {
		return
	}

	rec := &storage.HopRecord{
		ID:        uuid.NewString(),
		SearchID:  res.SearchID,
		Hop:       step.Hop,
		URL:       step.URL,
		Target:    int64(res.Target),
		HasRange:  step.HasRange,
		Items:     step.Items,
		Direction: string(step.Direction),
		Next:      step.Next,
		Via:       string(step.Via),
		Outcome:   step.Outcome.String(),
		Reason:    step.Reason,
		Duration:  step.Duration,
		CreatedAt: time.Now().UTC(),
	}
	if step.HasRange {
		rec.Oldest, rec.Newest = int64(step.Range.Oldest), int64(step.Range.Newest)
	}
	if loadErr != nil {
		rec.Outcome = storage.OutcomeError
		rec.Error = loadErr.Error()
	}

	if err := n.journal.Save(ctx, rec); err != nil {
		n.logger.Warn("failed to save hop record", "search", res.SearchID, "hop", step.Hop, "err", err)
	}
}
