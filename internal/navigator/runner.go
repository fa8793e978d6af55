package navigator

import (
	"context"
	"errors"
	"time"

	"github.com/FranksOps/gotot/internal/dates"
	"golang.org/x/sync/semaphore"
)

// ErrBusy is returned by Runner.Go while another search is running.
var ErrBusy = errors.New("search already in progress")

// Runner is the entry point for user-triggered searches: it parses the typed
// date and lets only one search run at a time.
type Runner struct {
	nav *Navigator
	loc *time.Location
	sem *semaphore.Weighted
}

// NewRunner wraps nav. loc is the zone typed dates are read in; nil means
// time.Local.
func NewRunner(nav *Navigator, loc *time.Location) *Runner {
	return &Runner{nav: nav, loc: loc, sem: semaphore.NewWeighted(1)}
}

// Go parses input and searches from startURL. Input that is not a date
// returns an error wrapping dates.ErrInvalidTarget and starts nothing.
func (r *Runner) Go(ctx context.Context, startURL, input string) (*Result, error) {
	target, err := dates.ParseTarget(input, r.loc)
	if err != nil {
		return nil, err
	}

	if !r.sem.TryAcquire(1) {
		return nil, ErrBusy
	}
	defer r.sem.Release(1)

	return r.nav.Search(ctx, startURL, target)
}
