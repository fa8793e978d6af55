package scraper

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/FranksOps/gotot/internal/listing"
)

// Loader turns fetched responses into listing pages, rejecting anything that
// is not a usable listing.
type Loader struct {
	fetcher *Fetcher
	robots  *RobotsChecker
	logger  *slog.Logger
}

// NewLoader creates a Loader. robots may be nil to skip robots.txt checks.
func NewLoader(fetcher *Fetcher, robots *RobotsChecker, logger *slog.Logger) *Loader {
	if logger == nil {
		logger = slog.Default()
	}
	return &Loader{fetcher: fetcher, robots: robots, logger: logger}
}

// Load fetches rawURL and parses it. Every failure is a *FetchError.
func (l *Loader) Load(ctx context.Context, rawURL string) (*listing.Page, error) {
	if l.robots != nil {
		allowed, err := l.robots.Allowed(ctx, rawURL)
		if err != nil {
			return nil, &FetchError{Kind: KindBlocked, URL: rawURL, Cause: err}
		}
		if !allowed {
			return nil, &FetchError{Kind: KindBlocked, URL: rawURL}
		}
	}

	resp, err := l.fetcher.Fetch(ctx, rawURL)
	if err != nil {
		return nil, err
	}

	if resp.Challenge != "" {
		l.logger.Warn("bot protection challenge", "url", rawURL, "source", resp.Challenge, "status", resp.StatusCode)
		return nil, &FetchError{Kind: KindChallenge, URL: rawURL, StatusCode: resp.StatusCode, Source: resp.Challenge}
	}
	if resp.StatusCode >= http.StatusBadRequest {
		return nil, &FetchError{Kind: KindStatus, URL: rawURL, StatusCode: resp.StatusCode}
	}

	page, err := listing.NewPage(resp.URL, resp.Body)
	if err != nil {
		return nil, &FetchError{Kind: KindParse, URL: rawURL, StatusCode: resp.StatusCode, Cause: err}
	}
	return page, nil
}
