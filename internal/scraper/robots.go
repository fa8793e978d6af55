package scraper

import (
	"context"
	"fmt"
	"log/slog"
	"net/url"
	"sync"

	"github.com/temoto/robotstxt"
)

// DefaultRobotsAgent is the product token matched against robots.txt groups.
const DefaultRobotsAgent = "gotot"

// RobotsChecker answers whether a page may be fetched under its host's
// robots.txt. Each host's file is fetched once and cached; a host whose file
// cannot be fetched is treated as allowing everything.
type RobotsChecker struct {
	fetcher *Fetcher
	agent   string
	logger  *slog.Logger

	mu    sync.Mutex
	cache map[string]*robotstxt.RobotsData
}

// NewRobotsChecker creates a checker that fetches robots.txt through fetcher.
func NewRobotsChecker(fetcher *Fetcher, agent string, logger *slog.Logger) *RobotsChecker {
	if agent == "" {
		agent = DefaultRobotsAgent
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &RobotsChecker{
		fetcher: fetcher,
		agent:   agent,
		logger:  logger,
		cache:   make(map[string]*robotstxt.RobotsData),
	}
}

// Allowed reports whether targetURL may be fetched.
func (r *RobotsChecker) Allowed(ctx context.Context, targetURL string) (bool, error) {
	u, err := url.Parse(targetURL)
	if err != nil {
		return false, fmt.Errorf("parse url: %w", err)
	}

	data := r.rules(ctx, u.Scheme+"://"+u.Host)
	if data == nil {
		return true, nil
	}

	path := u.EscapedPath()
	if path == "" {
		path = "/"
	}
	if u.RawQuery != "" {
		path += "?" + u.RawQuery
	}
	return data.TestAgent(path, r.agent), nil
}

func (r *RobotsChecker) rules(ctx context.Context, host string) *robotstxt.RobotsData {
	r.mu.Lock()
	defer r.mu.Unlock()

	if data, ok := r.cache[host]; ok {
		return data
	}

	data, err := r.fetch(ctx, host)
	if err != nil {
		r.logger.Debug("robots.txt unavailable, allowing all", "host", host, "err", err)
	}
	r.cache[host] = data
	return data
}

func (r *RobotsChecker) fetch(ctx context.Context, host string) (*robotstxt.RobotsData, error) {
	resp, err := r.fetcher.Fetch(ctx, host+"/robots.txt")
	if err != nil {
		return nil, err
	}
	// 4xx allows everything, 5xx disallows everything.
	data, err := robotstxt.FromStatusAndBytes(resp.StatusCode, resp.Body)
	if err != nil {
		return nil, fmt.Errorf("parse robots.txt: %w", err)
	}
	return data, nil
}
