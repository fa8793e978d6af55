package proxy

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/juju/clock"
)

// ErrUnknownProxy is returned when marking a proxy the pool does not hold.
var ErrUnknownProxy = errors.New("proxy not in pool")

// Clock is the part of clock.Clock the pool needs for cooldowns.
type Clock interface {
	Now() time.Time
}

type endpoint struct {
	url           *url.URL
	failures      int
	successes     int
	disabledUntil time.Time
}

// Pool rotates over upstream proxies and sidelines the ones that keep failing.
type Pool struct {
	mu          sync.Mutex
	endpoints   []*endpoint
	next        int
	maxFailures int
	cooldown    time.Duration
	clock       Clock
}

// Config defines settings for the Proxy Pool.
type Config struct {
	// MaxFailures before disabling a proxy temporarily.
	MaxFailures int
	// Cooldown is how long a proxy stays disabled after hitting MaxFailures.
	Cooldown time.Duration
	// Clock defaults to the wall clock.
	Clock Clock
}

// NewPool creates an empty pool. Zero config values get defaults.
func NewPool(cfg Config) *Pool {
	if cfg.MaxFailures <= 0 {
		cfg.MaxFailures = 3
	}
	if cfg.Cooldown <= 0 {
		cfg.Cooldown = 5 * time.Minute
	}
	if cfg.Clock == nil {
		cfg.Clock = clock.WallClock
	}
	return &Pool{
		maxFailures: cfg.MaxFailures,
		cooldown:    cfg.Cooldown,
		clock:       cfg.Clock,
	}
}

// LoadFile reads proxies from a file, one URL per line. Blank lines and lines
// starting with '#' are skipped.
func (p *Pool) LoadFile(path string) error {
	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("open proxy file: %w", err)
	}
	defer f.Close()

	var urls []string
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		urls = append(urls, line)
	}
	if err := scanner.Err(); err != nil {
		return fmt.Errorf("read proxy file: %w", err)
	}

	return p.Add(urls...)
}

// Add parses raw proxy URLs and appends them. A missing scheme means http.
func (p *Pool) Add(rawURLs ...string) error {
	parsed := make([]*endpoint, 0, len(rawURLs))
	for _, raw := range rawURLs {
		if !strings.Contains(raw, "://") {
			raw = "http://" + raw
		}
		u, err := url.Parse(raw)
		if err != nil {
			return fmt.Errorf("parse proxy %q: %w", raw, err)
		}
		parsed = append(parsed, &endpoint{url: u})
	}

	p.mu.Lock()
	p.endpoints = append(p.endpoints, parsed...)
	p.mu.Unlock()
	return nil
}

// Len reports how many proxies the pool holds, healthy or not.
func (p *Pool) Len() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.endpoints)
}

// Next returns the next healthy proxy in round-robin order, or nil when the
// pool is empty or every proxy is cooling down.
func (p *Pool) Next() *url.URL {
	p.mu.Lock()
	defer p.mu.Unlock()

	now := p.clock.Now()
	for range p.endpoints {
		ep := p.endpoints[p.next]
		p.next = (p.next + 1) % len(p.endpoints)

		if ep.disabledUntil.IsZero() {
			return ep.url
		}
		if !now.Before(ep.disabledUntil) {
			ep.disabledUntil = time.Time{}
			ep.failures = 0
			return ep.url
		}
	}
	return nil
}

// MarkSuccess records a successful request through proxyURL.
func (p *Pool) MarkSuccess(proxyURL *url.URL) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	ep, err := p.lookup(proxyURL)
	if err != nil {
		return err
	}
	ep.successes++
	if ep.failures > 0 {
		ep.failures--
	}
	return nil
}

// MarkFailure records a failed request through proxyURL. Reaching the failure
// limit disables the proxy for the cooldown period.
func (p *Pool) MarkFailure(proxyURL *url.URL) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	ep, err := p.lookup(proxyURL)
	if err != nil {
		return err
	}
	ep.failures++
	if ep.failures >= p.maxFailures {
		ep.disabledUntil = p.clock.Now().Add(p.cooldown)
	}
	return nil
}

// must hold p.mu
func (p *Pool) lookup(u *url.URL) (*endpoint, error) {
	if u == nil {
		return nil, errors.New("nil proxy url")
	}
	target := u.String()
	for _, ep := range p.endpoints {
		if ep.url.String() == target {
			return ep, nil
		}
	}
	return nil, fmt.Errorf("%w: %s", ErrUnknownProxy, u.Redacted())
}

type ctxKey struct{}

// WithProxy pins the proxy a request should go through.
func WithProxy(ctx context.Context, u *url.URL) context.Context {
	return context.WithValue(ctx, ctxKey{}, u)
}

// FromContext returns the proxy pinned by WithProxy, if any.
func FromContext(ctx context.Context) *url.URL {
	u, _ := ctx.Value(ctxKey{}).(*url.URL)
	return u
}

// ProxyFunc is an http.Transport.Proxy that routes each request through the
// proxy pinned on its context, or the environment's proxy when none is.
func ProxyFunc(req *http.Request) (*url.URL, error) {
	if u := FromContext(req.Context()); u != nil {
		return u, nil
	}
	return http.ProxyFromEnvironment(req)
}
