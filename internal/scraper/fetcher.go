package scraper

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/FranksOps/gotot/internal/bypass"
	"github.com/FranksOps/gotot/internal/fingerprint"
	"github.com/FranksOps/gotot/internal/metrics"
	"github.com/FranksOps/gotot/pkg/httpclient"
	"github.com/FranksOps/gotot/pkg/proxy"
	"github.com/FranksOps/gotot/pkg/ratelimit"
	"github.com/FranksOps/gotot/pkg/useragent"
	"github.com/google/uuid"
)

// MaxBodySize caps how much of a page is read. Board listings are far smaller.
const MaxBodySize = 16 << 20

// FetchConfig configures how pages are requested.
type FetchConfig struct {
	Timeout      time.Duration
	MaxRedirects int
	UseCookieJar bool
	ProxyPool    *proxy.Pool
	UAPool       *useragent.Pool
	Fingerprint  fingerprint.Profile
	Limiter      *ratelimit.Limiter
	// Signatures used to recognise challenge pages. Nil means the defaults.
	Signatures []bypass.Signature
	Logger     *slog.Logger
}

// Response is a fetched page.
type Response struct {
	ID         string
	URL        string // after redirects
	StatusCode int
	Header     http.Header
	Body       []byte
	Duration   time.Duration
	Proxy      string
	// Challenge names the bot protection vendor when the page is a challenge.
	Challenge string
}

// Fetcher performs single GET requests. One client is held for the lifetime
// of the Fetcher so the cookie jar carries the session across a scan.
type Fetcher struct {
	config FetchConfig
	client *httpclient.Client
	logger *slog.Logger
}

// NewFetcher initializes a new Fetcher with the given configuration.
func NewFetcher(cfg FetchConfig) (*Fetcher, error) {
	if cfg.UAPool == nil {
		cfg.UAPool = useragent.NewPool(nil, false)
	}
	if cfg.Fingerprint == "" {
		cfg.Fingerprint = fingerprint.ProfileGo
	}
	if cfg.Signatures == nil {
		cfg.Signatures = bypass.DefaultSignatures()
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}

	// Proxies rotate per request through the context, so one transport keeps
	// its connection pool for the whole scan.
	transport, err := fingerprint.Transport(cfg.Fingerprint, fingerprint.Options{
		Proxy: proxy.ProxyFunc,
	})
	if err != nil {
		return nil, fmt.Errorf("setup transport: %w", err)
	}

	client, err := httpclient.New(httpclient.Config{
		Timeout:      cfg.Timeout,
		MaxRedirects: cfg.MaxRedirects,
		UseCookieJar: cfg.UseCookieJar,
		Transport:    transport,
		Header: http.Header{
			"Accept":          {"text/html,application/xhtml+xml,application/xml;q=0.9,*/*;q=0.8"},
			"Accept-Language": {"cs,sk;q=0.8,en;q=0.5"},
		},
	})
	if err != nil {
		return nil, fmt.Errorf("create client: %w", err)
	}

	return &Fetcher{config: cfg, client: client, logger: cfg.Logger}, nil
}

// Fetch GETs targetURL. Transport failures come back as a *FetchError of
// KindNetwork; any HTTP response, including error statuses, is returned
// for the caller to judge.
func (f *Fetcher) Fetch(ctx context.Context, targetURL string) (*Response, error) {
	if f.config.Limiter != nil {
		if err := f.config.Limiter.Wait(ctx); err != nil {
			return nil, &FetchError{Kind: KindNetwork, URL: targetURL, Cause: err}
		}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, targetURL, nil)
	if err != nil {
		return nil, &FetchError{Kind: KindNetwork, URL: targetURL, Cause: err}
	}
	req.Header.Set("User-Agent", f.config.UAPool.Next())

	var activeProxy *url.URL
	if f.config.ProxyPool != nil {
		if activeProxy = f.config.ProxyPool.Next(); activeProxy != nil {
			req = req.WithContext(proxy.WithProxy(req.Context(), activeProxy))
		}
	}

	domain := req.URL.Hostname()
	start := time.Now()

	resp, err := f.client.Do(req.Context(), req)
	if err != nil {
		if activeProxy != nil {
			_ = f.config.ProxyPool.MarkFailure(activeProxy)
			metrics.ProxyFailures.WithLabelValues(activeProxy.Redacted()).Inc()
		}
		metrics.RecordFetch(domain, "error", time.Since(start), 0)
		return nil, &FetchError{Kind: KindNetwork, URL: targetURL, Cause: err}
	}
	defer resp.Body.Close()

	if activeProxy != nil {
		_ = f.config.ProxyPool.MarkSuccess(activeProxy)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, MaxBodySize))
	duration := time.Since(start)
	metrics.RecordFetch(domain, strconv.Itoa(resp.StatusCode), duration, len(body))
	if err != nil {
		return nil, &FetchError{Kind: KindNetwork, URL: targetURL, StatusCode: resp.StatusCode, Cause: fmt.Errorf("read body: %w", err)}
	}

	result := &Response{
		ID:         uuid.NewString(),
		URL:        resp.Request.URL.String(),
		StatusCode: resp.StatusCode,
		Header:     resp.Header,
		Body:       body,
		Duration:   duration,
	}
	if activeProxy != nil {
		result.Proxy = activeProxy.Redacted()
	}
	if detected, source := bypass.Analyze(resp.StatusCode, resp.Header, body, f.config.Signatures); detected {
		result.Challenge = source
	}

	f.logger.Debug("fetched page",
		"url", targetURL,
		"status", resp.StatusCode,
		"bytes", len(body),
		"duration", duration,
	)
	return result, nil
}
