package cli

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/FranksOps/gotot/internal/bypass"
	"github.com/FranksOps/gotot/internal/config"
	"github.com/FranksOps/gotot/internal/fingerprint"
	"github.com/FranksOps/gotot/internal/scraper"
	"github.com/FranksOps/gotot/internal/storage"
	"github.com/FranksOps/gotot/internal/storage/csvbackend"
	"github.com/FranksOps/gotot/internal/storage/jsonbackend"
	"github.com/FranksOps/gotot/internal/storage/postgres"
	"github.com/FranksOps/gotot/internal/storage/sqlite"
	"github.com/FranksOps/gotot/pkg/proxy"
	"github.com/FranksOps/gotot/pkg/ratelimit"
	"github.com/FranksOps/gotot/pkg/useragent"
)

// openJournal returns nil, nil when journaling is off.
func openJournal(ctx context.Context, j config.Journal) (storage.Backend, error) {
	var (
		backend storage.Backend
		err     error
	)
	switch j.Backend {
	case config.JournalSQLite:
		backend, err = sqlite.New(j.DSN)
	case config.JournalPostgres:
		backend, err = postgres.New(ctx, j.DSN)
	case config.JournalJSON:
		backend, err = jsonbackend.New(j.DSN)
	case config.JournalCSV:
		backend, err = csvbackend.New(j.DSN)
	case config.JournalNone, "":
		return nil, nil
	default:
		return nil, fmt.Errorf("unknown journal backend %q", j.Backend)
	}
	if err != nil {
		return nil, fmt.Errorf("open %s journal: %w", j.Backend, err)
	}
	return backend, nil
}

// newLoader assembles the fetch stack described by cfg.
func newLoader(cfg config.Config, logger *slog.Logger) (*scraper.Loader, error) {
	profile, err := fingerprint.ParseProfile(cfg.Fingerprint)
	if err != nil {
		return nil, err
	}

	var pool *proxy.Pool
	if cfg.ProxyFile != "" {
		pool = proxy.NewPool(proxy.Config{})
		if err := pool.LoadFile(cfg.ProxyFile); err != nil {
			return nil, err
		}
		logger.Debug("loaded proxies", "count", pool.Len(), "file", cfg.ProxyFile)
	}

	fetcher, err := scraper.NewFetcher(scraper.FetchConfig{
		Timeout:      cfg.Timeout,
		MaxRedirects: cfg.MaxRedirects,
		UseCookieJar: cfg.CookieJar,
		ProxyPool:    pool,
		UAPool:       useragent.NewPool(cfg.UserAgents, cfg.RandomUserAgent),
		Fingerprint:  profile,
		Limiter:      ratelimit.NewLimiter(cfg.RequestsPerSecond, cfg.Jitter),
		Signatures:   bypass.DefaultSignatures(),
		Logger:       logger,
	})
	if err != nil {
		return nil, err
	}

	var robots *scraper.RobotsChecker
	if cfg.RespectRobots {
		robots = scraper.NewRobotsChecker(fetcher, scraper.DefaultRobotsAgent, logger)
	}
	return scraper.NewLoader(fetcher, robots, logger), nil
}
