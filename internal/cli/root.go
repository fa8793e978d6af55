// Package cli wires configuration, the fetch stack and the navigator into the
// gotot command line.
package cli

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/url"

	"charm.land/log/v2"
	"github.com/FranksOps/gotot/internal/config"
	"github.com/FranksOps/gotot/internal/dates"
	"github.com/FranksOps/gotot/internal/metrics"
	"github.com/FranksOps/gotot/internal/navigator"
	"github.com/FranksOps/gotot/internal/scraper"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

// notFound is logged when a search gives up at the hop limit.
const notFound = "Nenalezeno (příliš daleko)."

type options struct {
	configPath string
	verbose    bool
	preview    bool
	wordWrap   int
}

func (o *options) logger(c *cobra.Command) *slog.Logger {
	level := log.InfoLevel
	if o.verbose {
		level = log.DebugLevel
	}
	handler := log.NewWithOptions(c.ErrOrStderr(), log.Options{
		Level:           level,
		ReportTimestamp: o.verbose,
		Prefix:          "gotot",
	})
	return slog.New(handler)
}

// NewRootCmd builds the gotot command tree.
func NewRootCmd() *cobra.Command {
	v := config.NewViper()
	opts := &options{}

	cmd := &cobra.Command{
		Use:   "gotot <board-url> <date>",
		Short: "Jump to the page of a board listing that covers a date",
		Long: "gotot walks the pager of a reverse-chronological discussion board and prints\n" +
			"the URL of the page whose posts span the given date.",
		Example: `  # ISO date, read in the configured timezone
  gotot https://www.okoun.cz/boards/test 2019-06-01

  # The board's own date format, with a preview of the landing page
  gotot --preview https://www.okoun.cz/boards/test "1. června 2019, 12:00"

  # Keep a journal of every hop and summarize it later
  gotot --journal sqlite --journal-dsn ~/.local/share/gotot/hops.db https://www.okoun.cz/boards/test 2019-06-01
  gotot report --journal sqlite --journal-dsn ~/.local/share/gotot/hops.db`,
		Args: cobra.ExactArgs(2),
		RunE: func(c *cobra.Command, args []string) error {
			return runSearch(c, v, opts, args[0], args[1])
		},
	}

	pf := cmd.PersistentFlags()
	pf.StringVar(&opts.configPath, "config", "", "config file (default ~/.config/gotot/config.toml)")
	pf.BoolVarP(&opts.verbose, "verbose", "v", false, "log every fetched page and hop")
	pf.String("journal", "", "journal backend: none, sqlite, postgres, json or csv")
	pf.String("journal-dsn", "", "journal file path or postgres connection string")
	pf.String("timezone", "", "timezone of the board's dates, e.g. Europe/Prague")
	bindFlags(v, pf, map[string]string{
		"journal":     "journal.backend",
		"journal-dsn": "journal.dsn",
		"timezone":    "timezone",
	})

	f := cmd.Flags()
	f.BoolVarP(&opts.preview, "preview", "p", false, "render the landing page listing in the terminal")
	f.IntVarP(&opts.wordWrap, "word-wrap", "w", 100, "word wrap width for the preview")
	f.Duration("timeout", 0, "timeout for each page request")
	f.String("fingerprint", "", "TLS fingerprint: go, chrome, firefox, safari or random")
	f.String("proxy-file", "", "file with one proxy URL per line")
	f.Float64("rps", 0, "maximum page requests per second, 0 for no limit")
	f.Bool("respect-robots", false, "refuse pages disallowed by robots.txt")
	f.Int("metrics-port", 0, "serve Prometheus metrics on this port while searching")
	bindFlags(v, f, map[string]string{
		"timeout":        "timeout",
		"fingerprint":    "fingerprint",
		"proxy-file":     "proxy_file",
		"rps":            "requests_per_second",
		"respect-robots": "respect_robots",
		"metrics-port":   "metrics_port",
	})

	cmd.AddCommand(newReportCmd(v, opts), newConfigCmd(opts))
	return cmd
}

func bindFlags(v *viper.Viper, flags *pflag.FlagSet, keys map[string]string) {
	for name, key := range keys {
		// only fails for a nil flag, which would be a typo above
		if err := v.BindPFlag(key, flags.Lookup(name)); err != nil {
			panic(fmt.Sprintf("bind flag %s: %v", name, err))
		}
	}
}

func runSearch(c *cobra.Command, v *viper.Viper, opts *options, boardURL, input string) error {
	logger := opts.logger(c)
	ctx := c.Context()
	if ctx == nil {
		ctx = context.Background()
	}

	if err := checkBoardURL(boardURL); err != nil {
		return err
	}

	cfg, err := config.Load(v, opts.configPath)
	if err != nil {
		return err
	}
	loc, err := cfg.Location()
	if err != nil {
		return err
	}

	if cfg.MetricsPort > 0 {
		srv := metrics.Start(cfg.MetricsPort, logger)
		defer srv.Stop(context.Background())
	}

	journal, err := openJournal(ctx, cfg.Journal)
	if err != nil {
		return err
	}
	if journal != nil {
		defer journal.Close()
	}

	loader, err := newLoader(cfg, logger)
	if err != nil {
		return err
	}
	nav := navigator.New(navigator.Config{Location: loc, Journal: journal}, loader, logger)

	res, err := navigator.NewRunner(nav, loc).Go(ctx, boardURL, input)
	switch {
	case errors.Is(err, dates.ErrInvalidTarget):
		logger.Warn("not a date, nothing to search for", "input", input)
		return nil
	case err != nil:
		if fe, ok := scraper.AsFetchError(err); ok {
			logger.Debug("search failed", "err", err)
			return errors.New(fe.UserMessage())
		}
		return err
	}

	if res.Outcome == navigator.Aborted {
		logger.Warn(notFound, "hops", res.Hops)
	}
	fmt.Fprintln(c.OutOrStdout(), res.URL)

	if opts.preview && res.Page != nil {
		return renderPreview(c.OutOrStdout(), res.Page, opts.wordWrap)
	}
	return nil
}

func checkBoardURL(raw string) error {
	u, err := url.Parse(raw)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return fmt.Errorf("board url must be an absolute http(s) url, got %q", raw)
	}
	return nil
}
