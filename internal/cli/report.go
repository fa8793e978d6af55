package cli

import (
	"errors"
	"fmt"
	"time"

	"github.com/FranksOps/gotot/internal/config"
	"github.com/FranksOps/gotot/internal/report"
	"github.com/FranksOps/gotot/internal/storage"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

func newReportCmd(v *viper.Viper, opts *options) *cobra.Command {
	var (
		format string
		filter storage.Filter
		since  time.Duration
	)

	cmd := &cobra.Command{
		Use:   "report",
		Short: "Summarize the search journal",
		Example: `  gotot report --journal sqlite --journal-dsn hops.db
  gotot report --format html --since 24h > searches.html`,
		Args: cobra.NoArgs,
		RunE: func(c *cobra.Command, _ []string) error {
			cfg, err := config.Load(v, opts.configPath)
			if err != nil {
				return err
			}
			loc, err := cfg.Location()
			if err != nil {
				return err
			}

			journal, err := openJournal(c.Context(), cfg.Journal)
			if err != nil {
				return err
			}
			if journal == nil {
				return errors.New("no journal configured, set journal.backend or --journal")
			}
			defer journal.Close()

			if since > 0 {
				t := time.Now().Add(-since)
				filter.Since = &t
			}
			records, err := journal.Query(c.Context(), filter)
			if err != nil {
				return fmt.Errorf("query journal: %w", err)
			}
			opts.logger(c).Debug("loaded journal", "records", len(records))

			summary := report.GenerateSummary(records, loc)
			out := c.OutOrStdout()
			switch format {
			case "text":
				return report.WriteText(out, summary)
			case "json":
				return report.WriteJSON(out, summary)
			case "html":
				return report.WriteHTML(out, summary)
			default:
				return fmt.Errorf("unknown format %q, want text, json or html", format)
			}
		},
	}

	f := cmd.Flags()
	f.StringVarP(&format, "format", "f", "text", "output format: text, json or html")
	f.StringVar(&filter.SearchID, "search", "", "only records of this search id")
	f.StringVar(&filter.Outcome, "outcome", "", "only records with this outcome, e.g. landed or error")
	f.DurationVar(&since, "since", 0, "only records newer than this, e.g. 24h")
	f.IntVar(&filter.Limit, "limit", 0, "maximum number of records, 0 for all")
	return cmd
}
