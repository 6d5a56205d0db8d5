package main

import (
	"fmt"
	"io"
	"os"
	"os/signal"
	"sort"
	"syscall"
	"text/tabwriter"
	"time"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/sells-group/gedmap/internal/cachestore"
	"github.com/sells-group/gedmap/internal/model"
	"github.com/sells-group/gedmap/internal/pipeline"
)

var cacheExportOut string

var cacheCmd = &cobra.Command{
	Use:   "cache",
	Short: "Inspect the geocode cache",
}

var cacheStatsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Show cache entry counts by source",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		if err := cfg.Validate("cache"); err != nil {
			return err
		}
		backend, err := cachestore.NewBackend(ctx, pipeline.BackendConfig(cfg.Cache))
		if err != nil {
			return err
		}
		return cachestore.Use(ctx, backend, func(c *cachestore.Cache) error {
			formatStats(cmd.OutOrStdout(), c.Stats())
			return nil
		}, cachestore.WithReadOnly())
	},
}

var cacheExportCmd = &cobra.Command{
	Use:   "export",
	Short: "Write the cache as CSV",
	Long:  "Writes every cache entry in the CSV cache format, whatever backend holds it. Use --out - for stdout.",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		if err := cfg.Validate("cache"); err != nil {
			return err
		}
		backend, err := cachestore.NewBackend(ctx, pipeline.BackendConfig(cfg.Cache))
		if err != nil {
			return err
		}
		return cachestore.Use(ctx, backend, func(c *cachestore.Cache) error {
			if cacheExportOut == "-" {
				return cachestore.WriteCSV(cmd.OutOrStdout(), c.Entries())
			}
			f, err := os.Create(cacheExportOut)
			if err != nil {
				return eris.Wrapf(err, "cache export: create %s", cacheExportOut)
			}
			if err := cachestore.WriteCSV(f, c.Entries()); err != nil {
				_ = f.Close()
				return err
			}
			return eris.Wrapf(f.Close(), "cache export: close %s", cacheExportOut)
		}, cachestore.WithReadOnly())
	},
}

func formatStats(out io.Writer, s cachestore.Stats) {
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintln(w, "SOURCE\tENTRIES")
	_, _ = fmt.Fprintln(w, "------\t-------")

	sources := make([]string, 0, len(s.BySource))
	for src := range s.BySource {
		sources = append(sources, string(src))
	}
	sort.Strings(sources)
	for _, src := range sources {
		_, _ = fmt.Fprintf(w, "%s\t%d\n", src, s.BySource[model.Source(src)])
	}
	_, _ = fmt.Fprintf(w, "TOTAL\t%d\n", s.Entries)
	if !s.Oldest.IsZero() {
		_, _ = fmt.Fprintf(w, "OLDEST\t%s\n", s.Oldest.Format(time.DateTime))
		_, _ = fmt.Fprintf(w, "NEWEST\t%s\n", s.Newest.Format(time.DateTime))
	}
	_ = w.Flush()
}

func init() {
	cacheExportCmd.Flags().StringVar(&cacheExportOut, "out", "geo_cache_export.csv", "output CSV path")
	cacheCmd.AddCommand(cacheStatsCmd, cacheExportCmd)
	rootCmd.AddCommand(cacheCmd)
}
