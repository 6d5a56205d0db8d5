package main

import (
	"fmt"
	"io"
	"os/signal"
	"sort"
	"syscall"
	"text/tabwriter"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/gedmap/internal/config"
	"github.com/sells-group/gedmap/internal/export"
	"github.com/sells-group/gedmap/internal/model"
	"github.com/sells-group/gedmap/internal/pipeline"
	"github.com/sells-group/gedmap/internal/resolve"
	"github.com/sells-group/gedmap/pkg/geocode"
)

var (
	geocodeDefaultCountry string
	geocodeFuzzy          bool
	geocodeThreshold      float64
	geocodeAlways         bool
	geocodeGeoJSON        string
	geocodeGeoJSONMode    string
)

var geocodeCmd = &cobra.Command{
	Use:   "geocode <file.ged>...",
	Short: "Resolve every event place in one or more GEDCOM files",
	Long:  "Parses the given GEDCOM files in parallel, then resolves their places in order against the configured cache and geocoder. Interrupting the run keeps everything resolved so far in the cache.",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		applyGeocodeFlags(cmd, cfg)
		if err := cfg.Validate("geocode"); err != nil {
			return err
		}

		client, err := geocode.New(pipeline.GeocoderConfig(cfg.Geocode))
		if err != nil {
			return eris.Wrap(err, "geocode: init client")
		}

		res, err := pipeline.Execute(ctx, cfg, client, args)
		if err != nil {
			return err
		}

		if geocodeGeoJSON != "" {
			graphs := make([]*model.Graph, 0, len(res.Files))
			for _, f := range res.Files {
				graphs = append(graphs, f.Graph)
			}
			fc, err := export.Build(export.Mode(geocodeGeoJSONMode), graphs...)
			if err != nil {
				return err
			}
			if err := export.WriteFile(geocodeGeoJSON, fc); err != nil {
				return err
			}
			zap.L().Info("geocode: wrote geojson",
				zap.String("path", geocodeGeoJSON),
				zap.Int("features", len(fc.Features)),
			)
		}

		formatReport(cmd.OutOrStdout(), res.Report)
		return nil
	},
}

// applyGeocodeFlags overrides configuration with the flags set on cmd.
func applyGeocodeFlags(cmd *cobra.Command, c *config.Config) {
	flags := cmd.Flags()
	if flags.Changed("default-country") {
		c.Places.DefaultCountry = geocodeDefaultCountry
	}
	if flags.Changed("fuzzy") {
		c.Fuzzy.Enabled = geocodeFuzzy
	}
	if flags.Changed("threshold") {
		c.Fuzzy.Threshold = geocodeThreshold
	}
	if flags.Changed("always-geocode") {
		c.Geocode.AlwaysGeocode = geocodeAlways
	}
}

func formatReport(out io.Writer, rep resolve.Report) {
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintf(w, "RUN\t%s\n", rep.RunID)
	_, _ = fmt.Fprintf(w, "PLACES\t%d\n", rep.Places)
	for _, src := range []model.Source{model.SourceManual, model.SourceCacheExact, model.SourceCacheFuzzy, model.SourceGeocoded} {
		_, _ = fmt.Fprintf(w, "%s\t%d\n", src, rep.BySource[src])
	}
	_, _ = fmt.Fprintf(w, "UNRESOLVED\t%d\n", rep.Unresolved)
	_, _ = fmt.Fprintf(w, "LIVE REQUESTS\t%d\n", rep.LiveRequests)
	if rep.Cancelled {
		_, _ = fmt.Fprintln(w, "CANCELLED\tyes")
	}
	_ = w.Flush()

	if len(rep.Failures) == 0 {
		return
	}
	failures := append([]resolve.Failure(nil), rep.Failures...)
	sort.SliceStable(failures, func(i, j int) bool { return failures[i].Reason < failures[j].Reason })

	_, _ = fmt.Fprintln(out)
	w = tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintln(w, "REASON\tPLACE")
	_, _ = fmt.Fprintln(w, "------\t-----")
	for _, f := range failures {
		_, _ = fmt.Fprintf(w, "%s\t%s\n", f.Reason, f.Key)
	}
	_ = w.Flush()
}

func init() {
	geocodeCmd.Flags().StringVar(&geocodeDefaultCountry, "default-country", "", "country appended to places without one (\"None\" disables)")
	geocodeCmd.Flags().BoolVar(&geocodeFuzzy, "fuzzy", false, "match similar cached places before geocoding")
	geocodeCmd.Flags().Float64Var(&geocodeThreshold, "threshold", resolve.DefaultThreshold, "minimum fuzzy similarity in (0, 1]")
	geocodeCmd.Flags().BoolVar(&geocodeAlways, "always-geocode", false, "skip the cache and geocode every place")
	geocodeCmd.Flags().StringVar(&geocodeGeoJSON, "geojson", "", "write resolved places to this GeoJSON file")
	geocodeCmd.Flags().StringVar(&geocodeGeoJSONMode, "geojson-mode", string(export.ModeEvents), "GeoJSON features: events or individuals")
	rootCmd.AddCommand(geocodeCmd)
}
