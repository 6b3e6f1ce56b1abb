package main

import (
	"fmt"
	"io"
	"strings"
	"text/tabwriter"

	"github.com/sells-group/comp-pricer/internal/model"
	"github.com/sells-group/comp-pricer/internal/pricing"
)

// formatPriceResponse writes a human-readable recommendation to out.
func formatPriceResponse(out io.Writer, r *pricing.PricingResponse) {
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintf(w, "Role:\t%s (%s)\n", r.JobTitle, r.Location)
	_, _ = fmt.Fprintf(w, "Target:\t%.0f\n", r.TargetSalary)
	_, _ = fmt.Fprintf(w, "Range:\t%.0f - %.0f\n", r.RecommendedMin, r.RecommendedMax)
	_, _ = fmt.Fprintf(w, "Percentiles:\tp10 %.0f  p25 %.0f  p50 %.0f  p75 %.0f  p90 %.0f\n",
		r.Percentiles.P10, r.Percentiles.P25, r.Percentiles.P50, r.Percentiles.P75, r.Percentiles.P90)
	_, _ = fmt.Fprintf(w, "Confidence:\t%.1f (%s)\n", r.ConfidenceScore, r.ConfidenceLevel)
	_, _ = fmt.Fprintf(w, "Data points:\t%d from %s\n", r.TotalDataPoints, strings.Join(r.DataSourcesUsed, ", "))

	origin := "computed"
	switch {
	case r.Cache.Stale:
		origin = "stale cache"
	case r.Cache.FromCache:
		origin = "cache"
	}
	_, _ = fmt.Fprintf(w, "Version:\t%d (%s, expires %s)\n", r.Cache.Version, origin, r.Cache.ExpiresAt.Format("2006-01-02 15:04"))
	_, _ = fmt.Fprintf(w, "Requests:\t%d\n", r.RequestCount)
	_ = w.Flush()

	if len(r.Contributions) > 0 {
		_, _ = fmt.Fprintln(out)
		w = tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
		_, _ = fmt.Fprintln(w, "SOURCE\tWEIGHT\tSAMPLES\tMATCH\tRECENCY")
		for _, c := range r.Contributions {
			_, _ = fmt.Fprintf(w, "%s\t%.1f%%\t%d\t%.0f%%\t%.2f\n",
				c.SourceName, c.WeightPercent, c.SampleSize, c.MatchQualityPercent, c.RecencyWeight)
		}
		_ = w.Flush()
	}

	if len(r.Scenarios) > 0 {
		_, _ = fmt.Fprintln(out)
		w = tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
		_, _ = fmt.Fprintln(w, "SCENARIO\tMIN\tMAX\tUSE CASE")
		for _, s := range r.Scenarios {
			_, _ = fmt.Fprintf(w, "%s\t%.0f\t%.0f\t%s\n", s.Name, s.Min, s.Max, s.UseCase)
		}
		_ = w.Flush()
	}

	if r.Explanation != "" {
		_, _ = fmt.Fprintf(out, "\n%s\n", r.Explanation)
	}
}

// formatHistory writes a tabular list of results to out.
func formatHistory(out io.Writer, results []model.PricingResultSummary) {
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintln(w, "RESULT\tJOB TITLE\tLOCATION\tVER\tTARGET\tCONFIDENCE\tCALCULATED")
	_, _ = fmt.Fprintln(w, "------\t---------\t--------\t---\t------\t----------\t----------")

	for _, r := range results {
		ver := fmt.Sprintf("%d", r.Version)
		if r.IsLatest {
			ver += "*"
		}
		_, _ = fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%.0f\t%.1f %s\t%s\n",
			truncateID(r.ResultID),
			truncate(r.JobTitle, 30),
			truncate(r.LocationText, 20),
			ver,
			r.TargetSalary,
			r.ConfidenceScore, r.ConfidenceLevel,
			r.CalculatedAt.Format("2006-01-02 15:04"),
		)
	}
	_ = w.Flush()
}

// formatVersions writes the versions of one request to out.
func formatVersions(out io.Writer, versions []model.PricingResult) {
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintln(w, "VER\tRESULT\tTARGET\tCONFIDENCE\tCACHE HIT\tCALCULATED\tEXPIRES")
	for _, v := range versions {
		ver := fmt.Sprintf("%d", v.Version)
		if v.IsLatest {
			ver += "*"
		}
		_, _ = fmt.Fprintf(w, "%s\t%s\t%.0f\t%.1f\t%t\t%s\t%s\n",
			ver,
			truncateID(v.ID),
			v.TargetSalary,
			v.ConfidenceScore,
			v.CacheHit,
			v.CalculatedAt.Format("2006-01-02 15:04"),
			v.ExpiresAt.Format("2006-01-02 15:04"),
		)
	}
	_ = w.Flush()
}

// truncateID returns the first 8 characters of a UUID for compact display.
func truncateID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n-3]) + "..."
}
