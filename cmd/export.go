package main

import (
	"os"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/comp-pricer/internal/export"
	"github.com/sells-group/comp-pricer/internal/store"
)

var exportCmd = &cobra.Command{
	Use:   "export",
	Short: "Export pricing results to an xlsx workbook",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()

		st, err := openStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		out, _ := cmd.Flags().GetString("out")
		limit, _ := cmd.Flags().GetInt("limit")
		latest, _ := cmd.Flags().GetBool("latest-only")

		results, err := st.ListResults(ctx, store.ResultFilter{Limit: limit, LatestOnly: latest})
		if err != nil {
			return eris.Wrap(err, "export: list results")
		}

		f, err := os.Create(out)
		if err != nil {
			return eris.Wrap(err, "export: create file")
		}
		if err := export.WriteResults(f, results); err != nil {
			_ = f.Close()
			return err
		}
		if err := f.Close(); err != nil {
			return eris.Wrap(err, "export: close file")
		}

		zap.L().Info("exported results", zap.String("file", out), zap.Int("rows", len(results)))
		return nil
	},
}

func init() {
	exportCmd.Flags().String("out", "pricing-results.xlsx", "output workbook path")
	exportCmd.Flags().Int("limit", 100, "max number of results (capped at 100)")
	exportCmd.Flags().Bool("latest-only", true, "only export the latest version of each request")
	rootCmd.AddCommand(exportCmd)
}
