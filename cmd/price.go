package main

import (
	"encoding/json"
	"os"
	"os/signal"
	"syscall"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/sells-group/comp-pricer/internal/pricing"
)

var priceCmd = &cobra.Command{
	Use:   "price",
	Short: "Price a job title in a location",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		if err := cfg.Validate("price"); err != nil {
			return err
		}
		st, err := openStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		svc, err := buildService(cfg, st, nil)
		if err != nil {
			return err
		}

		title, _ := cmd.Flags().GetString("title")
		location, _ := cmd.Flags().GetString("location")
		requester, _ := cmd.Flags().GetInt64("requester")
		description, _ := cmd.Flags().GetString("description")
		sources, _ := cmd.Flags().GetStringSlice("sources")
		force, _ := cmd.Flags().GetBool("force")
		nonBlocking, _ := cmd.Flags().GetBool("non-blocking")
		deadline, _ := cmd.Flags().GetDuration("deadline")
		asJSON, _ := cmd.Flags().GetBool("json")
		if !cmd.Flags().Changed("non-blocking") {
			nonBlocking = cfg.Pricing.NonBlocking
		}

		resp, err := svc.Price(ctx, pricing.PriceRequest{
			JobTitle:     title,
			Location:     location,
			RequesterID:  requester,
			Description:  description,
			Sources:      sources,
			ForceRefresh: force,
			NonBlocking:  nonBlocking,
			Deadline:     deadline,
		})
		if err != nil {
			return eris.Wrap(err, "price")
		}

		if asJSON {
			enc := json.NewEncoder(os.Stdout)
			enc.SetIndent("", "  ")
			return enc.Encode(resp)
		}
		formatPriceResponse(os.Stdout, resp)
		return nil
	},
}

func init() {
	priceCmd.Flags().String("title", "", "job title (required)")
	priceCmd.Flags().String("location", "", "job location (required)")
	priceCmd.Flags().Int64("requester", 0, "requesting user id")
	priceCmd.Flags().String("description", "", "optional job description passed to sources")
	priceCmd.Flags().StringSlice("sources", nil, "restrict to these sources (default all)")
	priceCmd.Flags().Bool("force", false, "ignore cached results and recompute")
	priceCmd.Flags().Bool("non-blocking", false, "fail with Busy instead of waiting for an in-flight computation")
	priceCmd.Flags().Duration("deadline", 0, "source retrieval deadline (default from config)")
	priceCmd.Flags().Bool("json", false, "print the full response as JSON")
	_ = priceCmd.MarkFlagRequired("title")
	_ = priceCmd.MarkFlagRequired("location")
	rootCmd.AddCommand(priceCmd)
}
