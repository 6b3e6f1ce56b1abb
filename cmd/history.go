package main

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
)

var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "List recent pricing results",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()

		st, err := openStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		svc, err := buildService(cfg, st, nil)
		if err != nil {
			return err
		}

		limit, _ := cmd.Flags().GetInt("limit")
		offset, _ := cmd.Flags().GetInt("offset")
		results, err := svc.GetHistory(ctx, limit, offset)
		if err != nil {
			return eris.Wrap(err, "history")
		}

		if len(results) == 0 {
			fmt.Fprintln(os.Stderr, "No results found.")
			return nil
		}
		formatHistory(os.Stdout, results)
		return nil
	},
}

var showCmd = &cobra.Command{
	Use:   "show <result-id>",
	Short: "Show a stored result",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		st, err := openStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		svc, err := buildService(cfg, st, nil)
		if err != nil {
			return err
		}

		detail, err := svc.GetByID(ctx, args[0])
		if err != nil {
			return eris.Wrap(err, "show")
		}

		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(detail)
	},
}

var versionsCmd = &cobra.Command{
	Use:   "versions <request-id>",
	Short: "List retained result versions of a request",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		st, err := openStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		svc, err := buildService(cfg, st, nil)
		if err != nil {
			return err
		}

		versions, err := svc.GetVersions(ctx, args[0])
		if err != nil {
			return eris.Wrap(err, "versions")
		}
		formatVersions(os.Stdout, versions)
		return nil
	},
}

func init() {
	historyCmd.Flags().Int("limit", 20, "max number of results (capped at 100)")
	historyCmd.Flags().Int("offset", 0, "number of results to skip")

	rootCmd.AddCommand(historyCmd)
	rootCmd.AddCommand(showCmd)
	rootCmd.AddCommand(versionsCmd)
}
