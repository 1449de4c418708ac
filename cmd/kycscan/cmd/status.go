package cmd

import (
	"encoding/json"

	"github.com/spf13/cobra"
)

// statusCmd reads persisted state. It is only meaningful with the postgres
// store; the memory store starts empty on every invocation.
var statusCmd = &cobra.Command{
	Use:   "status <customer-id>",
	Short: "Show a customer's KYC status",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := buildApp(cmd.Context(), GetConfig())
		if err != nil {
			return err
		}
		defer func() { _ = a.Close() }()

		st, err := a.pipeline.KycStatus(cmd.Context(), args[0])
		if err != nil {
			return err
		}
		return printJSON(cmd, st)
	},
}

var historyCmd = &cobra.Command{
	Use:   "history <document-id>",
	Short: "Show a document's verification history",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := buildApp(cmd.Context(), GetConfig())
		if err != nil {
			return err
		}
		defer func() { _ = a.Close() }()

		recs, err := a.pipeline.Verifications(cmd.Context(), args[0])
		if err != nil {
			return err
		}
		return printJSON(cmd, recs)
	},
}

func printJSON(cmd *cobra.Command, v any) error {
	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func init() {
	rootCmd.AddCommand(statusCmd, historyCmd)
}
