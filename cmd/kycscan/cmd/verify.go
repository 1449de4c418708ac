package cmd

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/MeKo-Tech/kycscan/internal/batch"
	"github.com/MeKo-Tech/kycscan/internal/domain"
)

// verifyCmd uploads one local file and verifies it.
var verifyCmd = &cobra.Command{
	Use:   "verify <file>",
	Short: "Verify a single identity document",
	Long: `Upload a scanned document for a customer, run extraction, validation and
verification, and print the verdict.

The document type is read from --type or inferred from the file name
(for example "pan_card.jpg" is a PAN).

Examples:
  kycscan verify aadhaar_front.png --customer cust-1
  kycscan verify scan.pdf --customer cust-1 --type passport --format text
  kycscan verify pan.jpg --customer cust-1 --strategy label@v1`,
	Args:         cobra.ExactArgs(1),
	SilenceUsage: true,
	RunE:         runVerifyCommand,
}

func runVerifyCommand(cmd *cobra.Command, args []string) error {
	cfg := GetConfig()
	path := args[0]

	customer, _ := cmd.Flags().GetString("customer")
	typeFlag, _ := cmd.Flags().GetString("type")
	strategy, _ := cmd.Flags().GetString("strategy")
	format, _ := cmd.Flags().GetString("format")

	a, err := buildApp(cmd.Context(), cfg)
	if err != nil {
		return err
	}
	defer func() { _ = a.Close() }()

	docType, err := resolveDocumentType(typeFlag, path, a.pipeline.Profiles().Types())
	if err != nil {
		return err
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read %s: %w", path, err)
	}

	ctx := cmd.Context()
	doc, err := a.pipeline.Upload(ctx, customer, docType, filepath.Base(path), data)
	if err != nil {
		return err
	}
	slog.Debug("Document uploaded", "document_id", doc.ID, "type", docType)

	res, err := a.pipeline.Run(ctx, domain.RunContext{
		CustomerID:  customer,
		DocumentID:  doc.ID,
		StrategyTag: strategy,
	})
	if err != nil {
		return err
	}

	if format == "json" {
		return printJSON(cmd, res)
	}
	r := &batch.Result{Items: []batch.Item{{File: path, CustomerID: customer, DocumentType: docType, Result: res}}}
	out, err := r.FormatResults(format)
	if err != nil {
		return err
	}
	_, _ = fmt.Fprint(cmd.OutOrStdout(), out)
	return nil
}

// resolveDocumentType prefers an explicit type and falls back to the file name.
func resolveDocumentType(flag, path string, known []domain.DocumentType) (domain.DocumentType, error) {
	if flag != "" {
		return domain.ParseDocumentType(flag)
	}
	dt, ok := batch.InferDocumentType(path, known)
	if !ok {
		return "", fmt.Errorf("%w: cannot infer type from %q, use --type", domain.ErrUnknownDocumentType, filepath.Base(path))
	}
	return dt, nil
}

func init() {
	rootCmd.AddCommand(verifyCmd)
	verifyCmd.Flags().StringP("customer", "c", "local", "customer the document belongs to")
	verifyCmd.Flags().StringP("type", "t", "", "document type (AADHAAR, PAN, PASSPORT, UTILITY_BILL, ...)")
	verifyCmd.Flags().String("strategy", "", "extraction strategy override (e.g. label@v1)")
	verifyCmd.Flags().StringP("format", "f", "json", "output format (json, text, csv)")
}
