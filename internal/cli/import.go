package cli

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"surgrag/internal/usecase"
	surgerr "surgrag/pkg/errors"
)

var (
	importCSV    string
	importMoveTo string
	importJSON   bool
)

var importCmd = &cobra.Command{
	Use:   "import [dir]",
	Short: "Bulk import reports from a directory or an MTSamples CSV",
	Long: `Import .txt reports from a directory, or rows of an MTSamples-format CSV.
Every imported report is stored and indexed. Procedure type and specialty are
extracted from the report text.

Examples:
  surgrag import ./own_reports/raw --move-to ../imported
  surgrag import --csv mtsamples.csv`,
	Args: cobra.MaximumNArgs(1),
	RunE: runImport,
}

func init() {
	rootCmd.AddCommand(importCmd)
	importCmd.Flags().StringVar(&importCSV, "csv", "", "MTSamples CSV file to import")
	importCmd.Flags().StringVar(&importMoveTo, "move-to", "", "move imported files here (relative to dir)")
	importCmd.Flags().BoolVar(&importJSON, "json", false, "output results as JSON")
}

func runImport(cmd *cobra.Command, args []string) error {
	if importCSV == "" && len(args) == 0 {
		return surgerr.New(surgerr.CodeCLIInputInvalid, "give a directory or --csv")
	}

	a, err := openApp()
	if err != nil {
		return err
	}
	defer a.Close()

	icfg := a.cfg.Import
	if importMoveTo != "" {
		icfg.MoveTo = importMoveTo
	}

	var bar *progress
	opts := []usecase.ImportOption{usecase.WithImportLogger(logger.Named("import"))}
	if !importJSON {
		bar = newProgress("Importing")
		opts = append(opts, usecase.WithImportProgress(bar.Update))
	}
	imp := usecase.NewImporter(a.ingestor, icfg, opts...)

	var result *usecase.ImportResult
	if importCSV != "" {
		result, err = imp.ImportCSV(cmd.Context(), importCSV)
	} else {
		dir, absErr := filepath.Abs(args[0])
		if absErr != nil {
			return surgerr.Wrap(absErr, surgerr.CodeCLIInputInvalid, "invalid path")
		}
		if info, statErr := os.Stat(dir); statErr != nil || !info.IsDir() {
			return surgerr.New(surgerr.CodeCLIInputInvalid, "path is not a directory: "+dir)
		}
		result, err = imp.ImportDir(cmd.Context(), dir)
	}
	if bar != nil {
		bar.Finish()
	}
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	if importJSON {
		data, _ := json.MarshalIndent(result, "", "  ")
		fmt.Fprintln(out, string(data))
		return nil
	}

	fmt.Fprintf(out, "\nImport complete:\n")
	fmt.Fprintf(out, "  Total:      %d\n", len(result.Files))
	fmt.Fprintf(out, "  Successful: %d\n", result.Success)
	fmt.Fprintf(out, "  Failed:     %d\n", result.Failed)
	fmt.Fprintf(out, "  Skipped:    %d\n", result.Skipped)

	var failed []usecase.FileResult
	for _, fr := range result.Files {
		if fr.Status == usecase.StatusFailed {
			failed = append(failed, fr)
		}
	}
	if len(failed) > 0 {
		fmt.Fprintf(out, "\nErrors:\n")
		for _, fr := range failed {
			fmt.Fprintf(out, "  - %s: %s\n", fr.File, fr.Error)
		}
	}
	if result.Drifted > 0 {
		fmt.Fprintf(out, "\nWarning: %d reports were stored but not indexed. Run 'surgrag rebuild'.\n", result.Drifted)
	}
	return nil
}
