package cli

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"surgrag/internal/domain"
)

var (
	queryText      string
	queryTopK      int
	querySpecialty string
	queryProcedure string
	queryJSON      bool
)

var queryCmd = &cobra.Command{
	Use:   "query",
	Short: "Find stored reports similar to a query",
	Long: `Search the vector index for the reports nearest to the query text,
optionally restricted to a specialty and/or procedure type.

Examples:
  surgrag query -q "laparoscopic cholecystectomy"
  surgrag query -q "upper endoscopy" --specialty Gastroenterology -k 5 --json`,
	RunE: runQuery,
}

func init() {
	rootCmd.AddCommand(queryCmd)
	queryCmd.Flags().StringVarP(&queryText, "query", "q", "", "search query (required)")
	queryCmd.Flags().IntVarP(&queryTopK, "top-k", "k", 0, "number of results (default from config)")
	queryCmd.Flags().StringVar(&querySpecialty, "specialty", "", "only reports of this specialty")
	queryCmd.Flags().StringVar(&queryProcedure, "procedure", "", "only reports of this procedure type")
	queryCmd.Flags().BoolVar(&queryJSON, "json", false, "output as JSON")
	queryCmd.MarkFlagRequired("query")
}

func runQuery(cmd *cobra.Command, args []string) error {
	a, err := openApp()
	if err != nil {
		return err
	}
	defer a.Close()

	topK := a.cfg.Retrieve.TopK
	if queryTopK > 0 {
		topK = queryTopK
	}

	matches, err := a.engine.RetrieveMatches(cmd.Context(), queryText, topK, domain.Filters{
		Specialty:     querySpecialty,
		ProcedureType: queryProcedure,
	})
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	if queryJSON {
		output, _ := json.MarshalIndent(matches, "", "  ")
		fmt.Fprintln(out, string(output))
		return nil
	}

	if len(matches) == 0 {
		fmt.Fprintln(out, "No results found.")
		return nil
	}
	fmt.Fprintf(out, "Found %d results for: %s\n\n", len(matches), queryText)
	for i, m := range matches {
		fmt.Fprintf(out, "--- [%d] report %d (distance: %.4f) ---\n", i+1, m.ID, m.Distance)
		text := []rune(m.Document)
		if len(text) > 500 {
			text = append(text[:500], []rune("...")...)
		}
		fmt.Fprintln(out, string(text))
		fmt.Fprintln(out)
	}
	return nil
}
