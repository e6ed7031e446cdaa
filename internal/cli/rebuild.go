package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"sort"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"surgrag/internal/domain"
	surgerr "surgrag/pkg/errors"
)

var (
	rebuildJSON       bool
	rebuildNoProgress bool
)

var rebuildCmd = &cobra.Command{
	Use:   "rebuild",
	Short: "Drop the vector index and re-index every stored report",
	Long: `Drop the vector collection and rebuild it from the report store.
Run this after changing the embedding model, or when an add or delete
reported that the index was not updated.

Examples:
  surgrag rebuild
  surgrag rebuild --json`,
	Args: cobra.NoArgs,
	RunE: runRebuild,
}

func init() {
	rootCmd.AddCommand(rebuildCmd)
	rebuildCmd.Flags().BoolVar(&rebuildJSON, "json", false, "output stats as JSON")
	rebuildCmd.Flags().BoolVar(&rebuildNoProgress, "no-progress", false, "hide the progress bar")
}

func runRebuild(cmd *cobra.Command, args []string) error {
	a, err := openApp()
	if err != nil {
		return err
	}
	defer a.Close()

	var bar *progress
	var onProgress func(processed, total int)
	if !rebuildNoProgress && !rebuildJSON {
		bar = newProgress("Rebuilding")
		onProgress = bar.Update
	}

	stats, err := a.sync.Rebuild(cmd.Context(), onProgress)
	if bar != nil {
		bar.Finish()
	}
	if err != nil {
		fmt.Fprintln(cmd.ErrOrStderr(), rebuildStopped(stats, err))
		return err
	}

	out := cmd.OutOrStdout()
	if rebuildJSON {
		data, _ := json.MarshalIndent(stats, "", "  ")
		fmt.Fprintln(out, string(data))
		return nil
	}

	fmt.Fprintf(out, "\nRebuild complete:\n")
	fmt.Fprintf(out, "  Records:  %d\n", stats.Total)
	fmt.Fprintf(out, "  Indexed:  %d\n", stats.Indexed)
	fmt.Fprintf(out, "  Skipped:  %d (blank text)\n", stats.Skipped)

	if len(stats.BySpecialty) > 0 {
		fmt.Fprintf(out, "\nBy specialty:\n")
		printCounts(out, stats.BySpecialty, 0)
	}
	if len(stats.ByProcedureType) > 0 {
		fmt.Fprintf(out, "\nTop procedure types:\n")
		printCounts(out, stats.ByProcedureType, 10)
	}
	fmt.Fprintf(out, "\nIndex stored at: %s\n", a.indexPath)
	return nil
}

// rebuildStopped names the report that stopped an encode-stage failure so the
// operator can fix or delete it.
func rebuildStopped(stats domain.RebuildStats, err error) string {
	msg := fmt.Sprintf("Rebuild stopped after indexing %d reports; the index is incomplete.", stats.Indexed)
	if id, ok := surgerr.FieldsOf(err)["record_id"]; ok {
		msg += fmt.Sprintf("\nReport %v could not be encoded. Shorten it or run 'surgrag delete %v', then rebuild again.", id, id)
	}
	return msg
}

// printCounts prints name/count rows, largest first, at most limit rows when
// limit > 0.
func printCounts(out io.Writer, counts map[string]int, limit int) {
	names := make([]string, 0, len(counts))
	for name := range counts {
		names = append(names, name)
	}
	sort.Slice(names, func(i, j int) bool {
		if counts[names[i]] != counts[names[j]] {
			return counts[names[i]] > counts[names[j]]
		}
		return names[i] < names[j]
	})
	if limit > 0 && len(names) > limit {
		names = names[:limit]
	}

	tw := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	for _, name := range names {
		label := name
		if label == "" {
			label = "(none)"
		}
		if len([]rune(label)) > 60 {
			label = string([]rune(label)[:60]) + "..."
		}
		fmt.Fprintf(tw, "  %s\t%d\n", label, counts[name])
	}
	_ = tw.Flush()
}
