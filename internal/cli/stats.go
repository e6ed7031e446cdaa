package cli

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"surgrag/internal/domain"
	"surgrag/internal/port"
)

var statsJSON bool

var statsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Show report store and vector collection statistics",
	Args:  cobra.NoArgs,
	RunE:  runStats,
}

func init() {
	rootCmd.AddCommand(statsCmd)
	statsCmd.Flags().BoolVar(&statsJSON, "json", false, "output as JSON")
}

type statsOutput struct {
	Reports    int                    `json:"reports"`
	BySource   map[string]int         `json:"by_source"`
	Collection domain.CollectionStats `json:"collection"`
}

func runStats(cmd *cobra.Command, args []string) error {
	a, err := openApp()
	if err != nil {
		return err
	}
	defer a.Close()
	ctx := cmd.Context()

	var s statsOutput
	if s.Reports, err = a.store.Count(ctx); err != nil {
		return err
	}
	if s.BySource, err = a.store.CountBySource(ctx); err != nil {
		return err
	}
	if inspector, ok := a.index.(port.IndexInspector); ok {
		if s.Collection, err = inspector.Stats(ctx); err != nil {
			return err
		}
	} else {
		n, err := a.index.Count(ctx)
		if err != nil {
			return err
		}
		s.Collection = domain.CollectionStats{
			TotalDocuments: n,
			Collection:     a.cfg.Index.Collection,
			EmbeddingModel: a.encoder.ModelName(),
			Backend:        a.cfg.Index.Backend,
		}
	}

	out := cmd.OutOrStdout()
	if statsJSON {
		data, _ := json.MarshalIndent(s, "", "  ")
		fmt.Fprintln(out, string(data))
		return nil
	}

	c := s.Collection
	fmt.Fprintf(out, "Reports stored:   %d\n", s.Reports)
	if len(s.BySource) > 0 {
		printCounts(out, s.BySource, 0)
	}
	fmt.Fprintf(out, "\nCollection:       %s (%s)\n", c.Collection, c.Backend)
	fmt.Fprintf(out, "Indexed reports:  %d\n", c.TotalDocuments)
	fmt.Fprintf(out, "Embedding model:  %s\n", c.EmbeddingModel)
	if c.Location != "" {
		fmt.Fprintf(out, "Location:         %s\n", c.Location)
	}
	if c.NeedsRebuild {
		fmt.Fprintf(out, "\nRebuild required: %s\n", c.RebuildReason)
	} else if c.TotalDocuments != s.Reports {
		fmt.Fprintf(out, "\nIndex and store counts differ; blank reports are not indexed, otherwise run 'surgrag rebuild'.\n")
	}
	return nil
}
