package cli

import (
	"fmt"

	"github.com/spf13/cobra"
)

var (
	contextProcedure string
	contextSignal    string
	contextTopK      int
)

var contextCmd = &cobra.Command{
	Use:   "context",
	Short: "Assemble similar reports into a reference block",
	Long: `Retrieve reports similar to "<procedure>: <signal>" and print them as the
reference block passed to the report generator.

Examples:
  surgrag context --procedure "Laparoscopic Appendectomy" --signal "perforated, purulent fluid"`,
	RunE: runContext,
}

func init() {
	rootCmd.AddCommand(contextCmd)
	contextCmd.Flags().StringVar(&contextProcedure, "procedure", "", "procedure type")
	contextCmd.Flags().StringVar(&contextSignal, "signal", "", "free-text findings or dictation")
	contextCmd.Flags().IntVarP(&contextTopK, "top-k", "k", 0, "number of reports (default from config)")
}

func runContext(cmd *cobra.Command, args []string) error {
	a, err := openApp()
	if err != nil {
		return err
	}
	defer a.Close()

	topK := a.cfg.Context.TopK
	if contextTopK > 0 {
		topK = contextTopK
	}

	text, err := a.assembler.Assemble(cmd.Context(), contextProcedure, contextSignal, topK)
	if err != nil {
		return err
	}
	fmt.Fprintln(cmd.OutOrStdout(), text)
	return nil
}
