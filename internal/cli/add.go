package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"surgrag/internal/adapter/fs"
	"surgrag/internal/domain"
	"surgrag/internal/usecase"
	surgerr "surgrag/pkg/errors"
)

var (
	addProcedure string
	addSpecialty string
	addName      string
	addKeywords  string
	addSource    string
	addFile      string
	addJSON      bool
)

var addCmd = &cobra.Command{
	Use:   "add",
	Short: "Store a report and index it",
	Long: `Store a de-identified report and add it to the vector index.
The report text is read from --file, or from stdin when --file is "-" or unset.
Procedure type and specialty are extracted from the text when not given.

Examples:
  surgrag add --file op_note.txt --specialty "General Surgery"
  cat note.txt | surgrag add --procedure "EGD"`,
	RunE: runAdd,
}

func init() {
	rootCmd.AddCommand(addCmd)
	addCmd.Flags().StringVar(&addProcedure, "procedure", "", "procedure type (default: extracted from text)")
	addCmd.Flags().StringVar(&addSpecialty, "specialty", "", "specialty (default: extracted from text)")
	addCmd.Flags().StringVar(&addName, "name", "", "report name")
	addCmd.Flags().StringVar(&addKeywords, "keywords", "", "comma-separated keywords")
	addCmd.Flags().StringVar(&addSource, "source", "Manual Entry", "report source")
	addCmd.Flags().StringVarP(&addFile, "file", "f", "-", "report text file, - for stdin")
	addCmd.Flags().BoolVar(&addJSON, "json", false, "output as JSON")
}

func runAdd(cmd *cobra.Command, args []string) error {
	var (
		text string
		err  error
	)
	if addFile == "-" {
		var data []byte
		data, err = io.ReadAll(cmd.InOrStdin())
		text = string(data)
	} else {
		text, err = fs.ReadText(addFile)
	}
	if err != nil {
		return surgerr.Wrap(err, surgerr.CodeCLIInputInvalid, "failed to read report text")
	}
	if strings.TrimSpace(text) == "" {
		return surgerr.New(surgerr.CodeCLIInputInvalid, "report text is empty")
	}

	a, err := openApp()
	if err != nil {
		return err
	}
	defer a.Close()

	procedure := addProcedure
	if procedure == "" {
		procedure = usecase.ExtractProcedureType(text)
	}
	specialty := addSpecialty
	if specialty == "" {
		specialty = usecase.ExtractSpecialty(text, a.cfg.Import.DefaultSpecialty)
	}

	res, err := a.ingestor.Add(cmd.Context(), domain.NewReport{
		ProcedureType:  procedure,
		Specialty:      specialty,
		ReportName:     addName,
		ReportText:     text,
		Keywords:       addKeywords,
		Source:         addSource,
		IsDeidentified: true,
	})
	if err != nil && !surgerr.IsDrift(err) {
		return err
	}

	out := cmd.OutOrStdout()
	if addJSON {
		data, _ := json.MarshalIndent(res, "", "  ")
		fmt.Fprintln(out, string(data))
	} else {
		fmt.Fprintf(out, "Stored report %d (%s, %s)\n", res.ID, procedure, specialty)
		if !res.Indexed && err == nil {
			fmt.Fprintln(out, "Report text is blank; not indexed.")
		}
	}
	if err != nil {
		fmt.Fprintln(os.Stderr, "Warning: the report is stored but the index was not updated. Run 'surgrag rebuild'.")
		return err
	}
	return nil
}
