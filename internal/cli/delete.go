package cli

import (
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	surgerr "surgrag/pkg/errors"
)

var deleteCmd = &cobra.Command{
	Use:   "delete <id>",
	Short: "Delete a report from the store and the index",
	Args:  cobra.ExactArgs(1),
	RunE:  runDelete,
}

func init() {
	rootCmd.AddCommand(deleteCmd)
}

func runDelete(cmd *cobra.Command, args []string) error {
	id, err := strconv.ParseInt(args[0], 10, 64)
	if err != nil {
		return surgerr.Wrap(err, surgerr.CodeCLIInputInvalid, "invalid report id", surgerr.Field("id", args[0]))
	}

	a, err := openApp()
	if err != nil {
		return err
	}
	defer a.Close()

	deleted, err := a.ingestor.Delete(cmd.Context(), id)
	if err != nil {
		return err
	}
	if !deleted {
		fmt.Fprintf(cmd.OutOrStdout(), "Report %d not found.\n", id)
		return nil
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Deleted report %d.\n", id)
	return nil
}
