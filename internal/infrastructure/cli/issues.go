package cli

import (
	"fmt"
	"io"
	"os"

	"github.com/felixgeelhaar/prnotify/pkg/domain/notify"
	"github.com/spf13/cobra"
)

var issuesCmd = &cobra.Command{
	Use:   "issues <file>",
	Short: "Print the issues a pull request body references",
	Long:  "Reads a pull request body from a file, or from stdin when the file is -, and prints the referenced issue ids in sorted order.",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		var (
			data []byte
			err  error
		)
		if args[0] == "-" {
			data, err = io.ReadAll(cmd.InOrStdin())
		} else {
			// #nosec G304 -- the operator names the file
			data, err = os.ReadFile(args[0])
		}
		if err != nil {
			return fmt.Errorf("read body: %w", err)
		}

		for _, id := range notify.ParseIssues(string(data)).Sorted() {
			fmt.Fprintln(cmd.OutOrStdout(), id)
		}
		return nil
	},
}

func init() {
	RootCmd.AddCommand(issuesCmd)
}
