package cli

import (
	"context"
	"fmt"
	"strings"

	"github.com/felixgeelhaar/prnotify/internal/infrastructure/wiring"
	"github.com/felixgeelhaar/prnotify/pkg/domain/events"
	"github.com/felixgeelhaar/prnotify/pkg/storage"
	"github.com/spf13/cobra"
)

var (
	historyCheck  bool
	historyEvents string
)

var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "Show the recorded pull request snapshots",
	RunE: func(cmd *cobra.Command, args []string) error {
		services, err := loadServices(wiring.Options{})
		if err != nil {
			return err
		}
		defer services.Close()

		ctx := cmd.Context()
		out := cmd.OutOrStdout()

		if historyCheck {
			return checkHistory(ctx, cmd, services)
		}

		if historyEvents != "" {
			evts, err := services.Workspace.Events.LoadByAggregate(historyEvents)
			if err != nil {
				return err
			}
			for _, e := range evts {
				line := fmt.Sprintf("%s  %s", e.Timestamp.Format("2006-01-02 15:04:05"), e.Type)
				if issue := e.MetaString(events.MetaIssue); issue != "" {
					line += "  " + issue
				}
				if commit := e.MetaString(events.MetaCommit); commit != "" {
					line += "  " + commit
				}
				fmt.Fprintln(out, line)
			}
			return nil
		}

		snapshots, err := services.Workspace.History.Current(ctx)
		if err != nil {
			return MapError(err)
		}
		if len(snapshots) == 0 {
			fmt.Fprintln(out, "No pull requests recorded.")
			return nil
		}
		for _, s := range snapshots {
			issues := strings.Join(s.Issues.Sorted(), ",")
			if issues == "" {
				issues = "-"
			}
			fmt.Fprintf(out, "%-30s  %-40s  %s\n", s.ID, s.Commit, issues)
		}
		return nil
	},
}

func checkHistory(ctx context.Context, cmd *cobra.Command, services *wiring.AppServices) error {
	out := cmd.OutOrStdout()

	raw, err := services.Workspace.History.Raw(ctx)
	if err != nil {
		return err
	}
	if err := storage.ValidateHistory(raw); err != nil {
		return MapError(err)
	}
	if _, err := services.Workspace.History.Current(ctx); err != nil {
		return MapError(err)
	}
	fmt.Fprintln(out, "History: OK")

	violations, err := services.Workspace.Events.VerifyIntegrity()
	if err != nil {
		return err
	}
	if len(violations) > 0 {
		for _, v := range violations {
			fmt.Fprintf(out, "  - %s\n", v)
		}
		return NewCLIError(fmt.Sprintf("event log has %d integrity violations", len(violations)), "", nil)
	}
	fmt.Fprintln(out, "Event log: OK")
	return nil
}

func init() {
	historyCmd.Flags().BoolVar(&historyCheck, "check", false, "Validate the stored history and the event log hash chain")
	historyCmd.Flags().StringVar(&historyEvents, "events", "", "Show the recorded events of one pull request (owner/name#number)")
	RootCmd.AddCommand(historyCmd)
}
