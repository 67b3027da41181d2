package cli

import (
	"context"
	"fmt"
	"io"
	"os/signal"
	"syscall"
	"time"

	"github.com/felixgeelhaar/prnotify/internal/infrastructure/watch"
	"github.com/felixgeelhaar/prnotify/internal/infrastructure/wiring"
	"github.com/felixgeelhaar/prnotify/pkg/domain/forge"
	"github.com/spf13/cobra"
)

var (
	watchDebounce time.Duration
	watchOnce     bool
)

var watchCmd = &cobra.Command{
	Use:   "watch <dir>",
	Short: "Reconcile pull request fixture files and re-run when they change",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		dir := args[0]

		services, err := loadServices(wiring.Options{})
		if err != nil {
			return err
		}
		defer services.Close()

		out := cmd.OutOrStdout()
		prs, err := forge.LoadPullRequests(dir)
		if err != nil {
			return err
		}
		reconcileFixtures(cmd.Context(), out, services, prs)
		if watchOnce {
			return nil
		}

		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		w, err := watch.NewFSWatcher(watchDebounce, watch.FixtureFilter(), func(changes []watch.ChangeEvent) {
			reconcileFixtures(ctx, out, services, changedPullRequests(services, changes))
		})
		if err != nil {
			return err
		}
		if err := w.WatchRecursive(dir); err != nil {
			return err
		}

		fmt.Fprintf(out, "Watching %s for changes...\n", dir)
		if err := w.Run(ctx); err != nil && ctx.Err() == nil {
			return err
		}
		return nil
	},
}

// changedPullRequests loads the fixtures behind changes. Removed files and
// files that fail to parse are skipped.
func changedPullRequests(services *wiring.AppServices, changes []watch.ChangeEvent) []forge.PullRequest {
	var prs []forge.PullRequest
	for _, c := range changes {
		if c.Removed() {
			continue
		}
		pr, err := forge.LoadPullRequest(c.Path)
		if err != nil {
			services.Logger.Warn("skipping fixture", "path", c.Path, "error", err)
			continue
		}
		prs = append(prs, pr)
	}
	return prs
}

func reconcileFixtures(ctx context.Context, out io.Writer, services *wiring.AppServices, prs []forge.PullRequest) {
	if len(prs) == 0 {
		return
	}
	result := services.Reconcile(ctx, prs)
	fmt.Fprintf(out, "%s reconciled %d pull requests (%d ok, %d failed)\n",
		time.Now().Format("15:04:05"), len(prs), result.Succeeded, result.Failed)
}

func init() {
	watchCmd.Flags().DurationVar(&watchDebounce, "debounce", 500*time.Millisecond, "Quiet period before changed fixtures are reconciled")
	watchCmd.Flags().BoolVar(&watchOnce, "once", false, "Reconcile the fixtures once and exit")
	RootCmd.AddCommand(watchCmd)
}
