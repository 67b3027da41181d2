package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/felixgeelhaar/prnotify/internal/infrastructure/github"
	"github.com/felixgeelhaar/prnotify/internal/infrastructure/wiring"
	"github.com/spf13/cobra"
)

var (
	pollSince time.Duration
	pollRepos []string
	runOnce   bool
	runListen string
)

// pollClient lets tests point the GitHub source at a local server.
var pollClient *http.Client

var pollCmd = &cobra.Command{
	Use:   "poll",
	Short: "Reconcile recently updated pull requests once",
	RunE: func(cmd *cobra.Command, args []string) error {
		services, err := loadServices(wiring.Options{HTTPClient: pollClient})
		if err != nil {
			return err
		}
		defer services.Close()

		_, err = pollOnce(cmd.Context(), cmd.OutOrStdout(), services, time.Now().Add(-pollSince))
		return err
	},
}

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Poll repositories every poll interval until interrupted",
	RunE: func(cmd *cobra.Command, args []string) error {
		services, err := loadServices(wiring.Options{HTTPClient: pollClient})
		if err != nil {
			return err
		}
		defer services.Close()

		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		if runListen != "" || services.Config.Server.Listen != "" {
			source, err := services.GitHubSource(ctx, pollClient)
			if err != nil {
				return err
			}
			srv := services.NewServer(source, runListen)
			go func() {
				if err := srv.Start(); err != nil {
					services.Logger.Error("http server failed", "error", err)
				}
			}()
			defer func() {
				shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
				defer cancel()
				_ = srv.Shutdown(shutdownCtx)
			}()
		}

		since := time.Now().Add(-pollSince)
		ticker := time.NewTicker(services.Config.PollInterval)
		defer ticker.Stop()

		for {
			started, err := pollOnce(ctx, cmd.OutOrStdout(), services, since)
			if err != nil {
				services.Logger.ErrorContext(ctx, "poll failed", "error", err)
			} else {
				since = started
			}
			if runOnce {
				return err
			}

			select {
			case <-ctx.Done():
				return nil
			case <-ticker.C:
			}
		}
	},
}

// pollOnce reconciles every configured repository and returns the time the
// listing started, which is the lower bound for the next poll. An error
// means since must not move forward.
func pollOnce(ctx context.Context, out io.Writer, services *wiring.AppServices, since time.Time) (time.Time, error) {
	started := time.Now()

	repos := services.Config.Repositories
	if len(pollRepos) > 0 {
		repos = pollRepos
	}
	if len(repos) == 0 {
		return started, NewCLIError("no repositories configured", "Add repositories to the configuration or pass --repo", nil)
	}

	source, err := services.GitHubSource(ctx, pollClient)
	if err != nil {
		return started, err
	}

	var (
		failed    int
		truncated []string
	)
	for _, repo := range repos {
		prs, err := source.PullRequests(ctx, repo, since)
		if errors.Is(err, github.ErrTruncated) {
			truncated = append(truncated, repo)
		} else if err != nil {
			return started, fmt.Errorf("list %s: %w", repo, err)
		}
		result := services.Reconcile(ctx, prs)
		failed += result.Failed
		fmt.Fprintf(out, "%s: %d pull requests (%d ok, %d failed)\n", repo, len(prs), result.Succeeded, result.Failed)
	}
	if failed > 0 {
		return started, fmt.Errorf("%d reconciliation passes failed", failed)
	}
	if len(truncated) > 0 {
		return started, NewCLIError(
			fmt.Sprintf("listing of %s stopped at the page limit", strings.Join(truncated, ", ")),
			"Raise github.page_limit so one poll covers every updated pull request",
			github.ErrTruncated,
		)
	}
	return started, nil
}

func init() {
	for _, c := range []*cobra.Command{pollCmd, runCmd} {
		c.Flags().DurationVar(&pollSince, "since", 24*time.Hour, "Only consider pull requests updated within this window on the first poll")
		c.Flags().StringSliceVar(&pollRepos, "repo", nil, "Repositories to poll instead of the configured ones (owner/name)")
	}
	runCmd.Flags().BoolVar(&runOnce, "once", false, "Poll a single time and exit")
	runCmd.Flags().StringVar(&runListen, "listen", "", "Serve GitHub webhooks and the event stream on this address")
	RootCmd.AddCommand(pollCmd)
	RootCmd.AddCommand(runCmd)
}
