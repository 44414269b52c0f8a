package cmd

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync/atomic"
	"time"

	"github.com/spf13/cobra"

	"github.com/dsa-judge/dsactl/pkg/api"
	"github.com/dsa-judge/dsactl/pkg/auth"
	"github.com/dsa-judge/dsactl/pkg/metrics"
	"github.com/dsa-judge/dsactl/pkg/models"
	"github.com/dsa-judge/dsactl/pkg/poller"
	"github.com/dsa-judge/dsactl/pkg/shutdown"
)

var (
	watchInterval    time.Duration
	watchMetricsAddr string
	watchNoClear     bool
)

var watchCmd = &cobra.Command{
	Use:   "watch",
	Short: "Follow jobs until they finish",
	Long: `Polls batch submissions, grading jobs, validation runs or submissions until
every one of them reaches a terminal status. Press Ctrl+C to stop early.`,
}

var watchBatchCmd = &cobra.Command{
	Use:   "batch <batch-id>...",
	Short: "Follow batch submissions",
	Args:  cobra.MinimumNArgs(1),
	RunE: withApp(func(cmd *cobra.Command, args []string, a *app) error {
		return watchEntities(cmd, a, "batch", args, 3*time.Second, a.client.GetBatch, renderBatches)
	}),
}

var watchGradingCmd = &cobra.Command{
	Use:   "grading <grading-id>...",
	Short: "Follow grading jobs",
	Args:  cobra.MinimumNArgs(1),
	RunE: withApp(func(cmd *cobra.Command, args []string, a *app) error {
		return watchEntities(cmd, a, "grading", args, 5*time.Second, a.client.GetGrading, renderGradings)
	}),
}

var watchValidationCmd = &cobra.Command{
	Use:   "validation <validation-id>...",
	Short: "Follow validation runs",
	Args:  cobra.MinimumNArgs(1),
	RunE: withApp(func(cmd *cobra.Command, args []string, a *app) error {
		return watchEntities(cmd, a, "validation", args, 5*time.Second, a.client.GetValidation, renderValidations)
	}),
}

var watchSubmissionCmd = &cobra.Command{
	Use:   "submission <submission-id>...",
	Short: "Follow submissions until judged",
	Args:  cobra.MinimumNArgs(1),
	RunE: withApp(func(cmd *cobra.Command, args []string, a *app) error {
		return watchEntities(cmd, a, "submission", args, 2*time.Second, a.client.GetSubmission, renderSubmissions)
	}),
}

func init() {
	rootCmd.AddCommand(watchCmd)
	watchCmd.AddCommand(watchBatchCmd, watchGradingCmd, watchValidationCmd, watchSubmissionCmd)

	watchCmd.PersistentFlags().DurationVar(&watchInterval, "interval", 0, "poll interval (default depends on the job kind)")
	watchCmd.PersistentFlags().StringVar(&watchMetricsAddr, "metrics-addr", "", "serve Prometheus metrics on this address while watching")
	watchCmd.PersistentFlags().BoolVar(&watchNoClear, "no-clear", false, "append snapshots instead of redrawing the screen")
}

// errSessionLost ends a watch whose session was cleared by the failure policy
var errSessionLost = errors.New("session ended while watching; run 'dsactl login' and try again")

// watchEntities polls the given ids until all are terminal, rendering every
// snapshot
func watchEntities[T models.Trackable](
	cmd *cobra.Command,
	a *app,
	name string,
	args []string,
	period time.Duration,
	fetch func(ctx context.Context, creds api.Credentials, id int) (T, error),
	show func(w io.Writer, items []T) error,
) error {
	ids, err := parseIDs(name+" id", args)
	if err != nil {
		return err
	}
	if watchInterval > 0 {
		period = watchInterval
	}

	shutdownMgr := shutdown.New(5*time.Second, a.logger)
	ctx, stop := shutdownMgr.Context(cmd.Context())
	defer stop()
	defer shutdownMgr.Shutdown()

	if watchMetricsAddr != "" {
		srv, err := metrics.Serve(watchMetricsAddr, a.metrics)
		if err != nil {
			return err
		}
		shutdownMgr.Register("metrics server", shutdown.StopServer(srv))
		fmt.Fprintf(cmd.ErrOrStderr(), "Serving metrics on http://%s/metrics\n", srv.Addr())
	}

	var sessionLost atomic.Bool
	refetch := func(ctx context.Context, id int) (T, error) {
		item, err := auth.Call(ctx, a.session, func(ctx context.Context, creds api.Credentials) (T, error) {
			return fetch(ctx, creds, id)
		})
		if errors.Is(err, auth.ErrNotLoggedIn) || errors.Is(err, auth.ErrSessionExpired) {
			sessionLost.Store(true)
			shutdownMgr.Trigger()
		}
		return item, err
	}

	initial := make([]T, 0, len(ids))
	for _, id := range ids {
		item, err := refetch(ctx, id)
		if err != nil {
			return fmt.Errorf("failed to load %s %d: %w", name, id, err)
		}
		initial = append(initial, item)
	}

	p := poller.New(poller.Config{
		Name:    name,
		Period:  period,
		Logger:  a.logger,
		Metrics: a.metrics.Poller,
	}, refetch)
	shutdownMgr.Register(name+" poller", shutdown.StopFunc(p.Stop))

	p.Track(initial...)

	out := cmd.OutOrStdout()
	redraw := func(items []T) error {
		if !watchNoClear && !IsJSONOutput() && !IsYAMLOutput() {
			fmt.Fprint(out, "\033[H\033[2J")
		}
		return show(out, items)
	}

	for {
		select {
		case snap, ok := <-p.Updates():
			if !ok {
				return nil
			}
			if err := redraw(snap); err != nil {
				return err
			}

		case <-p.Done():
			select {
			case snap, ok := <-p.Updates():
				if ok {
					if err := redraw(snap); err != nil {
						return err
					}
				}
			default:
			}
			fmt.Fprintf(cmd.ErrOrStderr(), "\nAll %d %s job(s) reached a terminal state\n", len(ids), name)
			return nil

		case <-ctx.Done():
			if sessionLost.Load() {
				return errSessionLost
			}
			fmt.Fprintln(cmd.ErrOrStderr(), "\nStopped watching")
			return nil
		}
	}
}
