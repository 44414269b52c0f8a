package cmd

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/olekukonko/tablewriter"
	"github.com/spf13/cobra"

	"github.com/dsa-judge/dsactl/pkg/api"
	"github.com/dsa-judge/dsactl/pkg/auth"
	"github.com/dsa-judge/dsactl/pkg/models"
	"github.com/dsa-judge/dsactl/pkg/progress"
	"github.com/dsa-judge/dsactl/pkg/shutdown"
)

var followSubmission bool

var submitCmd = &cobra.Command{
	Use:   "submit <lecture-id> <assignment-id> <file>...",
	Short: "Submit source files for judging",
	Long: `Uploads one or more source files as a submission. With --follow the live
judging progress is streamed until the verdict arrives.`,
	Args: cobra.MinimumNArgs(3),
	RunE: withApp(runSubmit),
}

var submissionsCmd = &cobra.Command{
	Use:   "submissions",
	Short: "Inspect submissions",
}

var submissionsListCmd = &cobra.Command{
	Use:   "list <lecture-id> <assignment-id>",
	Short: "List your submissions for a problem",
	Args:  cobra.ExactArgs(2),
	RunE:  withApp(runSubmissionsList),
}

var submissionsShowCmd = &cobra.Command{
	Use:   "show <submission-id>",
	Short: "Show one submission",
	Args:  cobra.ExactArgs(1),
	RunE:  withApp(runSubmissionsShow),
}

func init() {
	rootCmd.AddCommand(submitCmd, submissionsCmd)
	submissionsCmd.AddCommand(submissionsListCmd, submissionsShowCmd)

	submitCmd.Flags().BoolVarP(&followSubmission, "follow", "f", false, "stream judging progress until the verdict arrives")
}

func runSubmit(cmd *cobra.Command, args []string, a *app) error {
	lectureID, assignmentID, err := parseProblemArgs(args[:2])
	if err != nil {
		return err
	}

	paths := args[2:]
	files := make([]api.UploadFile, 0, len(paths))
	for _, p := range paths {
		f, err := os.Open(p)
		if err != nil {
			return fmt.Errorf("failed to open %s: %w", p, err)
		}
		defer f.Close()
		files = append(files, api.UploadFile{Name: filepath.Base(p), Content: f})
	}

	submission, err := auth.Call(cmd.Context(), a.session, func(ctx context.Context, creds api.Credentials) (*models.Submission, error) {
		return a.client.Submit(ctx, creds, lectureID, assignmentID, files)
	})
	if err != nil {
		return err
	}

	if submission.LectureID == 0 {
		submission.LectureID = lectureID
		submission.AssignmentID = assignmentID
	}

	if !followSubmission {
		return renderSubmission(cmd.OutOrStdout(), *submission)
	}

	fmt.Fprintf(cmd.ErrOrStderr(), "Submission %d created, following progress (press Ctrl+C to stop)...\n", submission.ID)
	final, err := followProgress(cmd, a, *submission, filepath.Base(paths[0]))
	if err != nil {
		return err
	}
	return renderSubmission(cmd.OutOrStdout(), final)
}

// followProgress streams progress of one submission and returns its final state
func followProgress(cmd *cobra.Command, a *app, submission models.Submission, filename string) (models.Submission, error) {
	shutdownMgr := shutdown.New(5*time.Second, a.logger)
	ctx, stop := shutdownMgr.Context(cmd.Context())
	defer stop()

	base, err := a.wsURL()
	if err != nil {
		return submission, err
	}

	stream, err := progress.Dial(ctx, base, submission.LectureID, submission.ID, filename, a.session.Credentials(),
		progress.WithDialer(a.dialer),
		progress.WithLogger(a.logger),
	)
	if err != nil {
		return submission, err
	}
	shutdownMgr.Register("progress stream", shutdown.CloseResource(stream))
	defer shutdownMgr.Shutdown()

	out := cmd.ErrOrStderr()
	for {
		select {
		case <-ctx.Done():
			return submission, ctx.Err()
		case event, ok := <-stream.Events():
			if !ok {
				return submission, nil
			}
			printProgress(out, event)
			if event.Status == models.ProgressStatusError {
				return submission, fmt.Errorf("progress stream failed: %s", event.Message)
			}
			if event.Result != nil {
				submission = *event.Result
			}
			if event.IsFinal() {
				if event.Result == nil {
					return refreshSubmission(ctx, a, submission)
				}
				return submission, nil
			}
		}
	}
}

// refreshSubmission loads the verdict when the final event carried none
func refreshSubmission(ctx context.Context, a *app, submission models.Submission) (models.Submission, error) {
	return auth.Call(ctx, a.session, func(ctx context.Context, creds api.Credentials) (models.Submission, error) {
		return a.client.GetSubmission(ctx, creds, submission.ID)
	})
}

func printProgress(w io.Writer, event models.ProgressEvent) {
	if event.ProgressPercentage < 0 {
		fmt.Fprintf(w, "[%s] %s\n", event.Status, event.Message)
		return
	}
	fmt.Fprintf(w, "[%s] %3.0f%% %s\n", event.Status, event.ProgressPercentage, event.Message)
}

func runSubmissionsList(cmd *cobra.Command, args []string, a *app) error {
	lectureID, assignmentID, err := parseProblemArgs(args)
	if err != nil {
		return err
	}

	submissions, err := auth.Call(cmd.Context(), a.session, func(ctx context.Context, creds api.Credentials) ([]models.Submission, error) {
		return a.client.ListSubmissions(ctx, creds, lectureID, assignmentID)
	})
	if err != nil {
		return err
	}
	return renderSubmissions(cmd.OutOrStdout(), submissions)
}

func runSubmissionsShow(cmd *cobra.Command, args []string, a *app) error {
	id, err := parseID("submission id", args[0])
	if err != nil {
		return err
	}

	submission, err := auth.Call(cmd.Context(), a.session, func(ctx context.Context, creds api.Credentials) (models.Submission, error) {
		return a.client.GetSubmission(ctx, creds, id)
	})
	if err != nil {
		return err
	}
	return renderSubmission(cmd.OutOrStdout(), submission)
}

func renderSubmission(w io.Writer, s models.Submission) error {
	return render(w, s, func(t *tablewriter.Table) {
		t.Header("Field", "Value")
		t.Append("ID", itoa(s.ID))
		t.Append("Problem", fmt.Sprintf("%d/%d", s.LectureID, s.AssignmentID))
		t.Append("Result", s.ResultID.String())
		t.Append("Score", fmt.Sprintf("%g", s.Score))
		t.Append("Submitted", formatTime(s.SubmittedAt))
		if s.Message != "" {
			t.Append("Message", s.Message)
		}
	})
}

func renderSubmissions(w io.Writer, submissions []models.Submission) error {
	return render(w, submissions, func(t *tablewriter.Table) {
		t.Header("ID", "Problem", "User", "Result", "Score", "Submitted")
		for _, s := range submissions {
			t.Append(
				itoa(s.ID),
				fmt.Sprintf("%d/%d", s.LectureID, s.AssignmentID),
				orDash(s.UserID),
				s.ResultID.String(),
				fmt.Sprintf("%g", s.Score),
				formatTime(s.SubmittedAt),
			)
		}
	})
}
