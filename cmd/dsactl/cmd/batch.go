package cmd

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/olekukonko/tablewriter"
	"github.com/spf13/cobra"

	"github.com/dsa-judge/dsactl/pkg/api"
	"github.com/dsa-judge/dsactl/pkg/auth"
	"github.com/dsa-judge/dsactl/pkg/models"
)

var batchCmd = &cobra.Command{
	Use:   "batch",
	Short: "Manage batch submissions (assistants and admins)",
	Long:  `Commands for uploading an archive of student submissions and following its evaluation.`,
}

var batchSubmitCmd = &cobra.Command{
	Use:   "submit <lecture-id> <assignment-id> <archive.zip>",
	Short: "Upload a zip of submissions for batch judging",
	Args:  cobra.ExactArgs(3),
	RunE:  withApp(runBatchSubmit),
}

var batchStatusCmd = &cobra.Command{
	Use:   "status <batch-id>",
	Short: "Show the status of a batch",
	Args:  cobra.ExactArgs(1),
	RunE:  withApp(runBatchStatus),
}

var batchListCmd = &cobra.Command{
	Use:   "list",
	Short: "List batch submissions",
	RunE:  withApp(runBatchList),
}

func init() {
	rootCmd.AddCommand(batchCmd)
	batchCmd.AddCommand(batchSubmitCmd, batchStatusCmd, batchListCmd)
}

func runBatchSubmit(cmd *cobra.Command, args []string, a *app) error {
	lectureID, assignmentID, err := parseProblemArgs(args[:2])
	if err != nil {
		return err
	}

	f, err := os.Open(args[2])
	if err != nil {
		return fmt.Errorf("failed to open %s: %w", args[2], err)
	}
	defer f.Close()

	archive := api.UploadFile{Name: filepath.Base(args[2]), Content: f}
	batch, err := auth.Call(cmd.Context(), a.session, func(ctx context.Context, creds api.Credentials) (*models.BatchSubmission, error) {
		return a.client.SubmitBatch(ctx, creds, lectureID, assignmentID, archive)
	})
	if err != nil {
		return err
	}

	if err := renderBatches(cmd.OutOrStdout(), []models.BatchSubmission{*batch}); err != nil {
		return err
	}
	if !IsJSONOutput() && !IsYAMLOutput() {
		fmt.Fprintf(cmd.OutOrStdout(), "\nBatch submitted. Follow it with: dsactl watch batch %d\n", batch.ID)
	}
	return nil
}

func runBatchStatus(cmd *cobra.Command, args []string, a *app) error {
	id, err := parseID("batch id", args[0])
	if err != nil {
		return err
	}

	batch, err := auth.Call(cmd.Context(), a.session, func(ctx context.Context, creds api.Credentials) (models.BatchSubmission, error) {
		return a.client.GetBatch(ctx, creds, id)
	})
	if err != nil {
		return err
	}
	return renderBatches(cmd.OutOrStdout(), []models.BatchSubmission{batch})
}

func runBatchList(cmd *cobra.Command, args []string, a *app) error {
	batches, err := auth.Call(cmd.Context(), a.session, a.client.ListBatches)
	if err != nil {
		return err
	}
	if err := renderBatches(cmd.OutOrStdout(), batches); err != nil {
		return err
	}
	if !IsJSONOutput() && !IsYAMLOutput() {
		fmt.Fprintf(cmd.OutOrStdout(), "\nTotal batches: %d\n", len(batches))
	}
	return nil
}

func renderBatches(w io.Writer, batches []models.BatchSubmission) error {
	return render(w, batches, func(t *tablewriter.Table) {
		t.Header("ID", "Problem", "Status", "Judged", "Progress", "Created")
		for _, b := range batches {
			t.Append(
				itoa(b.ID),
				fmt.Sprintf("%d/%d", b.LectureID, b.AssignmentID),
				string(b.Status),
				fmt.Sprintf("%d/%d", b.CompleteJudge, b.TotalJudge),
				fmt.Sprintf("%d%%", b.Percent()),
				formatTime(b.CreatedAt),
			)
		}
	})
}
