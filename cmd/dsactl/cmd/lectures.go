package cmd

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/olekukonko/tablewriter"
	"github.com/spf13/cobra"

	"github.com/dsa-judge/dsactl/pkg/api"
	"github.com/dsa-judge/dsactl/pkg/auth"
	"github.com/dsa-judge/dsactl/pkg/models"
)

var downloadDir string

var lecturesCmd = &cobra.Command{
	Use:   "lectures",
	Short: "List lectures",
	RunE:  withApp(runLectures),
}

var problemsCmd = &cobra.Command{
	Use:   "problems",
	Short: "Browse and download problems",
}

var problemsListCmd = &cobra.Command{
	Use:   "list <lecture-id>",
	Short: "List the problems of a lecture",
	Args:  cobra.ExactArgs(1),
	RunE:  withApp(runProblemsList),
}

var problemsShowCmd = &cobra.Command{
	Use:   "show <lecture-id> <assignment-id>",
	Short: "Show a problem statement",
	Args:  cobra.ExactArgs(2),
	RunE:  withApp(runProblemsShow),
}

var problemsDownloadCmd = &cobra.Command{
	Use:   "download <lecture-id> <assignment-id>",
	Short: "Download the problem package",
	Long:  `Downloads the problem archive and saves it under the file name chosen by the server.`,
	Args:  cobra.ExactArgs(2),
	RunE:  withApp(runProblemsDownload),
}

func init() {
	rootCmd.AddCommand(lecturesCmd, problemsCmd)
	problemsCmd.AddCommand(problemsListCmd, problemsShowCmd, problemsDownloadCmd)

	problemsDownloadCmd.Flags().StringVarP(&downloadDir, "dir", "d", ".", "directory to save the archive in")
}

func runLectures(cmd *cobra.Command, args []string, a *app) error {
	lectures, err := auth.Call(cmd.Context(), a.session, a.client.ListLectures)
	if err != nil {
		return err
	}

	return render(cmd.OutOrStdout(), lectures, func(t *tablewriter.Table) {
		t.Header("ID", "Title", "Start", "End", "Problems")
		for _, l := range lectures {
			t.Append(itoa(l.ID), l.Title, formatTime(l.StartDate), formatTime(l.EndDate), itoa(len(l.Problems)))
		}
	})
}

func runProblemsList(cmd *cobra.Command, args []string, a *app) error {
	lectureID, err := parseID("lecture id", args[0])
	if err != nil {
		return err
	}

	problems, err := auth.Call(cmd.Context(), a.session, func(ctx context.Context, creds api.Credentials) ([]models.Problem, error) {
		return a.client.ListProblems(ctx, creds, lectureID)
	})
	if err != nil {
		return err
	}

	return render(cmd.OutOrStdout(), problems, func(t *tablewriter.Table) {
		t.Header("Lecture", "Assignment", "Title", "Max score")
		for _, p := range problems {
			t.Append(itoa(p.LectureID), itoa(p.AssignmentID), p.Title, itoa(p.MaxScore))
		}
	})
}

func runProblemsShow(cmd *cobra.Command, args []string, a *app) error {
	lectureID, assignmentID, err := parseProblemArgs(args)
	if err != nil {
		return err
	}

	problem, err := auth.Call(cmd.Context(), a.session, func(ctx context.Context, creds api.Credentials) (*models.Problem, error) {
		return a.client.GetProblem(ctx, creds, lectureID, assignmentID)
	})
	if err != nil {
		return err
	}

	return render(cmd.OutOrStdout(), problem, func(t *tablewriter.Table) {
		t.Header("Field", "Value")
		t.Append("Title", problem.Title)
		t.Append("Max score", itoa(problem.MaxScore))
		t.Append("Time limit", fmt.Sprintf("%d ms", problem.TimeLimitMS))
		t.Append("Memory limit", fmt.Sprintf("%d MB", problem.MemoryLimitMB))
		t.Append("Description", orDash(problem.Description))
	})
}

func runProblemsDownload(cmd *cobra.Command, args []string, a *app) error {
	lectureID, assignmentID, err := parseProblemArgs(args)
	if err != nil {
		return err
	}

	blob, err := auth.Call(cmd.Context(), a.session, func(ctx context.Context, creds api.Credentials) (*api.Blob, error) {
		return a.client.DownloadProblem(ctx, creds, lectureID, assignmentID)
	})
	if err != nil {
		return err
	}

	name := blob.Filename
	if name == "" {
		name = fmt.Sprintf("problem_%d_%d.zip", lectureID, assignmentID)
	}
	path, err := writeFile(downloadDir, name, blob.Data)
	if err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Saved %s (%d bytes)\n", path, len(blob.Data))
	return nil
}

func parseProblemArgs(args []string) (int, int, error) {
	lectureID, err := parseID("lecture id", args[0])
	if err != nil {
		return 0, 0, err
	}
	assignmentID, err := parseID("assignment id", args[1])
	if err != nil {
		return 0, 0, err
	}
	return lectureID, assignmentID, nil
}

// writeFile saves data as dir/name, keeping name inside dir
func writeFile(dir, name string, data []byte) (string, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("failed to create %s: %w", dir, err)
	}
	path := filepath.Join(dir, filepath.Base(name))
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return "", fmt.Errorf("failed to write %s: %w", path, err)
	}
	return path, nil
}
