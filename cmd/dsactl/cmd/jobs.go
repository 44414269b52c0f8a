package cmd

import (
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/olekukonko/tablewriter"
	"github.com/spf13/cobra"

	"github.com/dsa-judge/dsactl/pkg/api"
	"github.com/dsa-judge/dsactl/pkg/auth"
	"github.com/dsa-judge/dsactl/pkg/models"
)

var (
	filesDir    string
	filesStdout bool
)

var gradingCmd = &cobra.Command{
	Use:   "grading",
	Short: "Inspect grading jobs",
}

var gradingShowCmd = &cobra.Command{
	Use:   "show <grading-id>",
	Short: "Show a grading job",
	Args:  cobra.ExactArgs(1),
	RunE:  withApp(runGradingShow),
}

var gradingFilesCmd = &cobra.Command{
	Use:   "files <grading-id>",
	Short: "Unpack the files produced by a grading job",
	Args:  cobra.ExactArgs(1),
	RunE:  withApp(runGradingFiles),
}

var validationCmd = &cobra.Command{
	Use:   "validation",
	Short: "Inspect problem validation results",
}

var validationShowCmd = &cobra.Command{
	Use:   "show <validation-id>",
	Short: "Show a validation result",
	Args:  cobra.ExactArgs(1),
	RunE:  withApp(runValidationShow),
}

var validationFilesCmd = &cobra.Command{
	Use:   "files <validation-id>",
	Short: "Unpack the files produced by a validation run",
	Args:  cobra.ExactArgs(1),
	RunE:  withApp(runValidationFiles),
}

func init() {
	rootCmd.AddCommand(gradingCmd, validationCmd)
	gradingCmd.AddCommand(gradingShowCmd, gradingFilesCmd)
	validationCmd.AddCommand(validationShowCmd, validationFilesCmd)

	for _, c := range []*cobra.Command{gradingFilesCmd, validationFilesCmd} {
		c.Flags().StringVarP(&filesDir, "dir", "d", ".", "directory to write the files to")
		c.Flags().BoolVar(&filesStdout, "stdout", false, "print the files instead of writing them")
	}
}

func fetchGrading(cmd *cobra.Command, a *app, arg string) (models.GradingJob, error) {
	id, err := parseID("grading id", arg)
	if err != nil {
		return models.GradingJob{}, err
	}
	return auth.Call(cmd.Context(), a.session, func(ctx context.Context, creds api.Credentials) (models.GradingJob, error) {
		return a.client.GetGrading(ctx, creds, id)
	})
}

func fetchValidation(cmd *cobra.Command, a *app, arg string) (models.ValidationResult, error) {
	id, err := parseID("validation id", arg)
	if err != nil {
		return models.ValidationResult{}, err
	}
	return auth.Call(cmd.Context(), a.session, func(ctx context.Context, creds api.Credentials) (models.ValidationResult, error) {
		return a.client.GetValidation(ctx, creds, id)
	})
}

func runGradingShow(cmd *cobra.Command, args []string, a *app) error {
	job, err := fetchGrading(cmd, a, args[0])
	if err != nil {
		return err
	}
	return renderGradings(cmd.OutOrStdout(), []models.GradingJob{job})
}

func runGradingFiles(cmd *cobra.Command, args []string, a *app) error {
	job, err := fetchGrading(cmd, a, args[0])
	if err != nil {
		return err
	}
	return unpackFiles(cmd.OutOrStdout(), a, job.Files)
}

func runValidationShow(cmd *cobra.Command, args []string, a *app) error {
	result, err := fetchValidation(cmd, a, args[0])
	if err != nil {
		return err
	}
	return renderValidations(cmd.OutOrStdout(), []models.ValidationResult{result})
}

func runValidationFiles(cmd *cobra.Command, args []string, a *app) error {
	result, err := fetchValidation(cmd, a, args[0])
	if err != nil {
		return err
	}
	return unpackFiles(cmd.OutOrStdout(), a, result.Files)
}

// unpackFiles decompresses payloads to filesDir or prints them
func unpackFiles(w io.Writer, a *app, payloads []models.FilePayload) error {
	if len(payloads) == 0 {
		fmt.Fprintln(w, "No files.")
		return nil
	}

	if filesStdout {
		for i := range payloads {
			fmt.Fprintf(w, "==> %s <==\n%s\n", payloads[i].Filename, a.unwrapper.DecompressString(&payloads[i]))
		}
		return nil
	}

	files, err := a.unwrapper.DecompressFiles(payloads)
	if err != nil {
		return err
	}
	for _, f := range files {
		path, err := writeFile(filesDir, f.Filename, f.Content)
		if err != nil {
			return err
		}
		fmt.Fprintf(w, "Wrote %s (%d bytes)\n", path, len(f.Content))
	}
	return nil
}

// filesSummary lists file names with their original sizes
func filesSummary(payloads []models.FilePayload) string {
	if len(payloads) == 0 {
		return "-"
	}
	names := make([]string, 0, len(payloads))
	for _, p := range payloads {
		names = append(names, fmt.Sprintf("%s (%d B)", p.Filename, p.OriginalSize))
	}
	return strings.Join(names, ", ")
}

func renderGradings(w io.Writer, jobs []models.GradingJob) error {
	return render(w, jobs, func(t *tablewriter.Table) {
		t.Header("ID", "User", "Progress", "Score", "Files")
		for _, j := range jobs {
			score := "-"
			if j.Score != nil {
				score = fmt.Sprintf("%g", *j.Score)
			}
			t.Append(itoa(j.ID), orDash(j.UserID), string(j.Progress), score, filesSummary(j.Files))
		}
	})
}

func renderValidations(w io.Writer, results []models.ValidationResult) error {
	return render(w, results, func(t *tablewriter.Table) {
		t.Header("ID", "Problem", "Progress", "Valid", "Files")
		for _, v := range results {
			valid := "-"
			if v.Valid != nil {
				valid = fmt.Sprintf("%t", *v.Valid)
			}
			t.Append(
				itoa(v.ID),
				fmt.Sprintf("%d/%d", v.LectureID, v.AssignmentID),
				string(v.Progress),
				valid,
				filesSummary(v.Files),
			)
		}
	})
}
