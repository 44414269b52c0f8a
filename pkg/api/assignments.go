package api

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"path/filepath"

	"github.com/dsa-judge/dsactl/pkg/models"
)

// UploadFile is one file of a multipart submission
type UploadFile struct {
	Name    string
	Content io.Reader
}

// ListLectures returns the lectures visible to the caller
func (c *Client) ListLectures(ctx context.Context, creds Credentials) ([]models.Lecture, error) {
	var lectures []models.Lecture
	err := c.doJSON(ctx, request{method: http.MethodGet, path: "/assignments/lectures", creds: creds}, &lectures)
	return lectures, err
}

// ListProblems returns the problems of a lecture
func (c *Client) ListProblems(ctx context.Context, creds Credentials, lectureID int) ([]models.Problem, error) {
	var problems []models.Problem
	err := c.doJSON(ctx, request{
		method: http.MethodGet,
		path:   fmt.Sprintf("/assignments/lectures/%d/problems", lectureID),
		creds:  creds,
	}, &problems)
	return problems, err
}

// GetProblem returns one problem
func (c *Client) GetProblem(ctx context.Context, creds Credentials, lectureID, assignmentID int) (*models.Problem, error) {
	var problem models.Problem
	err := c.doJSON(ctx, request{
		method: http.MethodGet,
		path:   fmt.Sprintf("/problem/%d/%d", lectureID, assignmentID),
		creds:  creds,
	}, &problem)
	if err != nil {
		return nil, err
	}
	return &problem, nil
}

// DownloadProblem fetches the problem package archive
func (c *Client) DownloadProblem(ctx context.Context, creds Credentials, lectureID, assignmentID int) (*Blob, error) {
	return c.download(ctx, creds, fmt.Sprintf("/problem/%d/%d/download", lectureID, assignmentID))
}

// Submit uploads source files for judging
func (c *Client) Submit(ctx context.Context, creds Credentials, lectureID, assignmentID int, files []UploadFile) (*models.Submission, error) {
	if len(files) == 0 {
		return nil, fmt.Errorf("no files to submit")
	}
	body, contentType, err := multipartBody("files", files)
	if err != nil {
		return nil, err
	}

	var subm models.Submission
	err = c.doJSON(ctx, request{
		method:      http.MethodPost,
		path:        fmt.Sprintf("/assignments/%d/%d/submit", lectureID, assignmentID),
		body:        body,
		contentType: contentType,
		creds:       creds,
	}, &subm)
	if err != nil {
		return nil, err
	}
	return &subm, nil
}

// GetSubmission returns one submission
func (c *Client) GetSubmission(ctx context.Context, creds Credentials, submissionID int) (models.Submission, error) {
	var subm models.Submission
	err := c.doJSON(ctx, request{
		method: http.MethodGet,
		path:   fmt.Sprintf("/assignments/submissions/%d", submissionID),
		creds:  creds,
	}, &subm)
	return subm, err
}

// ListSubmissions returns the caller's submissions for a problem
func (c *Client) ListSubmissions(ctx context.Context, creds Credentials, lectureID, assignmentID int) ([]models.Submission, error) {
	var subms []models.Submission
	err := c.doJSON(ctx, request{
		method: http.MethodGet,
		path:   fmt.Sprintf("/assignments/%d/%d/submissions", lectureID, assignmentID),
		creds:  creds,
	}, &subms)
	return subms, err
}

func multipartBody(field string, files []UploadFile) ([]byte, string, error) {
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	for _, f := range files {
		part, err := mw.CreateFormFile(field, filepath.Base(f.Name))
		if err != nil {
			return nil, "", fmt.Errorf("failed to create form file: %w", err)
		}
		if _, err := io.Copy(part, f.Content); err != nil {
			return nil, "", fmt.Errorf("failed to read %s: %w", f.Name, err)
		}
	}
	if err := mw.Close(); err != nil {
		return nil, "", fmt.Errorf("failed to finish multipart body: %w", err)
	}
	return buf.Bytes(), mw.FormDataContentType(), nil
}
