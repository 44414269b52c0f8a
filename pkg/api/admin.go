package api

import (
	"context"
	"fmt"
	"net/http"

	"github.com/dsa-judge/dsactl/pkg/models"
)

// SubmitBatch uploads an archive of student submissions for batch judging
func (c *Client) SubmitBatch(ctx context.Context, creds Credentials, lectureID, assignmentID int, archive UploadFile) (*models.BatchSubmission, error) {
	body, contentType, err := multipartBody("file", []UploadFile{archive})
	if err != nil {
		return nil, err
	}
	var batch models.BatchSubmission
	err = c.doJSON(ctx, request{
		method:      http.MethodPost,
		path:        fmt.Sprintf("/admin/batch/%d/%d", lectureID, assignmentID),
		body:        body,
		contentType: contentType,
		creds:       creds,
	}, &batch)
	if err != nil {
		return nil, err
	}
	return &batch, nil
}

// GetBatch returns the status of a batch submission
func (c *Client) GetBatch(ctx context.Context, creds Credentials, batchID int) (models.BatchSubmission, error) {
	var batch models.BatchSubmission
	err := c.doJSON(ctx, request{
		method: http.MethodGet,
		path:   fmt.Sprintf("/admin/batch/%d", batchID),
		creds:  creds,
	}, &batch)
	return batch, err
}

// ListBatches returns all batch submissions
func (c *Client) ListBatches(ctx context.Context, creds Credentials) ([]models.BatchSubmission, error) {
	var batches []models.BatchSubmission
	err := c.doJSON(ctx, request{method: http.MethodGet, path: "/admin/batch", creds: creds}, &batches)
	return batches, err
}

// GetGrading returns a grading job with its file payloads
func (c *Client) GetGrading(ctx context.Context, creds Credentials, gradingID int) (models.GradingJob, error) {
	var job models.GradingJob
	err := c.doJSON(ctx, request{
		method: http.MethodGet,
		path:   fmt.Sprintf("/admin/grading/%d", gradingID),
		creds:  creds,
	}, &job)
	return job, err
}

// GetValidation returns a validation result with its file payloads
func (c *Client) GetValidation(ctx context.Context, creds Credentials, validationID int) (models.ValidationResult, error) {
	var res models.ValidationResult
	err := c.doJSON(ctx, request{
		method: http.MethodGet,
		path:   fmt.Sprintf("/admin/validation/%d", validationID),
		creds:  creds,
	}, &res)
	return res, err
}

// ListUsers returns every account (admin only)
func (c *Client) ListUsers(ctx context.Context, creds Credentials) ([]models.User, error) {
	var users []models.User
	err := c.doJSON(ctx, request{method: http.MethodGet, path: "/admin/users", creds: creds}, &users)
	return users, err
}
