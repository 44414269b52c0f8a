package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
)

// DetailTokenExpired is the server detail reported for an expired access token
const DetailTokenExpired = "Token has expired"

// APIError is a non-2xx API response
type APIError struct {
	StatusCode int
	Detail     string
	Body       string
}

func (e *APIError) Error() string {
	if e.Detail != "" {
		return fmt.Sprintf("API error (status %d): %s", e.StatusCode, e.Detail)
	}
	return fmt.Sprintf("API error (status %d): %s", e.StatusCode, e.Body)
}

// IsTokenExpired reports whether the server rejected an expired token
func (e *APIError) IsTokenExpired() bool {
	return e.StatusCode == http.StatusUnauthorized && e.Detail == DetailTokenExpired
}

// IsAuthDenied reports a 401/403 for any reason other than expiry
func (e *APIError) IsAuthDenied() bool {
	return (e.StatusCode == http.StatusUnauthorized || e.StatusCode == http.StatusForbidden) && !e.IsTokenExpired()
}

// IsValidation reports a request rejected as invalid input
func (e *APIError) IsValidation() bool {
	return e.StatusCode == http.StatusBadRequest
}

// AsAPIError extracts an *APIError from err
func AsAPIError(err error) (*APIError, bool) {
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr, true
	}
	return nil, false
}

func newAPIError(status int, body []byte) *APIError {
	e := &APIError{StatusCode: status, Body: strings.TrimSpace(string(body))}

	var payload struct {
		Detail json.RawMessage `json:"detail"`
	}
	if err := json.Unmarshal(body, &payload); err == nil && len(payload.Detail) > 0 {
		var detail string
		if err := json.Unmarshal(payload.Detail, &detail); err == nil {
			e.Detail = detail
		} else {
			// Field validation errors come back as a list of objects
			e.Detail = string(payload.Detail)
		}
	}
	return e
}
