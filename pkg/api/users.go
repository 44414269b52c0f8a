package api

import (
	"context"
	"net/http"

	"github.com/dsa-judge/dsactl/pkg/models"
)

// Me returns the authenticated user
func (c *Client) Me(ctx context.Context, creds Credentials) (*models.User, error) {
	var user models.User
	if err := c.doJSON(ctx, request{method: http.MethodGet, path: "/users/me", creds: creds}, &user); err != nil {
		return nil, err
	}
	return &user, nil
}

// ChangePassword updates the caller's password. A wrong current password is
// reported by the server as a 400 validation error.
func (c *Client) ChangePassword(ctx context.Context, creds Credentials, current, next string) error {
	body, err := jsonBody(map[string]string{
		"current_password": current,
		"new_password":     next,
	})
	if err != nil {
		return err
	}
	return c.doJSON(ctx, request{
		method:      http.MethodPut,
		path:        "/users/me/password",
		body:        body,
		contentType: "application/json",
		creds:       creds,
	}, nil)
}
