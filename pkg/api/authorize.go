package api

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	"github.com/dsa-judge/dsactl/pkg/models"
)

// Login exchanges credentials for an access token. The refresh cookie set
// by the server is kept in the client's cookie jar.
func (c *Client) Login(ctx context.Context, username, password string) (*models.TokenResponse, error) {
	form := url.Values{}
	form.Set("grant_type", "password")
	form.Set("username", username)
	form.Set("password", password)

	var token models.TokenResponse
	err := c.doJSON(ctx, request{
		method:      http.MethodPost,
		path:        "/authorize/token",
		body:        []byte(form.Encode()),
		contentType: "application/x-www-form-urlencoded",
	}, &token)
	if err != nil {
		return nil, err
	}
	if token.AccessToken == "" {
		return nil, fmt.Errorf("login response carried no access token")
	}
	return &token, nil
}

// RefreshToken asks the server for a new access token using the refresh cookie.
// The endpoint answers with either a bare JSON string or an object.
// It is never retried at the transport level: one call is one refresh attempt.
func (c *Client) RefreshToken(ctx context.Context) (string, error) {
	resp, err := c.do(ctx, request{method: http.MethodGet, path: "/authorize/token/update", noRetry: true})
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("failed to read response: %w", err)
	}
	return parseRefreshedToken(body)
}

func parseRefreshedToken(body []byte) (string, error) {
	var token string
	if err := json.Unmarshal(body, &token); err == nil && token != "" {
		return token, nil
	}
	var obj struct {
		AccessToken string `json:"access_token"`
	}
	if err := json.Unmarshal(body, &obj); err == nil && obj.AccessToken != "" {
		return obj.AccessToken, nil
	}
	raw := strings.TrimSpace(string(body))
	if raw != "" && !strings.ContainsAny(raw, "{}[]\" ") {
		return raw, nil
	}
	return "", fmt.Errorf("refresh response carried no access token")
}

// ValidateToken reports whether the server still accepts creds
func (c *Client) ValidateToken(ctx context.Context, creds Credentials) (bool, error) {
	var out struct {
		IsValid bool `json:"is_valid"`
	}
	err := c.doJSON(ctx, request{
		method: http.MethodPost,
		path:   "/authorize/token/validate",
		creds:  creds,
	}, &out)
	if err != nil {
		return false, err
	}
	return out.IsValid, nil
}
