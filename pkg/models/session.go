package models

import "time"

// Session is the persisted authentication state of one user
type Session struct {
	AccessToken string         `json:"access_token" yaml:"access_token"`
	TokenType   string         `json:"token_type" yaml:"token_type"`
	UserID      string         `json:"user_id" yaml:"user_id"`
	Role        Role           `json:"role" yaml:"role"`
	ExpiresAt   time.Time      `json:"expires_at,omitempty" yaml:"expires_at,omitempty"`
	APIURL      string         `json:"api_url,omitempty" yaml:"api_url,omitempty"`
	Cookies     []StoredCookie `json:"cookies,omitempty" yaml:"cookies,omitempty"`
}

// StoredCookie is a persisted API cookie (the refresh cookie)
type StoredCookie struct {
	Name    string    `json:"name" yaml:"name"`
	Value   string    `json:"value" yaml:"value"`
	Path    string    `json:"path,omitempty" yaml:"path,omitempty"`
	Expires time.Time `json:"expires,omitempty" yaml:"expires,omitempty"`
}

// Expired reports whether the expiry is known and has passed at now
func (s *Session) Expired(now time.Time) bool {
	return !s.ExpiresAt.IsZero() && !now.Before(s.ExpiresAt)
}
