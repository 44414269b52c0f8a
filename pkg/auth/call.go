package auth

import (
	"context"
	"errors"
	"fmt"

	"github.com/dsa-judge/dsactl/pkg/api"
)

const (
	msgNotPermitted = "You are not permitted to perform this action."
	msgGeneric      = "An error occurred while talking to the server. You have been logged out."
)

// Call invokes fn with the current session credentials and applies the
// session failure policy:
//
//   - 401 "Token has expired": one refresh, then one retry with the new token;
//     a failed refresh logs out and returns ErrSessionExpired
//   - other 401/403: alert, log out, return the error
//   - 400: returned unchanged for inline display
//   - anything else (including transport failures): alert, log out, return the error
//
// Context cancellation is returned unchanged.
func Call[T any](ctx context.Context, m *Manager, fn func(context.Context, api.Credentials) (T, error)) (T, error) {
	var zero T

	if !m.loggedIn() {
		m.Logout()
		return zero, ErrNotLoggedIn
	}

	refreshed := false
	if m.expired() {
		// Known-expired tokens take the same path as a server-reported expiry
		if _, err := m.Refresh(ctx); err != nil {
			m.logger.Warn("token refresh failed", map[string]interface{}{"error": err.Error()})
			m.Logout()
			return zero, fmt.Errorf("%w: %v", ErrSessionExpired, err)
		}
		refreshed = true
	}

	result, err := fn(ctx, m.Credentials())
	if err == nil {
		return result, nil
	}

	if isExpired(err) && !refreshed {
		creds, rerr := m.Refresh(ctx)
		if rerr != nil {
			m.logger.Warn("token refresh failed", map[string]interface{}{"error": rerr.Error()})
			m.Logout()
			return zero, fmt.Errorf("%w: %v", ErrSessionExpired, rerr)
		}
		// The retry is a single attempt end to end
		result, err = fn(api.WithoutRetry(ctx), creds)
		if err == nil {
			return result, nil
		}
	}

	return zero, m.fail(ctx, err)
}

// Do is Call for functions without a result
func Do(ctx context.Context, m *Manager, fn func(context.Context, api.Credentials) error) error {
	_, err := Call(ctx, m, func(ctx context.Context, creds api.Credentials) (struct{}, error) {
		return struct{}{}, fn(ctx, creds)
	})
	return err
}

func (m *Manager) fail(ctx context.Context, err error) error {
	if ctx.Err() != nil || errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}

	apiErr, ok := api.AsAPIError(err)
	switch {
	case ok && apiErr.IsTokenExpired():
		// Still expired right after a refresh
		m.Logout()
		return fmt.Errorf("%w: %v", ErrSessionExpired, err)
	case ok && apiErr.IsValidation():
		return err
	case ok && apiErr.IsAuthDenied():
		m.notifier.Alert(msgNotPermitted)
		m.Logout()
		return err
	default:
		m.notifier.Alert(msgGeneric)
		m.Logout()
		return err
	}
}

func isExpired(err error) bool {
	apiErr, ok := api.AsAPIError(err)
	return ok && apiErr.IsTokenExpired()
}
