package models

import (
	"errors"
	"fmt"
)

// ErrTerminalRegression is reported when a refetch observes an entity that
// was terminal moving back to a non-terminal status.
var ErrTerminalRegression = errors.New("terminal entity observed as non-terminal")

// ValidateObservation checks a newly observed copy of an entity against the
// previous one. TERMINAL is absorbing: the only legal transitions are
// NON_TERMINAL -> NON_TERMINAL, NON_TERMINAL -> TERMINAL and TERMINAL -> TERMINAL.
// Callers still apply the new copy (last response wins) and only log the error.
func ValidateObservation(prev, next Trackable) error {
	if prev == nil || next == nil {
		return nil
	}
	if prev.TrackingID() != next.TrackingID() {
		return fmt.Errorf("observation id mismatch: %d != %d", prev.TrackingID(), next.TrackingID())
	}
	if prev.IsTerminal() && !next.IsTerminal() {
		return fmt.Errorf("entity %d: %w", next.TrackingID(), ErrTerminalRegression)
	}
	return nil
}
