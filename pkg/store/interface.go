package store

import (
	"errors"

	"github.com/dsa-judge/dsactl/pkg/models"
)

// ErrNoSession is returned by Load when nothing is stored
var ErrNoSession = errors.New("no session stored")

// SessionStore persists the single active session.
// Memory, YAML file and SQLite implementations share this interface.
type SessionStore interface {
	Load() (*models.Session, error)
	Save(session *models.Session) error
	// Clear removes the stored session; clearing an empty store is not an error
	Clear() error
	Close() error
}
