package store

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/dsa-judge/dsactl/pkg/models"
)

// SQLiteStore keeps the session in a SQLite database. Useful when several
// dsactl processes share one session on the same machine.
type SQLiteStore struct {
	db *sql.DB
	mu sync.Mutex
}

// NewSQLiteStore opens (and initializes) the database at dbPath
func NewSQLiteStore(dbPath string) (*SQLiteStore, error) {
	// WAL + busy timeout so concurrent CLI invocations wait instead of failing
	dsn := fmt.Sprintf("%s?_journal_mode=WAL&_busy_timeout=5000", dbPath)

	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	db.SetMaxOpenConns(1)

	s := &SQLiteStore{db: db}
	if err := s.initSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}
	return s, nil
}

// initSchema creates the database schema. The CHECK keeps at most one row.
func (s *SQLiteStore) initSchema() error {
	_, err := s.db.Exec(`
	CREATE TABLE IF NOT EXISTS session (
		id INTEGER PRIMARY KEY CHECK (id = 1),
		access_token TEXT NOT NULL,
		token_type TEXT NOT NULL,
		user_id TEXT NOT NULL,
		role TEXT NOT NULL,
		expires_at DATETIME,
		api_url TEXT,
		cookies TEXT,
		updated_at DATETIME NOT NULL
	);`)
	return err
}

// Load reads the stored session
func (s *SQLiteStore) Load() (*models.Session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var (
		session   models.Session
		role      string
		expiresAt sql.NullTime
		apiURL    sql.NullString
		cookies   sql.NullString
	)
	err := s.db.QueryRow(`
		SELECT access_token, token_type, user_id, role, expires_at, api_url, cookies
		FROM session WHERE id = 1`).Scan(
		&session.AccessToken, &session.TokenType, &session.UserID, &role,
		&expiresAt, &apiURL, &cookies,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNoSession
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load session: %w", err)
	}

	session.Role = models.Role(role)
	if expiresAt.Valid {
		session.ExpiresAt = expiresAt.Time
	}
	session.APIURL = apiURL.String
	if cookies.Valid && cookies.String != "" {
		if err := json.Unmarshal([]byte(cookies.String), &session.Cookies); err != nil {
			return nil, fmt.Errorf("failed to decode stored cookies: %w", err)
		}
	}
	return &session, nil
}

// Save upserts the single session row
func (s *SQLiteStore) Save(session *models.Session) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	cookies, err := json.Marshal(session.Cookies)
	if err != nil {
		return fmt.Errorf("failed to encode cookies: %w", err)
	}
	var expiresAt interface{}
	if !session.ExpiresAt.IsZero() {
		expiresAt = session.ExpiresAt.UTC()
	}

	_, err = s.db.Exec(`
		INSERT INTO session (id, access_token, token_type, user_id, role, expires_at, api_url, cookies, updated_at)
		VALUES (1, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			access_token = excluded.access_token,
			token_type = excluded.token_type,
			user_id = excluded.user_id,
			role = excluded.role,
			expires_at = excluded.expires_at,
			api_url = excluded.api_url,
			cookies = excluded.cookies,
			updated_at = excluded.updated_at`,
		session.AccessToken, session.TokenType, session.UserID, string(session.Role),
		expiresAt, session.APIURL, string(cookies), time.Now().UTC(),
	)
	if err != nil {
		return fmt.Errorf("failed to save session: %w", err)
	}
	return nil
}

// Clear deletes the session row
func (s *SQLiteStore) Clear() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, err := s.db.Exec(`DELETE FROM session`); err != nil {
		return fmt.Errorf("failed to clear session: %w", err)
	}
	return nil
}

// Close closes the database
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}
