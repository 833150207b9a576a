package sqlstore

import (
	"database/sql"
	"errors"
	"time"

	"github.com/pliu/palaver/internal/store"
)

func (s *SQLStore) CreateSession(id, username string, expiresAt time.Time) error {
	query := s.rebind("INSERT INTO sessions (id, username, created_at, expires_at, active) VALUES (?, ?, ?, ?, TRUE)")
	_, err := s.db.Exec(query, id, username, time.Now().UTC(), expiresAt)
	return err
}

// ValidateSession returns the owning username if the session is active and
// unexpired, store.ErrNotFound otherwise.
func (s *SQLStore) ValidateSession(id string) (string, error) {
	var (
		username  string
		active    bool
		expiresAt time.Time
	)
	query := s.rebind("SELECT username, active, expires_at FROM sessions WHERE id = ?")

	err := s.db.QueryRow(query, id).Scan(&username, &active, &expiresAt)
	if errors.Is(err, sql.ErrNoRows) {
		return "", store.ErrNotFound
	}
	if err != nil {
		return "", err
	}
	if !active || time.Now().After(expiresAt) {
		return "", store.ErrNotFound
	}
	return username, nil
}

// InvalidateSession is idempotent; an unknown id is a no-op.
func (s *SQLStore) InvalidateSession(id string) error {
	query := s.rebind("UPDATE sessions SET active = FALSE WHERE id = ?")
	_, err := s.db.Exec(query, id)
	return err
}
