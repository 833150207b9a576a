package sqlstore

import (
	"database/sql"
	"errors"
	"strings"
	"time"

	"github.com/pliu/palaver/internal/models"
	"github.com/pliu/palaver/internal/store"
)

func (s *SQLStore) CreateUser(user *models.User, passwordHash string) error {
	query := s.rebind("INSERT INTO users (username, display_name, email, password, status, last_seen) VALUES (?, ?, ?, ?, ?, ?)")
	_, err := s.db.Exec(query, user.Username, user.DisplayName, user.Email, passwordHash, user.Status, user.LastSeen)
	if err != nil {
		if isUniqueViolation(err) {
			return store.ErrDuplicateUsername
		}
		return err
	}
	return nil
}

// isUniqueViolation covers both drivers without importing either one directly.
func isUniqueViolation(err error) bool {
	msg := err.Error()
	return strings.Contains(msg, "UNIQUE constraint failed") || // sqlite3
		strings.Contains(msg, "duplicate key value") // postgres
}

func (s *SQLStore) GetUser(username string) (*models.User, error) {
	var user models.User
	query := s.rebind("SELECT username, display_name, COALESCE(email, ''), status, last_seen FROM users WHERE username = ?")

	err := s.db.QueryRow(query, username).Scan(&user.Username, &user.DisplayName, &user.Email, &user.Status, &user.LastSeen)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, store.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &user, nil
}

func (s *SQLStore) GetCredentials(username string) (string, error) {
	var hash string
	query := s.rebind("SELECT password FROM users WHERE username = ?")

	err := s.db.QueryRow(query, username).Scan(&hash)
	if errors.Is(err, sql.ErrNoRows) {
		return "", store.ErrNotFound
	}
	if err != nil {
		return "", err
	}
	return hash, nil
}

func (s *SQLStore) UpdateUserStatus(username string, status models.Status, lastSeen time.Time) error {
	query := s.rebind("UPDATE users SET status = ?, last_seen = ? WHERE username = ?")
	result, err := s.db.Exec(query, status, lastSeen, username)
	if err != nil {
		return err
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if rows == 0 {
		return store.ErrNotFound
	}
	return nil
}
