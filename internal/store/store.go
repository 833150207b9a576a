package store

import (
	"errors"
	"time"

	"github.com/pliu/palaver/internal/models"
)

// Sentinel errors for common conditions. Anything else is a storage I/O
// failure and surfaces to the caller of the triggering operation.
var (
	ErrDuplicateUsername = errors.New("username already taken")
	ErrNotFound          = errors.New("record not found")
)

type Store interface {
	// User operations
	CreateUser(user *models.User, passwordHash string) error
	GetUser(username string) (*models.User, error)
	GetCredentials(username string) (string, error)
	UpdateUserStatus(username string, status models.Status, lastSeen time.Time) error

	// Message operations
	SaveMessage(msg models.Message) error
	GetMessages(limit int, username string) ([]models.Message, error)
	GetConversations(username string) ([]models.Conversation, error)

	// Session operations
	CreateSession(id, username string, expiresAt time.Time) error
	ValidateSession(id string) (string, error)
	InvalidateSession(id string) error

	Close() error
}
