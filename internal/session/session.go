package session

import (
	"time"

	"github.com/google/uuid"
	"github.com/pliu/palaver/internal/models"
)

// Callback receives messages delivered to one session. Registered by the
// presentation layer, in-memory only; reconnects must re-register.
type Callback func(models.Message)

type registration struct {
	id uuid.UUID
	fn Callback
}

// Session is an ephemeral credential-bearing handle. It is owned exclusively
// by the Registry; all fields are guarded by the registry mutex.
type Session struct {
	id           string
	username     string
	createdAt    time.Time
	expiresAt    time.Time
	lastActivity time.Time
	callbacks    []registration
}

// Delivery is a read-only snapshot of one live session handed to the router
// so fan-out runs without holding the registry lock.
type Delivery struct {
	SessionID string
	Username  string
	Callbacks []Callback
}
