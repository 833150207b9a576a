package session

import (
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/pliu/palaver/internal/store"
	"github.com/rs/zerolog"
	"golang.org/x/sync/singleflight"
)

// SessionStore is the slice of the storage collaborator the registry needs.
type SessionStore interface {
	CreateSession(id, username string, expiresAt time.Time) error
	ValidateSession(id string) (string, error)
	InvalidateSession(id string) error
}

// Registry owns the session table and the username index. Durable session
// existence is the source of truth; memory is a cache with lazy fill.
//
// Invariant: a session id appears in byUser for its owning username iff it
// is present in sessions. One mutex guards both maps.
type Registry struct {
	mu       sync.Mutex
	sessions map[string]*Session
	byUser   map[string]map[string]struct{}

	store SessionStore
	ttl   time.Duration
	log   zerolog.Logger

	// rehydrate collapses concurrent cache fills for the same id so two
	// validate() calls racing on a never-seen session converge on one entry.
	rehydrate singleflight.Group
}

func NewRegistry(st SessionStore, ttl time.Duration, log zerolog.Logger) *Registry {
	return &Registry{
		sessions: make(map[string]*Session),
		byUser:   make(map[string]map[string]struct{}),
		store:    st,
		ttl:      ttl,
		log:      log.With().Str("component", "session-registry").Logger(),
	}
}

// Create allocates a fresh session for username. The durable record is
// written first; only storage I/O errors can fail this.
func (r *Registry) Create(username string) (string, error) {
	id := uuid.NewString()
	now := time.Now().UTC()

	if err := r.store.CreateSession(id, username, now.Add(r.ttl)); err != nil {
		return "", err
	}

	r.mu.Lock()
	r.insertLocked(&Session{
		id:           id,
		username:     username,
		createdAt:    now,
		expiresAt:    now.Add(r.ttl),
		lastActivity: now,
	})
	r.mu.Unlock()

	return id, nil
}

// Validate reports whether id names a live session, refreshing its
// last-activity time. On a memory miss it consults durable storage and
// rehydrates; on durable miss or expiry it returns false.
func (r *Registry) Validate(id string) bool {
	r.mu.Lock()
	if s, ok := r.sessions[id]; ok {
		if time.Now().After(s.expiresAt) {
			r.removeLocked(id)
			r.mu.Unlock()
			// Best effort: keep the durable record in step with memory.
			if err := r.store.InvalidateSession(id); err != nil {
				r.log.Warn().Err(err).Str("session_id", id).Msg("invalidating expired session")
			}
			return false
		}
		s.touchLocked()
		r.mu.Unlock()
		return true
	}
	r.mu.Unlock()

	return r.fill(id)
}

// fill performs the cache-fill-on-miss half of Validate outside the lock.
func (r *Registry) fill(id string) bool {
	v, err, _ := r.rehydrate.Do(id, func() (any, error) {
		return r.store.ValidateSession(id)
	})
	if err != nil {
		if !errors.Is(err, store.ErrNotFound) {
			r.log.Error().Err(err).Str("session_id", id).Msg("session lookup failed")
		}
		return false
	}
	username := v.(string)

	now := time.Now().UTC()
	r.mu.Lock()
	defer r.mu.Unlock()

	// Another caller may have filled the entry while we were off the lock;
	// the existing entry wins so divergent copies never coexist.
	if s, ok := r.sessions[id]; ok {
		s.touchLocked()
		return true
	}
	r.insertLocked(&Session{
		id:           id,
		username:     username,
		createdAt:    now,
		expiresAt:    now.Add(r.ttl),
		lastActivity: now,
	})
	return true
}

// Invalidate kills a session durably and in memory. Idempotent: unknown or
// already-dead ids are a no-op. A dead id never comes back, because the
// durable record is deactivated before the in-memory entry goes away.
func (r *Registry) Invalidate(id string) error {
	if err := r.store.InvalidateSession(id); err != nil {
		return err
	}

	r.mu.Lock()
	r.removeLocked(id)
	r.mu.Unlock()
	return nil
}

// RegisterCallback attaches a delivery callback to a live session and
// returns a handle for unregistering. A dead session yields ok == false
// rather than an error: the caller is typically a reconnect attempt racing
// with expiry, and that race is expected.
func (r *Registry) RegisterCallback(id string, fn Callback) (uuid.UUID, bool) {
	if !r.Validate(id) {
		return uuid.Nil, false
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.sessions[id]
	if !ok {
		return uuid.Nil, false
	}
	cbID := uuid.New()
	s.callbacks = append(s.callbacks, registration{id: cbID, fn: fn})
	return cbID, true
}

// UnregisterCallback drops a previously registered callback. Unknown ids
// are a no-op.
func (r *Registry) UnregisterCallback(id string, cbID uuid.UUID) {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.sessions[id]
	if !ok {
		return
	}
	for i, reg := range s.callbacks {
		if reg.id == cbID {
			s.callbacks = append(s.callbacks[:i], s.callbacks[i+1:]...)
			return
		}
	}
}

// LiveSessions snapshots every live session's callbacks, grouped by owning
// username, for the router. Callers must tolerate staleness.
func (r *Registry) LiveSessions() map[string][]Delivery {
	r.mu.Lock()
	defer r.mu.Unlock()

	out := make(map[string][]Delivery, len(r.byUser))
	for username, ids := range r.byUser {
		for id := range ids {
			s := r.sessions[id]
			cbs := make([]Callback, len(s.callbacks))
			for i, reg := range s.callbacks {
				cbs[i] = reg.fn
			}
			out[username] = append(out[username], Delivery{
				SessionID: id,
				Username:  username,
				Callbacks: cbs,
			})
		}
	}
	return out
}

// Idle returns the ids of sessions whose last activity is older than
// timeout. The reaper feeds these through the ordinary logout path.
func (r *Registry) Idle(timeout time.Duration) []string {
	cutoff := time.Now().Add(-timeout)

	r.mu.Lock()
	defer r.mu.Unlock()
	var ids []string
	for id, s := range r.sessions {
		if s.lastActivity.Before(cutoff) {
			ids = append(ids, id)
		}
	}
	return ids
}

// Owner returns the username behind a live session id.
func (r *Registry) Owner(id string) (string, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.sessions[id]
	if !ok {
		return "", false
	}
	return s.username, true
}

// SessionCount reports how many live sessions a user has. Zero means the
// user is no longer active.
func (r *Registry) SessionCount(username string) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.byUser[username])
}

// SessionIDs snapshots every tracked session id, for shutdown cleanup.
func (r *Registry) SessionIDs() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	ids := make([]string, 0, len(r.sessions))
	for id := range r.sessions {
		ids = append(ids, id)
	}
	return ids
}

func (r *Registry) insertLocked(s *Session) {
	r.sessions[s.id] = s
	set, ok := r.byUser[s.username]
	if !ok {
		set = make(map[string]struct{})
		r.byUser[s.username] = set
	}
	set[s.id] = struct{}{}
}

func (r *Registry) removeLocked(id string) {
	s, ok := r.sessions[id]
	if !ok {
		return
	}
	delete(r.sessions, id)
	if set, ok := r.byUser[s.username]; ok {
		delete(set, id)
		if len(set) == 0 {
			delete(r.byUser, s.username)
		}
	}
}

// touchLocked keeps lastActivity monotonically non-decreasing.
func (s *Session) touchLocked() {
	if now := time.Now().UTC(); now.After(s.lastActivity) {
		s.lastActivity = now
	}
}
