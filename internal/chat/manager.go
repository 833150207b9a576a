package chat

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/pliu/palaver/internal/auth"
	"github.com/pliu/palaver/internal/directory"
	"github.com/pliu/palaver/internal/models"
	"github.com/pliu/palaver/internal/pipeline"
	"github.com/pliu/palaver/internal/router"
	"github.com/pliu/palaver/internal/session"
	"github.com/pliu/palaver/internal/store"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"
)

const defaultHistoryLimit = 100

// Options configures a Manager. Zero durations fall back to defaults
// suitable for production; tests shrink them.
type Options struct {
	Store          store.Store
	Logger         zerolog.Logger
	SessionTTL     time.Duration
	ReapInterval   time.Duration
	IdleTimeout    time.Duration
	PipelineBuffer int
}

// Manager is the façade coordinating the registry, directory, router and
// pipeline. Construct one per process and hand it to each presentation
// adapter; there is deliberately no package-level instance.
type Manager struct {
	store     store.Store
	registry  *session.Registry
	directory *directory.Directory
	pipeline  *pipeline.Pipeline
	router    *router.Router
	log       zerolog.Logger

	reapInterval time.Duration
	idleTimeout  time.Duration

	cancel context.CancelFunc
	group  *errgroup.Group

	shutdownOnce sync.Once
	shutdownErr  error
}

func NewManager(opts Options) (*Manager, error) {
	if opts.SessionTTL <= 0 {
		opts.SessionTTL = 24 * time.Hour
	}
	if opts.ReapInterval <= 0 {
		opts.ReapInterval = time.Minute
	}
	if opts.IdleTimeout <= 0 {
		opts.IdleTimeout = time.Hour
	}
	if opts.PipelineBuffer <= 0 {
		opts.PipelineBuffer = 256
	}

	pl, err := pipeline.New(opts.PipelineBuffer, opts.Logger)
	if err != nil {
		return nil, err
	}

	log := opts.Logger.With().Str("component", "chat-manager").Logger()
	return &Manager{
		store:        opts.Store,
		registry:     session.NewRegistry(opts.Store, opts.SessionTTL, opts.Logger),
		directory:    directory.New(opts.Store, opts.Logger),
		pipeline:     pl,
		router:       router.New(opts.Logger),
		log:          log,
		reapInterval: opts.ReapInterval,
		idleTimeout:  opts.IdleTimeout,
	}, nil
}

// Run starts the pipeline worker and the session reaper. It returns
// immediately; Shutdown stops both.
func (m *Manager) Run(ctx context.Context) {
	ctx, m.cancel = context.WithCancel(ctx)
	m.group, ctx = errgroup.WithContext(ctx)

	m.group.Go(func() error {
		return m.pipeline.Run(ctx, m.distribute)
	})
	m.group.Go(func() error {
		m.reapLoop(ctx)
		return nil
	})
}

// Register creates a durable user record. A taken username yields
// store.ErrDuplicateUsername with no durable mutation.
func (m *Manager) Register(username, password, displayName, email string) (*models.User, error) {
	if username == "" || password == "" {
		return nil, errors.New("username and password are required")
	}
	if displayName == "" {
		displayName = username
	}

	hash, err := auth.HashPassword(password)
	if err != nil {
		return nil, err
	}

	user := &models.User{
		Username:    username,
		DisplayName: displayName,
		Email:       email,
		Status:      models.StatusOffline,
		LastSeen:    time.Now().UTC(),
	}
	if err := m.store.CreateUser(user, hash); err != nil {
		return nil, err
	}
	return user, nil
}

// Login authenticates and opens a session. Bad credentials return
// (nil, "", nil) with no hint of which field was wrong; only storage
// failures surface as errors.
func (m *Manager) Login(username, password string) (*models.User, string, error) {
	hash, err := m.store.GetCredentials(username)
	if errors.Is(err, store.ErrNotFound) {
		return nil, "", nil
	}
	if err != nil {
		return nil, "", err
	}
	if !auth.CheckPassword(hash, password) {
		return nil, "", nil
	}

	sessionID, err := m.registry.Create(username)
	if err != nil {
		return nil, "", err
	}

	user, err := m.directory.SetStatus(username, models.StatusOnline)
	if err != nil {
		return nil, "", err
	}

	m.log.Info().Str("username", username).Msg("user logged in")
	return user, sessionID, nil
}

// Logout tears down a session and, when it was the user's last one, marks
// the user offline. Idempotent: unknown ids are a no-op.
func (m *Manager) Logout(sessionID string) error {
	username, tracked := m.registry.Owner(sessionID)

	if err := m.registry.Invalidate(sessionID); err != nil {
		return err
	}
	if !tracked {
		return nil
	}

	if m.registry.SessionCount(username) == 0 {
		if _, err := m.directory.SetStatus(username, models.StatusOffline); err != nil {
			m.log.Warn().Err(err).Str("username", username).Msg("marking user offline")
		}
	}
	m.log.Info().Str("username", username).Str("session_id", sessionID).Msg("session closed")
	return nil
}

func (m *Manager) ValidateSession(sessionID string) bool {
	return m.registry.Validate(sessionID)
}

// SessionOwner returns the username behind a tracked session id.
func (m *Manager) SessionOwner(sessionID string) (string, bool) {
	return m.registry.Owner(sessionID)
}

// Send persists the message and hands it to the pipeline. When a session id
// is supplied it must be live; a dead session returns (false, nil) so the
// caller can prompt for a fresh login.
func (m *Manager) Send(msg models.Message, sessionID string) (bool, error) {
	if sessionID != "" && !m.registry.Validate(sessionID) {
		return false, nil
	}

	if err := m.store.SaveMessage(msg); err != nil {
		return false, fmt.Errorf("save message: %w", err)
	}
	if err := m.pipeline.Submit(msg); err != nil {
		return false, err
	}
	return true, nil
}

// History returns up to limit messages visible to username, oldest first.
func (m *Manager) History(username string, limit int) ([]models.Message, error) {
	if limit <= 0 {
		limit = defaultHistoryLimit
	}
	return m.store.GetMessages(limit, username)
}

// Conversations lists the user's private-message counterparts by recency.
func (m *Manager) Conversations(username string) ([]models.Conversation, error) {
	return m.store.GetConversations(username)
}

func (m *Manager) ActiveUsers() []models.User {
	return m.directory.ActiveUsers()
}

func (m *Manager) GetUser(username string) (*models.User, error) {
	return m.directory.Get(username)
}

// RegisterCallback attaches a delivery callback to a live session.
func (m *Manager) RegisterCallback(sessionID string, fn session.Callback) (uuid.UUID, bool) {
	return m.registry.RegisterCallback(sessionID, fn)
}

func (m *Manager) UnregisterCallback(sessionID string, cbID uuid.UUID) {
	m.registry.UnregisterCallback(sessionID, cbID)
}

// UpdateStatus changes the presence of the session's owner. Returns nil on
// a dead session or an unknown status.
func (m *Manager) UpdateStatus(sessionID string, status models.Status) *models.User {
	if !status.Valid() || !m.registry.Validate(sessionID) {
		return nil
	}
	username, ok := m.registry.Owner(sessionID)
	if !ok {
		return nil
	}

	user, err := m.directory.SetStatus(username, status)
	if err != nil {
		m.log.Error().Err(err).Str("username", username).Msg("updating status")
		return nil
	}
	return user
}

// distribute is the pipeline worker's delivery function.
func (m *Manager) distribute(msg models.Message) {
	m.router.Route(msg, m.registry.LiveSessions())
}

// Shutdown stops intake, waits for the worker and reaper to finish (bounded
// by ctx), logs out every tracked session and closes the store. Safe to
// call more than once.
func (m *Manager) Shutdown(ctx context.Context) error {
	m.shutdownOnce.Do(func() {
		if err := m.pipeline.Close(); err != nil {
			m.log.Warn().Err(err).Msg("closing pipeline")
		}
		if m.cancel != nil {
			m.cancel()
		}

		if m.group != nil {
			done := make(chan error, 1)
			go func() { done <- m.group.Wait() }()
			select {
			case err := <-done:
				if err != nil {
					m.log.Warn().Err(err).Msg("background task exited with error")
				}
			case <-ctx.Done():
				m.log.Warn().Msg("timed out waiting for background tasks")
			}
		}

		for _, id := range m.registry.SessionIDs() {
			if err := m.Logout(id); err != nil {
				m.log.Warn().Err(err).Str("session_id", id).Msg("logging out session on shutdown")
			}
		}

		m.shutdownErr = m.store.Close()
		m.log.Info().Msg("chat manager stopped")
	})
	return m.shutdownErr
}
