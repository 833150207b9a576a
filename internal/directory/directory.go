package directory

import (
	"errors"
	"sync"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/pliu/palaver/internal/models"
	"github.com/rs/zerolog"
)

const cacheSize = 1024

// UserStore is the slice of the storage collaborator the directory needs.
type UserStore interface {
	GetUser(username string) (*models.User, error)
	UpdateUserStatus(username string, status models.Status, lastSeen time.Time) error
}

// Directory tracks which users are currently active and their presence
// status. Durable identity lives in the store; offline lookups go through
// a small LRU so repeated misses don't hammer the database.
type Directory struct {
	mu     sync.RWMutex
	active map[string]models.User

	cache *lru.Cache[string, models.User]
	store UserStore
	log   zerolog.Logger
}

func New(st UserStore, log zerolog.Logger) *Directory {
	cache, _ := lru.New[string, models.User](cacheSize)
	return &Directory{
		active: make(map[string]models.User),
		cache:  cache,
		store:  st,
		log:    log.With().Str("component", "directory").Logger(),
	}
}

// Get returns a snapshot of the user: active set first, then cache, then
// durable lookup. Mutating the returned value does not change stored state.
func (d *Directory) Get(username string) (*models.User, error) {
	d.mu.RLock()
	if u, ok := d.active[username]; ok {
		d.mu.RUnlock()
		return &u, nil
	}
	d.mu.RUnlock()

	if u, ok := d.cache.Get(username); ok {
		return &u, nil
	}

	u, err := d.store.GetUser(username)
	if err != nil {
		return nil, err
	}
	d.cache.Add(username, *u)
	return u, nil
}

// SetStatus updates the durable record and the active set. Offline removes
// the user from the active set; every other status adds them.
func (d *Directory) SetStatus(username string, status models.Status) (*models.User, error) {
	if !status.Valid() {
		return nil, errors.New("invalid status")
	}

	now := time.Now().UTC()
	if err := d.store.UpdateUserStatus(username, status, now); err != nil {
		return nil, err
	}
	// The durable row changed under the cached copy.
	d.cache.Remove(username)

	u, err := d.store.GetUser(username)
	if err != nil {
		return nil, err
	}

	d.mu.Lock()
	if status == models.StatusOffline {
		delete(d.active, username)
	} else {
		d.active[username] = *u
	}
	d.mu.Unlock()

	return u, nil
}

// ActiveUsers snapshots the active set. The snapshot may be stale by the
// time the caller uses it; that is fine.
func (d *Directory) ActiveUsers() []models.User {
	d.mu.RLock()
	defer d.mu.RUnlock()
	users := make([]models.User, 0, len(d.active))
	for _, u := range d.active {
		users = append(users, u)
	}
	return users
}
