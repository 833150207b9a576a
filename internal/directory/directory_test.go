package directory

import (
	"errors"
	"testing"
	"time"

	"github.com/pliu/palaver/internal/models"
	"github.com/pliu/palaver/internal/store"
	"github.com/pliu/palaver/internal/store/sqlstore"
	"github.com/rs/zerolog"
)

func newTestDirectory(t *testing.T) (*Directory, *sqlstore.SQLStore) {
	st, err := sqlstore.New("sqlite3", ":memory:")
	if err != nil {
		t.Fatalf("Failed to open test database: %v", err)
	}
	return New(st, zerolog.Nop()), st
}

func createUser(t *testing.T, st *sqlstore.SQLStore, username string) {
	t.Helper()
	err := st.CreateUser(&models.User{
		Username:    username,
		DisplayName: username,
		Status:      models.StatusOffline,
		LastSeen:    time.Now().UTC(),
	}, "hash")
	if err != nil {
		t.Fatalf("Failed to create user: %v", err)
	}
}

func TestGetFallsBackToStore(t *testing.T) {
	d, st := newTestDirectory(t)
	defer st.Close()

	createUser(t, st, "alice")

	// alice is offline, so Get must come from the durable record.
	u, err := d.Get("alice")
	if err != nil {
		t.Fatalf("Failed to get user: %v", err)
	}
	if u.Username != "alice" {
		t.Errorf("Expected username 'alice', got '%s'", u.Username)
	}

	_, err = d.Get("nonexistent")
	if !errors.Is(err, store.ErrNotFound) {
		t.Errorf("Expected ErrNotFound, got %v", err)
	}
}

func TestSetStatusManagesActiveSet(t *testing.T) {
	d, st := newTestDirectory(t)
	defer st.Close()

	createUser(t, st, "alice")

	u, err := d.SetStatus("alice", models.StatusOnline)
	if err != nil {
		t.Fatalf("Failed to set status: %v", err)
	}
	if u.Status != models.StatusOnline {
		t.Errorf("Expected status online, got '%s'", u.Status)
	}

	active := d.ActiveUsers()
	if len(active) != 1 || active[0].Username != "alice" {
		t.Fatalf("Expected alice in active set, got %+v", active)
	}

	// Any status transition is allowed; busy keeps the user active.
	if _, err := d.SetStatus("alice", models.StatusBusy); err != nil {
		t.Fatalf("Failed to set status: %v", err)
	}
	if len(d.ActiveUsers()) != 1 {
		t.Error("Expected busy user to stay in active set")
	}

	// Offline removes from the active set without deleting the user.
	if _, err := d.SetStatus("alice", models.StatusOffline); err != nil {
		t.Fatalf("Failed to set status: %v", err)
	}
	if len(d.ActiveUsers()) != 0 {
		t.Error("Expected offline user removed from active set")
	}
	if _, err := d.Get("alice"); err != nil {
		t.Errorf("Expected offline user to still exist durably: %v", err)
	}
}

func TestSetStatusInvalid(t *testing.T) {
	d, st := newTestDirectory(t)
	defer st.Close()

	createUser(t, st, "alice")

	if _, err := d.SetStatus("alice", models.Status("lurking")); err == nil {
		t.Error("Expected error for invalid status")
	}
}

func TestSetStatusRefreshesCache(t *testing.T) {
	d, st := newTestDirectory(t)
	defer st.Close()

	createUser(t, st, "alice")

	// Prime the cache with the offline record.
	d.Get("alice")

	d.SetStatus("alice", models.StatusAway)
	d.SetStatus("alice", models.StatusOffline)

	u, err := d.Get("alice")
	if err != nil {
		t.Fatalf("Failed to get user: %v", err)
	}
	if u.Status != models.StatusOffline {
		t.Errorf("Expected cache to track status change, got '%s'", u.Status)
	}
}
