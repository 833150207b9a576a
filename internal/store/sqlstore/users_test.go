package sqlstore

import (
	"errors"
	"testing"
	"time"

	"github.com/pliu/palaver/internal/models"
	"github.com/pliu/palaver/internal/store"
)

func testUser(username string) *models.User {
	return &models.User{
		Username:    username,
		DisplayName: username,
		Status:      models.StatusOffline,
		LastSeen:    time.Now().UTC(),
	}
}

func TestCreateUser(t *testing.T) {
	SetupTestDB(t)
	defer TeardownTestDB()

	err := testStore.CreateUser(testUser("testuser"), "hash123")
	if err != nil {
		t.Errorf("Failed to create user: %v", err)
	}

	// Test duplicate user
	err = testStore.CreateUser(testUser("testuser"), "hash123")
	if !errors.Is(err, store.ErrDuplicateUsername) {
		t.Errorf("Expected ErrDuplicateUsername for duplicate user, got %v", err)
	}
}

func TestGetUser(t *testing.T) {
	SetupTestDB(t)
	defer TeardownTestDB()

	u := testUser("testuser")
	u.DisplayName = "Test User"
	u.Email = "test@example.com"
	testStore.CreateUser(u, "hash123")

	got, err := testStore.GetUser("testuser")
	if err != nil {
		t.Fatalf("Failed to get user: %v", err)
	}
	if got.Username != "testuser" {
		t.Errorf("Expected username 'testuser', got '%s'", got.Username)
	}
	if got.DisplayName != "Test User" {
		t.Errorf("Expected display name 'Test User', got '%s'", got.DisplayName)
	}
	if got.Status != models.StatusOffline {
		t.Errorf("Expected status offline, got '%s'", got.Status)
	}

	_, err = testStore.GetUser("nonexistent")
	if !errors.Is(err, store.ErrNotFound) {
		t.Errorf("Expected ErrNotFound for nonexistent user, got %v", err)
	}
}

func TestGetCredentials(t *testing.T) {
	SetupTestDB(t)
	defer TeardownTestDB()

	testStore.CreateUser(testUser("testuser"), "hash123")

	hash, err := testStore.GetCredentials("testuser")
	if err != nil {
		t.Fatalf("Failed to get credentials: %v", err)
	}
	if hash != "hash123" {
		t.Errorf("Expected hash 'hash123', got '%s'", hash)
	}

	_, err = testStore.GetCredentials("nonexistent")
	if !errors.Is(err, store.ErrNotFound) {
		t.Errorf("Expected ErrNotFound for nonexistent user, got %v", err)
	}
}

func TestUpdateUserStatus(t *testing.T) {
	SetupTestDB(t)
	defer TeardownTestDB()

	testStore.CreateUser(testUser("testuser"), "hash123")

	now := time.Now().UTC()
	if err := testStore.UpdateUserStatus("testuser", models.StatusAway, now); err != nil {
		t.Errorf("Failed to update status: %v", err)
	}

	got, _ := testStore.GetUser("testuser")
	if got.Status != models.StatusAway {
		t.Errorf("Expected status away, got '%s'", got.Status)
	}

	err := testStore.UpdateUserStatus("nonexistent", models.StatusAway, now)
	if !errors.Is(err, store.ErrNotFound) {
		t.Errorf("Expected ErrNotFound for nonexistent user, got %v", err)
	}
}
