package router

import (
	"sync"
	"testing"

	"github.com/pliu/palaver/internal/models"
	"github.com/pliu/palaver/internal/session"
	"github.com/rs/zerolog"
)

// recorder collects delivered message ids per session, callback-safe.
type recorder struct {
	mu    sync.Mutex
	seen  map[string]int
	order []string
}

func newRecorder() *recorder {
	return &recorder{seen: make(map[string]int)}
}

func (r *recorder) callbackFor(sessionID string) session.Callback {
	return func(models.Message) {
		r.mu.Lock()
		r.seen[sessionID]++
		r.order = append(r.order, sessionID)
		r.mu.Unlock()
	}
}

func delivery(sessionID, username string, cbs ...session.Callback) session.Delivery {
	return session.Delivery{SessionID: sessionID, Username: username, Callbacks: cbs}
}

func TestBroadcastFanOut(t *testing.T) {
	r := New(zerolog.Nop())
	rec := newRecorder()

	live := map[string][]session.Delivery{
		"alice": {
			delivery("a1", "alice", rec.callbackFor("a1")),
			delivery("a2", "alice", rec.callbackFor("a2")),
		},
		"bob": {
			delivery("b1", "bob", rec.callbackFor("b1")),
		},
	}

	r.Route(models.NewMessage("hi all", "alice", ""), live)

	for _, id := range []string{"a1", "a2", "b1"} {
		if rec.seen[id] != 1 {
			t.Errorf("Expected session %s to receive broadcast exactly once, got %d", id, rec.seen[id])
		}
	}
}

func TestPrivateFanOut(t *testing.T) {
	r := New(zerolog.Nop())
	rec := newRecorder()

	// Sender with 2 sessions, recipient with 1, a bystander with 1.
	live := map[string][]session.Delivery{
		"alice": {
			delivery("a1", "alice", rec.callbackFor("a1")),
			delivery("a2", "alice", rec.callbackFor("a2")),
		},
		"bob": {
			delivery("b1", "bob", rec.callbackFor("b1")),
		},
		"carol": {
			delivery("c1", "carol", rec.callbackFor("c1")),
		},
	}

	r.Route(models.NewMessage("secret", "alice", "bob"), live)

	for _, id := range []string{"a1", "a2", "b1"} {
		if rec.seen[id] != 1 {
			t.Errorf("Expected session %s to receive private message once, got %d", id, rec.seen[id])
		}
	}
	if rec.seen["c1"] != 0 {
		t.Errorf("Expected bystander to receive nothing, got %d", rec.seen["c1"])
	}
}

func TestSelfMessageDeliveredOnce(t *testing.T) {
	r := New(zerolog.Nop())
	rec := newRecorder()

	live := map[string][]session.Delivery{
		"alice": {delivery("a1", "alice", rec.callbackFor("a1"))},
	}

	r.Route(models.NewMessage("note to self", "alice", "alice"), live)

	if rec.seen["a1"] != 1 {
		t.Errorf("Expected self-message delivered exactly once, got %d", rec.seen["a1"])
	}
}

func TestCallbackOrderWithinSession(t *testing.T) {
	r := New(zerolog.Nop())
	rec := newRecorder()

	live := map[string][]session.Delivery{
		"alice": {delivery("a1", "alice",
			rec.callbackFor("first"),
			rec.callbackFor("second"),
		)},
	}

	r.Route(models.NewMessage("hi", "alice", ""), live)

	if len(rec.order) != 2 || rec.order[0] != "first" || rec.order[1] != "second" {
		t.Errorf("Expected callbacks in insertion order, got %v", rec.order)
	}
}

func TestPanickingCallbackIsIsolated(t *testing.T) {
	r := New(zerolog.Nop())
	rec := newRecorder()

	live := map[string][]session.Delivery{
		"alice": {delivery("a1", "alice",
			func(models.Message) { panic("ui crashed") },
			rec.callbackFor("a1-second"),
		)},
		"bob": {delivery("b1", "bob", rec.callbackFor("b1"))},
	}

	r.Route(models.NewMessage("hi all", "alice", ""), live)

	if rec.seen["a1-second"] != 1 {
		t.Error("Expected delivery to continue past a panicking callback in the same session")
	}
	if rec.seen["b1"] != 1 {
		t.Error("Expected delivery to other sessions despite a panicking callback")
	}
}
