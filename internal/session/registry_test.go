package session

import (
	"fmt"
	"sync"
	"testing"
)

// fakeConn is a minimal interfaces.Connection for registry tests.
type fakeConn struct {
	id        string
	mu        sync.Mutex
	role      string
	sessionID string
}

func newFakeConn(id string) *fakeConn { return &fakeConn{id: id} }

func (c *fakeConn) ID() string { return c.id }

func (c *fakeConn) Role() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.role
}

func (c *fakeConn) SessionID() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.sessionID
}

func (c *fakeConn) SetRole(role, sessionID string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.role = role
	c.sessionID = sessionID
	return nil
}

func (c *fakeConn) WriteJSON(v interface{}) error { return nil }
func (c *fakeConn) Close() error                  { return nil }

func TestRegistry_RegisterAndLookup(t *testing.T) {
	r := NewRegistry()
	conn := newFakeConn("c1")

	if err := r.Register("s1", conn); err != nil {
		t.Fatalf("Register failed: %v", err)
	}

	got, ok := r.Lookup("s1")
	if !ok {
		t.Fatal("Lookup should find the registered session")
	}
	if got != conn {
		t.Error("Lookup should return the registering connection")
	}
}

func TestRegistry_LastRegistrationWins(t *testing.T) {
	r := NewRegistry()
	first := newFakeConn("c1")
	second := newFakeConn("c2")

	if err := r.Register("s1", first); err != nil {
		t.Fatalf("first Register failed: %v", err)
	}
	if err := r.Register("s1", second); err != nil {
		t.Fatalf("second Register failed: %v", err)
	}

	got, ok := r.Lookup("s1")
	if !ok {
		t.Fatal("Lookup should find the session")
	}
	if got != second {
		t.Error("a later registration must overwrite the earlier one")
	}
}

func TestRegistry_RegisterValidation(t *testing.T) {
	r := NewRegistry()

	if err := r.Register("s1", nil); err != ErrNilConnection {
		t.Errorf("expected ErrNilConnection, got %v", err)
	}
	if err := r.Register("", newFakeConn("c1")); err != ErrEmptySessionID {
		t.Errorf("expected ErrEmptySessionID, got %v", err)
	}
}

func TestRegistry_LookupMissing(t *testing.T) {
	r := NewRegistry()

	if _, ok := r.Lookup("nope"); ok {
		t.Error("Lookup of an unknown session should report absence")
	}
}

func TestRegistry_UnregisterConn(t *testing.T) {
	r := NewRegistry()
	conn := newFakeConn("c1")

	if err := r.Register("s1", conn); err != nil {
		t.Fatalf("Register failed: %v", err)
	}
	r.UnregisterConn(conn)

	if _, ok := r.Lookup("s1"); ok {
		t.Error("session should be gone after UnregisterConn")
	}
	if r.Count() != 0 {
		t.Errorf("Count = %d, want 0", r.Count())
	}

	// Idempotent: a duplicate disconnect signal is harmless.
	r.UnregisterConn(conn)
	r.UnregisterConn(nil)
}

func TestRegistry_UnregisterRemovesAllOwnedSessions(t *testing.T) {
	r := NewRegistry()
	conn := newFakeConn("c1")

	if err := r.Register("s1", conn); err != nil {
		t.Fatalf("Register failed: %v", err)
	}
	if err := r.Register("s2", conn); err != nil {
		t.Fatalf("Register failed: %v", err)
	}

	r.UnregisterConn(conn)
	if r.Count() != 0 {
		t.Errorf("every entry owned by the connection should be removed, Count = %d", r.Count())
	}
}

func TestRegistry_StaleConnCannotEvictReplacement(t *testing.T) {
	r := NewRegistry()
	stale := newFakeConn("c1")
	replacement := newFakeConn("c2")

	if err := r.Register("s1", stale); err != nil {
		t.Fatalf("Register failed: %v", err)
	}
	if err := r.Register("s1", replacement); err != nil {
		t.Fatalf("Register failed: %v", err)
	}

	// The stale connection's delayed disconnect cleanup must not remove
	// the entry now owned by its replacement.
	r.UnregisterConn(stale)

	got, ok := r.Lookup("s1")
	if !ok {
		t.Fatal("session should survive the stale connection's cleanup")
	}
	if got != replacement {
		t.Error("replacement connection should still own the session")
	}
}

func TestRegistry_ConcurrentAccess(t *testing.T) {
	r := NewRegistry()

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			conn := newFakeConn(fmt.Sprintf("c%d", n))
			sessionID := fmt.Sprintf("s%d", n)

			if err := r.Register(sessionID, conn); err != nil {
				t.Errorf("Register failed: %v", err)
			}
			if _, ok := r.Lookup(sessionID); !ok {
				t.Errorf("Lookup failed for %s", sessionID)
			}
			r.UnregisterConn(conn)
		}(i)
	}
	wg.Wait()

	if r.Count() != 0 {
		t.Errorf("Count = %d after all goroutines unregistered, want 0", r.Count())
	}
}
