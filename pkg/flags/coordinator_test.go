package flags

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestMarkPendingIsIdempotent(t *testing.T) {
	c := NewCoordinator()

	c.MarkPending("classicQuiz", "q1")
	c.MarkPending("classicQuiz", "q1")

	if !c.IsPending("classicQuiz", "q1") {
		t.Fatalf("flag should be pending after MarkPending")
	}
	if got := len(c.Pending()); got != 1 {
		t.Fatalf("expected exactly one flag, got %d", got)
	}
}

func TestMarkPendingKeepsOriginalSetAt(t *testing.T) {
	now := time.Date(2026, 8, 1, 10, 0, 0, 0, time.UTC)
	c := NewCoordinator(withClock(func() time.Time { return now }))

	c.MarkPending("classicQuiz", "q1")
	now = now.Add(time.Hour)
	c.MarkPending("classicQuiz", "q1")

	flags := c.Pending()
	if len(flags) != 1 {
		t.Fatalf("expected one flag, got %d", len(flags))
	}
	if !flags[0].SetAt.Equal(time.Date(2026, 8, 1, 10, 0, 0, 0, time.UTC)) {
		t.Fatalf("second MarkPending must not touch SetAt, got %s", flags[0].SetAt)
	}
}

func TestClearIsIdempotent(t *testing.T) {
	c := NewCoordinator()

	c.Clear("classicQuiz", "missing") // absent flag, no-op

	c.MarkPending("classicQuiz", "q1")
	c.Clear("classicQuiz", "q1")
	c.Clear("classicQuiz", "q1")

	if c.IsPending("classicQuiz", "q1") {
		t.Fatalf("flag should be absent after Clear")
	}
}

func TestFlagsAreScopedPerPair(t *testing.T) {
	c := NewCoordinator()

	c.MarkPending("classicQuiz", "q1")
	c.MarkPending("classicQuiz", "q2")
	c.MarkPending("wordDuel", "q1")

	c.Clear("classicQuiz", "q1")

	if c.IsPending("classicQuiz", "q1") {
		t.Fatalf("cleared pair should not be pending")
	}
	if !c.IsPending("classicQuiz", "q2") || !c.IsPending("wordDuel", "q1") {
		t.Fatalf("clearing one pair must not affect others")
	}
}

func TestTTLExpiresFlags(t *testing.T) {
	now := time.Date(2026, 8, 1, 10, 0, 0, 0, time.UTC)
	c := NewCoordinator(WithTTL(time.Hour), withClock(func() time.Time { return now }))

	c.MarkPending("classicQuiz", "q1")
	if !c.IsPending("classicQuiz", "q1") {
		t.Fatalf("fresh flag should be pending")
	}

	now = now.Add(2 * time.Hour)
	if c.IsPending("classicQuiz", "q1") {
		t.Fatalf("expired flag should read as absent")
	}
	if got := len(c.Pending()); got != 0 {
		t.Fatalf("expired flag should be swept, got %d flags", got)
	}

	// An expired flag can be set again.
	c.MarkPending("classicQuiz", "q1")
	if !c.IsPending("classicQuiz", "q1") {
		t.Fatalf("re-marking after expiry should work")
	}
}

// memStore is an in-memory flags.Store for tests.
type memStore struct {
	flags   map[string]Flag
	saveErr error
}

func newMemStore() *memStore { return &memStore{flags: make(map[string]Flag)} }

func (m *memStore) SaveFlag(_ context.Context, f Flag) error {
	if m.saveErr != nil {
		return m.saveErr
	}
	key := f.ActivityType + "|" + f.SessionID
	if _, ok := m.flags[key]; !ok {
		m.flags[key] = f
	}
	return nil
}

func (m *memStore) DeleteFlag(_ context.Context, activityType, sessionID string) error {
	delete(m.flags, activityType+"|"+sessionID)
	return nil
}

func (m *memStore) ListFlags(_ context.Context) ([]Flag, error) {
	out := make([]Flag, 0, len(m.flags))
	for _, f := range m.flags {
		out = append(out, f)
	}
	return out, nil
}

func TestStorePersistsAndRestoresFlags(t *testing.T) {
	store := newMemStore()

	c := NewCoordinator(WithStore(store))
	c.MarkPending("classicQuiz", "q1")
	c.MarkPending("wordDuel", "q2")
	c.Clear("wordDuel", "q2")

	// A new coordinator over the same store sees the surviving flag.
	c2 := NewCoordinator(WithStore(store))
	if !c2.IsPending("classicQuiz", "q1") {
		t.Fatalf("restored coordinator should see the persisted flag")
	}
	if c2.IsPending("wordDuel", "q2") {
		t.Fatalf("cleared flag should not be restored")
	}
}

func TestStoreFailuresDoNotBreakTheCoordinator(t *testing.T) {
	store := newMemStore()
	store.saveErr = errors.New("disk full")

	c := NewCoordinator(WithStore(store))
	c.MarkPending("classicQuiz", "q1")

	// The in-memory flag is authoritative even when persistence fails.
	if !c.IsPending("classicQuiz", "q1") {
		t.Fatalf("flag should be pending despite store failure")
	}
}
