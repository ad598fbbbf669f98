// Package session enforces the rule "one active UI owner per session id" on
// top of the topic bus. Screens claim ownership of an activity session when
// they mount and release it when they unmount; a stale screen's teardown can
// never release a newer screen's claim.
package session

import (
	"sync"

	"github.com/duetlabs/pairsync/internal/utils"
	"github.com/duetlabs/pairsync/pkg/bus"
)

// Table maps an activity-session id to the subscription handle of the screen
// that currently owns UI responsibility for it.
type Table struct {
	mu     sync.Mutex
	bus    *bus.Bus
	owners map[string]*bus.Handle
}

func NewTable(b *bus.Bus) *Table {
	return &Table{bus: b, owners: make(map[string]*bus.Handle)}
}

// Claim subscribes the listener to the topic scoped to sessionID and records
// it as the session's owner. Any prior owner is implicitly superseded: its
// subscription is removed without notification, since the caller is expected
// to have already navigated away from the old screen.
func (t *Table) Claim(topic, sessionID string, fn bus.Listener) *bus.Handle {
	t.mu.Lock()
	defer t.mu.Unlock()

	if prev, ok := t.owners[sessionID]; ok {
		utils.Log.Debugf("session: superseding owner %s for session %q", prev.ID(), sessionID)
		t.bus.Unsubscribe(prev)
	}

	h := t.bus.Subscribe(topic, sessionID, fn)
	t.owners[sessionID] = h
	return h
}

// Release removes ownership only if the given handle still holds it. A
// release by a stale (non-owning) handle indicates a benign teardown race and
// is logged and ignored, never raised.
func (t *Table) Release(h *bus.Handle) {
	if h == nil {
		return
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	cur, ok := t.owners[h.SessionID()]
	if !ok || cur.ID() != h.ID() {
		utils.Log.Warnf("session: stale release for session %q by handle %s, ignoring", h.SessionID(), h.ID())
		return
	}

	t.bus.Unsubscribe(h)
	delete(t.owners, h.SessionID())
}

// Owner returns the handle currently owning a session, if any.
func (t *Table) Owner(sessionID string) (*bus.Handle, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	h, ok := t.owners[sessionID]
	return h, ok
}
