// Package flags holds the single source of truth for "results pending" state
// per shared activity. The coordinator is passive storage with idempotent
// mutators: it never polls or infers anything. Exactly two call sites in the
// consuming app are permitted to mutate it — the point where the local user's
// submission is accepted (MarkPending) and the first display of the
// corresponding results view (Clear).
package flags

import (
	"context"
	"sync"
	"time"

	"github.com/duetlabs/pairsync/internal/utils"
)

// Flag marks that the results of one shared activity session are ready to
// view. At most one flag exists per (activity type, session id) pair.
type Flag struct {
	ActivityType string
	SessionID    string
	SetAt        time.Time
}

// Store persists flags across process restarts. Optional; flags are
// local-only, each device derives pending state from its own polling.
type Store interface {
	SaveFlag(ctx context.Context, f Flag) error
	DeleteFlag(ctx context.Context, activityType, sessionID string) error
	ListFlags(ctx context.Context) ([]Flag, error)
}

// Coordinator owns the flag set. Per pair the only valid transitions are
// none -> pending (MarkPending) and pending -> none (Clear); repeating either
// is a no-op, not an error.
type Coordinator struct {
	mu    sync.Mutex
	flags map[string]Flag

	ttl   time.Duration
	store Store
	now   func() time.Time
}

// Option configures a Coordinator.
type Option func(*Coordinator)

// WithStore persists flag mutations and restores existing flags on startup.
func WithStore(s Store) Option {
	return func(c *Coordinator) { c.store = s }
}

// WithTTL makes flags expire: an expired flag reads as absent and is swept
// lazily. Zero means flags never expire.
func WithTTL(d time.Duration) Option {
	return func(c *Coordinator) { c.ttl = d }
}

func withClock(now func() time.Time) Option {
	return func(c *Coordinator) { c.now = now }
}

func NewCoordinator(opts ...Option) *Coordinator {
	c := &Coordinator{
		flags: make(map[string]Flag),
		now:   time.Now,
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.store != nil {
		persisted, err := c.store.ListFlags(context.Background())
		if err != nil {
			utils.Log.Warnf("flags: could not restore persisted flags: %v", err)
		}
		for _, f := range persisted {
			c.flags[flagKey(f.ActivityType, f.SessionID)] = f
		}
	}
	return c
}

// MarkPending records that a session's results are pending. Idempotent:
// a second call for the same pair leaves the original flag untouched.
func (c *Coordinator) MarkPending(activityType, sessionID string) {
	key := flagKey(activityType, sessionID)

	c.mu.Lock()
	defer c.mu.Unlock()

	if f, ok := c.flags[key]; ok && !c.expired(f) {
		return
	}
	f := Flag{ActivityType: activityType, SessionID: sessionID, SetAt: c.now()}
	c.flags[key] = f

	if c.store != nil {
		if err := c.store.SaveFlag(context.Background(), f); err != nil {
			utils.Log.Warnf("flags: could not persist flag %s/%s: %v", activityType, sessionID, err)
		}
	}
}

// IsPending reports whether a non-expired flag exists for the pair.
func (c *Coordinator) IsPending(activityType, sessionID string) bool {
	key := flagKey(activityType, sessionID)

	c.mu.Lock()
	defer c.mu.Unlock()

	f, ok := c.flags[key]
	if !ok {
		return false
	}
	if c.expired(f) {
		c.drop(key, f)
		return false
	}
	return true
}

// Clear removes the pair's flag. Idempotent: clearing an absent flag is a
// no-op.
func (c *Coordinator) Clear(activityType, sessionID string) {
	key := flagKey(activityType, sessionID)

	c.mu.Lock()
	defer c.mu.Unlock()

	f, ok := c.flags[key]
	if !ok {
		return
	}
	c.drop(key, f)
}

// Pending returns all non-expired flags, for display surfaces.
func (c *Coordinator) Pending() []Flag {
	c.mu.Lock()
	defer c.mu.Unlock()

	out := make([]Flag, 0, len(c.flags))
	for key, f := range c.flags {
		if c.expired(f) {
			c.drop(key, f)
			continue
		}
		out = append(out, f)
	}
	return out
}

// drop removes a flag from memory and the store. Callers hold c.mu.
func (c *Coordinator) drop(key string, f Flag) {
	delete(c.flags, key)
	if c.store != nil {
		if err := c.store.DeleteFlag(context.Background(), f.ActivityType, f.SessionID); err != nil {
			utils.Log.Warnf("flags: could not delete persisted flag %s/%s: %v", f.ActivityType, f.SessionID, err)
		}
	}
}

func (c *Coordinator) expired(f Flag) bool {
	return c.ttl > 0 && c.now().Sub(f.SetAt) > c.ttl
}

func flagKey(activityType, sessionID string) string {
	return activityType + "|" + sessionID
}
