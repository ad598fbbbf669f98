package snapshot

import "time"

// Resource is one opaque, independently-comparable piece of server state,
// held as raw JSON exactly as the poll endpoint returned it.
type Resource string

// Pair associates a resource key with its payload. Used to construct
// snapshots while preserving the server's document order.
type Pair struct {
	Key   string
	Value Resource
}

// PollSnapshot is the immutable result of one poll cycle. Resource keys keep
// the order in which the server emitted them, so two related resources are
// always observed in a consistent relative order across cycles.
type PollSnapshot struct {
	keys      []string
	resources map[string]Resource

	// FetchedAt is the local monotonic-ish receive time of this snapshot.
	FetchedAt time.Time
	// ServerTime is the server-side timestamp carried by the response,
	// used for staleness display.
	ServerTime time.Time
}

// New builds a snapshot from ordered key/value pairs. A duplicate key keeps
// its first position but takes the later value.
func New(fetchedAt, serverTime time.Time, pairs []Pair) *PollSnapshot {
	s := &PollSnapshot{
		keys:       make([]string, 0, len(pairs)),
		resources:  make(map[string]Resource, len(pairs)),
		FetchedAt:  fetchedAt,
		ServerTime: serverTime,
	}
	for _, p := range pairs {
		if _, seen := s.resources[p.Key]; !seen {
			s.keys = append(s.keys, p.Key)
		}
		s.resources[p.Key] = p.Value
	}
	return s
}

// Keys returns the resource keys in snapshot order.
func (s *PollSnapshot) Keys() []string {
	out := make([]string, len(s.keys))
	copy(out, s.keys)
	return out
}

// Get returns the payload for a resource key.
func (s *PollSnapshot) Get(key string) (Resource, bool) {
	r, ok := s.resources[key]
	return r, ok
}

// Len returns the number of resources in the snapshot.
func (s *PollSnapshot) Len() int {
	return len(s.keys)
}

// ChangeType classifies a ChangeEvent.
type ChangeType string

const (
	Added   ChangeType = "added"
	Updated ChangeType = "updated"
	Removed ChangeType = "removed"
)

// ChangeEvent is emitted when a resource differs between two consecutive
// snapshots. It is transient: consumed synchronously by the bus, never stored
// by the engine itself.
type ChangeEvent struct {
	Key      string
	Type     ChangeType
	Previous Resource
	Current  Resource
}
