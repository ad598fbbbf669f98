package bus

import (
	"sync"

	"github.com/google/uuid"

	"github.com/duetlabs/pairsync/internal/utils"
	"github.com/duetlabs/pairsync/pkg/snapshot"
)

// Listener receives change events for a topic. Listeners run synchronously
// on the publishing goroutine and must not block.
type Listener func(ev snapshot.ChangeEvent)

// Handle identifies one subscription. Unsubscribing a handle removes exactly
// that entry and nothing else, so disposing one screen can never clear
// another screen's listener.
type Handle struct {
	id        string
	topic     string
	sessionID string
}

func (h *Handle) ID() string        { return h.id }
func (h *Handle) Topic() string     { return h.topic }
func (h *Handle) SessionID() string { return h.sessionID }

type entry struct {
	handle   *Handle
	listener Listener
}

// Bus is the publish/subscribe registry. It owns no network or timing logic,
// only fan-out of change events to registered listeners. A topic exists only
// while it has subscribers.
type Bus struct {
	mu     sync.Mutex
	topics map[string][]*entry
}

func New() *Bus {
	return &Bus{topics: make(map[string][]*entry)}
}

// Subscribe registers a listener on a topic. A non-empty sessionID restricts
// delivery to events scoped to that session; an empty sessionID receives
// every event on the topic.
func (b *Bus) Subscribe(topic, sessionID string, fn Listener) *Handle {
	h := &Handle{id: uuid.NewString(), topic: topic, sessionID: sessionID}

	b.mu.Lock()
	b.topics[topic] = append(b.topics[topic], &entry{handle: h, listener: fn})
	b.mu.Unlock()

	utils.Log.Debugf("bus: subscribed %s to topic %q (session %q)", h.id, topic, sessionID)
	return h
}

// Unsubscribe removes exactly the given handle's entry. Unknown or already
// removed handles are a no-op. The topic is dropped when its last subscriber
// leaves.
func (b *Bus) Unsubscribe(h *Handle) {
	if h == nil {
		return
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	entries := b.topics[h.topic]
	for i, e := range entries {
		if e.handle.id == h.id {
			b.topics[h.topic] = append(entries[:i], entries[i+1:]...)
			break
		}
	}
	if len(b.topics[h.topic]) == 0 {
		delete(b.topics, h.topic)
	}
}

// Publish resolves the resource key to its topics and invokes every matching
// subscription's listener synchronously, in subscription order. A panicking
// listener is recovered and logged so one faulty subscriber cannot break
// fan-out to the others.
func (b *Bus) Publish(resourceKey string, ev snapshot.ChangeEvent) {
	addrs := Resolve(resourceKey)
	if len(addrs) == 0 {
		utils.Log.Debugf("bus: no topic mapped for resource key %q", resourceKey)
		return
	}

	for _, addr := range addrs {
		b.mu.Lock()
		entries := b.topics[addr.Topic]
		targets := make([]*entry, 0, len(entries))
		for _, e := range entries {
			if e.handle.sessionID != "" && addr.SessionID != "" && e.handle.sessionID != addr.SessionID {
				continue
			}
			targets = append(targets, e)
		}
		b.mu.Unlock()

		for _, e := range targets {
			deliver(e, addr.Topic, ev)
		}
	}
}

// SubscriberCount returns the number of active subscriptions on a topic.
func (b *Bus) SubscriberCount(topic string) int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.topics[topic])
}

func deliver(e *entry, topic string, ev snapshot.ChangeEvent) {
	defer func() {
		if r := recover(); r != nil {
			utils.Log.Errorf("bus: listener %s on topic %q panicked: %v", e.handle.id, topic, r)
		}
	}()
	e.listener(ev)
}
