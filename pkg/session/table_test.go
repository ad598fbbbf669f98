package session

import (
	"testing"

	"github.com/duetlabs/pairsync/pkg/bus"
	"github.com/duetlabs/pairsync/pkg/snapshot"
)

func publishQ1(b *bus.Bus) {
	b.Publish("activeMatch:q1", snapshot.ChangeEvent{Key: "activeMatch:q1", Type: snapshot.Updated, Current: `{}`})
}

func TestClaimSupersedesPriorOwner(t *testing.T) {
	b := bus.New()
	tbl := NewTable(b)

	var old, cur int
	tbl.Claim(bus.TopicLinkedGame, "q1", func(snapshot.ChangeEvent) { old++ })
	tbl.Claim(bus.TopicLinkedGame, "q1", func(snapshot.ChangeEvent) { cur++ })

	publishQ1(b)

	if old != 0 {
		t.Fatalf("superseded owner was invoked %d times", old)
	}
	if cur != 1 {
		t.Fatalf("current owner should have been invoked once, got %d", cur)
	}
	if got := b.SubscriberCount(bus.TopicLinkedGame); got != 1 {
		t.Fatalf("superseded subscription leaked, %d subscribers on topic", got)
	}
}

func TestReleaseByOwnerRemovesSubscription(t *testing.T) {
	b := bus.New()
	tbl := NewTable(b)

	var n int
	h := tbl.Claim(bus.TopicLinkedGame, "q1", func(snapshot.ChangeEvent) { n++ })
	tbl.Release(h)

	publishQ1(b)

	if n != 0 {
		t.Fatalf("released owner was invoked %d times", n)
	}
	if _, ok := tbl.Owner("q1"); ok {
		t.Fatalf("session q1 should have no owner after release")
	}
}

func TestStaleReleaseDoesNotEvictCurrentOwner(t *testing.T) {
	b := bus.New()
	tbl := NewTable(b)

	var cur int
	stale := tbl.Claim(bus.TopicLinkedGame, "q1", func(snapshot.ChangeEvent) {})
	tbl.Claim(bus.TopicLinkedGame, "q1", func(snapshot.ChangeEvent) { cur++ })

	// The old screen tears down late, after the new screen claimed.
	tbl.Release(stale)

	publishQ1(b)

	if cur != 1 {
		t.Fatalf("current owner must still be invoked after a stale release, got %d", cur)
	}
	if _, ok := tbl.Owner("q1"); !ok {
		t.Fatalf("current owner was evicted by a stale release")
	}
}

func TestReleaseUnknownSessionIsNoOp(t *testing.T) {
	b := bus.New()
	tbl := NewTable(b)

	h := tbl.Claim(bus.TopicLinkedGame, "q1", func(snapshot.ChangeEvent) {})
	tbl.Release(h)
	tbl.Release(h) // double release
	tbl.Release(nil)
}

func TestClaimsForDifferentSessionsAreIndependent(t *testing.T) {
	b := bus.New()
	tbl := NewTable(b)

	var q1, q2 int
	h1 := tbl.Claim(bus.TopicLinkedGame, "q1", func(snapshot.ChangeEvent) { q1++ })
	tbl.Claim(bus.TopicLinkedGame, "q2", func(snapshot.ChangeEvent) { q2++ })

	tbl.Release(h1)

	publishQ1(b)
	b.Publish("activeMatch:q2", snapshot.ChangeEvent{Key: "activeMatch:q2", Type: snapshot.Updated, Current: `{}`})

	if q1 != 0 {
		t.Fatalf("released q1 owner was invoked %d times", q1)
	}
	if q2 != 1 {
		t.Fatalf("releasing q1 must not affect q2's owner, got %d", q2)
	}
}
