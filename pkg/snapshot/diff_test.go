package snapshot

import (
	"reflect"
	"testing"
	"time"
)

func snap(pairs ...Pair) *PollSnapshot {
	return New(time.Now(), time.Now(), pairs)
}

func TestDiffIdenticalSnapshotsIsEmpty(t *testing.T) {
	a := snap(
		Pair{Key: "dailyQuests", Value: `{"done":1}`},
		Pair{Key: "lp", Value: `{"total":120}`},
	)
	b := snap(
		Pair{Key: "dailyQuests", Value: `{"done":1}`},
		Pair{Key: "lp", Value: `{"total":120}`},
	)

	if got := Diff(a, b); len(got) != 0 {
		t.Fatalf("expected no events for identical snapshots, got %#v", got)
	}
}

func TestDiffNilPreviousReportsEverythingAdded(t *testing.T) {
	cur := snap(
		Pair{Key: "dailyQuests", Value: `{"done":1}`},
		Pair{Key: "activeMatch:q1", Value: `{"turn":1}`},
	)

	got := Diff(nil, cur)
	want := []ChangeEvent{
		{Key: "dailyQuests", Type: Added, Current: `{"done":1}`},
		{Key: "activeMatch:q1", Type: Added, Current: `{"turn":1}`},
	}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("unexpected events.\nwant: %#v\ngot:  %#v", want, got)
	}
}

func TestDiffAddedUpdatedRemoved(t *testing.T) {
	prev := snap(
		Pair{Key: "dailyQuests", Value: `{"done":1}`},
		Pair{Key: "activeMatch:q1", Value: `{"turn":1}`},
		Pair{Key: "lp", Value: `{"total":100}`},
	)
	cur := snap(
		Pair{Key: "dailyQuests", Value: `{"done":2}`},
		Pair{Key: "lp", Value: `{"total":100}`},
		Pair{Key: "sideQuests", Value: `{"open":3}`},
	)

	got := Diff(prev, cur)
	want := []ChangeEvent{
		{Key: "dailyQuests", Type: Updated, Previous: `{"done":1}`, Current: `{"done":2}`},
		{Key: "sideQuests", Type: Added, Current: `{"open":3}`},
		{Key: "activeMatch:q1", Type: Removed, Previous: `{"turn":1}`},
	}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("unexpected events.\nwant: %#v\ngot:  %#v", want, got)
	}
}

func TestDiffEventOrderFollowsSnapshotOrder(t *testing.T) {
	prev := snap()
	cur := snap(
		Pair{Key: "welcomeActivity", Value: `{"s":1}`},
		Pair{Key: "dailyQuests", Value: `{"s":2}`},
		Pair{Key: "lp", Value: `{"s":3}`},
	)

	got := Diff(prev, cur)
	keys := make([]string, len(got))
	for i, ev := range got {
		keys[i] = ev.Key
	}
	want := []string{"welcomeActivity", "dailyQuests", "lp"}
	if !reflect.DeepEqual(keys, want) {
		t.Fatalf("event order does not follow snapshot order.\nwant: %v\ngot:  %v", want, keys)
	}
}

func TestEqual(t *testing.T) {
	cases := []struct {
		name string
		a, b Resource
		want bool
	}{
		{"same raw", `{"a":1}`, `{"a":1}`, true},
		{"different value", `{"a":1}`, `{"a":2}`, false},
		{"whitespace only", `{"a":1}`, `{"a": 1}`, true},
		{"key order", `{"a":1,"b":2}`, `{"b":2,"a":1}`, true},
		{"same version wins over body", `{"version":4,"x":1}`, `{"version":4,"x":2}`, true},
		{"different version", `{"version":4,"x":1}`, `{"version":5,"x":1}`, false},
		{"version on one side only", `{"version":4}`, `{"x":1}`, false},
		{"non-JSON fallback", `oops`, `oops`, true},
		{"non-JSON mismatch", `oops`, `nope`, false},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := Equal(tc.a, tc.b); got != tc.want {
				t.Fatalf("Equal(%q, %q) = %v, want %v", tc.a, tc.b, got, tc.want)
			}
		})
	}
}

func TestSnapshotKeysPreserveOrderAndDeduplicate(t *testing.T) {
	s := snap(
		Pair{Key: "b", Value: `1`},
		Pair{Key: "a", Value: `2`},
		Pair{Key: "b", Value: `3`},
	)

	if got, want := s.Keys(), []string{"b", "a"}; !reflect.DeepEqual(got, want) {
		t.Fatalf("unexpected keys: want %v, got %v", want, got)
	}
	if r, _ := s.Get("b"); r != `3` {
		t.Fatalf("duplicate key should keep the later value, got %q", r)
	}
	if s.Len() != 2 {
		t.Fatalf("unexpected length: %d", s.Len())
	}
}
