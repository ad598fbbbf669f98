package snapshot

import (
	"encoding/json"
	"reflect"

	"github.com/tidwall/gjson"
)

// Diff compares two snapshots and returns the set of change events.
//
// Events for keys present in current follow the snapshot's key order;
// removal events for keys that vanished from previous follow previous'
// key order and come last. A nil previous snapshot treats every resource
// in current as added. Neither input is mutated.
func Diff(previous, current *PollSnapshot) []ChangeEvent {
	var events []ChangeEvent

	for _, key := range current.keys {
		cur := current.resources[key]
		if previous == nil {
			events = append(events, ChangeEvent{Key: key, Type: Added, Current: cur})
			continue
		}
		prev, existed := previous.resources[key]
		if !existed {
			events = append(events, ChangeEvent{Key: key, Type: Added, Current: cur})
			continue
		}
		if !Equal(prev, cur) {
			events = append(events, ChangeEvent{Key: key, Type: Updated, Previous: prev, Current: cur})
		}
	}

	if previous != nil {
		for _, key := range previous.keys {
			if _, stillThere := current.resources[key]; !stillThere {
				events = append(events, ChangeEvent{Key: key, Type: Removed, Previous: previous.resources[key]})
			}
		}
	}

	return events
}

// Equal reports whether two resource payloads are the same under the
// resource equality rule: when both payloads carry a numeric "version"
// field the versions alone are compared (cheap path for large resources),
// otherwise the decoded JSON values are compared deeply.
func Equal(prev, cur Resource) bool {
	pv := gjson.Get(string(prev), "version")
	cv := gjson.Get(string(cur), "version")
	if pv.Type == gjson.Number && cv.Type == gjson.Number {
		return pv.Num == cv.Num
	}

	var pd, cd interface{}
	if err := json.Unmarshal([]byte(prev), &pd); err != nil {
		return prev == cur
	}
	if err := json.Unmarshal([]byte(cur), &cd); err != nil {
		return prev == cur
	}
	return reflect.DeepEqual(pd, cd)
}
