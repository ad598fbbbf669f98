package flags

import (
	"strings"

	"github.com/tidwall/gjson"

	"github.com/duetlabs/pairsync/pkg/snapshot"
)

// SeenRecords answers whether the local user has already viewed the results
// of a session. Backed by the app's local completion records.
type SeenRecords interface {
	HasSeenResults(activityType, sessionID string) bool
}

// Detector performs the caller-side inference the coordinator deliberately
// does not: it inspects session-scoped change events and marks results
// pending when the payload shows both partners completed a session whose
// results the local user has not yet seen.
//
// Payload fields read: "activityType", "youCompleted", "partnerCompleted".
type Detector struct {
	coord *Coordinator
	seen  SeenRecords
}

func NewDetector(coord *Coordinator, seen SeenRecords) *Detector {
	return &Detector{coord: coord, seen: seen}
}

// Inspect examines one change event. Non-session resources and removal
// events are ignored.
func (d *Detector) Inspect(ev snapshot.ChangeEvent) {
	if ev.Type == snapshot.Removed {
		return
	}
	sessionID := sessionIDFromKey(ev.Key)
	if sessionID == "" {
		return
	}

	payload := string(ev.Current)
	activityType := gjson.Get(payload, "activityType").Str
	if activityType == "" {
		return
	}
	if !gjson.Get(payload, "youCompleted").Bool() || !gjson.Get(payload, "partnerCompleted").Bool() {
		return
	}
	if d.seen != nil && d.seen.HasSeenResults(activityType, sessionID) {
		return
	}

	d.coord.MarkPending(activityType, sessionID)
}

func sessionIDFromKey(key string) string {
	i := strings.IndexByte(key, ':')
	if i <= 0 || i == len(key)-1 {
		return ""
	}
	return key[i+1:]
}
