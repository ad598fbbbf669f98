package bus

import "strings"

// Topic names consumed by UI collaborators. Session-scoped activities use
// "<activityType>Game" addressed with a session id; everything else is a
// plain process-wide topic.
const (
	TopicDailyQuests = "dailyQuests"
	TopicSideQuests  = "sideQuests"
	TopicLP          = "lp"
	TopicWelcome     = "welcome"
	TopicLinkedGame  = "linkedGame"
)

// Address is a resolved delivery target: a topic, optionally scoped to one
// activity session.
type Address struct {
	Topic     string
	SessionID string
}

// staticTopics maps plain resource keys to their topic.
var staticTopics = map[string]string{
	"dailyQuests":     TopicDailyQuests,
	"sideQuests":      TopicSideQuests,
	"lp":              TopicLP,
	"welcomeActivity": TopicWelcome,
}

// prefixTopics maps session-scoped resource key prefixes ("<prefix>:<id>")
// to their topic.
var prefixTopics = map[string]string{
	"activeMatch": TopicLinkedGame,
}

// Resolve maps a resource key to zero or more delivery addresses.
//
// Plain keys resolve through staticTopics. Keys of the form "<prefix>:<id>"
// resolve through prefixTopics with the session id attached; a prefix ending
// in "Game" (e.g. "classicQuizGame:q1") is already a topic name and passes
// through unchanged. Unknown keys resolve to nothing, which the bus logs at
// debug level.
func Resolve(resourceKey string) []Address {
	if topic, ok := staticTopics[resourceKey]; ok {
		return []Address{{Topic: topic}}
	}

	i := strings.IndexByte(resourceKey, ':')
	if i <= 0 || i == len(resourceKey)-1 {
		return nil
	}
	prefix, sessionID := resourceKey[:i], resourceKey[i+1:]

	if topic, ok := prefixTopics[prefix]; ok {
		return []Address{{Topic: topic, SessionID: sessionID}}
	}
	if strings.HasSuffix(prefix, "Game") {
		return []Address{{Topic: prefix, SessionID: sessionID}}
	}
	return nil
}
