package storage

import "time"

// JournalEntry is one recorded change event, for auditing or printing.
type JournalEntry struct {
	OccurredAt time.Time

	ResourceKey string
	ChangeType  string // added | updated | removed
	Previous    string
	Current     string
}
