package reading

import "time"

// Story is the local representation of one remote entry as of its last reconciliation.
type Story struct {
	ID     string `json:"id"`
	FeedID string `json:"feed_id"`
	// EntryID is the entry's position in the document when the story was created.
	// It is not stable across refreshes.
	EntryID     int        `json:"entry_id"`
	Title       string     `json:"title"`
	Link        string     `json:"link"`
	Description string     `json:"description"`
	Published   *time.Time `json:"published,omitempty"`
	LastUpdate  time.Time  `json:"last_update"`
	Read        bool       `json:"read"`

	// LastReadState is the read flag before the latest MarkRead. Not persisted.
	LastReadState bool `json:"last_read_state"`
}

// CountUnread returns the number of stories not yet read.
func CountUnread(stories []Story) int {
	n := 0
	for _, s := range stories {
		if !s.Read {
			n++
		}
	}
	return n
}
