// Package reading defines core reading models.
package reading

import (
	"time"
)

// Feed represents a subscribed remote feed tracked locally.
type Feed struct {
	ID    string
	URL   string
	Title string
	// LastUpdate is the most recent known remote change. It only moves forward.
	LastUpdate time.Time
}

// RemoteEntry is a single item of a fetched document. It is never persisted as-is.
type RemoteEntry struct {
	Title     string
	Link      string
	Content   string
	Summary   string
	Published *time.Time
	Updated   *time.Time
}

// FeedDocument is the parsed form of a remote feed.
type FeedDocument struct {
	Title       string
	UpdatedAt   *time.Time
	PublishedAt *time.Time
	Entries     []RemoteEntry
}

// Timestamp resolves the document's update instant.
// It prefers the feed-level updated time, then the feed-level published time,
// then the newest entry timestamp. The result is normalized to UTC.
func (d FeedDocument) Timestamp() (time.Time, bool) {
	if d.UpdatedAt != nil && !d.UpdatedAt.IsZero() {
		return d.UpdatedAt.UTC(), true
	}
	if d.PublishedAt != nil && !d.PublishedAt.IsZero() {
		return d.PublishedAt.UTC(), true
	}

	var newest time.Time
	for _, e := range d.Entries {
		for _, ts := range []*time.Time{e.Updated, e.Published} {
			if ts != nil && ts.After(newest) {
				newest = *ts
			}
		}
	}
	if newest.IsZero() {
		return time.Time{}, false
	}
	return newest.UTC(), true
}

// IsStale reports whether remote is strictly newer than the feed's recorded update.
func (f Feed) IsStale(remote time.Time) bool {
	return remote.After(f.LastUpdate)
}
