// Package subscription defines feed subscription models.
package subscription

// Subscription is a subscribed feed with its unread counter.
type Subscription struct {
	ID     string `json:"id"`
	Title  string `json:"title"`
	Unread int    `json:"counter"`
}

// Added describes a newly created subscription.
type Added struct {
	FeedID string `json:"feed_id"`
	Title  string `json:"title"`
	// Count is the number of entries in the fetched document. Entries sharing
	// an identity key are stored once, so it can exceed the stored stories.
	Count int `json:"counter"`
}

// StorySummary is the listing view of a single story.
type StorySummary struct {
	ID    string `json:"id"`
	Title string `json:"title"`
	Read  bool   `json:"read"`
}
