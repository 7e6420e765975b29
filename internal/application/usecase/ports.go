// Package usecase contains application-level services.
package usecase

import (
	"context"
	"time"

	"github.com/tesso57/feedkeep/internal/domain/reading"
)

// FeedSource abstracts fetching and parsing a remote feed document.
type FeedSource interface {
	Parse(ctx context.Context, url string) (reading.FeedDocument, error)
}

// FeedRepository abstracts feed persistence.
type FeedRepository interface {
	Feeds(ctx context.Context) ([]reading.Feed, error)
	FeedByID(ctx context.Context, id string) (reading.Feed, error)
	FeedByTitle(ctx context.Context, title string) (reading.Feed, error)
	AddFeed(ctx context.Context, feed reading.Feed) (string, error)
	// RemoveFeed deletes the feed and all of its stories.
	RemoveFeed(ctx context.Context, id string) error
	UpdateFeedLastUpdate(ctx context.Context, id string, lastUpdate time.Time) error
}

// StoryRepository abstracts story persistence.
type StoryRepository interface {
	Stories(ctx context.Context, feedID string) ([]reading.Story, error)
	StoryByID(ctx context.Context, id string) (reading.Story, error)
	StoryByTitle(ctx context.Context, title string) (reading.Story, error)
	AddStory(ctx context.Context, story reading.Story) (string, error)
	RemoveStory(ctx context.Context, id string) error
	UpdateStory(ctx context.Context, story reading.Story) error
	UnreadStories(ctx context.Context, feedID string) ([]reading.Story, error)
}

// SettingsRepository stores small configuration values.
type SettingsRepository interface {
	Setting(ctx context.Context, key string) (string, bool, error)
	SetSetting(ctx context.Context, key, value string) error
}

// Store is the full persistence capability used by the reader.
type Store interface {
	FeedRepository
	StoryRepository
	SettingsRepository
}

// StoryReplacer is implemented by stores that can swap a feed's stories and
// advance its last update in one transaction.
//
// ReplaceStories advances last_update first and returns reading.ErrAlreadyCurrent,
// leaving the stories untouched, when the feed is already at or past lastUpdate.
// Read flags of the incoming stories are taken from the rows being replaced,
// matched with key, inside the same transaction.
type StoryReplacer interface {
	ReplaceStories(ctx context.Context, feedID string, stories []reading.Story, lastUpdate time.Time, key reading.IdentityKey) error
}

// Renderer prepares stored entry markup for presentation.
type Renderer interface {
	Render(html string) string
}

// RefreshObserver receives per-feed refresh outcomes.
type RefreshObserver interface {
	FeedRefreshed(feedID string, stories int, took time.Duration)
	FeedSkipped(feedID string)
	FeedFailed(feedID string, reason string)
}

type nopObserver struct{}

func (nopObserver) FeedRefreshed(string, int, time.Duration) {}
func (nopObserver) FeedSkipped(string)                       {}
func (nopObserver) FeedFailed(string, string)                {}
