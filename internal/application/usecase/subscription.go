package usecase

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/tesso57/feedkeep/internal/domain/reading"
	"github.com/tesso57/feedkeep/internal/domain/subscription"
)

// Reader is the subscriptions manager. It handles new feeds, refreshes and
// read/unread state.
type Reader struct {
	Store        Store
	Source       FeedSource
	Refresher    *RefreshService
	Renderer     Renderer
	Identity     reading.IdentityKey
	FetchTimeout time.Duration
	Logger       *slog.Logger
}

// NewReader constructs a Reader and its refresh service.
func NewReader(source FeedSource, store Store, renderer Renderer, opt RefreshOptions) *Reader {
	return new(Reader{
		Store:        store,
		Source:       source,
		Refresher:    NewRefreshService(source, store, opt),
		Renderer:     renderer,
		Identity:     opt.Identity,
		FetchTimeout: opt.FetchTimeout,
		Logger:       opt.Logger,
	})
}

// Add subscribes to the feed at url and stores its current entries.
func (r *Reader) Add(ctx context.Context, url string) (subscription.Added, error) {
	trimmed, err := validateFeedURL(url)
	if err != nil {
		return subscription.Added{}, err
	}

	doc, err := fetchDocument(ctx, r.Source, r.FetchTimeout, trimmed)
	if err != nil {
		return subscription.Added{}, err
	}
	title := strings.TrimSpace(doc.Title)
	if title == "" {
		return subscription.Added{}, fmt.Errorf("%s: %w", trimmed, reading.ErrBadFeed)
	}

	if _, err := r.Store.FeedByTitle(ctx, title); err == nil {
		return subscription.Added{}, fmt.Errorf("%q: %w", title, reading.ErrAlreadySubscribed)
	} else if !errors.Is(err, reading.ErrNotFound) {
		return subscription.Added{}, fmt.Errorf("lookup feed %q: %w", title, err)
	}

	lastUpdate, ok := doc.Timestamp()
	if !ok {
		return subscription.Added{}, fmt.Errorf("%s: %w", trimmed, reading.ErrParseError)
	}
	stories, err := reading.Reconcile("", nil, doc.Entries, r.Identity)
	if err != nil {
		return subscription.Added{}, fmt.Errorf("%s: %w", trimmed, err)
	}

	feedID, err := r.Store.AddFeed(ctx, reading.Feed{URL: trimmed, Title: title, LastUpdate: lastUpdate})
	if err != nil {
		return subscription.Added{}, fmt.Errorf("add feed %q: %w", title, err)
	}
	for i := range stories {
		stories[i].FeedID = feedID
	}
	if err := addStories(ctx, r.Store, stories); err != nil {
		if rmErr := r.Store.RemoveFeed(ctx, feedID); rmErr != nil {
			r.logger().Error("rollback of partially added feed failed", "feed_id", feedID, "error", rmErr)
		}
		return subscription.Added{}, fmt.Errorf("store stories for %q: %w", title, err)
	}

	r.logger().Info("feed added", "feed_id", feedID, "title", title, "stories", len(stories))
	return subscription.Added{FeedID: feedID, Title: title, Count: len(doc.Entries)}, nil
}

// Delete removes a feed and its stories.
func (r *Reader) Delete(ctx context.Context, feedID string) error {
	if _, err := r.Store.FeedByID(ctx, feedID); err != nil {
		return fmt.Errorf("feed %s: %w", feedID, err)
	}
	if err := r.Store.RemoveFeed(ctx, feedID); err != nil {
		return fmt.Errorf("remove feed %s: %w", feedID, err)
	}
	r.logger().Info("feed removed", "feed_id", feedID)
	return nil
}

// Subscriptions lists every feed with its unread counter.
func (r *Reader) Subscriptions(ctx context.Context) ([]subscription.Subscription, error) {
	feeds, err := r.Store.Feeds(ctx)
	if err != nil {
		return nil, fmt.Errorf("list feeds: %w", err)
	}
	subs := make([]subscription.Subscription, 0, len(feeds))
	for _, f := range feeds {
		unread, err := r.UnreadCount(ctx, f.ID)
		if err != nil {
			return nil, err
		}
		subs = append(subs, subscription.Subscription{ID: f.ID, Title: f.Title, Unread: unread})
	}
	return subs, nil
}

// RefreshAll refreshes every stale feed.
func (r *Reader) RefreshAll(ctx context.Context) (RefreshReport, error) {
	return r.Refresher.RefreshAll(ctx)
}

func validateFeedURL(url string) (string, error) {
	trimmed := strings.TrimSpace(url)
	if trimmed == "" {
		return "", fmt.Errorf("feed url is empty")
	}
	if strings.ContainsAny(trimmed, " \t\r\n") {
		return "", fmt.Errorf("feed url contains whitespace")
	}
	return trimmed, nil
}

func (r *Reader) logger() *slog.Logger {
	if r.Logger != nil {
		return r.Logger
	}
	return slog.Default()
}
