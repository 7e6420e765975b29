package usecase

import (
	"context"
	"fmt"

	"github.com/tesso57/feedkeep/internal/domain/reading"
	"github.com/tesso57/feedkeep/internal/domain/subscription"
)

// Get lists a feed's stories in entry order.
func (r *Reader) Get(ctx context.Context, feedID string) ([]subscription.StorySummary, error) {
	stories, err := r.Store.Stories(ctx, feedID)
	if err != nil {
		return nil, fmt.Errorf("list stories for %s: %w", feedID, err)
	}
	out := make([]subscription.StorySummary, 0, len(stories))
	for _, s := range stories {
		out = append(out, subscription.StorySummary{ID: s.ID, Title: s.Title, Read: s.Read})
	}
	return out, nil
}

// UnreadCount returns the number of unread stories of a feed.
func (r *Reader) UnreadCount(ctx context.Context, feedID string) (int, error) {
	unread, err := r.Store.UnreadStories(ctx, feedID)
	if err != nil {
		return 0, fmt.Errorf("count unread for %s: %w", feedID, err)
	}
	return len(unread), nil
}

// Story returns a single rendered story without changing its state.
func (r *Reader) Story(ctx context.Context, storyID string) (reading.Story, error) {
	story, err := r.Store.StoryByID(ctx, storyID)
	if err != nil {
		return reading.Story{}, fmt.Errorf("story %s: %w", storyID, err)
	}
	return r.render(story), nil
}

// MarkRead marks a story as read. The returned story carries the previous
// flag in LastReadState so callers can adjust counters.
func (r *Reader) MarkRead(ctx context.Context, storyID string) (reading.Story, error) {
	story, err := r.Store.StoryByID(ctx, storyID)
	if err != nil {
		return reading.Story{}, fmt.Errorf("story %s: %w", storyID, err)
	}
	story.LastReadState = story.Read
	story.Read = true
	if err := r.Store.UpdateStory(ctx, story); err != nil {
		return reading.Story{}, fmt.Errorf("update story %s: %w", storyID, err)
	}
	return r.render(story), nil
}

// MarkUnread marks a story as unread.
func (r *Reader) MarkUnread(ctx context.Context, storyID string) error {
	story, err := r.Store.StoryByID(ctx, storyID)
	if err != nil {
		return fmt.Errorf("story %s: %w", storyID, err)
	}
	story.Read = false
	if err := r.Store.UpdateStory(ctx, story); err != nil {
		return fmt.Errorf("update story %s: %w", storyID, err)
	}
	return nil
}

// MarkAllRead marks every unread story of a feed as read and returns how many changed.
func (r *Reader) MarkAllRead(ctx context.Context, feedID string) (int, error) {
	if _, err := r.Store.FeedByID(ctx, feedID); err != nil {
		return 0, fmt.Errorf("feed %s: %w", feedID, err)
	}
	unread, err := r.Store.UnreadStories(ctx, feedID)
	if err != nil {
		return 0, fmt.Errorf("list unread for %s: %w", feedID, err)
	}
	for i, s := range unread {
		s.Read = true
		if err := r.Store.UpdateStory(ctx, s); err != nil {
			return i, fmt.Errorf("update story %s: %w", s.ID, err)
		}
	}
	return len(unread), nil
}

func (r *Reader) render(story reading.Story) reading.Story {
	if r.Renderer != nil {
		story.Description = r.Renderer.Render(story.Description)
	}
	return story
}
