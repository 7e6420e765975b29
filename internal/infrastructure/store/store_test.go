package store

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tesso57/feedkeep/internal/application/settings"
	"github.com/tesso57/feedkeep/internal/domain/reading"
)

func openSQLite(t *testing.T) *Store {
	t.Helper()
	s, err := OpenSQLite(context.Background(), filepath.Join(t.TempDir(), "data", "feedkeep.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

// stores returns every engine available to the test run. PostgreSQL is
// exercised only when FEEDKEEP_TEST_POSTGRES_DSN is set.
func stores(t *testing.T) map[string]func(t *testing.T) *Store {
	t.Helper()
	out := map[string]func(t *testing.T) *Store{"sqlite": openSQLite}
	if dsn := os.Getenv("FEEDKEEP_TEST_POSTGRES_DSN"); dsn != "" {
		out["postgres"] = func(t *testing.T) *Store {
			t.Helper()
			s, err := OpenPostgres(context.Background(), dsn)
			require.NoError(t, err)
			for _, table := range []string{"stories", "feeds", "settings"} {
				_, err := s.db.Exec(`DELETE FROM ` + table)
				require.NoError(t, err)
			}
			t.Cleanup(func() { _ = s.Close() })
			return s
		}
	}
	return out
}

func forEachStore(t *testing.T, fn func(t *testing.T, s *Store)) {
	for name, open := range stores(t) {
		t.Run(name, func(t *testing.T) {
			fn(t, open(t))
		})
	}
}

var (
	jan1 = time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	jan2 = time.Date(2026, 1, 2, 0, 0, 0, 0, time.UTC)
)

func story(feedID string, entry int, title string, read bool) reading.Story {
	return reading.Story{
		FeedID:      feedID,
		EntryID:     entry,
		Title:       title,
		Link:        "https://example.com/" + title,
		Description: "<p>" + title + "</p>",
		LastUpdate:  jan1,
		Read:        read,
	}
}

func TestStore_Feeds(t *testing.T) {
	forEachStore(t, func(t *testing.T, s *Store) {
		ctx := context.Background()

		id, err := s.AddFeed(ctx, reading.Feed{URL: "https://example.com/rss", Title: "Example", LastUpdate: jan1})
		require.NoError(t, err)
		require.NotEmpty(t, id)

		_, err = s.AddFeed(ctx, reading.Feed{URL: "https://mirror.example.com/rss", Title: "Example", LastUpdate: jan1})
		require.ErrorIs(t, err, reading.ErrAlreadySubscribed)

		other, err := s.AddFeed(ctx, reading.Feed{URL: "https://other.example.com/rss", Title: "Other", LastUpdate: jan2})
		require.NoError(t, err)

		feeds, err := s.Feeds(ctx)
		require.NoError(t, err)
		require.Len(t, feeds, 2)
		assert.Equal(t, id, feeds[0].ID)
		assert.Equal(t, other, feeds[1].ID)

		got, err := s.FeedByID(ctx, id)
		require.NoError(t, err)
		assert.Equal(t, "https://example.com/rss", got.URL)
		assert.True(t, got.LastUpdate.Equal(jan1))

		byTitle, err := s.FeedByTitle(ctx, "Other")
		require.NoError(t, err)
		assert.Equal(t, other, byTitle.ID)

		_, err = s.FeedByID(ctx, "missing")
		require.ErrorIs(t, err, reading.ErrNotFound)
		_, err = s.FeedByTitle(ctx, "Missing")
		require.ErrorIs(t, err, reading.ErrNotFound)
	})
}

func TestStore_UpdateFeedLastUpdateOnlyMovesForward(t *testing.T) {
	forEachStore(t, func(t *testing.T, s *Store) {
		ctx := context.Background()
		id, err := s.AddFeed(ctx, reading.Feed{URL: "u", Title: "T", LastUpdate: jan1})
		require.NoError(t, err)

		require.NoError(t, s.UpdateFeedLastUpdate(ctx, id, jan2))
		require.NoError(t, s.UpdateFeedLastUpdate(ctx, id, jan1))

		got, err := s.FeedByID(ctx, id)
		require.NoError(t, err)
		assert.True(t, got.LastUpdate.Equal(jan2), "LastUpdate = %v", got.LastUpdate)

		require.ErrorIs(t, s.UpdateFeedLastUpdate(ctx, "missing", jan2), reading.ErrNotFound)
	})
}

func TestStore_Stories(t *testing.T) {
	forEachStore(t, func(t *testing.T, s *Store) {
		ctx := context.Background()
		feedID, err := s.AddFeed(ctx, reading.Feed{URL: "u", Title: "T", LastUpdate: jan1})
		require.NoError(t, err)

		published := time.Date(2025, 12, 31, 12, 0, 0, 0, time.UTC)
		a := story(feedID, 1, "B", false)
		a.Published = &published
		bID, err := s.AddStory(ctx, a)
		require.NoError(t, err)
		aID, err := s.AddStory(ctx, story(feedID, 0, "A", true))
		require.NoError(t, err)

		all, err := s.Stories(ctx, feedID)
		require.NoError(t, err)
		require.Len(t, all, 2)
		assert.Equal(t, aID, all[0].ID)
		assert.Equal(t, bID, all[1].ID)
		assert.True(t, all[0].Read)
		require.NotNil(t, all[1].Published)
		assert.True(t, all[1].Published.Equal(published))
		assert.Nil(t, all[0].Published)
		assert.True(t, all[1].LastUpdate.Equal(jan1))

		unread, err := s.UnreadStories(ctx, feedID)
		require.NoError(t, err)
		require.Len(t, unread, 1)
		assert.Equal(t, "B", unread[0].Title)

		got, err := s.StoryByID(ctx, bID)
		require.NoError(t, err)
		assert.Equal(t, "<p>B</p>", got.Description)

		byTitle, err := s.StoryByTitle(ctx, "A")
		require.NoError(t, err)
		assert.Equal(t, aID, byTitle.ID)

		got.Read = true
		require.NoError(t, s.UpdateStory(ctx, got))
		unread, err = s.UnreadStories(ctx, feedID)
		require.NoError(t, err)
		assert.Empty(t, unread)

		require.NoError(t, s.RemoveStory(ctx, aID))
		require.ErrorIs(t, s.RemoveStory(ctx, aID), reading.ErrNotFound)
		_, err = s.StoryByID(ctx, aID)
		require.ErrorIs(t, err, reading.ErrNotFound)

		missing := story(feedID, 9, "Z", false)
		missing.ID = "missing"
		require.ErrorIs(t, s.UpdateStory(ctx, missing), reading.ErrNotFound)
	})
}

func TestStore_UpdateStoryReadToggleKeepsFields(t *testing.T) {
	forEachStore(t, func(t *testing.T, s *Store) {
		ctx := context.Background()
		feedID, err := s.AddFeed(ctx, reading.Feed{URL: "u", Title: "T", LastUpdate: jan1})
		require.NoError(t, err)

		published := time.Date(2025, 12, 31, 12, 0, 0, 123456789, time.UTC)
		dated := story(feedID, 3, "Dated", false)
		dated.Published = &published
		dated.LastUpdate = jan2.Add(987654321)

		for _, st := range []reading.Story{dated, story(feedID, 4, "Undated", false)} {
			id, err := s.AddStory(ctx, st)
			require.NoError(t, err)
			before, err := s.StoryByID(ctx, id)
			require.NoError(t, err)

			marked := before
			marked.Read = true
			require.NoError(t, s.UpdateStory(ctx, marked))
			marked.Read = false
			require.NoError(t, s.UpdateStory(ctx, marked))

			after, err := s.StoryByID(ctx, id)
			require.NoError(t, err)
			assert.Equal(t, before, after, st.Title)
		}
	})
}

func TestStore_RemoveFeedCascades(t *testing.T) {
	forEachStore(t, func(t *testing.T, s *Store) {
		ctx := context.Background()
		feedID, err := s.AddFeed(ctx, reading.Feed{URL: "u", Title: "T", LastUpdate: jan1})
		require.NoError(t, err)
		keepID, err := s.AddFeed(ctx, reading.Feed{URL: "v", Title: "Keep", LastUpdate: jan1})
		require.NoError(t, err)

		storyID, err := s.AddStory(ctx, story(feedID, 0, "A", false))
		require.NoError(t, err)
		_, err = s.AddStory(ctx, story(keepID, 0, "K", false))
		require.NoError(t, err)

		require.NoError(t, s.RemoveFeed(ctx, feedID))

		stories, err := s.Stories(ctx, feedID)
		require.NoError(t, err)
		assert.Empty(t, stories)
		_, err = s.StoryByID(ctx, storyID)
		require.ErrorIs(t, err, reading.ErrNotFound)

		kept, err := s.Stories(ctx, keepID)
		require.NoError(t, err)
		assert.Len(t, kept, 1)

		require.ErrorIs(t, s.RemoveFeed(ctx, feedID), reading.ErrNotFound)
	})
}

func TestStore_ReplaceStories(t *testing.T) {
	forEachStore(t, func(t *testing.T, s *Store) {
		ctx := context.Background()
		feedID, err := s.AddFeed(ctx, reading.Feed{URL: "u", Title: "T", LastUpdate: jan1})
		require.NoError(t, err)
		_, err = s.AddStory(ctx, story(feedID, 0, "A", true))
		require.NoError(t, err)
		_, err = s.AddStory(ctx, story(feedID, 1, "Old", false))
		require.NoError(t, err)

		next := []reading.Story{story("", 0, "A", false), story("", 1, "C", true)}
		require.NoError(t, s.ReplaceStories(ctx, feedID, next, jan2, reading.TitleIdentity))

		stories, err := s.Stories(ctx, feedID)
		require.NoError(t, err)
		require.Len(t, stories, 2)
		assert.Equal(t, "A", stories[0].Title)
		assert.True(t, stories[0].Read, "read flag of the replaced A is kept")
		assert.Equal(t, "C", stories[1].Title)
		assert.False(t, stories[1].Read, "C was never read in the store")
		assert.Equal(t, feedID, stories[1].FeedID)
		assert.False(t, next[0].Read, "caller's slice is not modified")

		feed, err := s.FeedByID(ctx, feedID)
		require.NoError(t, err)
		assert.True(t, feed.LastUpdate.Equal(jan2))

		// A feed already at the timestamp is left alone.
		err = s.ReplaceStories(ctx, feedID, next[:1], jan2, reading.TitleIdentity)
		require.ErrorIs(t, err, reading.ErrAlreadyCurrent)
		stories, err = s.Stories(ctx, feedID)
		require.NoError(t, err)
		assert.Len(t, stories, 2)

		require.ErrorIs(t, s.ReplaceStories(ctx, "missing", next, jan2, nil), reading.ErrNotFound)
	})
}

func TestStore_ReplaceStoriesOnceAcrossHandles(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "feedkeep.db")
	first, err := OpenSQLite(ctx, path)
	require.NoError(t, err)
	t.Cleanup(func() { _ = first.Close() })
	second, err := OpenSQLite(ctx, path)
	require.NoError(t, err)
	t.Cleanup(func() { _ = second.Close() })

	feedID, err := first.AddFeed(ctx, reading.Feed{URL: "u", Title: "T", LastUpdate: jan1})
	require.NoError(t, err)
	_, err = first.AddStory(ctx, story(feedID, 0, "A", false))
	require.NoError(t, err)

	next := []reading.Story{story("", 0, "A", false), story("", 1, "B", false)}
	errs := make([]error, 2)
	var wg sync.WaitGroup
	for i, s := range []*Store{first, second} {
		wg.Go(func() {
			errs[i] = s.ReplaceStories(ctx, feedID, next, jan2, reading.TitleIdentity)
		})
	}
	wg.Wait()

	var committed, current int
	for _, err := range errs {
		switch {
		case err == nil:
			committed++
		case errors.Is(err, reading.ErrAlreadyCurrent):
			current++
		default:
			t.Fatalf("ReplaceStories() error = %v", err)
		}
	}
	assert.Equal(t, 1, committed)
	assert.Equal(t, 1, current)

	stories, err := second.Stories(ctx, feedID)
	require.NoError(t, err)
	assert.Len(t, stories, 2)
}

func TestStore_ReplaceStoriesRollsBack(t *testing.T) {
	s := openSQLite(t)
	ctx := context.Background()
	feedID, err := s.AddFeed(ctx, reading.Feed{URL: "u", Title: "T", LastUpdate: jan1})
	require.NoError(t, err)
	_, err = s.AddStory(ctx, story(feedID, 0, "Old", false))
	require.NoError(t, err)

	cctx, cancel := context.WithCancel(ctx)
	cancel()
	require.Error(t, s.ReplaceStories(cctx, feedID, []reading.Story{story("", 0, "New", false)}, jan2, nil))

	stories, err := s.Stories(ctx, feedID)
	require.NoError(t, err)
	require.Len(t, stories, 1)
	assert.Equal(t, "Old", stories[0].Title)

	feed, err := s.FeedByID(ctx, feedID)
	require.NoError(t, err)
	assert.True(t, feed.LastUpdate.Equal(jan1))
}

func TestStore_Settings(t *testing.T) {
	forEachStore(t, func(t *testing.T, s *Store) {
		ctx := context.Background()

		_, ok, err := s.Setting(ctx, "acceptable_elements")
		require.NoError(t, err)
		assert.False(t, ok)

		require.NoError(t, s.SetSetting(ctx, "acceptable_elements", `["iframe"]`))
		require.NoError(t, s.SetSetting(ctx, "acceptable_elements", `["video"]`))

		v, ok, err := s.Setting(ctx, "acceptable_elements")
		require.NoError(t, err)
		assert.True(t, ok)
		assert.Equal(t, `["video"]`, v)
	})
}

func TestStore_ReopenKeepsData(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "feedkeep.db")

	s, err := Open(ctx, settings.StoreConfig{Driver: "sqlite", Path: path})
	require.NoError(t, err)
	assert.Equal(t, "sqlite", s.Driver())
	_, err = s.AddFeed(ctx, reading.Feed{URL: "u", Title: "T", LastUpdate: jan1})
	require.NoError(t, err)
	require.NoError(t, s.Close())

	s, err = Open(ctx, settings.StoreConfig{Driver: "sqlite", Path: path})
	require.NoError(t, err)
	defer func() { _ = s.Close() }()
	feeds, err := s.Feeds(ctx)
	require.NoError(t, err)
	assert.Len(t, feeds, 1)
}

func TestOpen_Errors(t *testing.T) {
	ctx := context.Background()
	_, err := Open(ctx, settings.StoreConfig{Driver: "mysql"})
	require.Error(t, err)
	_, err = Open(ctx, settings.StoreConfig{Driver: "sqlite"})
	require.Error(t, err)
	_, err = Open(ctx, settings.StoreConfig{Driver: "postgres"})
	require.Error(t, err)
}

func TestDialect_Rebind(t *testing.T) {
	q := `UPDATE feeds SET last_update = ? WHERE id = ? AND last_update < ?`
	assert.Equal(t, q, sqliteDialect.rebind(q))
	assert.Equal(t, `UPDATE feeds SET last_update = $1 WHERE id = $2 AND last_update < $3`, postgresDialect.rebind(q))
}
