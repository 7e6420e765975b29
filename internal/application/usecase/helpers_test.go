package usecase

import (
	"context"
	"fmt"
	"slices"
	"sync"
	"sync/atomic"
	"time"

	"github.com/stretchr/testify/mock"
	"github.com/tesso57/feedkeep/internal/domain/reading"
)

func at(s string) *time.Time {
	t, err := time.Parse(time.RFC3339, s)
	if err != nil {
		panic(err)
	}
	return &t
}

func doc(title, updated string, titles ...string) reading.FeedDocument {
	d := reading.FeedDocument{Title: title, UpdatedAt: at(updated)}
	for _, t := range titles {
		d.Entries = append(d.Entries, reading.RemoteEntry{
			Title:   t,
			Link:    "https://example.com/" + t,
			Summary: "about " + t,
			Updated: at(updated),
		})
	}
	return d
}

// stubSource serves canned documents unless mock expectations are registered.
type stubSource struct {
	mock.Mock

	mu    sync.Mutex
	docs  map[string]reading.FeedDocument
	errs  map[string]error
	calls map[string]int
	delay time.Duration
	// barrier, when set, holds each fetch until every expected fetch arrived.
	barrier *sync.WaitGroup

	inFlight    atomic.Int32
	maxInFlight atomic.Int32
}

func newStubSource() *stubSource {
	return &stubSource{
		docs:  make(map[string]reading.FeedDocument),
		errs:  make(map[string]error),
		calls: make(map[string]int),
	}
}

func (s *stubSource) set(url string, d reading.FeedDocument) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.docs[url] = d
	delete(s.errs, url)
}

func (s *stubSource) fail(url string, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.errs[url] = err
}

func (s *stubSource) callsFor(url string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls[url]
}

func (s *stubSource) Parse(ctx context.Context, url string) (reading.FeedDocument, error) {
	if len(s.ExpectedCalls) > 0 {
		args := s.Called(url)
		d, _ := args.Get(0).(reading.FeedDocument)
		return d, args.Error(1)
	}

	n := s.inFlight.Add(1)
	defer s.inFlight.Add(-1)
	for {
		m := s.maxInFlight.Load()
		if n <= m || s.maxInFlight.CompareAndSwap(m, n) {
			break
		}
	}

	if s.barrier != nil {
		s.barrier.Done()
		s.barrier.Wait()
	}
	if s.delay > 0 {
		select {
		case <-ctx.Done():
			return reading.FeedDocument{}, ctx.Err()
		case <-time.After(s.delay):
		}
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls[url]++
	if err, ok := s.errs[url]; ok {
		return reading.FeedDocument{}, err
	}
	d, ok := s.docs[url]
	if !ok {
		return reading.FeedDocument{}, fmt.Errorf("no document for %s", url)
	}
	return d, nil
}

// memStore is an in-memory Store without transactional replace.
type memStore struct {
	mu       sync.Mutex
	feeds    []reading.Feed
	stories  []reading.Story
	settings map[string]string
	seq      int
	writes   int

	failAddStory error
	// afterStories runs once, outside the lock, after the next Stories call.
	afterStories func()
}

func newMemStore() *memStore {
	return &memStore{settings: make(map[string]string)}
}

func (m *memStore) nextID(prefix string) string {
	m.seq++
	return fmt.Sprintf("%s-%d", prefix, m.seq)
}

func (m *memStore) writeCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.writes
}

func (m *memStore) Feeds(_ context.Context) ([]reading.Feed, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]reading.Feed(nil), m.feeds...), nil
}

func (m *memStore) FeedByID(_ context.Context, id string) (reading.Feed, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, f := range m.feeds {
		if f.ID == id {
			return f, nil
		}
	}
	return reading.Feed{}, reading.ErrNotFound
}

func (m *memStore) FeedByTitle(_ context.Context, title string) (reading.Feed, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, f := range m.feeds {
		if f.Title == title {
			return f, nil
		}
	}
	return reading.Feed{}, reading.ErrNotFound
}

func (m *memStore) AddFeed(_ context.Context, feed reading.Feed) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, f := range m.feeds {
		if f.Title == feed.Title {
			return "", reading.ErrAlreadySubscribed
		}
	}
	m.writes++
	feed.ID = m.nextID("feed")
	m.feeds = append(m.feeds, feed)
	return feed.ID, nil
}

func (m *memStore) RemoveFeed(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.writes++
	feeds := m.feeds[:0]
	for _, f := range m.feeds {
		if f.ID != id {
			feeds = append(feeds, f)
		}
	}
	m.feeds = feeds
	m.removeStoriesLocked(id)
	return nil
}

func (m *memStore) UpdateFeedLastUpdate(_ context.Context, id string, lastUpdate time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.writes++
	for i := range m.feeds {
		if m.feeds[i].ID == id {
			if lastUpdate.After(m.feeds[i].LastUpdate) {
				m.feeds[i].LastUpdate = lastUpdate
			}
			return nil
		}
	}
	return reading.ErrNotFound
}

func (m *memStore) Stories(_ context.Context, feedID string) ([]reading.Story, error) {
	m.mu.Lock()
	out := m.storiesLocked(feedID)
	hook := m.afterStories
	m.afterStories = nil
	m.mu.Unlock()

	if hook != nil {
		hook()
	}
	return out, nil
}

func (m *memStore) StoryByID(_ context.Context, id string) (reading.Story, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, s := range m.stories {
		if s.ID == id {
			return s, nil
		}
	}
	return reading.Story{}, reading.ErrNotFound
}

func (m *memStore) StoryByTitle(_ context.Context, title string) (reading.Story, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, s := range m.stories {
		if s.Title == title {
			return s, nil
		}
	}
	return reading.Story{}, reading.ErrNotFound
}

func (m *memStore) AddStory(_ context.Context, story reading.Story) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failAddStory != nil {
		return "", m.failAddStory
	}
	m.writes++
	story.ID = m.nextID("story")
	story.LastReadState = false
	m.stories = append(m.stories, story)
	return story.ID, nil
}

func (m *memStore) RemoveStory(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.writes++
	stories := m.stories[:0]
	for _, s := range m.stories {
		if s.ID != id {
			stories = append(stories, s)
		}
	}
	m.stories = stories
	return nil
}

func (m *memStore) UpdateStory(_ context.Context, story reading.Story) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i := range m.stories {
		if m.stories[i].ID == story.ID {
			m.writes++
			story.LastReadState = false
			m.stories[i] = story
			return nil
		}
	}
	return reading.ErrNotFound
}

func (m *memStore) UnreadStories(_ context.Context, feedID string) ([]reading.Story, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []reading.Story
	for _, s := range m.storiesLocked(feedID) {
		if !s.Read {
			out = append(out, s)
		}
	}
	return out, nil
}

func (m *memStore) storiesLocked(feedID string) []reading.Story {
	var out []reading.Story
	for _, s := range m.stories {
		if s.FeedID == feedID {
			out = append(out, s)
		}
	}
	return out
}

func (m *memStore) Setting(_ context.Context, key string) (string, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	v, ok := m.settings[key]
	return v, ok, nil
}

func (m *memStore) SetSetting(_ context.Context, key, value string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.writes++
	m.settings[key] = value
	return nil
}

func (m *memStore) removeStoriesLocked(feedID string) {
	stories := m.stories[:0]
	for _, s := range m.stories {
		if s.FeedID != feedID {
			stories = append(stories, s)
		}
	}
	m.stories = stories
}

// replacingStore adds a transactional replace and records overlapping
// replace windows per feed.
type replacingStore struct {
	*memStore

	hold     time.Duration
	active   map[string]int
	overlaps []string
	replaces int
	applied  int
}

func newReplacingStore() *replacingStore {
	return &replacingStore{memStore: newMemStore(), active: make(map[string]int)}
}

func (s *replacingStore) ReplaceStories(_ context.Context, feedID string, stories []reading.Story, lastUpdate time.Time, key reading.IdentityKey) error {
	s.mu.Lock()
	s.active[feedID]++
	if s.active[feedID] > 1 {
		s.overlaps = append(s.overlaps, feedID)
	}
	s.replaces++
	s.mu.Unlock()

	if s.hold > 0 {
		time.Sleep(s.hold)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	defer func() { s.active[feedID]-- }()

	idx := -1
	for i, f := range s.feeds {
		if f.ID == feedID {
			idx = i
		}
	}
	if idx < 0 {
		return reading.ErrNotFound
	}
	if s.failAddStory != nil {
		return s.failAddStory
	}
	if !lastUpdate.After(s.feeds[idx].LastUpdate) {
		return reading.ErrAlreadyCurrent
	}

	stories = slices.Clone(stories)
	reading.CarryReadState(stories, s.storiesLocked(feedID), key)

	s.writes++
	s.applied++
	s.removeStoriesLocked(feedID)
	for _, story := range stories {
		story.ID = s.nextID("story")
		s.stories = append(s.stories, story)
	}
	s.feeds[idx].LastUpdate = lastUpdate
	return nil
}

func (s *replacingStore) appliedCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.applied
}

func (s *replacingStore) overlapCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.overlaps)
}

type upperRenderer struct{}

func (upperRenderer) Render(html string) string {
	return "[" + html + "]"
}
