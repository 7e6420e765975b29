package usecase

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"time"

	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/singleflight"

	"github.com/tesso57/feedkeep/internal/domain/reading"
)

// DefaultRefreshWorkers bounds the refresh fan-out when no worker count is configured.
const DefaultRefreshWorkers = 4

// RefreshOptions configures refresh behaviour.
type RefreshOptions struct {
	Workers      int
	FetchTimeout time.Duration
	Identity     reading.IdentityKey
	Logger       *slog.Logger
	Observer     RefreshObserver
}

// RefreshStatus describes what a refresh did to a feed.
type RefreshStatus int

const (
	// RefreshUnchanged means the remote document was not newer than the local copy.
	RefreshUnchanged RefreshStatus = iota
	// RefreshUpdated means the feed's stories were replaced.
	RefreshUpdated
)

// RefreshResult is the per-feed result reported for a refreshed feed.
type RefreshResult struct {
	FeedID string
	Title  string
	Unread int
}

// RefreshOutcome is the result of one RefreshTask run.
type RefreshOutcome struct {
	Status  RefreshStatus
	Result  RefreshResult
	Stories int
}

// RefreshFailure records a feed that could not be refreshed.
type RefreshFailure struct {
	FeedID string
	URL    string
	Err    error
}

func (f RefreshFailure) Error() string {
	return fmt.Sprintf("feed %s (%s): %v", f.FeedID, f.URL, f.Err)
}

func (f RefreshFailure) Unwrap() error {
	return f.Err
}

// RefreshReport summarizes one refresh cycle.
type RefreshReport struct {
	Requested int
	Refreshed []RefreshResult
	Skipped   int
	TimedOut  int
	Failures  []RefreshFailure
}

// Err joins every per-feed failure, or returns nil when all feeds succeeded.
func (r RefreshReport) Err() error {
	if len(r.Failures) == 0 {
		return nil
	}
	errs := make([]error, len(r.Failures))
	for i, f := range r.Failures {
		errs[i] = f
	}
	return errors.Join(errs...)
}

// RefreshTask refreshes a single feed. Runs for the same feed never overlap:
// a request arriving while one is in flight waits for it and shares its outcome.
type RefreshTask struct {
	Source       FeedSource
	Store        Store
	Identity     reading.IdentityKey
	FetchTimeout time.Duration
	Logger       *slog.Logger

	flight singleflight.Group
}

// NewRefreshTask constructs a RefreshTask.
func NewRefreshTask(source FeedSource, store Store, opt RefreshOptions) *RefreshTask {
	return &RefreshTask{
		Source:       source,
		Store:        store,
		Identity:     opt.Identity,
		FetchTimeout: opt.FetchTimeout,
		Logger:       opt.Logger,
	}
}

// Run fetches the feed, and when the remote copy is newer, reconciles and commits it.
func (t *RefreshTask) Run(ctx context.Context, feedID string) (RefreshOutcome, error) {
	v, err, _ := t.flight.Do(feedID, func() (any, error) {
		return t.run(ctx, feedID)
	})
	if err != nil {
		return RefreshOutcome{}, err
	}
	return v.(RefreshOutcome), nil
}

func (t *RefreshTask) run(ctx context.Context, feedID string) (RefreshOutcome, error) {
	feed, err := t.Store.FeedByID(ctx, feedID)
	if err != nil {
		return RefreshOutcome{}, fmt.Errorf("load feed %s: %w", feedID, err)
	}

	doc, err := fetchDocument(ctx, t.Source, t.FetchTimeout, feed.URL)
	if err != nil {
		return RefreshOutcome{}, err
	}
	remote, ok := doc.Timestamp()
	if !ok {
		return RefreshOutcome{}, fmt.Errorf("%w: %s: %w", reading.ErrFetch, feed.URL, reading.ErrParseError)
	}

	result := RefreshResult{FeedID: feed.ID, Title: feed.Title}
	if !feed.IsStale(remote) {
		return RefreshOutcome{Status: RefreshUnchanged, Result: result}, nil
	}

	old, err := t.Store.Stories(ctx, feed.ID)
	if err != nil {
		return RefreshOutcome{}, fmt.Errorf("load stories for %s: %w", feed.ID, err)
	}
	stories, err := reading.Reconcile(feed.ID, old, doc.Entries, t.Identity)
	if err != nil {
		return RefreshOutcome{}, fmt.Errorf("reconcile %s: %w", feed.URL, err)
	}
	err = commitStories(ctx, t.Store, feed.ID, stories, remote, t.Identity)
	if errors.Is(err, reading.ErrAlreadyCurrent) {
		t.logger().Debug("feed committed elsewhere", "feed_id", feed.ID, "last_update", remote)
		return RefreshOutcome{Status: RefreshUnchanged, Result: result}, nil
	}
	if err != nil {
		return RefreshOutcome{}, fmt.Errorf("commit %s: %w", feed.ID, err)
	}

	t.logger().Debug("feed reconciled",
		"feed_id", feed.ID,
		"old", len(old),
		"new", len(stories),
		"last_update", remote)

	committed, err := t.Store.Stories(ctx, feed.ID)
	if err != nil {
		return RefreshOutcome{}, fmt.Errorf("count unread for %s: %w", feed.ID, err)
	}
	result.Unread = reading.CountUnread(committed)
	return RefreshOutcome{Status: RefreshUpdated, Result: result, Stories: len(stories)}, nil
}

func (t *RefreshTask) logger() *slog.Logger {
	if t.Logger != nil {
		return t.Logger
	}
	return slog.Default()
}

// RefreshService refreshes every subscribed feed with bounded concurrency.
type RefreshService struct {
	Store    Store
	Task     *RefreshTask
	Workers  int
	Logger   *slog.Logger
	Observer RefreshObserver
}

// NewRefreshService constructs a RefreshService.
func NewRefreshService(source FeedSource, store Store, opt RefreshOptions) *RefreshService {
	return new(RefreshService{
		Store:    store,
		Task:     NewRefreshTask(source, store, opt),
		Workers:  opt.Workers,
		Logger:   opt.Logger,
		Observer: opt.Observer,
	})
}

type refreshSlot struct {
	outcome RefreshOutcome
	err     error
	took    time.Duration
}

// RefreshAll evaluates every feed and refreshes the stale ones.
// Per-feed failures are collected in the report; only a failure to list feeds
// is returned as an error.
func (s *RefreshService) RefreshAll(ctx context.Context) (RefreshReport, error) {
	feeds, err := s.Store.Feeds(ctx)
	if err != nil {
		return RefreshReport{}, fmt.Errorf("list feeds: %w", err)
	}

	slots := make([]refreshSlot, len(feeds))
	var g errgroup.Group
	g.SetLimit(s.workers())
	for i, f := range feeds {
		g.Go(func() error {
			start := time.Now()
			out, err := s.Task.Run(ctx, f.ID)
			slots[i] = refreshSlot{outcome: out, err: err, took: time.Since(start)}
			return nil
		})
	}
	_ = g.Wait()

	report := RefreshReport{Requested: len(feeds)}
	log := s.logger()
	obs := s.observer()
	for i, slot := range slots {
		f := feeds[i]
		switch {
		case slot.err != nil:
			reason := "error"
			if errors.Is(slot.err, context.DeadlineExceeded) {
				report.TimedOut++
				reason = "timeout"
			}
			report.Failures = append(report.Failures, RefreshFailure{FeedID: f.ID, URL: f.URL, Err: slot.err})
			obs.FeedFailed(f.ID, reason)
			log.Warn("feed refresh failed", "feed_id", f.ID, "url", f.URL, "error", slot.err)
		case slot.outcome.Status == RefreshUpdated:
			report.Refreshed = append(report.Refreshed, slot.outcome.Result)
			obs.FeedRefreshed(f.ID, slot.outcome.Stories, slot.took)
			log.Info("feed refreshed", "feed_id", f.ID, "title", f.Title, "unread", slot.outcome.Result.Unread, "duration", slot.took)
		default:
			report.Skipped++
			obs.FeedSkipped(f.ID)
		}
	}
	return report, nil
}

// Watch runs RefreshAll immediately and then on every interval until ctx is done.
func (s *RefreshService) Watch(ctx context.Context, interval time.Duration, onReport func(RefreshReport, error)) error {
	if interval <= 0 {
		return errors.New("watch interval must be positive")
	}
	run := func() {
		report, err := s.RefreshAll(ctx)
		if onReport != nil {
			onReport(report, err)
		}
	}

	run()
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			s.logger().InfoContext(ctx, "refresh watch stopping")
			return nil
		case <-ticker.C:
			run()
		}
	}
}

func (s *RefreshService) workers() int {
	if s.Workers > 0 {
		return s.Workers
	}
	return DefaultRefreshWorkers
}

func (s *RefreshService) logger() *slog.Logger {
	if s.Logger != nil {
		return s.Logger
	}
	return slog.Default()
}

func (s *RefreshService) observer() RefreshObserver {
	if s.Observer != nil {
		return s.Observer
	}
	return nopObserver{}
}

func fetchDocument(ctx context.Context, source FeedSource, timeout time.Duration, url string) (reading.FeedDocument, error) {
	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}
	doc, err := source.Parse(ctx, url)
	if err != nil {
		if errors.Is(err, reading.ErrFetch) {
			return reading.FeedDocument{}, err
		}
		return reading.FeedDocument{}, fmt.Errorf("%w: %s: %w", reading.ErrFetch, url, err)
	}
	return doc, nil
}

// commitStories swaps a feed's stories and then advances its last update.
// Read flags are re-derived from the stories current at commit time, so a
// mark made while the document was being fetched survives. It returns
// reading.ErrAlreadyCurrent when another writer already stored lastUpdate.
// Stores without StoryReplacer get a check, then a remove/add sequence; a
// failure part way through leaves the feed's last update untouched so the
// next cycle retries.
func commitStories(ctx context.Context, store Store, feedID string, stories []reading.Story, lastUpdate time.Time, key reading.IdentityKey) error {
	if r, ok := store.(StoryReplacer); ok {
		return r.ReplaceStories(ctx, feedID, stories, lastUpdate, key)
	}

	feed, err := store.FeedByID(ctx, feedID)
	if err != nil {
		return err
	}
	if !feed.IsStale(lastUpdate) {
		return fmt.Errorf("feed %s: %w", feedID, reading.ErrAlreadyCurrent)
	}
	current, err := store.Stories(ctx, feedID)
	if err != nil {
		return fmt.Errorf("load stories for %s: %w", feedID, err)
	}
	stories = slices.Clone(stories)
	reading.CarryReadState(stories, current, key)

	for _, s := range current {
		if err := store.RemoveStory(ctx, s.ID); err != nil {
			return fmt.Errorf("remove story %s: %w", s.ID, err)
		}
	}
	if err := addStories(ctx, store, stories); err != nil {
		return err
	}
	return store.UpdateFeedLastUpdate(ctx, feedID, lastUpdate)
}

func addStories(ctx context.Context, store StoryRepository, stories []reading.Story) error {
	for _, s := range stories {
		if _, err := store.AddStory(ctx, s); err != nil {
			return fmt.Errorf("add story %q: %w", s.Title, err)
		}
	}
	return nil
}
