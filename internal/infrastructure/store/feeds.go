package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/tesso57/feedkeep/internal/domain/reading"
)

var errNotFound = reading.ErrNotFound

const feedColumns = `id, url, title, last_update`

// Feeds lists feeds in subscription order.
func (s *Store) Feeds(ctx context.Context) ([]reading.Feed, error) {
	rows, err := s.query(ctx, s.db, `SELECT `+feedColumns+` FROM feeds ORDER BY created_at, id`)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	var out []reading.Feed
	for rows.Next() {
		f, err := scanFeed(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, f)
	}
	return out, rows.Err()
}

// FeedByID returns the feed with the given id.
func (s *Store) FeedByID(ctx context.Context, id string) (reading.Feed, error) {
	return s.feedWhere(ctx, s.db, `id = ?`, id)
}

// FeedByTitle returns the feed with the given title.
func (s *Store) FeedByTitle(ctx context.Context, title string) (reading.Feed, error) {
	return s.feedWhere(ctx, s.db, `title = ?`, title)
}

func (s *Store) feedWhere(ctx context.Context, q querier, cond string, arg any) (reading.Feed, error) {
	f, err := scanFeed(s.queryRow(ctx, q, `SELECT `+feedColumns+` FROM feeds WHERE `+cond, arg))
	if errors.Is(err, sql.ErrNoRows) {
		return reading.Feed{}, errNotFound
	}
	return f, err
}

// AddFeed inserts a feed and returns its new id.
func (s *Store) AddFeed(ctx context.Context, feed reading.Feed) (string, error) {
	id := newID()
	_, err := s.exec(ctx, s.db,
		`INSERT INTO feeds (id, url, title, last_update, created_at) VALUES (?, ?, ?, ?, ?)`,
		id, feed.URL, feed.Title, toNanos(feed.LastUpdate), s.stamp())
	if err != nil {
		if s.dialect.unique(err) {
			return "", fmt.Errorf("%q: %w", feed.Title, reading.ErrAlreadySubscribed)
		}
		return "", err
	}
	return id, nil
}

// RemoveFeed deletes a feed together with its stories.
func (s *Store) RemoveFeed(ctx context.Context, id string) error {
	return s.inTx(ctx, func(tx *sql.Tx) error {
		if _, err := s.exec(ctx, tx, `DELETE FROM stories WHERE feed_id = ?`, id); err != nil {
			return err
		}
		res, err := s.exec(ctx, tx, `DELETE FROM feeds WHERE id = ?`, id)
		if err != nil {
			return err
		}
		return affected(res, "feed "+id)
	})
}

// UpdateFeedLastUpdate moves a feed's last update forward. Older values are ignored.
func (s *Store) UpdateFeedLastUpdate(ctx context.Context, id string, lastUpdate time.Time) error {
	if _, err := s.FeedByID(ctx, id); err != nil {
		return err
	}
	ts := toNanos(lastUpdate)
	_, err := s.exec(ctx, s.db, `UPDATE feeds SET last_update = ? WHERE id = ? AND last_update < ?`, ts, id, ts)
	return err
}

type scanner interface {
	Scan(dest ...any) error
}

func scanFeed(row scanner) (reading.Feed, error) {
	var f reading.Feed
	var last int64
	if err := row.Scan(&f.ID, &f.URL, &f.Title, &last); err != nil {
		return reading.Feed{}, err
	}
	f.LastUpdate = fromNanos(last)
	return f, nil
}
