package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"slices"
	"time"

	"github.com/tesso57/feedkeep/internal/domain/reading"
)

const storyColumns = `id, feed_id, entry_id, title, link, description, published, last_update, read`

// Stories lists a feed's stories in entry order.
func (s *Store) Stories(ctx context.Context, feedID string) ([]reading.Story, error) {
	return s.storiesWhere(ctx, `feed_id = ?`, feedID)
}

// UnreadStories lists a feed's unread stories in entry order.
func (s *Store) UnreadStories(ctx context.Context, feedID string) ([]reading.Story, error) {
	return s.storiesWhere(ctx, `feed_id = ? AND read = ?`, feedID, false)
}

func (s *Store) storiesWhere(ctx context.Context, cond string, args ...any) ([]reading.Story, error) {
	rows, err := s.query(ctx, s.db, `SELECT `+storyColumns+` FROM stories WHERE `+cond+` ORDER BY entry_id, id`, args...)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	var out []reading.Story
	for rows.Next() {
		st, err := scanStory(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, st)
	}
	return out, rows.Err()
}

// StoryByID returns the story with the given id.
func (s *Store) StoryByID(ctx context.Context, id string) (reading.Story, error) {
	return s.storyWhere(ctx, `id = ?`, id)
}

// StoryByTitle returns the first story with the given title.
func (s *Store) StoryByTitle(ctx context.Context, title string) (reading.Story, error) {
	return s.storyWhere(ctx, `title = ? ORDER BY entry_id, id LIMIT 1`, title)
}

func (s *Store) storyWhere(ctx context.Context, cond string, arg any) (reading.Story, error) {
	st, err := scanStory(s.queryRow(ctx, s.db, `SELECT `+storyColumns+` FROM stories WHERE `+cond, arg))
	if errors.Is(err, sql.ErrNoRows) {
		return reading.Story{}, errNotFound
	}
	return st, err
}

// AddStory inserts a story and returns its new id.
func (s *Store) AddStory(ctx context.Context, story reading.Story) (string, error) {
	return s.insertStory(ctx, s.db, story)
}

func (s *Store) insertStory(ctx context.Context, q querier, story reading.Story) (string, error) {
	id := newID()
	_, err := s.exec(ctx, q,
		`INSERT INTO stories (`+storyColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		id, story.FeedID, story.EntryID, story.Title, story.Link, story.Description,
		nullableNanos(story.Published), toNanos(story.LastUpdate), story.Read)
	if err != nil {
		return "", err
	}
	return id, nil
}

// RemoveStory deletes a story.
func (s *Store) RemoveStory(ctx context.Context, id string) error {
	res, err := s.exec(ctx, s.db, `DELETE FROM stories WHERE id = ?`, id)
	if err != nil {
		return err
	}
	return affected(res, "story "+id)
}

// UpdateStory persists a story's fields and read flag.
func (s *Store) UpdateStory(ctx context.Context, story reading.Story) error {
	res, err := s.exec(ctx, s.db,
		`UPDATE stories SET title = ?, link = ?, description = ?, published = ?, last_update = ?, read = ? WHERE id = ?`,
		story.Title, story.Link, story.Description, nullableNanos(story.Published), toNanos(story.LastUpdate), story.Read, story.ID)
	if err != nil {
		return err
	}
	return affected(res, "story "+story.ID)
}

// ReplaceStories swaps every story of a feed and advances its last update in
// one transaction. The guarded last_update write runs first, so of two writers
// committing the same document only one replaces the stories; the other gets
// reading.ErrAlreadyCurrent. Read flags come from the rows being replaced.
func (s *Store) ReplaceStories(ctx context.Context, feedID string, stories []reading.Story, lastUpdate time.Time, key reading.IdentityKey) error {
	return s.inTx(ctx, func(tx *sql.Tx) error {
		ts := toNanos(lastUpdate)
		res, err := s.exec(ctx, tx, `UPDATE feeds SET last_update = ? WHERE id = ? AND last_update < ?`, ts, feedID, ts)
		if err != nil {
			return err
		}
		n, err := res.RowsAffected()
		if err != nil {
			return err
		}
		if n == 0 {
			if _, err := s.feedWhere(ctx, tx, `id = ?`, feedID); err != nil {
				return err
			}
			return fmt.Errorf("feed %s: %w", feedID, reading.ErrAlreadyCurrent)
		}

		current, err := s.readStories(ctx, tx, feedID)
		if err != nil {
			return err
		}
		stories = slices.Clone(stories)
		reading.CarryReadState(stories, current, key)

		if _, err := s.exec(ctx, tx, `DELETE FROM stories WHERE feed_id = ?`, feedID); err != nil {
			return err
		}
		for _, st := range stories {
			st.FeedID = feedID
			if _, err := s.insertStory(ctx, tx, st); err != nil {
				return err
			}
		}
		return nil
	})
}

// readStories returns the identity fields of a feed's read stories.
func (s *Store) readStories(ctx context.Context, q querier, feedID string) ([]reading.Story, error) {
	rows, err := s.query(ctx, q, `SELECT title, link FROM stories WHERE feed_id = ? AND read = ?`, feedID, true)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	var out []reading.Story
	for rows.Next() {
		st := reading.Story{Read: true}
		if err := rows.Scan(&st.Title, &st.Link); err != nil {
			return nil, err
		}
		out = append(out, st)
	}
	return out, rows.Err()
}

func scanStory(row scanner) (reading.Story, error) {
	var st reading.Story
	var published sql.NullInt64
	var last int64
	if err := row.Scan(&st.ID, &st.FeedID, &st.EntryID, &st.Title, &st.Link, &st.Description, &published, &last, &st.Read); err != nil {
		return reading.Story{}, err
	}
	if published.Valid {
		t := fromNanos(published.Int64)
		st.Published = &t
	}
	st.LastUpdate = fromNanos(last)
	return st, nil
}

func nullableNanos(t *time.Time) sql.NullInt64 {
	if t == nil {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: toNanos(*t), Valid: true}
}
