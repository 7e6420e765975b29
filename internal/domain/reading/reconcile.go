package reading

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// IdentityKey maps an entry to the key used to recognise it across fetches.
type IdentityKey func(title, link string) string

// TitleIdentity matches entries by title. Distinct entries sharing a title
// share read state.
func TitleIdentity(title, _ string) string {
	return title
}

// LinkIdentity matches entries by link, falling back to title when the link is empty.
func LinkIdentity(title, link string) string {
	if link = strings.TrimSpace(link); link != "" {
		return link
	}
	return title
}

// IdentityByName resolves a configured identity strategy. Unknown names use titles.
func IdentityByName(name string) IdentityKey {
	if strings.EqualFold(strings.TrimSpace(name), "link") {
		return LinkIdentity
	}
	return TitleIdentity
}

// Reconcile builds the replacement story set for a feed.
//
// The old set is replaced wholesale; only the read flag is carried forward, by
// identity key. Entries repeating an earlier key in the same document are dropped.
// Reconcile does not touch storage.
func Reconcile(feedID string, old []Story, entries []RemoteEntry, key IdentityKey) ([]Story, error) {
	if key == nil {
		key = TitleIdentity
	}

	readKeys := readKeySet(old, key)

	seen := make(map[string]struct{}, len(entries))
	stories := make([]Story, 0, len(entries))
	for i, e := range entries {
		k := key(e.Title, e.Link)
		if _, dup := seen[k]; dup {
			continue
		}
		seen[k] = struct{}{}

		description, err := EntryDescription(e)
		if errors.Is(err, ErrParseFieldMissing) {
			description = ""
		}
		if e.Updated == nil || e.Updated.IsZero() {
			return nil, fmt.Errorf("entry %d %q: %w", i, e.Title, ErrMissingTimestamp)
		}

		var published *time.Time
		if e.Published != nil && !e.Published.IsZero() {
			p := e.Published.UTC()
			published = &p
		}

		_, wasRead := readKeys[k]
		stories = append(stories, Story{
			FeedID:      feedID,
			EntryID:     i,
			Title:       e.Title,
			Link:        e.Link,
			Description: description,
			Published:   published,
			LastUpdate:  e.Updated.UTC(),
			Read:        wasRead,
		})
	}
	return stories, nil
}

// CarryReadState sets each story's read flag from current, the stories it is
// about to replace: a story is read exactly when a read story in current has
// the same identity key.
func CarryReadState(stories, current []Story, key IdentityKey) {
	if key == nil {
		key = TitleIdentity
	}
	readKeys := readKeySet(current, key)
	for i := range stories {
		_, read := readKeys[key(stories[i].Title, stories[i].Link)]
		stories[i].Read = read
	}
}

func readKeySet(stories []Story, key IdentityKey) map[string]struct{} {
	keys := make(map[string]struct{}, len(stories))
	for _, s := range stories {
		if s.Read {
			keys[key(s.Title, s.Link)] = struct{}{}
		}
	}
	return keys
}

// EntryDescription returns the entry's content, or its summary when the content is empty.
func EntryDescription(e RemoteEntry) (string, error) {
	if e.Content != "" {
		return e.Content, nil
	}
	if e.Summary != "" {
		return e.Summary, nil
	}
	return "", ErrParseFieldMissing
}
