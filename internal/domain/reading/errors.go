package reading

import "errors"

var (
	// ErrBadFeed is returned when a document has no resolvable title.
	ErrBadFeed = errors.New("bad feed")
	// ErrParseError is returned when no usable timestamp exists on a feed or its entries.
	ErrParseError = errors.New("parsing error")
	// ErrAlreadySubscribed is returned when a feed with the same title exists.
	ErrAlreadySubscribed = errors.New("feed already exists")
	// ErrNotFound is returned for unknown feed or story identifiers.
	ErrNotFound = errors.New("not found")
	// ErrFetch covers network, timeout and malformed-document failures.
	ErrFetch = errors.New("fetch failed")
	// ErrMissingTimestamp is returned when an entry has no updated timestamp.
	ErrMissingTimestamp = errors.New("entry has no updated timestamp")
	// ErrAlreadyCurrent is returned when a commit finds the feed already at or
	// past the timestamp being written.
	ErrAlreadyCurrent = errors.New("feed already current")
	// ErrParseFieldMissing is returned when an entry has neither content nor summary.
	ErrParseFieldMissing = errors.New("entry has no content or summary")
)
