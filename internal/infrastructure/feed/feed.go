// Package feed fetches and parses RSS/Atom feeds into reading documents.
package feed

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/mmcdole/gofeed"
	"github.com/tesso57/feedkeep/internal/domain/reading"
)

// DefaultUserAgent is sent when no user agent is configured.
const DefaultUserAgent = "Feedkeep/1.0"

const feedAcceptHeader = "application/atom+xml, application/rss+xml, application/feed+json, application/xml;q=0.9, text/xml;q=0.8, */*;q=0.5"

type acceptTransport struct {
	base http.RoundTripper
}

func (t acceptTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	base := t.base
	if base == nil {
		base = http.DefaultTransport
	}
	clone := req.Clone(req.Context())
	if clone.Header.Get("Accept") == "" {
		clone.Header.Set("Accept", feedAcceptHeader)
	}
	return base.RoundTrip(clone)
}

// Options configures a Source.
type Options struct {
	UserAgent    string
	HostInterval time.Duration
	Transport    http.RoundTripper
}

type parseFunc func(ctx context.Context, url string) (*gofeed.Feed, error)

// Source fetches feeds over HTTP. It implements usecase.FeedSource.
type Source struct {
	parse   parseFunc
	limiter *hostLimiter
}

// NewSource constructs a Source.
func NewSource(opt Options) *Source {
	ua := strings.TrimSpace(opt.UserAgent)
	if ua == "" {
		ua = DefaultUserAgent
	}
	client := &http.Client{Transport: acceptTransport{base: opt.Transport}}
	return &Source{
		parse: func(ctx context.Context, url string) (*gofeed.Feed, error) {
			fp := gofeed.NewParser()
			fp.UserAgent = ua
			fp.Client = client
			return fp.ParseURLWithContext(url, ctx)
		},
		limiter: newHostLimiter(opt.HostInterval),
	}
}

// Parse fetches url and converts it into a FeedDocument.
func (s *Source) Parse(ctx context.Context, url string) (reading.FeedDocument, error) {
	url = strings.TrimSpace(url)
	if url == "" {
		return reading.FeedDocument{}, fmt.Errorf("%w: feed url is empty", reading.ErrFetch)
	}
	if err := s.limiter.Wait(ctx, url); err != nil {
		return reading.FeedDocument{}, fmt.Errorf("%w: %s: %w", reading.ErrFetch, url, err)
	}

	parsed, err := s.parse(ctx, url)
	if err != nil {
		return reading.FeedDocument{}, classify(url, err)
	}
	return Document(parsed), nil
}

// classify wraps a gofeed failure in ErrFetch, adding ErrParseError when the
// body was fetched but could not be understood.
func classify(url string, err error) error {
	var httpErr gofeed.HTTPError
	switch {
	case errors.As(err, &httpErr):
		return fmt.Errorf("%w: %s: status %d", reading.ErrFetch, url, httpErr.StatusCode)
	case errors.Is(err, gofeed.ErrFeedTypeNotDetected):
		return fmt.Errorf("%w: %s: %w", reading.ErrFetch, url, errors.Join(reading.ErrParseError, err))
	default:
		return fmt.Errorf("%w: %s: %w", reading.ErrFetch, url, err)
	}
}

// Document maps a parsed gofeed feed onto a FeedDocument. Entries without an
// updated date take their published date.
func Document(parsed *gofeed.Feed) reading.FeedDocument {
	if parsed == nil {
		return reading.FeedDocument{}
	}
	doc := reading.FeedDocument{
		Title:       strings.TrimSpace(parsed.Title),
		UpdatedAt:   parsed.UpdatedParsed,
		PublishedAt: parsed.PublishedParsed,
		Entries:     make([]reading.RemoteEntry, 0, len(parsed.Items)),
	}
	for _, item := range parsed.Items {
		if item == nil {
			continue
		}
		updated := item.UpdatedParsed
		if updated == nil {
			updated = item.PublishedParsed
		}
		doc.Entries = append(doc.Entries, reading.RemoteEntry{
			Title:     item.Title,
			Link:      item.Link,
			Content:   item.Content,
			Summary:   item.Description,
			Published: item.PublishedParsed,
			Updated:   updated,
		})
	}
	return doc
}
