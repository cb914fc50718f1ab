// Package feed fetches the latest uploads for a YouTube channel via its
// public Atom feed. No API key is needed; YouTube publishes the most recent
// uploads for every channel at a well-known URL.
package feed

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/mmcdole/gofeed"
)

// DefaultBaseURL is where YouTube serves per-channel upload feeds.
const DefaultBaseURL = "https://www.youtube.com"

// FetchError wraps any per-channel fetch failure: network errors, timeouts,
// HTTP errors and parse errors. All are retryable on the next cycle.
type FetchError struct {
	ChannelID string
	Err       error
}

func (e *FetchError) Error() string {
	return fmt.Sprintf("fetch channel %s: %v", e.ChannelID, e.Err)
}
func (e *FetchError) Unwrap() error { return e.Err }

// Item is one entry from a channel feed.
type Item struct {
	ID          string
	Title       string
	URL         string
	PublishedAt time.Time
}

// Listing is the current view of a channel's latest uploads. Order is
// whatever the feed returned; callers must not read freshness from it.
type Listing struct {
	ChannelTitle string
	Items        []Item
}

// Client fetches channel listings with a bounded timeout.
type Client struct {
	parser   *gofeed.Parser
	timeout  time.Duration
	baseURL  string
	maxItems int
}

// Option configures a Client.
type Option func(*Client)

// WithBaseURL overrides the feed host, used by tests.
func WithBaseURL(u string) Option {
	return func(c *Client) { c.baseURL = strings.TrimRight(u, "/") }
}

// NewClient constructs a feed client. maxItems caps how many entries per
// channel are considered (0 means all; YouTube feeds carry at most 15).
func NewClient(timeout time.Duration, maxItems int, opts ...Option) *Client {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	p := gofeed.NewParser()
	p.Client = &http.Client{Timeout: timeout}
	c := &Client{
		parser:   p,
		timeout:  timeout,
		baseURL:  DefaultBaseURL,
		maxItems: maxItems,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// FeedURL returns the Atom feed URL for a channel id.
func (c *Client) FeedURL(channelID string) string {
	return fmt.Sprintf("%s/feeds/videos.xml?channel_id=%s", c.baseURL, channelID)
}

// FetchLatest returns the channel's current upload listing. Any failure is
// reported as a *FetchError so the caller can isolate it to this channel.
func (c *Client) FetchLatest(ctx context.Context, channelID string) (*Listing, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	f, err := c.parser.ParseURLWithContext(c.FeedURL(channelID), ctx)
	if err != nil {
		return nil, &FetchError{ChannelID: channelID, Err: err}
	}

	listing := &Listing{ChannelTitle: f.Title}
	for _, it := range f.Items {
		if it == nil {
			continue
		}
		if c.maxItems > 0 && len(listing.Items) >= c.maxItems {
			break
		}
		id := firstNonEmpty(it.GUID, it.Link)
		if id == "" {
			continue
		}
		published := time.Now().UTC()
		if it.PublishedParsed != nil {
			published = it.PublishedParsed.UTC()
		} else if it.UpdatedParsed != nil {
			published = it.UpdatedParsed.UTC()
		}
		listing.Items = append(listing.Items, Item{
			ID:          id,
			Title:       it.Title,
			URL:         it.Link,
			PublishedAt: published,
		})
	}
	return listing, nil
}

func firstNonEmpty(ss ...string) string {
	for _, s := range ss {
		if strings.TrimSpace(s) != "" {
			return s
		}
	}
	return ""
}
