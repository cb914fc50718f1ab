package feed

import (
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

const channelFeedXML = `<?xml version="1.0" encoding="UTF-8"?>
<feed xmlns:yt="http://www.youtube.com/xml/schemas/2015" xmlns="http://www.w3.org/2005/Atom">
  <id>yt:channel:UCtest</id>
  <title>Test Channel</title>
  <entry>
    <id>yt:video:vid2</id>
    <yt:videoId>vid2</yt:videoId>
    <title>Second upload</title>
    <link rel="alternate" href="https://www.youtube.com/watch?v=vid2"/>
    <published>2026-08-20T10:00:00+00:00</published>
  </entry>
  <entry>
    <id>yt:video:vid1</id>
    <yt:videoId>vid1</yt:videoId>
    <title>First upload</title>
    <link rel="alternate" href="https://www.youtube.com/watch?v=vid1"/>
    <published>2026-08-19T08:00:00+00:00</published>
  </entry>
</feed>`

func TestFetchLatest(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/feeds/videos.xml" {
			http.NotFound(w, r)
			return
		}
		if got := r.URL.Query().Get("channel_id"); got != "UCtest" {
			t.Errorf("channel_id = %q, want UCtest", got)
		}
		w.Header().Set("Content-Type", "application/atom+xml")
		fmt.Fprint(w, channelFeedXML)
	}))
	defer srv.Close()

	c := NewClient(10*time.Second, 0, WithBaseURL(srv.URL))
	listing, err := c.FetchLatest(t.Context(), "UCtest")
	if err != nil {
		t.Fatalf("FetchLatest: %v", err)
	}
	if listing.ChannelTitle != "Test Channel" {
		t.Errorf("ChannelTitle = %q, want %q", listing.ChannelTitle, "Test Channel")
	}
	if len(listing.Items) != 2 {
		t.Fatalf("len(items) = %d, want 2", len(listing.Items))
	}
	first := listing.Items[0]
	if first.ID != "yt:video:vid2" {
		t.Errorf("item id = %q, want yt:video:vid2", first.ID)
	}
	if first.URL != "https://www.youtube.com/watch?v=vid2" {
		t.Errorf("item url = %q", first.URL)
	}
	want := time.Date(2026, 8, 20, 10, 0, 0, 0, time.UTC)
	if !first.PublishedAt.Equal(want) {
		t.Errorf("published = %v, want %v", first.PublishedAt, want)
	}
}

func TestFetchLatestCapsItems(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, channelFeedXML)
	}))
	defer srv.Close()

	c := NewClient(10*time.Second, 1, WithBaseURL(srv.URL))
	listing, err := c.FetchLatest(t.Context(), "UCtest")
	if err != nil {
		t.Fatalf("FetchLatest: %v", err)
	}
	if len(listing.Items) != 1 {
		t.Fatalf("len(items) = %d, want 1", len(listing.Items))
	}
}

func TestFetchLatestReportsFetchError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "nope", http.StatusInternalServerError)
	}))
	defer srv.Close()

	c := NewClient(10*time.Second, 0, WithBaseURL(srv.URL))
	_, err := c.FetchLatest(t.Context(), "UCgone")
	var fe *FetchError
	if !errors.As(err, &fe) {
		t.Fatalf("err = %v, want *FetchError", err)
	}
	if fe.ChannelID != "UCgone" {
		t.Errorf("ChannelID = %q, want UCgone", fe.ChannelID)
	}
}
