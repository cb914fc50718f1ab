package engine

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"tubewatch/internal/feed"
	"tubewatch/internal/store"
)

type fakeFetcher struct {
	listings map[string]*feed.Listing
	errs     map[string]error
}

func (f *fakeFetcher) FetchLatest(_ context.Context, channelID string) (*feed.Listing, error) {
	if err, ok := f.errs[channelID]; ok {
		return nil, err
	}
	if l, ok := f.listings[channelID]; ok {
		return l, nil
	}
	return &feed.Listing{}, nil
}

func openTestStore(t *testing.T) *store.Store {
	t.Helper()
	s, err := store.Open(filepath.Join(t.TempDir(), "engine_test.db"))
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

// markChecked gives a channel a cursor so Diff does not treat the next call
// as the channel's first-ever check.
func markChecked(t *testing.T, s *store.Store, channelID string, at time.Time) {
	t.Helper()
	if err := s.TouchChecked(t.Context(), channelID, at); err != nil {
		t.Fatalf("TouchChecked: %v", err)
	}
}

func TestDiffChronologicalOrderAndIdempotence(t *testing.T) {
	s := openTestStore(t)
	ch := store.Channel{ID: "c1", DisplayName: "One"}
	now := time.Date(2026, 8, 25, 12, 0, 0, 0, time.UTC)
	markChecked(t, s, ch.ID, now.Add(-time.Hour))

	// Fetch order is newest-first; publish times say b came before a.
	f := &fakeFetcher{listings: map[string]*feed.Listing{
		"c1": {Items: []feed.Item{
			{ID: "a", Title: "A", PublishedAt: time.Unix(10, 0).UTC()},
			{ID: "b", Title: "B", PublishedAt: time.Unix(5, 0).UTC()},
		}},
	}}
	e := New(s, f, PolicyNotify, 0, zerolog.Nop())

	got, err := e.Diff(t.Context(), ch, now)
	if err != nil {
		t.Fatalf("Diff: %v", err)
	}
	if len(got) != 2 || got[0].ID != "b" || got[1].ID != "a" {
		t.Fatalf("Diff order = %v, want [b a]", ids(got))
	}

	// Second cycle over the same listing yields nothing.
	got, err = e.Diff(t.Context(), ch, now.Add(time.Minute))
	if err != nil {
		t.Fatalf("Diff again: %v", err)
	}
	if len(got) != 0 {
		t.Fatalf("second Diff = %v, want empty", ids(got))
	}
}

func TestDiffEmptyFetchIsNotAnError(t *testing.T) {
	s := openTestStore(t)
	ch := store.Channel{ID: "c1"}
	markChecked(t, s, ch.ID, time.Now().Add(-time.Hour))
	e := New(s, &fakeFetcher{}, PolicyNotify, 0, zerolog.Nop())

	got, err := e.Diff(t.Context(), ch, time.Now())
	if err != nil {
		t.Fatalf("Diff: %v", err)
	}
	if len(got) != 0 {
		t.Fatalf("Diff = %v, want empty", ids(got))
	}
}

func TestDiffPropagatesFetchError(t *testing.T) {
	s := openTestStore(t)
	ch := store.Channel{ID: "c1"}
	markChecked(t, s, ch.ID, time.Now().Add(-time.Hour))
	fetchErr := &feed.FetchError{ChannelID: "c1", Err: errors.New("boom")}
	e := New(s, &fakeFetcher{errs: map[string]error{"c1": fetchErr}}, PolicyNotify, 0, zerolog.Nop())

	_, err := e.Diff(t.Context(), ch, time.Now())
	var fe *feed.FetchError
	if !errors.As(err, &fe) {
		t.Fatalf("err = %v, want *feed.FetchError", err)
	}
	// Nothing recorded for the failed channel.
	ok, _ := s.Has(t.Context(), "a")
	if ok {
		t.Fatal("video recorded despite fetch failure")
	}
}

func TestFirstCheckBaselineRecordsSilently(t *testing.T) {
	s := openTestStore(t)
	ch := store.Channel{ID: "c1"}
	f := &fakeFetcher{listings: map[string]*feed.Listing{
		"c1": {Items: []feed.Item{
			{ID: "v1", Title: "existing upload", PublishedAt: time.Unix(100, 0)},
		}},
	}}
	e := New(s, f, PolicyBaseline, 0, zerolog.Nop())

	got, err := e.Diff(t.Context(), ch, time.Now())
	if err != nil {
		t.Fatalf("Diff: %v", err)
	}
	if len(got) != 0 {
		t.Fatalf("baseline Diff = %v, want empty", ids(got))
	}
	// Recorded nonetheless: the next cycle must not re-surface it.
	ok, err := s.Has(t.Context(), "v1")
	if err != nil || !ok {
		t.Fatalf("Has(v1) = %v, %v; want true", ok, err)
	}
}

func TestFirstCheckNotifyPolicyReturnsAll(t *testing.T) {
	s := openTestStore(t)
	ch := store.Channel{ID: "c1"}
	f := &fakeFetcher{listings: map[string]*feed.Listing{
		"c1": {Items: []feed.Item{
			{ID: "v1", Title: "upload", PublishedAt: time.Unix(100, 0)},
		}},
	}}
	e := New(s, f, PolicyNotify, 0, zerolog.Nop())

	got, err := e.Diff(t.Context(), ch, time.Now())
	if err != nil {
		t.Fatalf("Diff: %v", err)
	}
	if len(got) != 1 || got[0].ID != "v1" {
		t.Fatalf("Diff = %v, want [v1]", ids(got))
	}
}

func TestDiffMinIntervalThrottle(t *testing.T) {
	s := openTestStore(t)
	ch := store.Channel{ID: "c1"}
	now := time.Now().UTC()
	markChecked(t, s, ch.ID, now.Add(-time.Minute))

	f := &fakeFetcher{listings: map[string]*feed.Listing{
		"c1": {Items: []feed.Item{{ID: "v1", PublishedAt: now}}},
	}}
	e := New(s, f, PolicyNotify, 10*time.Minute, zerolog.Nop())

	got, err := e.Diff(t.Context(), ch, now)
	if err != nil {
		t.Fatalf("Diff: %v", err)
	}
	if len(got) != 0 {
		t.Fatalf("throttled Diff = %v, want empty", ids(got))
	}
	// Nothing was fetched, so nothing was recorded.
	if ok, _ := s.Has(t.Context(), "v1"); ok {
		t.Fatal("video recorded during throttled cycle")
	}
}

func TestParsePolicy(t *testing.T) {
	for _, tc := range []struct {
		in      string
		want    Policy
		wantErr bool
	}{
		{"baseline", PolicyBaseline, false},
		{"notify", PolicyNotify, false},
		{"", PolicyBaseline, false},
		{"everything", "", true},
	} {
		got, err := ParsePolicy(tc.in)
		if tc.wantErr != (err != nil) {
			t.Errorf("ParsePolicy(%q) err = %v", tc.in, err)
			continue
		}
		if !tc.wantErr && got != tc.want {
			t.Errorf("ParsePolicy(%q) = %q, want %q", tc.in, got, tc.want)
		}
	}
}

func ids(vs []store.Video) []string {
	out := make([]string, len(vs))
	for i, v := range vs {
		out[i] = v.ID
	}
	return out
}
