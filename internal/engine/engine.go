// Package engine reconciles a channel's freshly-fetched upload listing
// against the store of videos already seen and decides which ones are new.
package engine

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/rs/zerolog"

	"tubewatch/internal/feed"
	"tubewatch/internal/store"
)

// Policy controls what happens on the first-ever check of a channel: either
// the whole initial listing becomes a silent baseline, or it is notified in
// full. Both are reasonable, so this is configuration, not a constant.
type Policy string

const (
	PolicyBaseline Policy = "baseline"
	PolicyNotify   Policy = "notify"
)

// ParsePolicy validates a policy string from config.
func ParsePolicy(s string) (Policy, error) {
	switch Policy(s) {
	case PolicyBaseline, PolicyNotify:
		return Policy(s), nil
	case "":
		return PolicyBaseline, nil
	}
	return "", fmt.Errorf("unknown new-channel policy %q (want %q or %q)", s, PolicyBaseline, PolicyNotify)
}

// Fetcher returns the current upload listing for a channel.
type Fetcher interface {
	FetchLatest(ctx context.Context, channelID string) (*feed.Listing, error)
}

// Store is the slice of the video store the engine needs.
type Store interface {
	Has(ctx context.Context, id string) (bool, error)
	RecordAll(ctx context.Context, videos []store.Video) ([]store.Video, error)
	LastChecked(ctx context.Context, channelID string) (time.Time, bool, error)
	TouchChecked(ctx context.Context, channelID string, t time.Time) error
}

// Engine computes per-channel diffs and records them as seen.
type Engine struct {
	store   Store
	fetcher Fetcher
	policy  Policy
	// minInterval throttles how often a single channel is fetched;
	// 0 disables the throttle. Politeness only, never correctness.
	minInterval time.Duration
	log         zerolog.Logger
}

// New constructs an engine.
func New(st Store, f Fetcher, policy Policy, minInterval time.Duration, log zerolog.Logger) *Engine {
	return &Engine{store: st, fetcher: f, policy: policy, minInterval: minInterval, log: log}
}

// Diff fetches the channel's listing, filters out everything already seen,
// records the remainder durably and returns the confirmed-new videos in
// publish order (oldest first). Only videos the store confirms as inserted
// are returned, so a concurrent cycle can never cause a double notification.
//
// On the first-ever check of a channel the result depends on the configured
// Policy: under PolicyBaseline the listing is recorded silently and Diff
// returns nothing.
func (e *Engine) Diff(ctx context.Context, ch store.Channel, now time.Time) ([]store.Video, error) {
	last, checkedBefore, err := e.store.LastChecked(ctx, ch.ID)
	if err != nil {
		return nil, err
	}
	if checkedBefore && e.minInterval > 0 && now.Sub(last) < e.minInterval {
		e.log.Debug().Str("channel", ch.ID).Msg("skipping fetch, checked recently")
		return nil, nil
	}

	listing, err := e.fetcher.FetchLatest(ctx, ch.ID)
	if err != nil {
		return nil, err
	}

	candidates := make([]store.Video, 0, len(listing.Items))
	seenInBatch := make(map[string]struct{}, len(listing.Items))
	for _, it := range listing.Items {
		if _, dup := seenInBatch[it.ID]; dup {
			continue
		}
		seenInBatch[it.ID] = struct{}{}
		known, err := e.store.Has(ctx, it.ID)
		if err != nil {
			return nil, err
		}
		if known {
			continue
		}
		candidates = append(candidates, store.Video{
			ID:          it.ID,
			ChannelID:   ch.ID,
			Title:       it.Title,
			URL:         it.URL,
			PublishedAt: it.PublishedAt,
			FirstSeenAt: now.UTC(),
		})
	}

	// Notify in publish chronology, not fetch order.
	sort.SliceStable(candidates, func(i, j int) bool {
		return candidates[i].PublishedAt.Before(candidates[j].PublishedAt)
	})

	// The commit must survive a shutdown that cancels the cycle context:
	// fetched-but-unrecorded videos would re-notify on the next run.
	commitCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 10*time.Second)
	defer cancel()

	inserted, err := e.store.RecordAll(commitCtx, candidates)
	if err != nil {
		return nil, err
	}
	if err := e.store.TouchChecked(commitCtx, ch.ID, now); err != nil {
		return nil, err
	}

	if !checkedBefore && e.policy == PolicyBaseline {
		if len(inserted) > 0 {
			e.log.Info().Str("channel", ch.ID).Int("videos", len(inserted)).
				Msg("first check, recorded baseline silently")
		}
		return nil, nil
	}
	return inserted, nil
}
