// Package watcher runs the check cycle: on every wake it walks the channel
// registry, diffs each channel against the seen-video store and notifies the
// confirmed-new videos. Wakes come from a timer, from the presence signal, or
// from an explicit Wake call; a minimum spacing between cycle starts is
// enforced no matter where the wake came from.
package watcher

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/time/rate"

	"tubewatch/internal/notify"
	"tubewatch/internal/store"
)

// Differ computes and records a channel's newly-seen videos.
type Differ interface {
	Diff(ctx context.Context, ch store.Channel, now time.Time) ([]store.Video, error)
}

// Registry lists the monitored channels in stable order.
type Registry interface {
	Channels(ctx context.Context) ([]store.Channel, error)
}

// Presence is an advisory hint that the user may be watching right now.
type Presence interface {
	Active(ctx context.Context) bool
}

// Config tunes the loop. Zero values get sensible defaults in New.
type Config struct {
	// Interval is the minimum spacing between the starts of two cycles.
	Interval time.Duration
	// PresencePoll is how often the presence signal is consulted;
	// 0 disables presence-driven wakes.
	PresencePoll time.Duration
	// FetchTimeout bounds one channel's fetch-and-diff.
	FetchTimeout time.Duration
	// Workers bounds concurrent per-channel checks within a cycle.
	Workers int
	// MaxBackoff caps the per-channel retry delay after repeated failures.
	MaxBackoff time.Duration
}

type channelBackoff struct {
	failures int
	retryAt  time.Time
}

// Watcher owns the trigger loop. A single goroutine runs cycles, so two
// cycles can never overlap; extra wakes during a cycle coalesce away.
type Watcher struct {
	cfg      Config
	registry Registry
	differ   Differ
	sink     notify.Sink
	presence Presence
	limiter  *rate.Limiter
	log      zerolog.Logger
	wakeCh   chan struct{}

	mu      sync.Mutex
	backoff map[string]*channelBackoff
}

// New constructs a watcher. presence may be nil.
func New(cfg Config, reg Registry, differ Differ, sink notify.Sink, presence Presence, log zerolog.Logger) *Watcher {
	if cfg.Interval <= 0 {
		cfg.Interval = 15 * time.Minute
	}
	if cfg.FetchTimeout <= 0 {
		cfg.FetchTimeout = 30 * time.Second
	}
	if cfg.Workers <= 0 {
		cfg.Workers = 4
	}
	if cfg.MaxBackoff <= 0 {
		cfg.MaxBackoff = 8 * cfg.Interval
	}
	return &Watcher{
		cfg:      cfg,
		registry: reg,
		differ:   differ,
		sink:     sink,
		presence: presence,
		limiter:  rate.NewLimiter(rate.Every(cfg.Interval), 1),
		log:      log,
		wakeCh:   make(chan struct{}, 1),
	}
}

// Wake requests an extra check cycle. Safe to call from any goroutine; wakes
// arriving while a cycle runs or before the minimum interval elapsed are
// dropped, not queued.
func (w *Watcher) Wake() {
	select {
	case w.wakeCh <- struct{}{}:
	default:
	}
}

// Run drives the loop until ctx is cancelled. The first cycle starts
// immediately.
func (w *Watcher) Run(ctx context.Context) error {
	timer := time.NewTimer(0)
	defer timer.Stop()

	var presenceCh <-chan time.Time
	if w.presence != nil && w.cfg.PresencePoll > 0 {
		ticker := time.NewTicker(w.cfg.PresencePoll)
		defer ticker.Stop()
		presenceCh = ticker.C
	}

	for {
		select {
		case <-ctx.Done():
			w.log.Info().Msg("watcher stopping")
			return nil
		case <-timer.C:
			w.tryCycle(ctx)
			timer.Reset(w.cfg.Interval)
		case <-presenceCh:
			if w.presence.Active(ctx) {
				w.tryCycle(ctx)
			}
		case <-w.wakeCh:
			w.tryCycle(ctx)
		}
	}
}

// RunOnce runs a single unconditional cycle, for one-shot invocations where
// scheduling is handled externally (launchd, cron).
func (w *Watcher) RunOnce(ctx context.Context) error {
	return w.runCycle(ctx)
}

// tryCycle starts a cycle unless the minimum interval since the last cycle
// start has not elapsed; such wakes are skipped, never deferred.
func (w *Watcher) tryCycle(ctx context.Context) {
	if !w.limiter.Allow() {
		w.log.Debug().Msg("skipping cycle, minimum interval not elapsed")
		return
	}
	if err := w.runCycle(ctx); err != nil {
		w.log.Error().Err(err).Msg("cycle failed")
	}
}

func (w *Watcher) runCycle(ctx context.Context) error {
	now := time.Now().UTC()
	channels, err := w.registry.Channels(ctx)
	if err != nil {
		return err
	}
	if len(channels) == 0 {
		w.log.Debug().Msg("no channels registered")
		return nil
	}
	w.log.Debug().Int("channels", len(channels)).Msg("cycle started")

	// Channels are independent: check them concurrently, but keep results
	// slotted by registry position so notification order stays stable.
	results := make([][]store.Video, len(channels))
	sem := make(chan struct{}, w.cfg.Workers)
	var wg sync.WaitGroup
	for i, ch := range channels {
		if delay, deferred := w.deferredUntil(ch.ID, now); deferred {
			w.log.Debug().Str("channel", ch.ID).Dur("retry_in", delay).
				Msg("channel in backoff, skipping")
			continue
		}
		wg.Add(1)
		go func(i int, ch store.Channel) {
			defer wg.Done()
			sem <- struct{}{}
			defer func() { <-sem }()

			cctx, cancel := context.WithTimeout(ctx, w.cfg.FetchTimeout)
			defer cancel()
			vids, err := w.differ.Diff(cctx, ch, now)
			if err != nil {
				delay := w.noteFailure(ch.ID, now)
				w.log.Warn().Err(err).Str("channel", ch.ID).Dur("retry_in", delay).
					Msg("channel check failed")
				return
			}
			w.noteSuccess(ch.ID)
			results[i] = vids
		}(i, ch)
	}
	wg.Wait()

	// Registry order across channels, publish order within a channel.
	// A sink failure is logged and never blocks the next video; the video
	// stays recorded either way.
	for i, ch := range channels {
		for _, v := range results[i] {
			if err := w.sink.Notify(ctx, v, ch); err != nil {
				w.log.Error().Err(err).Str("channel", ch.ID).Str("video", v.ID).
					Msg("notification failed")
			}
		}
	}
	return nil
}

func (w *Watcher) deferredUntil(channelID string, now time.Time) (time.Duration, bool) {
	w.mu.Lock()
	defer w.mu.Unlock()
	b, ok := w.backoff[channelID]
	if !ok || !now.Before(b.retryAt) {
		return 0, false
	}
	return b.retryAt.Sub(now), true
}

func (w *Watcher) noteFailure(channelID string, now time.Time) time.Duration {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.backoff == nil {
		w.backoff = make(map[string]*channelBackoff)
	}
	b := w.backoff[channelID]
	if b == nil {
		b = &channelBackoff{}
		w.backoff[channelID] = b
	}
	b.failures++
	delay := w.cfg.Interval
	for i := 1; i < b.failures && delay < w.cfg.MaxBackoff; i++ {
		delay *= 2
	}
	if delay > w.cfg.MaxBackoff {
		delay = w.cfg.MaxBackoff
	}
	b.retryAt = now.Add(delay)
	return delay
}

func (w *Watcher) noteSuccess(channelID string) {
	w.mu.Lock()
	defer w.mu.Unlock()
	delete(w.backoff, channelID)
}
