// Package notify delivers one-shot notifications for newly-seen videos.
// Delivery is best effort: a failed notification is logged and never retried,
// since the video is already recorded as seen.
package notify

import (
	"context"
	"fmt"

	"github.com/gen2brain/beeep"
	"github.com/rs/zerolog"

	"tubewatch/internal/store"
)

// DeliveryError wraps a failed notification attempt for a single video.
type DeliveryError struct {
	VideoID string
	Err     error
}

func (e *DeliveryError) Error() string {
	return fmt.Sprintf("notify video %s: %v", e.VideoID, e.Err)
}
func (e *DeliveryError) Unwrap() error { return e.Err }

// Sink receives exactly one notification per newly-seen video.
type Sink interface {
	Notify(ctx context.Context, v store.Video, ch store.Channel) error
}

// Desktop shows native desktop notifications.
type Desktop struct {
	log zerolog.Logger
}

// NewDesktop returns a desktop notification sink.
func NewDesktop(log zerolog.Logger) *Desktop {
	return &Desktop{log: log}
}

func (d *Desktop) Notify(_ context.Context, v store.Video, ch store.Channel) error {
	title := "New video: " + ch.DisplayName
	if ch.DisplayName == "" {
		title = "New video"
	}
	if err := beeep.Notify(title, v.Title, ""); err != nil {
		return &DeliveryError{VideoID: v.ID, Err: err}
	}
	d.log.Info().Str("channel", ch.ID).Str("video", v.ID).Str("title", v.Title).
		Msg("notified")
	return nil
}

// Log only writes new videos to the log, for headless hosts or dry runs.
type Log struct {
	log zerolog.Logger
}

// NewLog returns a log-only sink.
func NewLog(log zerolog.Logger) *Log {
	return &Log{log: log}
}

func (l *Log) Notify(_ context.Context, v store.Video, ch store.Channel) error {
	l.log.Info().Str("channel", ch.ID).Str("channel_name", ch.DisplayName).
		Str("video", v.ID).Str("title", v.Title).Str("url", v.URL).
		Time("published", v.PublishedAt).Msg("new video")
	return nil
}
