// Package presence guesses whether the user is likely looking at YouTube
// right now, by checking for a running browser process. The signal is purely
// advisory: it only nudges the trigger loop to wake, it never affects which
// videos count as new.
package presence

import (
	"context"
	"strings"

	"github.com/rs/zerolog"
	"github.com/shirou/gopsutil/v4/process"
)

// DefaultBrowsers are the process names treated as "a browser is open".
var DefaultBrowsers = []string{
	"chrome", "firefox", "msedge", "safari", "opera", "brave", "vivaldi", "chromium",
}

// BrowserSignal reports activity when any known browser process is running.
// Tab-level inspection would need a browser extension, so a running browser
// is taken as "maybe watching".
type BrowserSignal struct {
	browsers []string
	log      zerolog.Logger
}

// NewBrowserSignal builds a signal for the given process names; nil falls
// back to DefaultBrowsers.
func NewBrowserSignal(browsers []string, log zerolog.Logger) *BrowserSignal {
	if len(browsers) == 0 {
		browsers = DefaultBrowsers
	}
	lowered := make([]string, len(browsers))
	for i, b := range browsers {
		lowered[i] = strings.ToLower(strings.TrimSpace(b))
	}
	return &BrowserSignal{browsers: lowered, log: log}
}

// Active scans the process table for a browser. Errors degrade to false;
// a missed wake-up only delays the next timer-driven check.
func (s *BrowserSignal) Active(ctx context.Context) bool {
	procs, err := process.ProcessesWithContext(ctx)
	if err != nil {
		s.log.Debug().Err(err).Msg("process scan failed")
		return false
	}
	for _, p := range procs {
		name, err := p.NameWithContext(ctx)
		if err != nil {
			continue
		}
		name = strings.ToLower(name)
		for _, b := range s.browsers {
			if strings.Contains(name, b) {
				return true
			}
		}
	}
	return false
}
