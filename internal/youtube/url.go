package youtube

import (
	neturl "net/url"
	"regexp"
	"strings"
)

var (
	ytHostRe    = regexp.MustCompile(`(?i)(^|\.)youtube\.com$`)
	channelIDRe = regexp.MustCompile(`^UC[0-9A-Za-z_-]{22}$`)
)

// ExtractChannelID accepts a raw channel id ("UC...") or a channel URL
// ("https://www.youtube.com/channel/UC...") and returns the id, or "" when
// the input cannot be resolved without network access (handles like
// "@somechannel" need an API lookup).
func ExtractChannelID(s string) string {
	s = strings.TrimSpace(s)
	if channelIDRe.MatchString(s) {
		return s
	}
	parsed, err := neturl.Parse(s)
	if err != nil {
		return ""
	}
	if !ytHostRe.MatchString(strings.ToLower(parsed.Host)) {
		return ""
	}
	if strings.HasPrefix(parsed.Path, "/channel/") {
		id := strings.Trim(strings.TrimPrefix(parsed.Path, "/channel/"), "/")
		if channelIDRe.MatchString(id) {
			return id
		}
	}
	if strings.HasPrefix(parsed.Path, "/feeds/videos.xml") {
		if id := parsed.Query().Get("channel_id"); channelIDRe.MatchString(id) {
			return id
		}
	}
	return ""
}
