// Package youtube talks to the YouTube Data API for subscription sync and to
// the OAuth relay that brokers token acquisition. Only the channel registry
// sync depends on it; the polling core never calls the API.
package youtube

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"tubewatch/internal/httpclient"
)

// AuthError signals invalid or expired credentials during subscription sync.
// It is surfaced to the operator and never retried automatically.
type AuthError struct {
	Err error
}

func (e *AuthError) Error() string { return fmt.Sprintf("youtube auth: %v", e.Err) }
func (e *AuthError) Unwrap() error { return e.Err }

// Channel is a subscribed YouTube channel as reported by the API.
type Channel struct {
	ID    string `json:"id"`
	Title string `json:"title"`
}

const defaultAPIBaseURL = "https://www.googleapis.com/youtube/v3"

// SubscriptionsService lists the authenticated user's subscriptions.
type SubscriptionsService struct {
	client  *httpclient.Client
	baseURL string
}

// SubscriptionsOption configures the service.
type SubscriptionsOption func(*SubscriptionsService)

// WithAPIBaseURL overrides the API host, used by tests.
func WithAPIBaseURL(u string) SubscriptionsOption {
	return func(s *SubscriptionsService) { s.baseURL = strings.TrimRight(u, "/") }
}

// NewSubscriptionsService creates a subscriptions client.
func NewSubscriptionsService(opts ...SubscriptionsOption) *SubscriptionsService {
	s := &SubscriptionsService{
		client:  httpclient.New(20 * time.Second),
		baseURL: defaultAPIBaseURL,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// FetchSubscriptions pages through the user's subscriptions and returns every
// channel. A 401/403 response becomes an *AuthError.
func (s *SubscriptionsService) FetchSubscriptions(ctx context.Context, accessToken string) ([]Channel, error) {
	if strings.TrimSpace(accessToken) == "" {
		return nil, &AuthError{Err: errors.New("no access token, run `tubewatch auth` first")}
	}

	var channels []Channel
	pageToken := ""
	for {
		requestURL := s.baseURL + "/subscriptions?mine=true&part=snippet&maxResults=50"
		if pageToken != "" {
			requestURL += "&pageToken=" + url.QueryEscape(pageToken)
		}

		resp, err := s.client.Get(ctx, requestURL, map[string]string{
			"Authorization": "Bearer " + accessToken,
		})
		if err != nil {
			return nil, fmt.Errorf("fetch subscriptions: %w", err)
		}

		if resp.StatusCode == 401 || resp.StatusCode == 403 {
			resp.Body.Close()
			return nil, &AuthError{Err: fmt.Errorf("API request rejected with status %d", resp.StatusCode)}
		}
		if resp.StatusCode < 200 || resp.StatusCode >= 300 {
			resp.Body.Close()
			return nil, fmt.Errorf("API request failed with status %d", resp.StatusCode)
		}

		var page struct {
			NextPageToken string `json:"nextPageToken"`
			Items         []struct {
				Snippet struct {
					Title      string `json:"title"`
					ResourceID struct {
						ChannelID string `json:"channelId"`
					} `json:"resourceId"`
				} `json:"snippet"`
			} `json:"items"`
		}
		err = json.NewDecoder(resp.Body).Decode(&page)
		resp.Body.Close()
		if err != nil {
			return nil, fmt.Errorf("decode subscriptions: %w", err)
		}

		for _, item := range page.Items {
			id := strings.TrimSpace(item.Snippet.ResourceID.ChannelID)
			title := strings.TrimSpace(item.Snippet.Title)
			if id != "" {
				channels = append(channels, Channel{ID: id, Title: title})
			}
		}

		if strings.TrimSpace(page.NextPageToken) == "" {
			break
		}
		pageToken = page.NextPageToken
	}
	return channels, nil
}
