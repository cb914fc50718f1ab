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

// OAuthConfig configures the token-acquisition flow. The relay service hosts
// the Google OAuth client secret so the CLI never needs one locally.
type OAuthConfig struct {
	BaseURL        string
	RequestTimeout time.Duration
}

// OAuthInitiateResponse is the start of a browser-based auth flow.
type OAuthInitiateResponse struct {
	AuthURL string
	FlowID  string
}

// OAuthPollResponse is the outcome of polling a pending flow.
type OAuthPollResponse struct {
	Status       string `json:"status"`
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
	Error        string `json:"error"`
}

// OAuthService drives the initiate/poll flow against the relay.
type OAuthService struct {
	client *httpclient.Client
	config OAuthConfig
}

// NewOAuthService creates an OAuth client for the given relay.
func NewOAuthService(cfg OAuthConfig) (*OAuthService, error) {
	if strings.TrimSpace(cfg.BaseURL) == "" {
		return nil, &AuthError{Err: errors.New("auth.service_url is not configured")}
	}
	if cfg.RequestTimeout <= 0 {
		cfg.RequestTimeout = 180 * time.Second
	}
	return &OAuthService{client: httpclient.New(cfg.RequestTimeout), config: cfg}, nil
}

// Initiate asks the relay for an authorization URL the user opens in a
// browser, plus a flow id to poll with.
func (s *OAuthService) Initiate(ctx context.Context) (*OAuthInitiateResponse, error) {
	resp, err := s.client.Get(ctx, strings.TrimRight(s.config.BaseURL, "/")+"/auth/initiate", nil)
	if err != nil {
		return nil, fmt.Errorf("initiate OAuth: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, &AuthError{Err: fmt.Errorf("OAuth initiate failed with status %d", resp.StatusCode)}
	}

	var data map[string]any
	if err := json.NewDecoder(resp.Body).Decode(&data); err != nil {
		return nil, fmt.Errorf("decode OAuth response: %w", err)
	}
	getStr := func(keys ...string) string {
		for _, k := range keys {
			if s, ok := data[k].(string); ok && strings.TrimSpace(s) != "" {
				return s
			}
		}
		return ""
	}
	out := &OAuthInitiateResponse{
		AuthURL: getStr("auth_url", "authorization_url", "url"),
		FlowID:  getStr("flow_id", "session_id", "id", "state"),
	}
	if out.AuthURL == "" || out.FlowID == "" {
		return nil, &AuthError{Err: errors.New("missing auth_url or flow_id in OAuth response")}
	}
	return out, nil
}

// Poll waits for the user to finish the browser flow and returns the tokens.
func (s *OAuthService) Poll(ctx context.Context, flowID string, timeout time.Duration) (*OAuthPollResponse, error) {
	deadline := time.Now().Add(timeout)
	pollURL := strings.TrimRight(s.config.BaseURL, "/") + "/auth/poll/" + url.PathEscape(flowID)

	for time.Now().Before(deadline) {
		if err := sleepCtx(ctx, 2*time.Second); err != nil {
			return nil, err
		}
		resp, err := s.client.Get(ctx, pollURL, nil)
		if err != nil {
			continue
		}
		if resp.StatusCode < 200 || resp.StatusCode >= 300 {
			resp.Body.Close()
			continue
		}
		var poll OAuthPollResponse
		err = json.NewDecoder(resp.Body).Decode(&poll)
		resp.Body.Close()
		if err != nil {
			continue
		}
		if strings.TrimSpace(poll.AccessToken) != "" {
			return &poll, nil
		}
		if strings.TrimSpace(poll.Error) != "" {
			return nil, &AuthError{Err: fmt.Errorf("OAuth flow failed: %s", poll.Error)}
		}
	}
	return nil, &AuthError{Err: errors.New("OAuth polling timed out")}
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
