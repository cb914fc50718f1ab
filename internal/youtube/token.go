package youtube

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"
)

// Token is the persisted result of a completed OAuth flow.
type Token struct {
	AccessToken  string    `json:"access_token"`
	RefreshToken string    `json:"refresh_token,omitempty"`
	ObtainedAt   time.Time `json:"obtained_at"`
}

// SaveToken writes the token to path with user-only permissions.
func SaveToken(path string, tok Token) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("create token dir: %w", err)
	}
	b, err := json.MarshalIndent(tok, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(path, b, 0o600)
}

// LoadToken reads a previously saved token. A missing file is an AuthError,
// since the fix is for the operator to authenticate.
func LoadToken(path string) (Token, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return Token{}, &AuthError{Err: errors.New("not authenticated, run `tubewatch auth` first")}
		}
		return Token{}, fmt.Errorf("read token: %w", err)
	}
	var tok Token
	if err := json.Unmarshal(b, &tok); err != nil {
		return Token{}, fmt.Errorf("parse token file %s: %w", path, err)
	}
	return tok, nil
}
