// Package auth builds authenticated HTTP clients for the Google APIs used by
// the Gmail label source and the Sheets store.
//
// Two credential shapes are accepted: an OAuth client (credentials.json plus a
// previously authorized token.json) and a service account key.
package auth

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"sync"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"
	"google.golang.org/api/gmail/v1"
	"google.golang.org/api/sheets/v4"

	"labelsync/internal/logger"
)

// DefaultScopes covers reading labelled threads, starring messages and
// appending to spreadsheets.
var DefaultScopes = []string{
	gmail.GmailModifyScope,
	sheets.SpreadsheetsScope,
}

type credentialsKind struct {
	Type string `json:"type"`
}

// NewHTTPClient returns a client that authorizes requests with the given
// credentials. For OAuth client credentials the token is read from tokenPath
// and refreshed tokens are written back to it.
func NewHTTPClient(ctx context.Context, credentialsPath, tokenPath string, logger *logger.Logger, scopes ...string) (*http.Client, error) {
	if len(scopes) == 0 {
		scopes = DefaultScopes
	}

	data, err := os.ReadFile(credentialsPath)
	if err != nil {
		return nil, fmt.Errorf("read credentials from %s: %w", credentialsPath, err)
	}

	var kind credentialsKind
	if err := json.Unmarshal(data, &kind); err != nil {
		return nil, fmt.Errorf("parse credentials: %w", err)
	}

	if kind.Type == "service_account" {
		creds, err := google.CredentialsFromJSON(ctx, data, scopes...)
		if err != nil {
			return nil, fmt.Errorf("parse service account: %w", err)
		}
		return oauth2.NewClient(ctx, creds.TokenSource), nil
	}

	config, err := google.ConfigFromJSON(data, scopes...)
	if err != nil {
		return nil, fmt.Errorf("parse credentials: %w", err)
	}

	token, err := LoadToken(tokenPath)
	if err != nil {
		return nil, fmt.Errorf("load token from %s: %w", tokenPath, err)
	}

	ts := &persistingTokenSource{
		base: config.TokenSource(ctx, token),
		path:   tokenPath,
		logger: logger,
		last:   token.AccessToken,
	}
	return oauth2.NewClient(ctx, oauth2.ReuseTokenSource(token, ts)), nil
}

// LoadToken reads an oauth2.Token stored as JSON.
func LoadToken(path string) (*oauth2.Token, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read token: %w", err)
	}

	token := &oauth2.Token{}
	if err := json.Unmarshal(data, token); err != nil {
		return nil, fmt.Errorf("parse token: %w", err)
	}
	if token.AccessToken == "" && token.RefreshToken == "" {
		return nil, fmt.Errorf("token has neither access nor refresh token")
	}
	return token, nil
}

// SaveToken writes token as JSON readable only by the owner.
func SaveToken(path string, token *oauth2.Token) error {
	data, err := json.MarshalIndent(token, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o600)
}

// persistingTokenSource writes the token back to disk whenever the access
// token changes.
type persistingTokenSource struct {
	base   oauth2.TokenSource
	path   string
	logger *logger.Logger

	mu   sync.Mutex
	last string
}

func (s *persistingTokenSource) Token() (*oauth2.Token, error) {
	token, err := s.base.Token()
	if err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if token.AccessToken != s.last {
		if err := SaveToken(s.path, token); err != nil {
			// Non-fatal: the in-memory token is still valid.
			s.logger.Warnf("Could not save refreshed token to %s: %v", s.path, err)
		}
		s.last = token.AccessToken
	}
	return token, nil
}
