package auth

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/oauth2"

	"labelsync/internal/logger"
)

const oauthClientJSON = `{
  "installed": {
    "client_id": "client-id.apps.googleusercontent.com",
    "client_secret": "secret",
    "auth_uri": "https://accounts.google.com/o/oauth2/auth",
    "token_uri": "https://oauth2.googleapis.com/token",
    "redirect_uris": ["http://localhost"]
  }
}`

func TestSaveAndLoadToken(t *testing.T) {
	path := filepath.Join(t.TempDir(), "token.json")
	expiry := time.Date(2030, 1, 2, 3, 4, 5, 0, time.UTC)

	require.NoError(t, SaveToken(path, &oauth2.Token{
		AccessToken:  "access",
		RefreshToken: "refresh",
		TokenType:    "Bearer",
		Expiry:       expiry,
	}))

	info, err := os.Stat(path)
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0o600), info.Mode().Perm())

	token, err := LoadToken(path)
	require.NoError(t, err)
	assert.Equal(t, "access", token.AccessToken)
	assert.Equal(t, "refresh", token.RefreshToken)
	assert.True(t, expiry.Equal(token.Expiry))
}

func TestLoadTokenRejectsEmptyToken(t *testing.T) {
	path := filepath.Join(t.TempDir(), "token.json")
	require.NoError(t, os.WriteFile(path, []byte(`{}`), 0o600))

	_, err := LoadToken(path)
	assert.Error(t, err)
}

func TestNewHTTPClientWithOAuthClient(t *testing.T) {
	dir := t.TempDir()
	credPath := filepath.Join(dir, "credentials.json")
	tokenPath := filepath.Join(dir, "token.json")
	require.NoError(t, os.WriteFile(credPath, []byte(oauthClientJSON), 0o600))
	require.NoError(t, SaveToken(tokenPath, &oauth2.Token{
		AccessToken: "still-valid",
		TokenType:   "Bearer",
		Expiry:      time.Now().Add(time.Hour),
	}))

	client, err := NewHTTPClient(context.Background(), credPath, tokenPath, logger.Discard())
	require.NoError(t, err)
	assert.NotNil(t, client)
}

func TestNewHTTPClientMissingToken(t *testing.T) {
	dir := t.TempDir()
	credPath := filepath.Join(dir, "credentials.json")
	require.NoError(t, os.WriteFile(credPath, []byte(oauthClientJSON), 0o600))

	_, err := NewHTTPClient(context.Background(), credPath, filepath.Join(dir, "missing.json"), logger.Discard())
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "load token")
}

func TestNewHTTPClientMissingCredentials(t *testing.T) {
	_, err := NewHTTPClient(context.Background(), filepath.Join(t.TempDir(), "nope.json"), "", logger.Discard())
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "read credentials")
}

func TestRefreshedTokenSaveFailureIsLogged(t *testing.T) {
	// Setup
	var buf bytes.Buffer
	source := &persistingTokenSource{
		base:   oauth2.StaticTokenSource(&oauth2.Token{AccessToken: "refreshed", TokenType: "Bearer"}),
		path:   filepath.Join(t.TempDir(), "missing-dir", "token.json"),
		logger: logger.NewWithWriter(&buf),
		last:   "expired",
	}

	// Execute
	token, err := source.Token()

	// Verify
	require.NoError(t, err)
	assert.Equal(t, "refreshed", token.AccessToken)
	assert.Contains(t, buf.String(), "Could not save refreshed token")
}

func TestRefreshedTokenIsSaved(t *testing.T) {
	// Setup
	path := filepath.Join(t.TempDir(), "token.json")
	source := &persistingTokenSource{
		base:   oauth2.StaticTokenSource(&oauth2.Token{AccessToken: "refreshed", TokenType: "Bearer"}),
		path:   path,
		logger: logger.Discard(),
		last:   "expired",
	}

	// Execute
	_, err := source.Token()

	// Verify
	require.NoError(t, err)
	saved, err := LoadToken(path)
	require.NoError(t, err)
	assert.Equal(t, "refreshed", saved.AccessToken)
}
