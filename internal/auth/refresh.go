package auth

import (
	"context"
	"fmt"
	"sync"
	"time"

	"golang.org/x/oauth2"

	"runcoach/internal/store"
)

// refreshBuffer refreshes tokens this long before they expire
const refreshBuffer = 60 * time.Second

// TokenStore persists per-user tokens
type TokenStore interface {
	GetAuth(ctx context.Context, userID int64) (*store.Auth, error)
	UpdateTokens(ctx context.Context, userID int64, accessToken, refreshToken string, expiresAt time.Time) error
}

// TokenSource wraps oauth2.TokenSource with persistence
// It automatically refreshes tokens and calls onRefresh when a new token is obtained
type TokenSource struct {
	config    *oauth2.Config
	token     *oauth2.Token
	onRefresh func(*oauth2.Token) error
	mu        sync.Mutex
}

// NewTokenSource creates a new TokenSource that will refresh tokens as needed
// and call onRefresh to persist new tokens
func NewTokenSource(cfg *oauth2.Config, token *oauth2.Token, onRefresh func(*oauth2.Token) error) *TokenSource {
	return &TokenSource{
		config:    cfg,
		token:     token,
		onRefresh: onRefresh,
	}
}

// UserTokenSource loads a user's stored tokens and persists every refresh back to the store.
// store.ErrNoAuth is returned when the user has not linked Strava.
func UserTokenSource(ctx context.Context, cfg *oauth2.Config, s TokenStore, userID int64) (*TokenSource, error) {
	a, err := s.GetAuth(ctx, userID)
	if err != nil {
		return nil, err
	}
	persist := func(t *oauth2.Token) error {
		// Detached so a refresh mid-request still persists
		wctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
		defer cancel()
		if err := s.UpdateTokens(wctx, userID, t.AccessToken, t.RefreshToken, t.Expiry); err != nil {
			return fmt.Errorf("persisting refreshed token: %w", err)
		}
		return nil
	}
	return NewTokenSource(cfg, TokenFromAuth(a), persist), nil
}

// Token returns a valid token, refreshing if necessary
func (ts *TokenSource) Token() (*oauth2.Token, error) {
	ts.mu.Lock()
	defer ts.mu.Unlock()

	if time.Until(ts.token.Expiry) > refreshBuffer {
		return ts.token, nil
	}

	// Force the refresh: the oauth2 source would reuse a token it still considers valid
	expired := *ts.token
	expired.Expiry = time.Now().Add(-time.Second)
	newToken, err := ts.config.TokenSource(context.Background(), &expired).Token()
	if err != nil {
		return nil, fmt.Errorf("refreshing token: %w", err)
	}

	if ts.onRefresh != nil {
		if err := ts.onRefresh(newToken); err != nil {
			return nil, err
		}
	}

	ts.token = newToken
	return newToken, nil
}

// IsExpired checks if the current token is expired or will expire within the buffer
func (ts *TokenSource) IsExpired() bool {
	ts.mu.Lock()
	defer ts.mu.Unlock()
	return time.Until(ts.token.Expiry) <= refreshBuffer
}
