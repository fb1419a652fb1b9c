package auth

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"sync"
	"time"

	"golang.org/x/oauth2"

	"runcoach/internal/store"
)

// LinkTimeout is how long a user has to complete the Strava consent screen
const LinkTimeout = 10 * time.Minute

// ErrInvalidState is returned for unknown or expired OAuth states
var ErrInvalidState = errors.New("invalid or expired oauth state")

// AuthSaver stores linked tokens
type AuthSaver interface {
	SaveAuth(ctx context.Context, a *store.Auth) error
}

type pendingLink struct {
	userID  int64
	expires time.Time
}

// Linker runs the authorization-code flow for users linking Strava
type Linker struct {
	config *oauth2.Config
	store  AuthSaver

	mu      sync.Mutex
	pending map[string]pendingLink
}

// NewLinker creates a linker
func NewLinker(cfg *oauth2.Config, s AuthSaver) *Linker {
	return &Linker{config: cfg, store: s, pending: make(map[string]pendingLink)}
}

// AuthCodeURL returns the consent URL for a user. The embedded state is single use.
func (l *Linker) AuthCodeURL(userID int64) (string, error) {
	// Generate state for CSRF protection
	state, err := generateState()
	if err != nil {
		return "", fmt.Errorf("generating state: %w", err)
	}

	l.mu.Lock()
	now := time.Now()
	for s, p := range l.pending {
		if now.After(p.expires) {
			delete(l.pending, s)
		}
	}
	l.pending[state] = pendingLink{userID: userID, expires: now.Add(LinkTimeout)}
	l.mu.Unlock()

	return l.config.AuthCodeURL(state, oauth2.AccessTypeOffline), nil
}

// Complete exchanges the callback code and stores the user's tokens
func (l *Linker) Complete(ctx context.Context, state, code string) (int64, error) {
	l.mu.Lock()
	p, ok := l.pending[state]
	delete(l.pending, state)
	l.mu.Unlock()

	if !ok || time.Now().After(p.expires) {
		return 0, ErrInvalidState
	}
	if code == "" {
		return 0, errors.New("no code in callback")
	}

	// Exchange code for token
	token, err := l.config.Exchange(ctx, code)
	if err != nil {
		return 0, fmt.Errorf("exchanging code for token: %w", err)
	}

	if err := l.store.SaveAuth(ctx, AuthFromToken(p.userID, ExtractAthleteID(token), token)); err != nil {
		return 0, fmt.Errorf("saving tokens: %w", err)
	}
	return p.userID, nil
}

// generateState creates a random state string for CSRF protection
func generateState() (string, error) {
	b := make([]byte, 16)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return hex.EncodeToString(b), nil
}
