package auth

import (
	"context"
	"database/sql"
	"fmt"
	"log"
	"strings"
	"sync"
	"time"

	"golang.org/x/oauth2"

	"calagent/app/core/calendar"
	"calagent/app/core/store"
)

// CalendarFactory builds per-user calendar clients from stored credentials.
// Refreshed tokens are written back so the table never goes stale.
type CalendarFactory struct {
	oauth  *OAuth
	tokens *store.TokenStore

	// newClient is swapped in tests to avoid real Google transport.
	newClient func(ctx context.Context, rec store.TokenRecord, factory *CalendarFactory) (calendar.Client, error)
}

func NewCalendarFactory(oauth *OAuth, tokens *store.TokenStore) *CalendarFactory {
	f := &CalendarFactory{oauth: oauth, tokens: tokens}
	f.newClient = func(ctx context.Context, rec store.TokenRecord, factory *CalendarFactory) (calendar.Client, error) {
		return calendar.NewGoogleClient(ctx, factory.persistingSource(ctx, rec))
	}
	return f
}

// ClientFor implements calendar.ClientFactory.
func (f *CalendarFactory) ClientFor(ctx context.Context, userID string) (calendar.Client, error) {
	rec, err := f.tokens.Load(ctx, strings.TrimSpace(userID))
	if err == sql.ErrNoRows {
		return nil, calendar.ErrNotAuthenticated
	}
	if err != nil {
		return nil, fmt.Errorf("load credential: %w", err)
	}
	return f.newClient(ctx, rec, f)
}

// HasCredential is the identity gate: the agent never touches the dialogue
// machine for users without a stored credential.
func (f *CalendarFactory) HasCredential(ctx context.Context, userID string) (bool, error) {
	return f.tokens.Exists(ctx, strings.TrimSpace(userID))
}

// RefreshExpiring refreshes every credential expiring before now+within and
// persists the result. Failures are per-user; one broken refresh token does
// not stop the sweep.
func (f *CalendarFactory) RefreshExpiring(ctx context.Context, within time.Duration) error {
	records, err := f.tokens.ListExpiring(ctx, time.Now().Add(within))
	if err != nil {
		return fmt.Errorf("list expiring tokens: %w", err)
	}

	var failed int
	for _, rec := range records {
		fresh, err := f.oauth.TokenSource(ctx, rec.Token()).Token()
		if err != nil {
			failed++
			log.Printf("[Auth] Token refresh failed for user=%s: %v", rec.UserID, err)
			continue
		}
		if err := f.tokens.Save(ctx, rec.UserID, rec.Email, fresh); err != nil {
			failed++
			log.Printf("[Auth] Failed to persist refreshed token for user=%s: %v", rec.UserID, err)
		}
	}
	if failed > 0 {
		return fmt.Errorf("token refresh: %d of %d failed", failed, len(records))
	}
	return nil
}

// persistingSource wraps the refreshing source so rotated access tokens end
// up back in the store.
func (f *CalendarFactory) persistingSource(ctx context.Context, rec store.TokenRecord) oauth2.TokenSource {
	return &persistingTokenSource{
		inner: f.oauth.TokenSource(ctx, rec.Token()),
		last:  rec.AccessToken,
		save: func(tok *oauth2.Token) error {
			return f.tokens.Save(ctx, rec.UserID, rec.Email, tok)
		},
	}
}

type persistingTokenSource struct {
	mu    sync.Mutex
	inner oauth2.TokenSource
	last  string
	save  func(*oauth2.Token) error
}

func (s *persistingTokenSource) Token() (*oauth2.Token, error) {
	tok, err := s.inner.Token()
	if err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if tok.AccessToken != s.last {
		if err := s.save(tok); err != nil {
			log.Printf("[Auth] Failed to persist rotated token: %v", err)
		} else {
			s.last = tok.AccessToken
		}
	}
	return tok, nil
}
