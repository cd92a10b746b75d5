package auth

import (
	"context"
	"errors"
	"testing"
	"time"

	"golang.org/x/oauth2"

	"calagent/app/core/calendar"
	"calagent/app/core/store"
)

func newTestTokens(t *testing.T) *store.TokenStore {
	t.Helper()
	database, err := store.NewSQLiteDB(t.TempDir())
	if err != nil {
		t.Fatalf("open database: %v", err)
	}
	t.Cleanup(func() { database.Close() })
	return store.NewTokenStore(database)
}

type stubClient struct{}

func (stubClient) Create(_ context.Context, ev calendar.Event) (calendar.Event, error) { return ev, nil }
func (stubClient) List(context.Context, calendar.ListFilter) ([]calendar.Event, error) {
	return nil, nil
}
func (stubClient) Update(_ context.Context, _ string, ev calendar.Event) (calendar.Event, error) {
	return ev, nil
}
func (stubClient) Delete(context.Context, string) error { return nil }

func TestClientForWithoutCredential(t *testing.T) {
	f := NewCalendarFactory(nil, newTestTokens(t))
	_, err := f.ClientFor(context.Background(), "unknown")
	if !errors.Is(err, calendar.ErrNotAuthenticated) {
		t.Fatalf("expected ErrNotAuthenticated, got: %v", err)
	}
}

func TestClientForUsesStoredCredential(t *testing.T) {
	tokens := newTestTokens(t)
	ctx := context.Background()
	tok := &oauth2.Token{AccessToken: "access-1", RefreshToken: "refresh-1", Expiry: time.Now().Add(time.Hour)}
	if err := tokens.Save(ctx, "u1", "u1@example.com", tok); err != nil {
		t.Fatalf("seed token: %v", err)
	}

	f := NewCalendarFactory(nil, tokens)
	var gotUser string
	f.newClient = func(_ context.Context, rec store.TokenRecord, _ *CalendarFactory) (calendar.Client, error) {
		gotUser = rec.UserID
		return stubClient{}, nil
	}

	client, err := f.ClientFor(ctx, "u1")
	if err != nil {
		t.Fatalf("client for failed: %v", err)
	}
	if client == nil || gotUser != "u1" {
		t.Fatalf("unexpected client construction: user=%q", gotUser)
	}
}

func TestHasCredential(t *testing.T) {
	tokens := newTestTokens(t)
	ctx := context.Background()
	f := NewCalendarFactory(nil, tokens)

	ok, err := f.HasCredential(ctx, "u1")
	if err != nil || ok {
		t.Fatalf("expected no credential, got (%v, %v)", ok, err)
	}

	tok := &oauth2.Token{AccessToken: "access-1", Expiry: time.Now().Add(time.Hour)}
	if err := tokens.Save(ctx, "u1", "", tok); err != nil {
		t.Fatalf("seed token: %v", err)
	}
	ok, err = f.HasCredential(ctx, " u1 ")
	if err != nil || !ok {
		t.Fatalf("expected credential after save, got (%v, %v)", ok, err)
	}
}

type staticSource struct {
	tok *oauth2.Token
	err error
}

func (s staticSource) Token() (*oauth2.Token, error) {
	return s.tok, s.err
}

func TestPersistingTokenSourceSavesRotation(t *testing.T) {
	rotated := &oauth2.Token{AccessToken: "access-2", Expiry: time.Now().Add(time.Hour)}
	var saved *oauth2.Token

	src := &persistingTokenSource{
		inner: staticSource{tok: rotated},
		last:  "access-1",
		save: func(tok *oauth2.Token) error {
			saved = tok
			return nil
		},
	}

	tok, err := src.Token()
	if err != nil {
		t.Fatalf("token failed: %v", err)
	}
	if tok.AccessToken != "access-2" {
		t.Fatalf("unexpected token: %q", tok.AccessToken)
	}
	if saved == nil || saved.AccessToken != "access-2" {
		t.Fatal("rotated token was not persisted")
	}

	// Same token again: no second save.
	saved = nil
	if _, err := src.Token(); err != nil {
		t.Fatalf("token failed: %v", err)
	}
	if saved != nil {
		t.Fatal("unchanged token should not be persisted again")
	}
}
