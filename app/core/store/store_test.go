package store

import (
	"context"
	"database/sql"
	"errors"
	"strconv"
	"testing"
	"time"

	"golang.org/x/oauth2"

	"calagent/app/core/dialogue"
)

func newTestDB(t *testing.T) *DB {
	t.Helper()
	database, err := NewSQLiteDB(t.TempDir())
	if err != nil {
		t.Fatalf("open database: %v", err)
	}
	t.Cleanup(func() { database.Close() })
	return database
}

func TestTokenStoreRoundTrip(t *testing.T) {
	s := NewTokenStore(newTestDB(t))
	ctx := context.Background()

	_, err := s.Load(ctx, "u1")
	if !errors.Is(err, sql.ErrNoRows) {
		t.Fatalf("expected sql.ErrNoRows for missing user, got: %v", err)
	}

	expiry := time.Now().Add(time.Hour).Truncate(time.Second)
	tok := &oauth2.Token{AccessToken: "access-1", RefreshToken: "refresh-1", Expiry: expiry}
	if err := s.Save(ctx, "u1", "u1@example.com", tok); err != nil {
		t.Fatalf("save failed: %v", err)
	}

	rec, err := s.Load(ctx, "u1")
	if err != nil {
		t.Fatalf("load failed: %v", err)
	}
	if rec.AccessToken != "access-1" || rec.RefreshToken != "refresh-1" || rec.Email != "u1@example.com" {
		t.Fatalf("unexpected record: %+v", rec)
	}
	if !rec.Expiry.Equal(expiry) {
		t.Fatalf("expiry = %s, want %s", rec.Expiry, expiry)
	}

	ok, err := s.Exists(ctx, "u1")
	if err != nil || !ok {
		t.Fatalf("exists = (%v, %v), want (true, nil)", ok, err)
	}
	ok, err = s.Exists(ctx, "u2")
	if err != nil || ok {
		t.Fatalf("exists = (%v, %v), want (false, nil)", ok, err)
	}
}

func TestTokenStoreUpdateKeepsRefreshToken(t *testing.T) {
	s := NewTokenStore(newTestDB(t))
	ctx := context.Background()

	first := &oauth2.Token{AccessToken: "access-1", RefreshToken: "refresh-1", Expiry: time.Now()}
	if err := s.Save(ctx, "u1", "u1@example.com", first); err != nil {
		t.Fatalf("initial save failed: %v", err)
	}

	// Rotation responses carry no refresh token and no email.
	rotated := &oauth2.Token{AccessToken: "access-2", Expiry: time.Now().Add(time.Hour)}
	if err := s.Save(ctx, "u1", "", rotated); err != nil {
		t.Fatalf("rotated save failed: %v", err)
	}

	rec, err := s.Load(ctx, "u1")
	if err != nil {
		t.Fatalf("load failed: %v", err)
	}
	if rec.AccessToken != "access-2" {
		t.Fatalf("access token not rotated: %q", rec.AccessToken)
	}
	if rec.RefreshToken != "refresh-1" {
		t.Fatalf("refresh token lost on rotation: %q", rec.RefreshToken)
	}
	if rec.Email != "u1@example.com" {
		t.Fatalf("email lost on rotation: %q", rec.Email)
	}
}

func TestTokenStoreListExpiring(t *testing.T) {
	s := NewTokenStore(newTestDB(t))
	ctx := context.Background()
	now := time.Now()

	soon := &oauth2.Token{AccessToken: "a", RefreshToken: "r", Expiry: now.Add(5 * time.Minute)}
	far := &oauth2.Token{AccessToken: "a", RefreshToken: "r", Expiry: now.Add(24 * time.Hour)}
	noRefresh := &oauth2.Token{AccessToken: "a", Expiry: now.Add(5 * time.Minute)}
	if err := s.Save(ctx, "soon", "", soon); err != nil {
		t.Fatalf("save failed: %v", err)
	}
	if err := s.Save(ctx, "far", "", far); err != nil {
		t.Fatalf("save failed: %v", err)
	}
	if err := s.Save(ctx, "norefresh", "", noRefresh); err != nil {
		t.Fatalf("save failed: %v", err)
	}

	items, err := s.ListExpiring(ctx, now.Add(15*time.Minute))
	if err != nil {
		t.Fatalf("list failed: %v", err)
	}
	if len(items) != 1 || items[0].UserID != "soon" {
		t.Fatalf("unexpected expiring set: %+v", items)
	}
}

func TestTokenStoreValidation(t *testing.T) {
	s := NewTokenStore(newTestDB(t))
	ctx := context.Background()

	if err := s.Save(ctx, "", "", &oauth2.Token{AccessToken: "a"}); err == nil {
		t.Fatal("expected error for empty user id")
	}
	if err := s.Save(ctx, "u1", "", nil); err == nil {
		t.Fatal("expected error for nil token")
	}
}

func TestSessionStoreRoundTrip(t *testing.T) {
	s := NewSessionStore(newTestDB(t))
	ctx := context.Background()

	state, found, err := s.Load(ctx, "u1")
	if err != nil {
		t.Fatalf("load failed: %v", err)
	}
	if found || state != (dialogue.SlotState{}) {
		t.Fatalf("expected IDLE state for missing row, got found=%v state=%+v", found, state)
	}

	want := dialogue.SlotState{Active: true, Subject: "Bob", Time: "3 PM", MeridiemAssumed: true}
	if err := s.Save(ctx, "u1", want); err != nil {
		t.Fatalf("save failed: %v", err)
	}

	state, found, err = s.Load(ctx, "u1")
	if err != nil || !found {
		t.Fatalf("load = (found=%v, err=%v), want row", found, err)
	}
	if state != want {
		t.Fatalf("state = %+v, want %+v", state, want)
	}

	// Upsert replaces in place.
	want.Date = "tomorrow"
	if err := s.Save(ctx, "u1", want); err != nil {
		t.Fatalf("second save failed: %v", err)
	}
	state, _, err = s.Load(ctx, "u1")
	if err != nil || state.Date != "tomorrow" {
		t.Fatalf("upsert did not apply: %+v (%v)", state, err)
	}

	if err := s.Delete(ctx, "u1"); err != nil {
		t.Fatalf("delete failed: %v", err)
	}
	_, found, err = s.Load(ctx, "u1")
	if err != nil || found {
		t.Fatalf("expected row gone, found=%v err=%v", found, err)
	}
}

func TestSchemaVersionRecorded(t *testing.T) {
	database := newTestDB(t)
	var raw string
	err := database.Conn().QueryRow(`SELECT value FROM schema_meta WHERE key = 'version'`).Scan(&raw)
	if err != nil {
		t.Fatalf("read schema version: %v", err)
	}
	if raw != strconv.Itoa(currentSchemaVersion) {
		t.Fatalf("schema version = %s, want %d", raw, currentSchemaVersion)
	}
}
