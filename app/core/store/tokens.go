package store

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"golang.org/x/oauth2"
)

// TokenRecord is one stored OAuth credential, keyed by the provider user id.
type TokenRecord struct {
	UserID       string
	Email        string
	AccessToken  string
	RefreshToken string
	Expiry       time.Time
	UpdatedAt    time.Time
}

func (r TokenRecord) Token() *oauth2.Token {
	return &oauth2.Token{
		AccessToken:  r.AccessToken,
		RefreshToken: r.RefreshToken,
		Expiry:       r.Expiry,
		TokenType:    "Bearer",
	}
}

type TokenStore struct {
	db *DB
}

func NewTokenStore(database *DB) *TokenStore {
	return &TokenStore{db: database}
}

// Save upserts the credential row. An empty refresh token on update keeps the
// previously stored one, since Google only returns it on the first consent.
func (s *TokenStore) Save(ctx context.Context, userID string, email string, tok *oauth2.Token) error {
	userID = strings.TrimSpace(userID)
	if userID == "" {
		return fmt.Errorf("user_id is required")
	}
	if tok == nil || tok.AccessToken == "" {
		return fmt.Errorf("token is required")
	}
	query := `INSERT INTO user_tokens (user_id, email, access_token, refresh_token, expiry, updated_at)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(user_id) DO UPDATE SET
			email = CASE WHEN excluded.email != '' THEN excluded.email ELSE user_tokens.email END,
			access_token = excluded.access_token,
			refresh_token = CASE WHEN excluded.refresh_token != '' THEN excluded.refresh_token ELSE user_tokens.refresh_token END,
			expiry = excluded.expiry,
			updated_at = excluded.updated_at`
	_, err := s.db.Conn().ExecContext(ctx, query,
		userID, strings.TrimSpace(email), tok.AccessToken, tok.RefreshToken, tok.Expiry.Unix(), time.Now().Unix())
	return err
}

// Load returns the stored credential, or sql.ErrNoRows when the user has none.
func (s *TokenStore) Load(ctx context.Context, userID string) (TokenRecord, error) {
	query := `SELECT user_id, email, access_token, refresh_token, expiry, updated_at FROM user_tokens WHERE user_id = ?`
	var (
		rec    TokenRecord
		expiry int64
		upd    int64
	)
	err := s.db.Conn().QueryRowContext(ctx, query, strings.TrimSpace(userID)).Scan(
		&rec.UserID, &rec.Email, &rec.AccessToken, &rec.RefreshToken, &expiry, &upd)
	if err != nil {
		return TokenRecord{}, err
	}
	rec.Expiry = time.Unix(expiry, 0)
	rec.UpdatedAt = time.Unix(upd, 0)
	return rec, nil
}

func (s *TokenStore) Exists(ctx context.Context, userID string) (bool, error) {
	var one int
	err := s.db.Conn().QueryRowContext(ctx,
		`SELECT 1 FROM user_tokens WHERE user_id = ?`, strings.TrimSpace(userID)).Scan(&one)
	if err == sql.ErrNoRows {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

func (s *TokenStore) Delete(ctx context.Context, userID string) error {
	_, err := s.db.Conn().ExecContext(ctx,
		`DELETE FROM user_tokens WHERE user_id = ?`, strings.TrimSpace(userID))
	return err
}

// ListExpiring returns credentials whose expiry falls before the cutoff and
// that still carry a refresh token.
func (s *TokenStore) ListExpiring(ctx context.Context, cutoff time.Time) ([]TokenRecord, error) {
	query := `SELECT user_id, email, access_token, refresh_token, expiry, updated_at
		FROM user_tokens WHERE expiry <= ? AND refresh_token != '' ORDER BY expiry ASC`
	rows, err := s.db.Conn().QueryContext(ctx, query, cutoff.Unix())
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var items []TokenRecord
	for rows.Next() {
		var (
			rec    TokenRecord
			expiry int64
			upd    int64
		)
		if err := rows.Scan(&rec.UserID, &rec.Email, &rec.AccessToken, &rec.RefreshToken, &expiry, &upd); err != nil {
			return nil, err
		}
		rec.Expiry = time.Unix(expiry, 0)
		rec.UpdatedAt = time.Unix(upd, 0)
		items = append(items, rec)
	}
	return items, rows.Err()
}
