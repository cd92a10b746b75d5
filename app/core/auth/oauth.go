package auth

import (
	"context"
	"fmt"
	"strings"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"
	oauth2api "google.golang.org/api/oauth2/v2"
	"google.golang.org/api/option"
)

// Scopes requested on login: calendar read/write plus enough identity to key
// the token row by the Google account.
var Scopes = []string{
	"https://www.googleapis.com/auth/calendar",
	"openid",
	"https://www.googleapis.com/auth/userinfo.email",
}

// OAuth wraps the Google web consent flow.
type OAuth struct {
	cfg *oauth2.Config
}

func NewOAuth(clientID, clientSecret, redirectURL string) (*OAuth, error) {
	if strings.TrimSpace(clientID) == "" || strings.TrimSpace(clientSecret) == "" {
		return nil, fmt.Errorf("google client id and secret are required")
	}
	return &OAuth{
		cfg: &oauth2.Config{
			ClientID:     clientID,
			ClientSecret: clientSecret,
			RedirectURL:  redirectURL,
			Scopes:       Scopes,
			Endpoint:     google.Endpoint,
		},
	}, nil
}

// AuthCodeURL builds the consent URL. Offline access plus forced consent so a
// refresh token is issued every time, matching the token table's upsert.
func (o *OAuth) AuthCodeURL(state string) string {
	return o.cfg.AuthCodeURL(state,
		oauth2.AccessTypeOffline,
		oauth2.SetAuthURLParam("prompt", "consent"),
		oauth2.SetAuthURLParam("include_granted_scopes", "true"),
	)
}

func (o *OAuth) Exchange(ctx context.Context, code string) (*oauth2.Token, error) {
	tok, err := o.cfg.Exchange(ctx, code)
	if err != nil {
		return nil, fmt.Errorf("oauth exchange: %w", err)
	}
	return tok, nil
}

// TokenSource returns a refreshing source for the stored token.
func (o *OAuth) TokenSource(ctx context.Context, tok *oauth2.Token) oauth2.TokenSource {
	return o.cfg.TokenSource(ctx, tok)
}

// UserInfo resolves the Google account id and email for a fresh token.
func (o *OAuth) UserInfo(ctx context.Context, tok *oauth2.Token) (string, string, error) {
	svc, err := oauth2api.NewService(ctx, option.WithTokenSource(oauth2.StaticTokenSource(tok)))
	if err != nil {
		return "", "", fmt.Errorf("userinfo service: %w", err)
	}
	info, err := svc.Userinfo.Get().Context(ctx).Do()
	if err != nil {
		return "", "", fmt.Errorf("userinfo get: %w", err)
	}
	return info.Id, info.Email, nil
}
