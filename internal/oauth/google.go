package oauth

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"

	"github.com/authhub/server/internal/auth"
)

const (
	stateCookieName = "oauthstate"
	userinfoURL     = "https://www.googleapis.com/oauth2/v2/userinfo"
)

// googleUserinfo is the subset of the Google userinfo response we use.
type googleUserinfo struct {
	Email string `json:"email"`
	Name  string `json:"name"`
}

// GoogleProvider drives the Google OAuth2 code flow and turns the resulting
// userinfo into an identity assertion.
type GoogleProvider struct {
	config oauth2.Config
}

// NewGoogleProvider creates a provider from client credentials.
func NewGoogleProvider(clientID, clientSecret, callbackURL string) *GoogleProvider {
	return &GoogleProvider{
		config: oauth2.Config{
			ClientID:     clientID,
			ClientSecret: clientSecret,
			RedirectURL:  callbackURL,
			Scopes: []string{
				"https://www.googleapis.com/auth/userinfo.email",
				"https://www.googleapis.com/auth/userinfo.profile",
			},
			Endpoint: google.Endpoint,
		},
	}
}

// SetStateCookie writes a random anti-forgery state cookie and returns the
// state value to embed in the consent URL.
func SetStateCookie(w http.ResponseWriter) (string, error) {
	b := make([]byte, 16)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("generate oauth state: %w", err)
	}
	state := base64.URLEncoding.EncodeToString(b)
	http.SetCookie(w, &http.Cookie{
		Name:     stateCookieName,
		Value:    state,
		Path:     "/",
		Expires:  time.Now().Add(10 * time.Minute),
		HttpOnly: true,
	})
	return state, nil
}

// CheckStateCookie compares the state query parameter against the cookie
// set before the redirect and clears the cookie.
func CheckStateCookie(w http.ResponseWriter, r *http.Request) error {
	cookie, err := r.Cookie(stateCookieName)
	if err != nil {
		return fmt.Errorf("missing oauth state cookie")
	}
	http.SetCookie(w, &http.Cookie{Name: stateCookieName, Path: "/", MaxAge: -1})
	if r.FormValue("state") != cookie.Value {
		return fmt.Errorf("oauth state mismatch")
	}
	return nil
}

// AuthCodeURL returns the provider consent-screen URL for the given state.
func (p *GoogleProvider) AuthCodeURL(state string) string {
	return p.config.AuthCodeURL(state)
}

// FetchAssertion exchanges the authorization code and fetches the userinfo
// claims the provider vouches for.
func (p *GoogleProvider) FetchAssertion(ctx context.Context, code string) (auth.Assertion, error) {
	token, err := p.config.Exchange(ctx, code)
	if err != nil {
		return auth.Assertion{}, fmt.Errorf("code exchange failed: %w", err)
	}

	client := p.config.Client(ctx, token)
	resp, err := client.Get(userinfoURL)
	if err != nil {
		return auth.Assertion{}, fmt.Errorf("fetch userinfo: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return auth.Assertion{}, fmt.Errorf("userinfo returned %d: %s", resp.StatusCode, body)
	}

	var info googleUserinfo
	if err := json.NewDecoder(resp.Body).Decode(&info); err != nil {
		return auth.Assertion{}, fmt.Errorf("decode userinfo: %w", err)
	}

	return auth.Assertion{
		Email:       info.Email,
		DisplayName: info.Name,
	}, nil
}
