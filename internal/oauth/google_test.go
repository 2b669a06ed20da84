package oauth

import (
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStateCookieRoundTrip(t *testing.T) {
	rec := httptest.NewRecorder()
	state, err := SetStateCookie(rec)
	require.NoError(t, err)
	require.NotEmpty(t, state)

	cookies := rec.Result().Cookies()
	require.Len(t, cookies, 1)
	assert.Equal(t, state, cookies[0].Value)
	assert.True(t, cookies[0].HttpOnly)

	// Callback carrying the same state passes the check
	req := httptest.NewRequest(http.MethodGet, "/google/callback?state="+url.QueryEscape(state)+"&code=abc", nil)
	req.AddCookie(cookies[0])
	assert.NoError(t, CheckStateCookie(httptest.NewRecorder(), req))
}

func TestCheckStateCookie_mismatch(t *testing.T) {
	rec := httptest.NewRecorder()
	state, err := SetStateCookie(rec)
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodGet, "/google/callback?state=forged", nil)
	req.AddCookie(rec.Result().Cookies()[0])
	assert.Error(t, CheckStateCookie(httptest.NewRecorder(), req), "state %q must not validate against a forged parameter", state)
}

func TestCheckStateCookie_missingCookie(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/google/callback?state=x", nil)
	assert.Error(t, CheckStateCookie(httptest.NewRecorder(), req))
}

func TestAuthCodeURL(t *testing.T) {
	p := NewGoogleProvider("client-id", "client-secret", "http://localhost:8080/google/callback")
	u := p.AuthCodeURL("state-123")

	parsed, err := url.Parse(u)
	require.NoError(t, err)
	assert.Equal(t, "accounts.google.com", parsed.Host)
	assert.Equal(t, "client-id", parsed.Query().Get("client_id"))
	assert.Equal(t, "state-123", parsed.Query().Get("state"))
	scopes := parsed.Query().Get("scope")
	assert.True(t, strings.Contains(scopes, "userinfo.email"), "email scope must be requested")
	assert.True(t, strings.Contains(scopes, "userinfo.profile"), "profile scope must be requested")
}
