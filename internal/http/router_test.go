package http_test

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/authhub/server/internal/auth"
	authhttp "github.com/authhub/server/internal/http"
	"github.com/authhub/server/internal/http/handlers"
	"github.com/authhub/server/internal/mailer"
	"github.com/authhub/server/internal/repo"
)

type testServer struct {
	*httptest.Server
	users *repo.MemoryUserRepo
}

// failingSender simulates an unreachable mail relay.
type failingSender struct{}

func (failingSender) Send(to, subject, body string) error {
	return errors.New("smtp unreachable")
}

func newTestServer(t *testing.T) *testServer {
	return newTestServerWith(t, mailer.LogSender{})
}

func newTestServerWith(t *testing.T, sender mailer.Sender) *testServer {
	t.Helper()

	users := repo.NewMemoryUserRepo()
	jwtService := auth.NewJWTService("test-jwt-secret-at-least-32-characters", time.Hour)
	authService := auth.NewAuthService(users, jwtService, sender)
	authHandler := handlers.NewAuthHandler(authService, nil)

	router := authhttp.NewRouter(authHandler, jwtService, users)
	server := httptest.NewServer(router)
	t.Cleanup(server.Close)

	return &testServer{Server: server, users: users}
}

func (ts *testServer) postJSON(t *testing.T, path string, body map[string]string) (*http.Response, map[string]any) {
	t.Helper()
	payload, err := json.Marshal(body)
	require.NoError(t, err)
	resp, err := ts.Client().Post(ts.URL+path, "application/json", bytes.NewReader(payload))
	require.NoError(t, err)
	t.Cleanup(func() { resp.Body.Close() })

	raw, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	var decoded map[string]any
	require.NoError(t, json.Unmarshal(raw, &decoded), "response must be JSON; body: %s", raw)
	return resp, decoded
}

// otpFor reads the pending code straight from the store; the log mailer
// does not deliver anywhere a test can reach.
func (ts *testServer) otpFor(t *testing.T, email string) string {
	t.Helper()
	user, err := ts.users.GetByEmail(context.Background(), email)
	require.NoError(t, err)
	require.True(t, user.HasPendingOTP())
	return *user.OTPCode
}

func TestHealth(t *testing.T) {
	ts := newTestServer(t)
	resp, err := ts.Client().Get(ts.URL + "/health")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestSignupVerifyLoginFlow(t *testing.T) {
	ts := newTestServer(t)

	// signup
	resp, body := ts.postJSON(t, "/signup", map[string]string{
		"username": "alice", "email": "a@x.com", "password": "Secret1!",
	})
	assert.Equal(t, http.StatusCreated, resp.StatusCode)
	assert.Equal(t, "a@x.com", body["email"])

	// login before verification is refused with a distinct message
	resp, body = ts.postJSON(t, "/login", map[string]string{
		"email": "a@x.com", "password": "Secret1!",
	})
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)
	assert.Contains(t, body["error"], "verify")

	// wrong OTP
	code := ts.otpFor(t, "a@x.com")
	wrong := "000000"
	if wrong == code {
		wrong = "000001"
	}
	resp, body = ts.postJSON(t, "/verify-otp", map[string]string{
		"email": "a@x.com", "otp": wrong,
	})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	assert.Equal(t, "invalid or expired OTP", body["error"])

	// correct OTP
	resp, _ = ts.postJSON(t, "/verify-otp", map[string]string{
		"email": "a@x.com", "otp": code,
	})
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	// replayed OTP fails with the same message
	resp, body = ts.postJSON(t, "/verify-otp", map[string]string{
		"email": "a@x.com", "otp": code,
	})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	assert.Equal(t, "invalid or expired OTP", body["error"])

	// login
	resp, body = ts.postJSON(t, "/login", map[string]string{
		"email": "a@x.com", "password": "Secret1!",
	})
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	require.NotEmpty(t, body["token"])

	// wrong password
	resp, body = ts.postJSON(t, "/login", map[string]string{
		"email": "a@x.com", "password": "WrongPass",
	})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	assert.Equal(t, "invalid credentials", body["error"])

	// nonexistent email gets the identical message
	resp, body = ts.postJSON(t, "/login", map[string]string{
		"email": "ghost@x.com", "password": "whatever",
	})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	assert.Equal(t, "invalid credentials", body["error"])
}

func TestSignup_missingFields(t *testing.T) {
	ts := newTestServer(t)
	resp, body := ts.postJSON(t, "/signup", map[string]string{
		"username": "alice", "email": "a@x.com",
	})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	assert.Equal(t, "all fields are required", body["error"])
}

func TestSignup_duplicateEmail(t *testing.T) {
	ts := newTestServer(t)

	resp, _ := ts.postJSON(t, "/signup", map[string]string{
		"username": "alice", "email": "a@x.com", "password": "Secret1!",
	})
	require.Equal(t, http.StatusCreated, resp.StatusCode)

	resp, body := ts.postJSON(t, "/signup", map[string]string{
		"username": "mallory", "email": "a@x.com", "password": "Other1!",
	})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	assert.Equal(t, "user already exists", body["error"])
}

func TestSignup_notificationFailure(t *testing.T) {
	ts := newTestServerWith(t, failingSender{})

	resp, body := ts.postJSON(t, "/signup", map[string]string{
		"username": "alice", "email": "a@x.com", "password": "Secret1!",
	})
	assert.Equal(t, http.StatusInternalServerError, resp.StatusCode)
	assert.Equal(t,
		"User created but failed to send verification email. Please contact support.",
		body["error"], "the partial-success state must be reported explicitly")

	// The identity persists in pending state.
	user, err := ts.users.GetByEmail(context.Background(), "a@x.com")
	require.NoError(t, err)
	assert.False(t, user.IsVerified)
	assert.True(t, user.HasPendingOTP())
}

func TestRegisterWithoutVerification(t *testing.T) {
	ts := newTestServer(t)

	resp, body := ts.postJSON(t, "/register", map[string]string{
		"username": "bob", "email": "b@x.com", "password": "Secret1!",
	})
	assert.Equal(t, http.StatusCreated, resp.StatusCode)
	token, _ := body["token"].(string)
	require.NotEmpty(t, token)
	user, ok := body["user"].(map[string]any)
	require.True(t, ok)
	assert.Equal(t, true, user["verified"])

	// The issued token is accepted by the protected route
	req, err := http.NewRequest(http.MethodGet, ts.URL+"/me", nil)
	require.NoError(t, err)
	req.Header.Set("Authorization", "Bearer "+token)
	meResp, err := ts.Client().Do(req)
	require.NoError(t, err)
	defer meResp.Body.Close()
	assert.Equal(t, http.StatusOK, meResp.StatusCode)

	var me map[string]any
	require.NoError(t, json.NewDecoder(meResp.Body).Decode(&me))
	assert.Equal(t, "b@x.com", me["email"])
}

func TestMe_requiresToken(t *testing.T) {
	ts := newTestServer(t)

	resp, err := ts.Client().Get(ts.URL + "/me")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	req, err := http.NewRequest(http.MethodGet, ts.URL+"/me", nil)
	require.NoError(t, err)
	req.Header.Set("Authorization", "Bearer garbage")
	resp2, err := ts.Client().Do(req)
	require.NoError(t, err)
	defer resp2.Body.Close()
	assert.Equal(t, http.StatusUnauthorized, resp2.StatusCode)
}

func TestGoogleRoutes_notConfigured(t *testing.T) {
	ts := newTestServer(t)
	resp, err := ts.Client().Get(ts.URL + "/google")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}
