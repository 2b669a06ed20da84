package handlers

import (
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"strings"

	"github.com/authhub/server/internal/auth"
	"github.com/authhub/server/internal/middleware"
	"github.com/authhub/server/internal/model"
	"github.com/authhub/server/internal/oauth"
)

// AuthHandler handles authentication endpoints
type AuthHandler struct {
	authService *auth.AuthService
	google      *oauth.GoogleProvider
}

// NewAuthHandler creates a new auth handler. google may be nil when
// federated login is not configured.
func NewAuthHandler(authService *auth.AuthService, google *oauth.GoogleProvider) *AuthHandler {
	return &AuthHandler{
		authService: authService,
		google:      google,
	}
}

// signupRequest is the request body for POST /signup and POST /register
type signupRequest struct {
	Username string `json:"username"`
	Email    string `json:"email"`
	Password string `json:"password"`
}

// loginRequest is the request body for POST /login
type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// verifyOTPRequest is the request body for POST /verify-otp
type verifyOTPRequest struct {
	Email string `json:"email"`
	OTP   string `json:"otp"`
}

// userResponse is the user object in API responses
type userResponse struct {
	ID       string `json:"id"`
	Username string `json:"username"`
	Email    string `json:"email"`
	Verified bool   `json:"verified"`
}

// tokenResponse is the JSON response for flows that issue a bearer token
type tokenResponse struct {
	Message string       `json:"message,omitempty"`
	Token   string       `json:"token"`
	User    userResponse `json:"user"`
}

func toUserResponse(u model.User) userResponse {
	return userResponse{
		ID:       u.ID.String(),
		Username: u.Username,
		Email:    u.Email,
		Verified: u.IsVerified,
	}
}

// HandleSignup handles POST /signup (registration with email verification)
func (h *AuthHandler) HandleSignup(w http.ResponseWriter, r *http.Request) {
	var req signupRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondWithError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	user, err := h.authService.SignupWithVerification(r.Context(), req.Username, req.Email, req.Password)
	switch {
	case err == nil:
		respondWithJSON(w, http.StatusCreated, map[string]string{
			"message": "User registered successfully. Please check your email for the OTP.",
			"email":   user.Email,
		})
	case errors.Is(err, auth.ErrAllFieldsRequired):
		respondWithError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, auth.ErrEmailAlreadyRegistered):
		respondWithError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, auth.ErrNotificationFailed):
		// The identity was created; say so instead of a generic failure.
		respondWithError(w, http.StatusInternalServerError,
			"User created but failed to send verification email. Please contact support.")
	default:
		log.Printf("Signup failed: %v", err)
		respondWithError(w, http.StatusInternalServerError, "registration failed, please try again")
	}
}

// HandleRegister handles POST /register (registration without verification)
func (h *AuthHandler) HandleRegister(w http.ResponseWriter, r *http.Request) {
	var req signupRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondWithError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	user, token, err := h.authService.SignupWithoutVerification(r.Context(), req.Username, req.Email, req.Password)
	switch {
	case err == nil:
		respondWithJSON(w, http.StatusCreated, tokenResponse{
			Message: "User registered successfully (no email verification required)",
			Token:   token,
			User:    toUserResponse(user),
		})
	case errors.Is(err, auth.ErrAllFieldsRequired):
		respondWithError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, auth.ErrEmailAlreadyRegistered):
		respondWithError(w, http.StatusBadRequest, err.Error())
	default:
		log.Printf("Register failed: %v", err)
		respondWithError(w, http.StatusInternalServerError, "registration failed, please try again")
	}
}

// HandleLogin handles POST /login
func (h *AuthHandler) HandleLogin(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondWithError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	user, token, err := h.authService.Login(r.Context(), req.Email, req.Password)
	switch {
	case err == nil:
		respondWithJSON(w, http.StatusOK, tokenResponse{
			Token: token,
			User:  toUserResponse(user),
		})
	case errors.Is(err, auth.ErrNotVerified):
		respondWithError(w, http.StatusForbidden, err.Error())
	case errors.Is(err, auth.ErrInvalidCredentials):
		// One message for every credential failure.
		respondWithError(w, http.StatusBadRequest, auth.ErrInvalidCredentials.Error())
	default:
		log.Printf("Login failed: %v", err)
		respondWithError(w, http.StatusInternalServerError, "login failed, please try again")
	}
}

// HandleVerifyOTP handles POST /verify-otp
func (h *AuthHandler) HandleVerifyOTP(w http.ResponseWriter, r *http.Request) {
	var req verifyOTPRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondWithError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	req.OTP = strings.TrimSpace(req.OTP)
	if req.Email == "" || req.OTP == "" {
		respondWithError(w, http.StatusBadRequest, "email and otp are required")
		return
	}

	err := h.authService.VerifyOTP(r.Context(), req.Email, req.OTP)
	switch {
	case err == nil:
		respondWithJSON(w, http.StatusOK, map[string]string{
			"message": "Email verified successfully. You can now login.",
		})
	case errors.Is(err, auth.ErrInvalidOrExpiredOTP):
		respondWithError(w, http.StatusBadRequest, auth.ErrInvalidOrExpiredOTP.Error())
	default:
		log.Printf("OTP verification failed: %v", err)
		respondWithError(w, http.StatusInternalServerError, "verification failed, please try again")
	}
}

// HandleGoogleRedirect handles GET /google
func (h *AuthHandler) HandleGoogleRedirect(w http.ResponseWriter, r *http.Request) {
	if h.google == nil {
		respondWithError(w, http.StatusNotFound, "federated login not configured")
		return
	}
	state, err := oauth.SetStateCookie(w)
	if err != nil {
		respondWithError(w, http.StatusInternalServerError, "failed to start login")
		return
	}
	http.Redirect(w, r, h.google.AuthCodeURL(state), http.StatusFound)
}

// HandleGoogleCallback handles GET /google/callback
func (h *AuthHandler) HandleGoogleCallback(w http.ResponseWriter, r *http.Request) {
	if h.google == nil {
		respondWithError(w, http.StatusNotFound, "federated login not configured")
		return
	}

	if err := oauth.CheckStateCookie(w, r); err != nil {
		respondWithError(w, http.StatusBadRequest, "invalid oauth state")
		return
	}

	assertion, err := h.google.FetchAssertion(r.Context(), r.FormValue("code"))
	if err != nil {
		log.Printf("Google callback failed: %v", err)
		respondWithError(w, http.StatusBadRequest, "federated login failed")
		return
	}

	user, token, err := h.authService.FederatedLogin(r.Context(), assertion)
	switch {
	case err == nil:
		respondWithJSON(w, http.StatusOK, tokenResponse{
			Message: "Google login successful",
			Token:   token,
			User:    toUserResponse(user),
		})
	case errors.Is(err, auth.ErrAssertionIncomplete):
		respondWithError(w, http.StatusBadRequest, auth.ErrAssertionIncomplete.Error())
	default:
		log.Printf("Federated login failed: %v", err)
		respondWithError(w, http.StatusInternalServerError, "federated login failed")
	}
}

// HandleMe handles GET /me (protected). Returns the authenticated user.
func (h *AuthHandler) HandleMe(w http.ResponseWriter, r *http.Request) {
	user, ok := middleware.GetUser(r.Context())
	if !ok || user == nil {
		respondWithError(w, http.StatusUnauthorized, "unauthorized")
		return
	}
	respondWithJSON(w, http.StatusOK, toUserResponse(*user))
}

// respondWithJSON writes a JSON response
func respondWithJSON(w http.ResponseWriter, statusCode int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		log.Printf("Failed to encode response: %v", err)
	}
}

// respondWithError sends a JSON error response
func respondWithError(w http.ResponseWriter, statusCode int, message string) {
	respondWithJSON(w, statusCode, map[string]string{"error": message})
}
