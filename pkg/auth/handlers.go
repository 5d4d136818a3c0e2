package auth

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/antibyte/retrofunge/pkg/configuration"
	"github.com/antibyte/retrofunge/pkg/logger"
	"github.com/antibyte/retrofunge/pkg/store"
	"github.com/google/uuid"
)

// UserStore is the part of the program library the handlers need
type UserStore interface {
	CreateUser(username, password string) error
	Authenticate(username, password string) error
}

// Handlers serves the session, login and registration endpoints
type Handlers struct {
	Store UserStore
}

// NewHandlers creates handlers backed by users
func NewHandlers(users UserStore) *Handlers {
	return &Handlers{Store: users}
}

// CredentialsRequest is the body of login and registration requests
type CredentialsRequest struct {
	SessionID string `json:"sessionId,omitempty"`
	Username  string `json:"username"`
	Password  string `json:"password"`
}

// LoginResponse is returned by every auth endpoint
type LoginResponse struct {
	Success   bool   `json:"success"`
	Token     string `json:"token,omitempty"`
	SessionID string `json:"sessionId,omitempty"`
	Username  string `json:"username,omitempty"`
	Message   string `json:"message"`
}

func setCORSHeaders(w http.ResponseWriter) {
	w.Header().Set("Access-Control-Allow-Origin", "*")
	w.Header().Set("Access-Control-Allow-Methods", "POST, OPTIONS")
	w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")
	w.Header().Set("Content-Type", "application/json")
}

// preflight handles OPTIONS and rejects anything but POST. It returns false
// when the request has been answered.
func preflight(w http.ResponseWriter, r *http.Request) bool {
	setCORSHeaders(w)
	if r.Method == http.MethodOptions {
		w.WriteHeader(http.StatusOK)
		return false
	}
	if r.Method != http.MethodPost {
		logger.AuthWarn("Invalid method for %s: %s", r.URL.Path, r.Method)
		respondWithError(w, "Method not allowed", http.StatusMethodNotAllowed)
		return false
	}
	return true
}

// HandleCreateSession creates a new guest session and returns its token
func (h *Handlers) HandleCreateSession(w http.ResponseWriter, r *http.Request) {
	if !preflight(w, r) {
		return
	}
	if !configuration.GetBool("Authentication", "enable_guest_access", true) {
		respondWithError(w, "Guest access disabled", http.StatusForbidden)
		return
	}

	sessionID := uuid.New().String()
	token, err := GenerateGuestToken(sessionID)
	if err != nil {
		logger.AuthError("Failed to generate guest token for session %s: %v", sessionID, err)
		respondWithError(w, "Failed to generate token", http.StatusInternalServerError)
		return
	}

	setTokenCookie(w, token)
	logger.AuthInfo("New guest session created: %s for IP: %s", sessionID, getClientIP(r))
	json.NewEncoder(w).Encode(LoginResponse{
		Success:   true,
		Token:     token,
		SessionID: sessionID,
		Message:   "Session created successfully",
	})
}

// HandleLogin checks credentials and issues a user token. An existing
// session ID is kept so the terminal session survives the login.
func (h *Handlers) HandleLogin(w http.ResponseWriter, r *http.Request) {
	if !preflight(w, r) {
		return
	}
	req, ok := decodeCredentials(w, r)
	if !ok {
		return
	}

	if err := h.Store.Authenticate(req.Username, req.Password); err != nil {
		if errors.Is(err, store.ErrInvalidCredentials) {
			logger.SecurityWarn("Failed login for %s from %s", req.Username, getClientIP(r))
			respondWithError(w, "Invalid username or password", http.StatusUnauthorized)
			return
		}
		logger.AuthError("Login lookup failed for %s: %v", req.Username, err)
		respondWithError(w, "Login failed", http.StatusInternalServerError)
		return
	}

	h.issueUserToken(w, req, "Login successful")
}

// HandleRegister creates a user and logs it in
func (h *Handlers) HandleRegister(w http.ResponseWriter, r *http.Request) {
	if !preflight(w, r) {
		return
	}
	req, ok := decodeCredentials(w, r)
	if !ok {
		return
	}

	if err := h.Store.CreateUser(req.Username, req.Password); err != nil {
		switch {
		case errors.Is(err, store.ErrUserExists):
			respondWithError(w, "Username already taken", http.StatusConflict)
		case errors.Is(err, store.ErrInvalidUsername), errors.Is(err, store.ErrInvalidPassword):
			respondWithError(w, err.Error(), http.StatusBadRequest)
		default:
			logger.AuthError("Registration failed for %s: %v", req.Username, err)
			respondWithError(w, "Registration failed", http.StatusInternalServerError)
		}
		return
	}

	logger.AuthInfo("User %s registered from %s", req.Username, getClientIP(r))
	h.issueUserToken(w, req, "Registration successful")
}

func (h *Handlers) issueUserToken(w http.ResponseWriter, req CredentialsRequest, message string) {
	sessionID := req.SessionID
	if sessionID == "" {
		sessionID = uuid.New().String()
	}
	token, err := GenerateUserToken(sessionID, req.Username)
	if err != nil {
		logger.AuthError("Failed to generate user token for session %s (user: %s): %v", sessionID, req.Username, err)
		respondWithError(w, "Failed to generate token", http.StatusInternalServerError)
		return
	}

	setTokenCookie(w, token)
	json.NewEncoder(w).Encode(LoginResponse{
		Success:   true,
		Token:     token,
		SessionID: sessionID,
		Username:  req.Username,
		Message:   message,
	})
}

func decodeCredentials(w http.ResponseWriter, r *http.Request) (CredentialsRequest, bool) {
	var req CredentialsRequest
	r.Body = http.MaxBytesReader(w, r.Body, 4096)
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		logger.AuthWarn("Invalid JSON in auth request: %v", err)
		respondWithError(w, "Invalid request format", http.StatusBadRequest)
		return req, false
	}
	req.Username = strings.TrimSpace(req.Username)
	if req.Username == "" || req.Password == "" {
		respondWithError(w, "Username and password required", http.StatusBadRequest)
		return req, false
	}
	return req, true
}

func setTokenCookie(w http.ResponseWriter, token string) {
	http.SetCookie(w, &http.Cookie{
		Name:     TokenCookieName,
		Value:    token,
		Path:     "/",
		MaxAge:   int(getTokenExpiration().Seconds()),
		HttpOnly: true,
		Secure:   configuration.GetBool("TLS", "enable_tls", false),
		SameSite: http.SameSiteLaxMode,
	})
}

// HandleLogout clears the token cookie
func HandleLogout(w http.ResponseWriter, r *http.Request) {
	if !preflight(w, r) {
		return
	}
	http.SetCookie(w, &http.Cookie{
		Name:     TokenCookieName,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
	})
	logger.AuthInfo("Token cookie cleared")
	json.NewEncoder(w).Encode(LoginResponse{Success: true, Message: "Logout successful"})
}

// getClientIP extracts the client IP address from the request
func getClientIP(r *http.Request) string {
	if forwarded := r.Header.Get("X-Forwarded-For"); forwarded != "" {
		return strings.TrimSpace(strings.Split(forwarded, ",")[0])
	}
	if realIP := r.Header.Get("X-Real-IP"); realIP != "" {
		return realIP
	}
	return r.RemoteAddr
}

// respondWithError writes a JSON error response
func respondWithError(w http.ResponseWriter, message string, statusCode int) {
	w.WriteHeader(statusCode)
	json.NewEncoder(w).Encode(LoginResponse{
		Success: false,
		Message: message,
	})
}
