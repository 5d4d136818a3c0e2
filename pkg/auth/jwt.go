package auth

import (
	"errors"
	"fmt"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/antibyte/retrofunge/pkg/configuration"
	"github.com/antibyte/retrofunge/pkg/logger"

	"github.com/golang-jwt/jwt/v5"
)

const (
	// Default values - actual values are loaded from configuration
	defaultJWTSecret = "fallback_secret_change_in_production"
	tokenIssuer      = "retrofunge"

	// GuestSubject marks tokens of sessions without a login
	GuestSubject = "guest"

	// TokenCookieName is the cookie the login handlers set
	TokenCookieName = "session_token"
)

var (
	ErrTokenMissing = errors.New("no token found in request")
	ErrTokenInvalid = errors.New("invalid token")
)

// getJWTSecret retrieves the JWT secret from environment variable or configuration
func getJWTSecret() string {
	if envSecret := os.Getenv("JWT_SECRET_KEY"); envSecret != "" {
		return envSecret
	}

	secret := configuration.GetString("JWT", "secret_key", "")
	if secret == "" {
		logger.SecurityWarn("Using fallback JWT secret - set JWT_SECRET_KEY environment variable for production!")
		return defaultJWTSecret
	}
	return secret
}

// getTokenExpiration retrieves the token expiration duration from configuration
func getTokenExpiration() time.Duration {
	hours := configuration.GetInt("JWT", "token_expiration_hours", 24)
	return time.Duration(hours) * time.Hour
}

// Claims are carried by both guest and user tokens
type Claims struct {
	SessionID string `json:"sid"`
	Username  string `json:"username,omitempty"`
	jwt.RegisteredClaims
}

// IsGuest reports whether the token belongs to a session without a login
func (c *Claims) IsGuest() bool {
	return c.Subject == GuestSubject
}

func signClaims(sessionID, username, subject string) (string, error) {
	now := time.Now()
	claims := Claims{
		SessionID: sessionID,
		Username:  username,
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(now.Add(getTokenExpiration())),
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now),
			Issuer:    tokenIssuer,
			Subject:   subject,
			ID:        sessionID,
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signedToken, err := token.SignedString([]byte(getJWTSecret()))
	if err != nil {
		return "", fmt.Errorf("token could not be signed: %v", err)
	}
	return signedToken, nil
}

// GenerateGuestToken generates a JWT token for a guest session
func GenerateGuestToken(sessionID string) (string, error) {
	token, err := signClaims(sessionID, "", GuestSubject)
	if err != nil {
		return "", err
	}
	logger.AuthInfo("Guest token generated for session ID: %s", sessionID)
	return token, nil
}

// GenerateUserToken generates a JWT token for a logged-in user session
func GenerateUserToken(sessionID, username string) (string, error) {
	if username == "" || username == GuestSubject {
		return "", fmt.Errorf("invalid username for user token: %q", username)
	}
	token, err := signClaims(sessionID, username, username)
	if err != nil {
		return "", err
	}
	logger.AuthInfo("User token generated for session ID: %s, username: %s", sessionID, username)
	return token, nil
}

// ValidateToken parses and verifies a guest or user token
func ValidateToken(tokenString string) (*Claims, error) {
	secretKey := getJWTSecret()

	token, err := jwt.ParseWithClaims(
		tokenString,
		&Claims{},
		func(token *jwt.Token) (interface{}, error) {
			if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
				return nil, fmt.Errorf("unexpected signing algorithm: %v", token.Header["alg"])
			}
			return []byte(secretKey), nil
		},
		jwt.WithIssuer(tokenIssuer),
		jwt.WithExpirationRequired(),
	)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrTokenInvalid, err)
	}
	if !token.Valid {
		return nil, ErrTokenInvalid
	}

	claims, ok := token.Claims.(*Claims)
	if !ok {
		return nil, fmt.Errorf("%w: could not extract token claims", ErrTokenInvalid)
	}
	if claims.SessionID == "" {
		return nil, fmt.Errorf("%w: missing session id", ErrTokenInvalid)
	}
	if !claims.IsGuest() && claims.Username != claims.Subject {
		return nil, fmt.Errorf("%w: subject does not match username", ErrTokenInvalid)
	}
	return claims, nil
}

// ExtractTokenFromRequest extracts the JWT token from the HTTP request.
// It looks at the Authorization header (Bearer), the session cookie and the
// token query parameter, in that order.
func ExtractTokenFromRequest(r *http.Request) (string, error) {
	authHeader := r.Header.Get("Authorization")
	if authHeader != "" {
		parts := strings.Split(authHeader, " ")
		if len(parts) == 2 && parts[0] == "Bearer" {
			return parts[1], nil
		}
		return "", fmt.Errorf("invalid authorization header format")
	}

	if cookie, err := r.Cookie(TokenCookieName); err == nil && cookie.Value != "" {
		return cookie.Value, nil
	}

	if token := r.URL.Query().Get("token"); token != "" {
		return token, nil
	}

	return "", ErrTokenMissing
}

// RequireToken is a middleware that rejects requests without a valid token
func RequireToken(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		// CORS preflight passes without a token
		if r.Method == http.MethodOptions {
			next(w, r)
			return
		}
		tokenString, err := ExtractTokenFromRequest(r)
		if err != nil {
			logger.AuthWarn("No token in request: %v", err)
			http.Error(w, "Unauthorized: token missing", http.StatusUnauthorized)
			return
		}

		claims, err := ValidateToken(tokenString)
		if err != nil {
			logger.AuthWarn("Invalid token: %v", err)
			http.Error(w, "Unauthorized: invalid token", http.StatusUnauthorized)
			return
		}

		next(w, r.WithContext(WithClaims(r.Context(), claims)))
	}
}
