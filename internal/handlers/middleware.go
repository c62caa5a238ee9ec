package handlers

import (
	"errors"
	"net/http"
	"strings"

	"go.uber.org/zap"

	"github.com/guidopia/apiserver/internal/auth"
	"github.com/guidopia/apiserver/internal/logging"
	"github.com/guidopia/apiserver/internal/services"
	"github.com/guidopia/apiserver/internal/store"
	"github.com/guidopia/apiserver/types"
)

// Session authenticates requests: it extracts the access token,
// verifies it, confirms the user is still live, and populates the
// request context.
type Session struct {
	users  *services.UserService
	issuer *auth.Issuer
	logger *zap.Logger
}

func NewSession(users *services.UserService, issuer *auth.Issuer, logger *zap.Logger) *Session {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Session{users: users, issuer: issuer, logger: logger}
}

// Require rejects requests that do not carry a valid, live session.
func (s *Session) Require(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token, ok := extractAccessToken(r)
		if !ok {
			writeError(w, http.StatusUnauthorized, "Access denied. No token provided.")
			return
		}

		claims, err := s.issuer.VerifyAccess(token)
		if err != nil {
			if errors.Is(err, auth.ErrExpiredToken) {
				writeError(w, http.StatusUnauthorized, "Token expired. Please log in again.")
				return
			}
			writeError(w, http.StatusUnauthorized, "Invalid token.")
			return
		}

		user, err := s.users.GetByID(r.Context(), claims.Subject)
		if err != nil {
			// A deleted account is a dead session; a store outage is
			// not, so do not make clients discard a valid token.
			if errors.Is(err, store.ErrNotFound) {
				writeError(w, http.StatusUnauthorized, "User no longer exists.")
				return
			}
			s.logger.Error("session user lookup failed", zap.String("error", logging.RedactError(err)))
			writeError(w, http.StatusInternalServerError, "Authentication error.")
			return
		}
		if !user.IsActive {
			writeError(w, http.StatusUnauthorized, "Account is deactivated.")
			return
		}
		// A password change invalidates every token issued before it.
		if claims.IssuedBefore(user.PasswordChangedAt) {
			writeError(w, http.StatusUnauthorized, "Password was recently changed. Please log in again.")
			return
		}

		next.ServeHTTP(w, r.WithContext(withUser(r.Context(), user)))
	})
}

// Optional performs the same checks as Require but continues
// anonymously on any failure, including a store outage.
func (s *Session) Optional(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token, ok := extractAccessToken(r)
		if !ok {
			next.ServeHTTP(w, r)
			return
		}

		claims, err := s.issuer.VerifyAccess(token)
		if err != nil {
			next.ServeHTTP(w, r)
			return
		}

		user, err := s.users.GetByID(r.Context(), claims.Subject)
		if err != nil || !user.IsActive || claims.IssuedBefore(user.PasswordChangedAt) {
			next.ServeHTTP(w, r)
			return
		}

		next.ServeHTTP(w, r.WithContext(withUser(r.Context(), user)))
	})
}

// RequireRole restricts an endpoint to the given roles. It expects to
// run downstream of Require, but still rejects a missing context.
func (s *Session) RequireRole(roles ...string) func(http.Handler) http.Handler {
	allowed := make(map[string]struct{}, len(roles))
	for _, role := range roles {
		allowed[role] = struct{}{}
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			user, ok := UserFromContext(r.Context())
			if !ok {
				writeError(w, http.StatusUnauthorized, "Authentication required.")
				return
			}
			if _, ok := allowed[user.Role]; !ok {
				writeError(w, http.StatusForbidden, "You do not have permission to perform this action.")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// extractAccessToken prefers the same-origin cookie and falls back to
// an Authorization bearer header for non-browser clients.
func extractAccessToken(r *http.Request) (auth.AccessToken, bool) {
	if cookie, err := r.Cookie(accessCookieName); err == nil && cookie.Value != "" {
		return auth.AccessToken(cookie.Value), true
	}

	header := strings.TrimSpace(r.Header.Get("Authorization"))
	if header == "" {
		return "", false
	}
	parts := strings.SplitN(header, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
		return "", false
	}
	token := strings.TrimSpace(parts[1])
	if token == "" {
		return "", false
	}
	return auth.AccessToken(token), true
}

// RequireAdmin is a convenience chain for admin-only routers.
func (s *Session) RequireAdmin(next http.Handler) http.Handler {
	return s.Require(s.RequireRole(types.RoleAdmin)(next))
}
