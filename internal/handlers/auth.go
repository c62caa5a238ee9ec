package handlers

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/guidopia/apiserver/config"
	"github.com/guidopia/apiserver/internal/auth"
	"github.com/guidopia/apiserver/internal/logging"
	"github.com/guidopia/apiserver/internal/services"
	"github.com/guidopia/apiserver/internal/store"
	"github.com/guidopia/apiserver/types"
	"go.uber.org/zap"
)

const (
	accessCookieName  = "jwt"
	refreshCookieName = "refreshToken"

	// Logout overwrites the cookies with this sentinel and a
	// near-immediate expiry.
	logoutSentinel       = "loggedout"
	logoutCookieLifetime = 10 * time.Second

	minPasswordLength = 8
)

// AuthHandler provides the signup/login/session lifecycle endpoints.
type AuthHandler struct {
	users      *services.UserService
	issuer     *auth.Issuer
	cookieCfg  config.JWTConfig
	production bool
	logger     *zap.Logger
}

// NewAuthHandler constructs an AuthHandler with the provided dependencies.
func NewAuthHandler(users *services.UserService, issuer *auth.Issuer, cfg config.Config, logger *zap.Logger) *AuthHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &AuthHandler{
		users:      users,
		issuer:     issuer,
		cookieCfg:  cfg.JWT,
		production: cfg.IsProduction(),
		logger:     logger,
	}
}

// AuthRouter registers auth routes on the given router. The limiter
// middlewares guard the unauthenticated endpoints.
func AuthRouter(r chi.Router, handler *AuthHandler, session *Session, signupLimit, loginLimit func(http.Handler) http.Handler) {
	r.With(signupLimit).Post("/signup", handler.Signup)
	r.With(loginLimit).Post("/login", handler.Login)
	r.Post("/refresh", handler.Refresh)

	r.Group(func(r chi.Router) {
		r.Use(session.Require)
		r.Post("/logout", handler.Logout)
		r.Get("/me", handler.Me)
		r.Put("/profile", handler.UpdateProfile)
		r.Put("/change-password", handler.ChangePassword)
	})
}

type SignupRequest struct {
	FullName string `json:"fullName"`
	Class    string `json:"class"`
	Phone    string `json:"phone"`
	Email    string `json:"email"`
	Password string `json:"password"`
}

type LoginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type ProfileRequest struct {
	FullName string `json:"fullName"`
	Class    string `json:"class"`
	Phone    string `json:"phone"`
	Email    string `json:"email"`
}

type ChangePasswordRequest struct {
	CurrentPassword string `json:"currentPassword"`
	NewPassword     string `json:"newPassword"`
}

// AuthData is the payload returned by signup, login, and refresh.
type AuthData struct {
	User         *types.User       `json:"user,omitempty"`
	Token        auth.AccessToken  `json:"token"`
	RefreshToken auth.RefreshToken `json:"refreshToken"`
	RedirectURL  string            `json:"redirectUrl,omitempty"`
}

// Signup creates a student account and starts a session.
func (h *AuthHandler) Signup(w http.ResponseWriter, r *http.Request) {
	var req SignupRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	req.FullName = strings.TrimSpace(req.FullName)
	req.Class = strings.TrimSpace(req.Class)
	req.Email = strings.ToLower(strings.TrimSpace(req.Email))
	req.Phone = strings.TrimSpace(req.Phone)
	if req.FullName == "" || req.Email == "" || req.Phone == "" || req.Password == "" {
		writeError(w, http.StatusBadRequest, "Please provide full name, email, phone, and password")
		return
	}
	if len(req.Password) < minPasswordLength {
		writeError(w, http.StatusBadRequest, "Password must be at least 8 characters")
		return
	}

	user, err := h.users.Register(r.Context(), services.RegisterInput{
		FullName: req.FullName,
		Class:    req.Class,
		Email:    req.Email,
		Phone:    req.Phone,
		Password: req.Password,
	})
	if err != nil {
		if dup, ok := store.AsDuplicate(err); ok {
			writeError(w, http.StatusBadRequest, duplicateMessage(dup.Field))
			return
		}
		h.logger.Error("signup failed", zap.String("error", logging.RedactError(err)))
		writeError(w, http.StatusInternalServerError, "Error creating account. Please try again.")
		return
	}

	h.sendTokens(w, http.StatusCreated, user, "")
}

// Login verifies credentials and starts a session. Unknown email and
// wrong password produce the identical message.
func (h *AuthHandler) Login(w http.ResponseWriter, r *http.Request) {
	var req LoginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	req.Email = strings.ToLower(strings.TrimSpace(req.Email))
	if req.Email == "" || req.Password == "" {
		writeError(w, http.StatusBadRequest, "Please provide email and password")
		return
	}

	user, err := h.users.Authenticate(r.Context(), req.Email, req.Password)
	if err != nil {
		switch {
		case errors.Is(err, services.ErrBadCredentials):
			writeError(w, http.StatusUnauthorized, "Incorrect email or password")
		case errors.Is(err, services.ErrAccountDisabled):
			writeError(w, http.StatusUnauthorized, "Account is deactivated. Please contact support.")
		case errors.Is(err, services.ErrAccountLocked):
			writeError(w, http.StatusLocked, "Account is temporarily locked due to too many failed login attempts")
		default:
			h.logger.Error("login failed", zap.String("error", logging.RedactError(err)))
			writeError(w, http.StatusInternalServerError, "Login failed. Please try again.")
		}
		return
	}

	redirectURL := "/student"
	if user.Role == types.RoleAdmin {
		redirectURL = "/admin"
	}
	h.sendTokens(w, http.StatusOK, user, redirectURL)
}

// Refresh rotates the token pair using the refresh-token cookie.
func (h *AuthHandler) Refresh(w http.ResponseWriter, r *http.Request) {
	cookie, err := r.Cookie(refreshCookieName)
	if err != nil || cookie.Value == "" {
		writeError(w, http.StatusUnauthorized, "Refresh token not provided")
		return
	}

	claims, err := h.issuer.VerifyRefresh(auth.RefreshToken(cookie.Value))
	if err != nil {
		if errors.Is(err, auth.ErrExpiredToken) {
			writeError(w, http.StatusUnauthorized, "Refresh token expired. Please log in again.")
			return
		}
		writeError(w, http.StatusUnauthorized, "Invalid refresh token")
		return
	}

	user, err := h.users.GetByID(r.Context(), claims.Subject)
	if err != nil || !user.IsActive {
		writeError(w, http.StatusUnauthorized, "User no longer exists or account is deactivated")
		return
	}

	access, refresh, err := h.issuePair(user)
	if err != nil {
		h.logger.Error("token refresh failed", zap.String("error", logging.RedactError(err)))
		writeError(w, http.StatusInternalServerError, "Error refreshing token")
		return
	}
	h.setTokenCookies(w, access, refresh)
	writeSuccess(w, http.StatusOK, "Token refreshed successfully", AuthData{
		Token:        access,
		RefreshToken: refresh,
	})
}

// Logout clears both cookies. Unconditionally successful and idempotent.
func (h *AuthHandler) Logout(w http.ResponseWriter, r *http.Request) {
	expiry := time.Now().Add(logoutCookieLifetime)
	for _, name := range []string{accessCookieName, refreshCookieName} {
		http.SetCookie(w, &http.Cookie{
			Name:     name,
			Value:    logoutSentinel,
			Path:     "/",
			Expires:  expiry,
			HttpOnly: true,
			Secure:   h.production,
			SameSite: http.SameSiteStrictMode,
		})
	}
	writeSuccess(w, http.StatusOK, "Logged out successfully", nil)
}

// Me returns the current authenticated user.
func (h *AuthHandler) Me(w http.ResponseWriter, r *http.Request) {
	user, ok := UserFromContext(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "Authentication required.")
		return
	}

	fresh, err := h.users.GetByID(r.Context(), user.ID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			writeError(w, http.StatusUnauthorized, "User no longer exists.")
			return
		}
		h.logger.Error("user lookup failed", zap.String("error", logging.RedactError(err)))
		writeError(w, http.StatusInternalServerError, "Authentication error.")
		return
	}
	fresh = fresh.Sanitized()
	writeSuccess(w, http.StatusOK, "", map[string]any{"user": fresh})
}

// UpdateProfile applies profile changes, re-checking uniqueness for a
// changed email or phone.
func (h *AuthHandler) UpdateProfile(w http.ResponseWriter, r *http.Request) {
	user, ok := UserFromContext(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "Authentication required.")
		return
	}

	var req ProfileRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	updated, err := h.users.UpdateProfile(r.Context(), user.ID, services.ProfileUpdate{
		FullName: strings.TrimSpace(req.FullName),
		Class:    strings.TrimSpace(req.Class),
		Email:    strings.ToLower(strings.TrimSpace(req.Email)),
		Phone:    strings.TrimSpace(req.Phone),
	})
	if err != nil {
		if dup, ok := store.AsDuplicate(err); ok {
			writeError(w, http.StatusBadRequest, duplicateMessage(dup.Field))
			return
		}
		h.logger.Error("profile update failed", zap.String("error", logging.RedactError(err)))
		writeError(w, http.StatusInternalServerError, "Error updating profile")
		return
	}

	updated = updated.Sanitized()
	writeSuccess(w, http.StatusOK, "Profile updated successfully", map[string]any{"user": updated})
}

// ChangePassword rotates the password after re-verifying the current
// one. Tokens issued before the change become invalid.
func (h *AuthHandler) ChangePassword(w http.ResponseWriter, r *http.Request) {
	user, ok := UserFromContext(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "Authentication required.")
		return
	}

	var req ChangePasswordRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	if req.CurrentPassword == "" || req.NewPassword == "" {
		writeError(w, http.StatusBadRequest, "Please provide current and new password")
		return
	}
	if len(req.NewPassword) < minPasswordLength {
		writeError(w, http.StatusBadRequest, "Password must be at least 8 characters")
		return
	}

	if err := h.users.ChangePassword(r.Context(), user.ID, req.CurrentPassword, req.NewPassword); err != nil {
		if errors.Is(err, services.ErrWrongPassword) {
			writeError(w, http.StatusUnauthorized, "Current password is incorrect")
			return
		}
		h.logger.Error("password change failed", zap.String("error", logging.RedactError(err)))
		writeError(w, http.StatusInternalServerError, "Error changing password")
		return
	}

	writeSuccess(w, http.StatusOK, "Password changed successfully", nil)
}

func (h *AuthHandler) sendTokens(w http.ResponseWriter, status int, user types.User, redirectURL string) {
	access, refresh, err := h.issuePair(user)
	if err != nil {
		h.logger.Error("token issue failed", zap.String("error", logging.RedactError(err)))
		writeError(w, http.StatusInternalServerError, "Error creating session")
		return
	}
	h.setTokenCookies(w, access, refresh)

	sanitized := user.Sanitized()
	writeSuccess(w, status, "Authentication successful", AuthData{
		User:         &sanitized,
		Token:        access,
		RefreshToken: refresh,
		RedirectURL:  redirectURL,
	})
}

func (h *AuthHandler) issuePair(user types.User) (auth.AccessToken, auth.RefreshToken, error) {
	access, err := h.issuer.IssueAccess(user)
	if err != nil {
		return "", "", err
	}
	refresh, err := h.issuer.IssueRefresh(user)
	if err != nil {
		return "", "", err
	}
	return access, refresh, nil
}

// setTokenCookies sets the dual cookies with independent expiries.
func (h *AuthHandler) setTokenCookies(w http.ResponseWriter, access auth.AccessToken, refresh auth.RefreshToken) {
	http.SetCookie(w, &http.Cookie{
		Name:     accessCookieName,
		Value:    string(access),
		Path:     "/",
		Expires:  time.Now().Add(time.Duration(h.cookieCfg.AccessCookieDays) * 24 * time.Hour),
		HttpOnly: true,
		Secure:   h.production,
		SameSite: http.SameSiteStrictMode,
	})
	http.SetCookie(w, &http.Cookie{
		Name:     refreshCookieName,
		Value:    string(refresh),
		Path:     "/",
		Expires:  time.Now().Add(time.Duration(h.cookieCfg.RefreshCookieDays) * 24 * time.Hour),
		HttpOnly: true,
		Secure:   h.production,
		SameSite: http.SameSiteStrictMode,
	})
}

func duplicateMessage(field string) string {
	switch field {
	case "email":
		return "Email already registered"
	case "phone":
		return "Phone number already registered"
	default:
		if field == "" {
			return "Value already exists"
		}
		return strings.ToUpper(field[:1]) + field[1:] + " already exists"
	}
}
