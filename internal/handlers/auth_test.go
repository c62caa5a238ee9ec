package handlers

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/guidopia/apiserver/types"
)

func TestSignupCreatesStudentSession(t *testing.T) {
	env := newAuthEnv(t)

	rec := doJSON(t, env.router, http.MethodPost, "/api/auth/signup", map[string]string{
		"fullName": "Asha Verma",
		"class":    "10",
		"email":    "Asha@Example.com",
		"phone":    "9876543210",
		"password": "sekret123",
	}, nil)

	if rec.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d: %s", rec.Code, rec.Body.String())
	}

	cookies := rec.Result().Cookies()
	access := findCookie(cookies, "jwt")
	refresh := findCookie(cookies, "refreshToken")
	if access == nil || access.Value == "" {
		t.Fatalf("expected jwt cookie to be set")
	}
	if refresh == nil || refresh.Value == "" {
		t.Fatalf("expected refreshToken cookie to be set")
	}
	if !access.HttpOnly || access.SameSite != http.SameSiteStrictMode {
		t.Fatalf("expected HttpOnly Strict cookie, got %+v", access)
	}

	resp := decodeResponse(t, rec)
	if !resp.Success {
		t.Fatalf("expected success envelope")
	}
	raw, _ := json.Marshal(resp.Data)
	var data struct {
		User  *types.User `json:"user"`
		Token string      `json:"token"`
	}
	if err := json.Unmarshal(raw, &data); err != nil {
		t.Fatalf("decode data: %v", err)
	}
	if data.User == nil || data.User.Role != types.RoleStudent {
		t.Fatalf("expected student user in response, got %+v", data.User)
	}
	if data.User.Email != "asha@example.com" {
		t.Fatalf("expected lowercased email, got %q", data.User.Email)
	}
	if data.Token == "" {
		t.Fatalf("expected token in response body")
	}
	if strings.Contains(rec.Body.String(), "sekret123") {
		t.Fatalf("response leaks the plaintext password")
	}
	if strings.Contains(rec.Body.String(), "passwordHash") {
		t.Fatalf("response leaks the password hash")
	}
}

func TestSignupValidation(t *testing.T) {
	env := newAuthEnv(t)

	// Missing fields.
	rec := doJSON(t, env.router, http.MethodPost, "/api/auth/signup", map[string]string{
		"email": "asha@example.com",
	}, nil)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("missing fields: expected 400, got %d", rec.Code)
	}

	// Short password.
	rec = doJSON(t, env.router, http.MethodPost, "/api/auth/signup", map[string]string{
		"fullName": "Asha Verma",
		"email":    "asha@example.com",
		"phone":    "9876543210",
		"password": "short",
	}, nil)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("short password: expected 400, got %d", rec.Code)
	}
	if resp := decodeResponse(t, rec); resp.Message != "Password must be at least 8 characters" {
		t.Fatalf("unexpected message: %q", resp.Message)
	}
}

func TestSignupDuplicateEmail(t *testing.T) {
	env := newAuthEnv(t)
	env.seedUser(t, "asha@example.com", "9876543210", "sekret123", types.RoleStudent)

	rec := doJSON(t, env.router, http.MethodPost, "/api/auth/signup", map[string]string{
		"fullName": "Other Person",
		"email":    "asha@example.com",
		"phone":    "9999999999",
		"password": "sekret123",
	}, nil)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rec.Code)
	}
	if resp := decodeResponse(t, rec); resp.Message != "Email already registered" {
		t.Fatalf("unexpected message: %q", resp.Message)
	}
}

func TestLoginRedirectsByRole(t *testing.T) {
	env := newAuthEnv(t)
	env.seedUser(t, "asha@example.com", "9876543210", "sekret123", types.RoleStudent)
	env.seedUser(t, "admin@example.com", "9123456780", "sekret123", types.RoleAdmin)

	cases := []struct {
		email    string
		redirect string
	}{
		{"asha@example.com", "/student"},
		{"admin@example.com", "/admin"},
	}
	for _, tc := range cases {
		rec := doJSON(t, env.router, http.MethodPost, "/api/auth/login", map[string]string{
			"email":    tc.email,
			"password": "sekret123",
		}, nil)
		if rec.Code != http.StatusOK {
			t.Fatalf("%s: expected 200, got %d: %s", tc.email, rec.Code, rec.Body.String())
		}
		resp := decodeResponse(t, rec)
		raw, _ := json.Marshal(resp.Data)
		var data struct {
			RedirectURL string `json:"redirectUrl"`
		}
		if err := json.Unmarshal(raw, &data); err != nil {
			t.Fatalf("decode data: %v", err)
		}
		if data.RedirectURL != tc.redirect {
			t.Fatalf("%s: expected redirect %q, got %q", tc.email, tc.redirect, data.RedirectURL)
		}
	}
}

func TestLoginFailures(t *testing.T) {
	env := newAuthEnv(t)
	seeded := env.seedUser(t, "asha@example.com", "9876543210", "sekret123", types.RoleStudent)

	// Missing fields.
	rec := doJSON(t, env.router, http.MethodPost, "/api/auth/login", map[string]string{"email": "asha@example.com"}, nil)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("missing password: expected 400, got %d", rec.Code)
	}

	// Wrong password and unknown email share one message.
	wrong := doJSON(t, env.router, http.MethodPost, "/api/auth/login", map[string]string{
		"email": "asha@example.com", "password": "nope12345",
	}, nil)
	unknown := doJSON(t, env.router, http.MethodPost, "/api/auth/login", map[string]string{
		"email": "nobody@example.com", "password": "nope12345",
	}, nil)
	if wrong.Code != http.StatusUnauthorized || unknown.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401/401, got %d/%d", wrong.Code, unknown.Code)
	}
	wrongMsg := decodeResponse(t, wrong).Message
	unknownMsg := decodeResponse(t, unknown).Message
	if wrongMsg != "Incorrect email or password" || wrongMsg != unknownMsg {
		t.Fatalf("failure messages distinguishable: %q vs %q", wrongMsg, unknownMsg)
	}

	// Deactivated account.
	env.repo.users[seeded.ID].IsActive = false
	rec = doJSON(t, env.router, http.MethodPost, "/api/auth/login", map[string]string{
		"email": "asha@example.com", "password": "sekret123",
	}, nil)
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("disabled account: expected 401, got %d", rec.Code)
	}
	env.repo.users[seeded.ID].IsActive = true

	// Locked account.
	for i := 0; i < 5; i++ {
		doJSON(t, env.router, http.MethodPost, "/api/auth/login", map[string]string{
			"email": "asha@example.com", "password": "nope12345",
		}, nil)
	}
	rec = doJSON(t, env.router, http.MethodPost, "/api/auth/login", map[string]string{
		"email": "asha@example.com", "password": "sekret123",
	}, nil)
	if rec.Code != http.StatusLocked {
		t.Fatalf("locked account: expected 423, got %d", rec.Code)
	}
}

func TestLogoutClearsCookies(t *testing.T) {
	env := newAuthEnv(t)
	user := env.seedUser(t, "asha@example.com", "9876543210", "sekret123", types.RoleStudent)
	access, err := env.issuer.IssueAccess(user)
	if err != nil {
		t.Fatalf("issue access: %v", err)
	}

	rec := doJSON(t, env.router, http.MethodPost, "/api/auth/logout", nil, func(r *http.Request) {
		r.AddCookie(&http.Cookie{Name: "jwt", Value: string(access)})
	})
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}

	cookies := rec.Result().Cookies()
	for _, name := range []string{"jwt", "refreshToken"} {
		c := findCookie(cookies, name)
		if c == nil {
			t.Fatalf("expected %s cookie to be overwritten", name)
		}
		if c.Value != "loggedout" {
			t.Fatalf("expected %s sentinel value, got %q", name, c.Value)
		}
	}

	// The sentinel is not a valid token; a replay is rejected.
	rec = doJSON(t, env.router, http.MethodGet, "/api/auth/me", nil, func(r *http.Request) {
		r.AddCookie(&http.Cookie{Name: "jwt", Value: "loggedout"})
	})
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("sentinel cookie: expected 401, got %d", rec.Code)
	}
}

func TestRefreshRotatesTokens(t *testing.T) {
	env := newAuthEnv(t)
	user := env.seedUser(t, "asha@example.com", "9876543210", "sekret123", types.RoleStudent)

	// No cookie.
	rec := doJSON(t, env.router, http.MethodPost, "/api/auth/refresh", nil, nil)
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("no cookie: expected 401, got %d", rec.Code)
	}
	if resp := decodeResponse(t, rec); resp.Message != "Refresh token not provided" {
		t.Fatalf("unexpected message: %q", resp.Message)
	}

	// An access token in the refresh slot is rejected: the secrets differ.
	access, err := env.issuer.IssueAccess(user)
	if err != nil {
		t.Fatalf("issue access: %v", err)
	}
	rec = doJSON(t, env.router, http.MethodPost, "/api/auth/refresh", nil, func(r *http.Request) {
		r.AddCookie(&http.Cookie{Name: "refreshToken", Value: string(access)})
	})
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("access token as refresh: expected 401, got %d", rec.Code)
	}

	// A real refresh token rotates the pair.
	refresh, err := env.issuer.IssueRefresh(user)
	if err != nil {
		t.Fatalf("issue refresh: %v", err)
	}
	rec = doJSON(t, env.router, http.MethodPost, "/api/auth/refresh", nil, func(r *http.Request) {
		r.AddCookie(&http.Cookie{Name: "refreshToken", Value: string(refresh)})
	})
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	cookies := rec.Result().Cookies()
	if c := findCookie(cookies, "jwt"); c == nil || c.Value == "" || c.Value == "loggedout" {
		t.Fatalf("expected fresh jwt cookie after refresh")
	}
	if c := findCookie(cookies, "refreshToken"); c == nil || c.Value == "" {
		t.Fatalf("expected fresh refreshToken cookie after refresh")
	}

	// Refresh stops working once the account goes away.
	delete(env.repo.users, user.ID)
	rec = doJSON(t, env.router, http.MethodPost, "/api/auth/refresh", nil, func(r *http.Request) {
		r.AddCookie(&http.Cookie{Name: "refreshToken", Value: string(refresh)})
	})
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("deleted user: expected 401, got %d", rec.Code)
	}
}

func TestMeReturnsSanitizedUser(t *testing.T) {
	env := newAuthEnv(t)
	user := env.seedUser(t, "asha@example.com", "9876543210", "sekret123", types.RoleStudent)
	access, err := env.issuer.IssueAccess(user)
	if err != nil {
		t.Fatalf("issue access: %v", err)
	}

	rec := doJSON(t, env.router, http.MethodGet, "/api/auth/me", nil, func(r *http.Request) {
		r.AddCookie(&http.Cookie{Name: "jwt", Value: string(access)})
	})
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	resp := decodeResponse(t, rec)
	raw, _ := json.Marshal(resp.Data)
	var data struct {
		User *types.User `json:"user"`
	}
	if err := json.Unmarshal(raw, &data); err != nil {
		t.Fatalf("decode data: %v", err)
	}
	if data.User == nil || data.User.Email != "asha@example.com" {
		t.Fatalf("unexpected user payload: %+v", data.User)
	}
}

func TestMeStoreOutage(t *testing.T) {
	env := newAuthEnv(t)
	user := env.seedUser(t, "asha@example.com", "9876543210", "sekret123", types.RoleStudent)

	// Exercise the handler's own lookup branch with the session
	// already established, then fail the reload.
	env.repo.getByIDErr = errors.New("dial tcp 127.0.0.1:5432: connection refused")
	req := httptest.NewRequest(http.MethodGet, "/api/auth/me", nil)
	req = req.WithContext(withUser(req.Context(), user))
	rec := httptest.NewRecorder()
	env.handler.Me(rec, req)

	if rec.Code != http.StatusInternalServerError {
		t.Fatalf("expected 500 on store outage, got %d", rec.Code)
	}
	var resp Response
	if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if resp.Message != "Authentication error." {
		t.Fatalf("unexpected message: %q", resp.Message)
	}
}

func TestChangePasswordInvalidatesOldTokens(t *testing.T) {
	env := newAuthEnv(t)
	user := env.seedUser(t, "asha@example.com", "9876543210", "sekret123", types.RoleStudent)
	access, err := env.issuer.IssueAccess(user)
	if err != nil {
		t.Fatalf("issue access: %v", err)
	}
	withToken := func(r *http.Request) {
		r.AddCookie(&http.Cookie{Name: "jwt", Value: string(access)})
	}

	// Wrong current password.
	rec := doJSON(t, env.router, http.MethodPut, "/api/auth/change-password", map[string]string{
		"currentPassword": "wrongpass",
		"newPassword":     "newsekret1",
	}, withToken)
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("wrong current password: expected 401, got %d", rec.Code)
	}
	if resp := decodeResponse(t, rec); resp.Message != "Current password is incorrect" {
		t.Fatalf("unexpected message: %q", resp.Message)
	}

	// Changing the password succeeds once.
	rec = doJSON(t, env.router, http.MethodPut, "/api/auth/change-password", map[string]string{
		"currentPassword": "sekret123",
		"newPassword":     "newsekret1",
	}, withToken)
	if rec.Code != http.StatusOK {
		t.Fatalf("change password: expected 200, got %d: %s", rec.Code, rec.Body.String())
	}

	// Tokens issued before the change are now refused. The change
	// timestamp must land after the token's issue second for the
	// comparison to trip, so push it forward explicitly.
	changed := env.repo.users[user.ID].PasswordChangedAt.Add(2 * time.Second)
	env.repo.users[user.ID].PasswordChangedAt = changed

	rec = doJSON(t, env.router, http.MethodGet, "/api/auth/me", nil, withToken)
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("stale token: expected 401, got %d", rec.Code)
	}
	if resp := decodeResponse(t, rec); resp.Message != "Password was recently changed. Please log in again." {
		t.Fatalf("unexpected message: %q", resp.Message)
	}
}

func TestUpdateProfile(t *testing.T) {
	env := newAuthEnv(t)
	user := env.seedUser(t, "asha@example.com", "9876543210", "sekret123", types.RoleStudent)
	env.seedUser(t, "ravi@example.com", "9123456780", "sekret123", types.RoleStudent)
	access, err := env.issuer.IssueAccess(user)
	if err != nil {
		t.Fatalf("issue access: %v", err)
	}
	withToken := func(r *http.Request) {
		r.AddCookie(&http.Cookie{Name: "jwt", Value: string(access)})
	}

	// Conflicting email.
	rec := doJSON(t, env.router, http.MethodPut, "/api/auth/profile", map[string]string{
		"email": "ravi@example.com",
	}, withToken)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("conflicting email: expected 400, got %d", rec.Code)
	}

	// Normal update.
	rec = doJSON(t, env.router, http.MethodPut, "/api/auth/profile", map[string]string{
		"fullName": "Asha V",
		"class":    "11",
	}, withToken)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	if got := env.repo.users[user.ID].FullName; got != "Asha V" {
		t.Fatalf("expected persisted name, got %q", got)
	}
	if got := env.repo.users[user.ID].Class; got != "11" {
		t.Fatalf("expected persisted class, got %q", got)
	}
}
