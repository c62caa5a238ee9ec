package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/guidopia/apiserver/config"
	"github.com/guidopia/apiserver/internal/auth"
	"github.com/guidopia/apiserver/internal/services"
	"github.com/guidopia/apiserver/internal/store"
	"github.com/guidopia/apiserver/types"
)

const (
	testAccessSecret  = "test-access-secret"
	testRefreshSecret = "test-refresh-secret"
)

// stubUserRepo is an in-memory services.UserRepository for handler
// tests. Setting getByIDErr simulates a backing-store outage.
type stubUserRepo struct {
	users      map[int]*types.User
	nextID     int
	getByIDErr error
}

func newStubUserRepo() *stubUserRepo {
	return &stubUserRepo{users: map[int]*types.User{}, nextID: 1}
}

func (f *stubUserRepo) GetByID(_ context.Context, id int) (types.User, error) {
	if f.getByIDErr != nil {
		return types.User{}, f.getByIDErr
	}
	u, ok := f.users[id]
	if !ok {
		return types.User{}, store.ErrNotFound
	}
	return *u, nil
}

func (f *stubUserRepo) GetByEmail(_ context.Context, email string) (types.User, error) {
	for _, u := range f.users {
		if u.Email == email {
			return *u, nil
		}
	}
	return types.User{}, store.ErrNotFound
}

func (f *stubUserRepo) GetByPhone(_ context.Context, phone string) (types.User, error) {
	for _, u := range f.users {
		if u.Phone == phone {
			return *u, nil
		}
	}
	return types.User{}, store.ErrNotFound
}

func (f *stubUserRepo) Create(_ context.Context, user types.User) (types.User, error) {
	user.ID = f.nextID
	f.nextID++
	f.users[user.ID] = &user
	return user, nil
}

func (f *stubUserRepo) UpdateProfile(_ context.Context, user types.User) (types.User, error) {
	existing, ok := f.users[user.ID]
	if !ok {
		return types.User{}, store.ErrNotFound
	}
	existing.FullName = user.FullName
	existing.Class = user.Class
	existing.Email = user.Email
	existing.Phone = user.Phone
	return *existing, nil
}

func (f *stubUserRepo) UpdatePassword(_ context.Context, id int, hash string, changedAt time.Time) error {
	u, ok := f.users[id]
	if !ok {
		return store.ErrNotFound
	}
	u.PasswordHash = hash
	u.PasswordChangedAt = changedAt
	return nil
}

func (f *stubUserRepo) RecordLogin(_ context.Context, id int, at time.Time) error {
	u, ok := f.users[id]
	if !ok {
		return store.ErrNotFound
	}
	u.LoginAttempts = 0
	u.LockUntil = nil
	u.LastLogin = &at
	return nil
}

func (f *stubUserRepo) RecordFailedLogin(_ context.Context, id int, maxAttempts int, lockFor time.Duration) error {
	u, ok := f.users[id]
	if !ok {
		return store.ErrNotFound
	}
	u.LoginAttempts++
	if u.LoginAttempts >= maxAttempts {
		until := time.Now().Add(lockFor)
		u.LockUntil = &until
	}
	return nil
}

func (f *stubUserRepo) ListStudents(_ context.Context, _ store.StudentFilter, offset, limit int) ([]types.User, error) {
	var out []types.User
	for id := 1; id < f.nextID; id++ {
		u, ok := f.users[id]
		if !ok || u.Role != types.RoleStudent {
			continue
		}
		out = append(out, *u)
	}
	if offset >= len(out) {
		return nil, nil
	}
	out = out[offset:]
	if limit < len(out) {
		out = out[:limit]
	}
	return out, nil
}

func (f *stubUserRepo) CountStudents(_ context.Context, _ store.StudentFilter) (int, error) {
	n := 0
	for _, u := range f.users {
		if u.Role == types.RoleStudent {
			n++
		}
	}
	return n, nil
}

func (f *stubUserRepo) DistinctClasses(context.Context) ([]string, error) {
	classes := map[string]struct{}{}
	for _, u := range f.users {
		if u.Role == types.RoleStudent && u.Class != "" {
			classes[u.Class] = struct{}{}
		}
	}
	var out []string
	for c := range classes {
		out = append(out, c)
	}
	return out, nil
}

func (f *stubUserRepo) Stats(context.Context, time.Time) (store.StudentStats, error) {
	total, _ := f.CountStudents(context.Background(), store.StudentFilter{})
	return store.StudentStats{TotalStudents: total}, nil
}

// authEnv bundles the wired auth stack for a handler test.
type authEnv struct {
	repo    *stubUserRepo
	users   *services.UserService
	issuer  *auth.Issuer
	session *Session
	handler *AuthHandler
	router  chi.Router
}

func testConfig() config.Config {
	cfg := config.Config{Env: config.EnvDevelopment}
	cfg.JWT = config.JWTConfig{
		AccessSecret:      testAccessSecret,
		RefreshSecret:     testRefreshSecret,
		AccessTTL:         time.Hour,
		RefreshTTL:        24 * time.Hour,
		AccessCookieDays:  7,
		RefreshCookieDays: 30,
	}
	return cfg
}

func passthrough(next http.Handler) http.Handler { return next }

func newAuthEnv(t *testing.T) *authEnv {
	t.Helper()

	cfg := testConfig()
	repo := newStubUserRepo()
	users := services.NewUserService(repo)
	issuer := auth.NewIssuer(
		cfg.JWT.AccessSecret,
		cfg.JWT.RefreshSecret,
		cfg.JWT.AccessTTL,
		cfg.JWT.RefreshTTL,
	)
	session := NewSession(users, issuer, nil)
	handler := NewAuthHandler(users, issuer, cfg, nil)

	router := chi.NewRouter()
	router.Route("/api/auth", func(r chi.Router) {
		AuthRouter(r, handler, session, passthrough, passthrough)
	})

	return &authEnv{
		repo:    repo,
		users:   users,
		issuer:  issuer,
		session: session,
		handler: handler,
		router:  router,
	}
}

func (e *authEnv) seedUser(t *testing.T, email, phone, password, role string) types.User {
	t.Helper()
	hash, err := auth.HashPassword(password)
	if err != nil {
		t.Fatalf("hash password: %v", err)
	}
	user, err := e.repo.Create(context.Background(), types.User{
		FullName:     "Asha Verma",
		Class:        "10",
		Email:        email,
		Phone:        phone,
		Role:         role,
		PasswordHash: hash,
		IsActive:     true,
	})
	if err != nil {
		t.Fatalf("seed user: %v", err)
	}
	return user
}

func doJSON(t *testing.T, router chi.Router, method, target string, body any, mutate func(*http.Request)) *httptest.ResponseRecorder {
	t.Helper()

	var reader *bytes.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("marshal request: %v", err)
		}
		reader = bytes.NewReader(raw)
	} else {
		reader = bytes.NewReader(nil)
	}

	req := httptest.NewRequest(method, target, reader)
	req.Header.Set("Content-Type", "application/json")
	if mutate != nil {
		mutate(req)
	}

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	return rec
}

func decodeResponse(t *testing.T, rec *httptest.ResponseRecorder) Response {
	t.Helper()
	var resp Response
	if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	return resp
}

func findCookie(cookies []*http.Cookie, name string) *http.Cookie {
	for _, c := range cookies {
		if c.Name == name {
			return c
		}
	}
	return nil
}
