package services

import (
	"context"
	"errors"
	"time"

	"github.com/guidopia/apiserver/internal/auth"
	"github.com/guidopia/apiserver/internal/store"
	"github.com/guidopia/apiserver/types"
)

// Lockout policy: after maxLoginAttempts consecutive failures the
// account refuses login for lockDuration, regardless of password
// correctness.
const (
	maxLoginAttempts = 5
	lockDuration     = 2 * time.Hour
)

// Authentication failures. Handlers translate these to status codes;
// ErrBadCredentials deliberately covers both unknown email and wrong
// password so responses cannot be used for user enumeration.
var (
	ErrBadCredentials  = errors.New("incorrect email or password")
	ErrAccountDisabled = errors.New("account is deactivated")
	ErrAccountLocked   = errors.New("account is temporarily locked")
	ErrWrongPassword   = errors.New("current password is incorrect")
)

// UserRepository defines persistence operations for users.
type UserRepository interface {
	GetByID(ctx context.Context, id int) (types.User, error)
	GetByEmail(ctx context.Context, email string) (types.User, error)
	GetByPhone(ctx context.Context, phone string) (types.User, error)
	Create(ctx context.Context, user types.User) (types.User, error)
	UpdateProfile(ctx context.Context, user types.User) (types.User, error)
	UpdatePassword(ctx context.Context, id int, passwordHash string, changedAt time.Time) error
	RecordLogin(ctx context.Context, id int, at time.Time) error
	RecordFailedLogin(ctx context.Context, id int, maxAttempts int, lockFor time.Duration) error
	ListStudents(ctx context.Context, filter store.StudentFilter, offset, limit int) ([]types.User, error)
	CountStudents(ctx context.Context, filter store.StudentFilter) (int, error)
	DistinctClasses(ctx context.Context) ([]string, error)
	Stats(ctx context.Context, since time.Time) (store.StudentStats, error)
}

// UserService encapsulates account use-cases: registration, credential
// verification with lockout, profile and password maintenance.
type UserService struct {
	repo UserRepository
	now  func() time.Time
}

func NewUserService(repo UserRepository) *UserService {
	return &UserService{
		repo: repo,
		now:  time.Now,
	}
}

// RegisterInput carries the validated signup payload.
type RegisterInput struct {
	FullName string
	Class    string
	Email    string
	Phone    string
	Password string
	Role     string
}

// Register creates an account. Uniqueness is pre-checked for a precise
// Conflict message; a concurrent insert losing the race surfaces the
// same DuplicateError from the store's constraint mapping.
func (s *UserService) Register(ctx context.Context, input RegisterInput) (types.User, error) {
	if _, err := s.repo.GetByEmail(ctx, input.Email); err == nil {
		return types.User{}, &store.DuplicateError{Field: "email"}
	} else if !errors.Is(err, store.ErrNotFound) {
		return types.User{}, err
	}
	if _, err := s.repo.GetByPhone(ctx, input.Phone); err == nil {
		return types.User{}, &store.DuplicateError{Field: "phone"}
	} else if !errors.Is(err, store.ErrNotFound) {
		return types.User{}, err
	}

	hash, err := auth.HashPassword(input.Password)
	if err != nil {
		return types.User{}, err
	}

	role := input.Role
	if role == "" {
		role = types.RoleStudent
	}

	user, err := s.repo.Create(ctx, types.User{
		FullName:          input.FullName,
		Class:             input.Class,
		Email:             input.Email,
		Phone:             input.Phone,
		Role:              role,
		PasswordHash:      hash,
		PasswordChangedAt: s.now(),
		IsActive:          true,
	})
	if err != nil {
		return types.User{}, err
	}

	now := s.now()
	if err := s.repo.RecordLogin(ctx, user.ID, now); err != nil {
		return types.User{}, err
	}
	user.LastLogin = &now
	return user, nil
}

// Authenticate verifies credentials and enforces the lockout invariant.
// On success the attempt counters are cleared and last_login stamped.
func (s *UserService) Authenticate(ctx context.Context, email, password string) (types.User, error) {
	user, err := s.repo.GetByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return types.User{}, ErrBadCredentials
		}
		return types.User{}, err
	}

	if err := auth.CheckPassword(user.PasswordHash, password); err != nil {
		if err := s.repo.RecordFailedLogin(ctx, user.ID, maxLoginAttempts, lockDuration); err != nil {
			return types.User{}, err
		}
		return types.User{}, ErrBadCredentials
	}

	if !user.IsActive {
		return types.User{}, ErrAccountDisabled
	}
	if user.Locked(s.now()) {
		return types.User{}, ErrAccountLocked
	}

	now := s.now()
	if err := s.repo.RecordLogin(ctx, user.ID, now); err != nil {
		return types.User{}, err
	}
	user.LoginAttempts = 0
	user.LockUntil = nil
	user.LastLogin = &now
	return user, nil
}

// ProfileUpdate carries the optional profile changes; empty fields are
// left untouched.
type ProfileUpdate struct {
	FullName string
	Class    string
	Email    string
	Phone    string
}

// UpdateProfile applies the changes, re-checking uniqueness for a
// changed email or phone.
func (s *UserService) UpdateProfile(ctx context.Context, userID int, update ProfileUpdate) (types.User, error) {
	user, err := s.repo.GetByID(ctx, userID)
	if err != nil {
		return types.User{}, err
	}

	if update.Email != "" && update.Email != user.Email {
		if _, err := s.repo.GetByEmail(ctx, update.Email); err == nil {
			return types.User{}, &store.DuplicateError{Field: "email"}
		} else if !errors.Is(err, store.ErrNotFound) {
			return types.User{}, err
		}
		user.Email = update.Email
	}
	if update.Phone != "" && update.Phone != user.Phone {
		if _, err := s.repo.GetByPhone(ctx, update.Phone); err == nil {
			return types.User{}, &store.DuplicateError{Field: "phone"}
		} else if !errors.Is(err, store.ErrNotFound) {
			return types.User{}, err
		}
		user.Phone = update.Phone
	}
	if update.FullName != "" {
		user.FullName = update.FullName
	}
	if update.Class != "" {
		user.Class = update.Class
	}

	return s.repo.UpdateProfile(ctx, user)
}

// ChangePassword re-verifies the current password, then stores the new
// hash and rotates password_changed_at, implicitly invalidating tokens
// issued before the change.
func (s *UserService) ChangePassword(ctx context.Context, userID int, currentPassword, newPassword string) error {
	user, err := s.repo.GetByID(ctx, userID)
	if err != nil {
		return err
	}

	if err := auth.CheckPassword(user.PasswordHash, currentPassword); err != nil {
		return ErrWrongPassword
	}

	hash, err := auth.HashPassword(newPassword)
	if err != nil {
		return err
	}
	return s.repo.UpdatePassword(ctx, userID, hash, s.now())
}

func (s *UserService) GetByID(ctx context.Context, id int) (types.User, error) {
	return s.repo.GetByID(ctx, id)
}

func (s *UserService) ListStudents(ctx context.Context, filter store.StudentFilter, offset, limit int) ([]types.User, int, error) {
	students, err := s.repo.ListStudents(ctx, filter, offset, limit)
	if err != nil {
		return nil, 0, err
	}
	total, err := s.repo.CountStudents(ctx, filter)
	if err != nil {
		return nil, 0, err
	}
	return students, total, nil
}

func (s *UserService) DistinctClasses(ctx context.Context) ([]string, error) {
	return s.repo.DistinctClasses(ctx)
}

func (s *UserService) Stats(ctx context.Context, since time.Time) (store.StudentStats, error) {
	return s.repo.Stats(ctx, since)
}
