package types

import "time"

// Roles assignable to a user account.
const (
	RoleStudent = "student"
	RoleAdmin   = "admin"
)

// User represents an account in the system.
// It contains identity, credential, lockout, and audit metadata.
type User struct {
	// ID is the unique identifier of the user.
	ID int `json:"id" db:"id"`

	// FullName is the student's full name.
	FullName string `json:"fullName" db:"full_name"`

	// Class is the grade label the student belongs to (e.g., "12th").
	Class string `json:"class" db:"class"`

	// Email is the user's unique email address.
	Email string `json:"email" db:"email"`

	// Phone is the user's unique phone number.
	Phone string `json:"phone" db:"phone"`

	// Role indicates the user's authorization level
	// within the system ("student" or "admin").
	Role string `json:"role" db:"role"`

	// PasswordHash stores the hashed representation of the user's password.
	// This field is never exposed in API responses.
	PasswordHash string `json:"-" db:"password_hash"`

	// PasswordChangedAt records the last password rotation. Tokens issued
	// before this instant are rejected by the session middleware.
	PasswordChangedAt time.Time `json:"-" db:"password_changed_at"`

	// IsActive marks whether the account may authenticate.
	IsActive bool `json:"isActive" db:"is_active"`

	// IsEmailVerified marks whether the email address was confirmed.
	IsEmailVerified bool `json:"isEmailVerified" db:"is_email_verified"`

	// LoginAttempts counts consecutive failed logins since the last success.
	LoginAttempts int `json:"-" db:"login_attempts"`

	// LockUntil, when set and not yet elapsed, refuses login regardless of
	// password correctness.
	LockUntil *time.Time `json:"-" db:"lock_until"`

	// LastLogin is the timestamp of the most recent successful login.
	LastLogin *time.Time `json:"lastLogin,omitempty" db:"last_login"`

	// CreatedAt is the timestamp when the user account was created.
	CreatedAt time.Time `json:"createdAt" db:"created_at"`

	// UpdatedAt is the timestamp of the most recent update to the account.
	UpdatedAt time.Time `json:"updatedAt" db:"updated_at"`
}

// Locked reports whether the account lockout is in effect at the given
// instant. An attempt exactly at LockUntil is still locked.
func (u User) Locked(now time.Time) bool {
	return u.LockUntil != nil && !now.After(*u.LockUntil)
}

// Sanitized returns a copy safe for API responses and request contexts:
// the credential fields are cleared.
func (u User) Sanitized() User {
	u.PasswordHash = ""
	return u
}
