package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/guidopia/apiserver/types"
)

// UserRepository handles persistence for users.
type UserRepository struct {
	db *sql.DB
}

func NewUserRepository(db *sql.DB) *UserRepository {
	return &UserRepository{db: db}
}

const userColumns = `id, full_name, class, email, phone, role, password_hash,
	password_changed_at, is_active, is_email_verified, login_attempts,
	lock_until, last_login, created_at, updated_at`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanUser(row rowScanner) (types.User, error) {
	var user types.User
	var lockUntil, lastLogin sql.NullTime
	err := row.Scan(
		&user.ID,
		&user.FullName,
		&user.Class,
		&user.Email,
		&user.Phone,
		&user.Role,
		&user.PasswordHash,
		&user.PasswordChangedAt,
		&user.IsActive,
		&user.IsEmailVerified,
		&user.LoginAttempts,
		&lockUntil,
		&lastLogin,
		&user.CreatedAt,
		&user.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return types.User{}, ErrNotFound
		}
		return types.User{}, err
	}
	if lockUntil.Valid {
		t := lockUntil.Time
		user.LockUntil = &t
	}
	if lastLogin.Valid {
		t := lastLogin.Time
		user.LastLogin = &t
	}
	return user, nil
}

func (r *UserRepository) GetByID(ctx context.Context, id int) (types.User, error) {
	query := fmt.Sprintf(`SELECT %s FROM users WHERE id = $1`, userColumns)
	return scanUser(r.db.QueryRowContext(ctx, query, id))
}

// GetByEmail returns the user including the password hash, for
// credential comparison during login.
func (r *UserRepository) GetByEmail(ctx context.Context, email string) (types.User, error) {
	query := fmt.Sprintf(`SELECT %s FROM users WHERE email = $1`, userColumns)
	return scanUser(r.db.QueryRowContext(ctx, query, email))
}

func (r *UserRepository) GetByPhone(ctx context.Context, phone string) (types.User, error) {
	query := fmt.Sprintf(`SELECT %s FROM users WHERE phone = $1`, userColumns)
	return scanUser(r.db.QueryRowContext(ctx, query, phone))
}

func (r *UserRepository) Create(ctx context.Context, user types.User) (types.User, error) {
	now := time.Now()
	user.CreatedAt = now
	user.UpdatedAt = now
	if user.PasswordChangedAt.IsZero() {
		user.PasswordChangedAt = now
	}

	const query = `
		INSERT INTO users (full_name, class, email, phone, role, password_hash,
			password_changed_at, is_active, is_email_verified, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
		RETURNING id`
	if err := r.db.QueryRowContext(
		ctx,
		query,
		user.FullName,
		user.Class,
		user.Email,
		user.Phone,
		user.Role,
		user.PasswordHash,
		user.PasswordChangedAt,
		user.IsActive,
		user.IsEmailVerified,
		user.CreatedAt,
		user.UpdatedAt,
	).Scan(&user.ID); err != nil {
		return types.User{}, translateError(err)
	}
	return user, nil
}

// UpdateProfile updates the mutable identity fields of the user.
func (r *UserRepository) UpdateProfile(ctx context.Context, user types.User) (types.User, error) {
	user.UpdatedAt = time.Now()

	const query = `
		UPDATE users
		SET full_name = $1,
			class = $2,
			email = $3,
			phone = $4,
			updated_at = $5
		WHERE id = $6`
	result, err := r.db.ExecContext(
		ctx,
		query,
		user.FullName,
		user.Class,
		user.Email,
		user.Phone,
		user.UpdatedAt,
		user.ID,
	)
	if err != nil {
		return types.User{}, translateError(err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return types.User{}, err
	}
	if affected == 0 {
		return types.User{}, ErrNotFound
	}
	return r.GetByID(ctx, user.ID)
}

// UpdatePassword stores a new password hash and rotates
// password_changed_at, implicitly invalidating previously issued tokens.
func (r *UserRepository) UpdatePassword(ctx context.Context, id int, passwordHash string, changedAt time.Time) error {
	const query = `
		UPDATE users
		SET password_hash = $1,
			password_changed_at = $2,
			updated_at = $2
		WHERE id = $3`
	result, err := r.db.ExecContext(ctx, query, passwordHash, changedAt, id)
	if err != nil {
		return err
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return ErrNotFound
	}
	return nil
}

// RecordLogin clears the lockout counters and stamps last_login after a
// successful authentication.
func (r *UserRepository) RecordLogin(ctx context.Context, id int, at time.Time) error {
	const query = `
		UPDATE users
		SET login_attempts = 0,
			lock_until = NULL,
			last_login = $1,
			updated_at = $1
		WHERE id = $2`
	_, err := r.db.ExecContext(ctx, query, at, id)
	return err
}

// RecordFailedLogin increments the attempt counter in a single atomic
// update and arms lock_until once the threshold is reached.
func (r *UserRepository) RecordFailedLogin(ctx context.Context, id int, maxAttempts int, lockFor time.Duration) error {
	const query = `
		UPDATE users
		SET login_attempts = login_attempts + 1,
			lock_until = CASE
				WHEN login_attempts + 1 >= $1 THEN $2::timestamptz
				ELSE lock_until
			END,
			updated_at = now()
		WHERE id = $3`
	_, err := r.db.ExecContext(ctx, query, maxAttempts, time.Now().Add(lockFor), id)
	return err
}

// StudentFilter narrows student listings; zero values match everything.
type StudentFilter struct {
	Search string
	Class  string
}

// ListStudents returns student accounts matching the filter, newest
// first. Search matches full name, email, or phone case-insensitively.
func (r *UserRepository) ListStudents(ctx context.Context, filter StudentFilter, offset, limit int) ([]types.User, error) {
	query := fmt.Sprintf(`SELECT %s FROM users WHERE role = $1`, userColumns)
	args := []any{types.RoleStudent}

	if filter.Search != "" {
		query += fmt.Sprintf(` AND (full_name ILIKE $%d OR email ILIKE $%d OR phone ILIKE $%d)`,
			len(args)+1, len(args)+1, len(args)+1)
		args = append(args, "%"+filter.Search+"%")
	}
	if filter.Class != "" {
		query += fmt.Sprintf(` AND class = $%d`, len(args)+1)
		args = append(args, filter.Class)
	}

	query += fmt.Sprintf(` ORDER BY created_at DESC OFFSET $%d LIMIT $%d`, len(args)+1, len(args)+2)
	args = append(args, offset, limit)

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	students := make([]types.User, 0, limit)
	for rows.Next() {
		user, err := scanUser(rows)
		if err != nil {
			return nil, err
		}
		students = append(students, user)
	}
	return students, rows.Err()
}

// CountStudents returns the number of student accounts matching the filter.
func (r *UserRepository) CountStudents(ctx context.Context, filter StudentFilter) (int, error) {
	query := `SELECT COUNT(*) FROM users WHERE role = $1`
	args := []any{types.RoleStudent}

	if filter.Search != "" {
		query += fmt.Sprintf(` AND (full_name ILIKE $%d OR email ILIKE $%d OR phone ILIKE $%d)`,
			len(args)+1, len(args)+1, len(args)+1)
		args = append(args, "%"+filter.Search+"%")
	}
	if filter.Class != "" {
		query += fmt.Sprintf(` AND class = $%d`, len(args)+1)
		args = append(args, filter.Class)
	}

	var count int
	if err := r.db.QueryRowContext(ctx, query, args...).Scan(&count); err != nil {
		return 0, err
	}
	return count, nil
}

// DistinctClasses returns the sorted set of classes students belong to.
func (r *UserRepository) DistinctClasses(ctx context.Context) ([]string, error) {
	const query = `
		SELECT DISTINCT class FROM users
		WHERE role = $1 AND class <> ''
		ORDER BY class`
	rows, err := r.db.QueryContext(ctx, query, types.RoleStudent)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var classes []string
	for rows.Next() {
		var class string
		if err := rows.Scan(&class); err != nil {
			return nil, err
		}
		classes = append(classes, class)
	}
	return classes, rows.Err()
}

// ClassCount is one row of the per-class student aggregate.
type ClassCount struct {
	Class string `json:"class"`
	Count int    `json:"count"`
}

// StudentStats summarizes the student population for the admin dashboard.
type StudentStats struct {
	TotalStudents       int          `json:"totalStudents"`
	StudentsByClass     []ClassCount `json:"studentsByClass"`
	RecentRegistrations int          `json:"recentRegistrations"`
	ActiveStudents      int          `json:"activeStudents"`
}

// Stats aggregates dashboard statistics. "Recent" means at or after since.
func (r *UserRepository) Stats(ctx context.Context, since time.Time) (StudentStats, error) {
	var stats StudentStats

	const totalQuery = `SELECT COUNT(*) FROM users WHERE role = $1`
	if err := r.db.QueryRowContext(ctx, totalQuery, types.RoleStudent).Scan(&stats.TotalStudents); err != nil {
		return StudentStats{}, err
	}

	const byClassQuery = `
		SELECT class, COUNT(*) FROM users
		WHERE role = $1
		GROUP BY class
		ORDER BY class`
	rows, err := r.db.QueryContext(ctx, byClassQuery, types.RoleStudent)
	if err != nil {
		return StudentStats{}, err
	}
	defer rows.Close()
	for rows.Next() {
		var entry ClassCount
		if err := rows.Scan(&entry.Class, &entry.Count); err != nil {
			return StudentStats{}, err
		}
		stats.StudentsByClass = append(stats.StudentsByClass, entry)
	}
	if err := rows.Err(); err != nil {
		return StudentStats{}, err
	}

	const recentQuery = `SELECT COUNT(*) FROM users WHERE role = $1 AND created_at >= $2`
	if err := r.db.QueryRowContext(ctx, recentQuery, types.RoleStudent, since).Scan(&stats.RecentRegistrations); err != nil {
		return StudentStats{}, err
	}

	const activeQuery = `SELECT COUNT(*) FROM users WHERE role = $1 AND last_login >= $2`
	if err := r.db.QueryRowContext(ctx, activeQuery, types.RoleStudent, since).Scan(&stats.ActiveStudents); err != nil {
		return StudentStats{}, err
	}

	return stats, nil
}
