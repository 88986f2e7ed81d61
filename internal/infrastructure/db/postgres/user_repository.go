package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgconn"

	"github.com/sessionguard/authgate/internal/core/domain"
)

const uniqueViolation = "23505"

const userColumns = `id, email, name, password_hash, role, disabled, onboarding_complete, last_login_at, created_at, updated_at`

// UserRepository implements ports.UserRepository on PostgreSQL.
type UserRepository struct {
	db DBTX
}

func NewUserRepository(db DBTX) *UserRepository {
	return &UserRepository{db: db}
}

func (r *UserRepository) Create(ctx context.Context, user *domain.User) (*domain.User, error) {
	query :=
		`INSERT INTO users (id, email, name, password_hash, role, disabled, onboarding_complete, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`

	_, err := r.db.ExecContext(ctx, query,
		user.ID, user.Email, user.Name, nullString(user.PasswordHash), user.Role,
		user.Disabled, user.OnboardingComplete, user.CreatedAt.UTC(), user.UpdatedAt.UTC())
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
			return nil, domain.ErrUserExists
		}
		return nil, unavailable("insert user", err)
	}

	created := *user
	created.LastLoginAt = nil
	return &created, nil
}

func (r *UserRepository) FindByEmail(ctx context.Context, email string) (*domain.User, error) {
	return r.findOne(ctx, `SELECT `+userColumns+` FROM users WHERE email = $1`, email)
}

func (r *UserRepository) FindByID(ctx context.Context, id string) (*domain.User, error) {
	return r.findOne(ctx, `SELECT `+userColumns+` FROM users WHERE id = $1`, id)
}

func (r *UserRepository) UpdateLastLogin(ctx context.Context, id string, at time.Time) error {
	return r.exec(ctx, "update last login",
		`UPDATE users SET last_login_at = $2, updated_at = $2 WHERE id = $1`, id, at.UTC())
}

func (r *UserRepository) SetPasswordHash(ctx context.Context, id, hash string, at time.Time) error {
	return r.exec(ctx, "set password",
		`UPDATE users SET password_hash = $2, updated_at = $3 WHERE id = $1`, id, hash, at.UTC())
}

func (r *UserRepository) SetOnboardingComplete(ctx context.Context, id string, at time.Time) error {
	return r.exec(ctx, "complete onboarding",
		`UPDATE users SET onboarding_complete = TRUE, updated_at = $2 WHERE id = $1`, id, at.UTC())
}

func (r *UserRepository) findOne(ctx context.Context, query string, arg any) (*domain.User, error) {
	var (
		u         domain.User
		hash      sql.NullString
		lastLogin sql.NullTime
	)
	err := r.db.QueryRowContext(ctx, query, arg).Scan(
		&u.ID, &u.Email, &u.Name, &hash, &u.Role, &u.Disabled,
		&u.OnboardingComplete, &lastLogin, &u.CreatedAt, &u.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.ErrUserNotFound
		}
		return nil, unavailable("find user", err)
	}

	u.PasswordHash = hash.String
	if lastLogin.Valid {
		t := lastLogin.Time.UTC()
		u.LastLoginAt = &t
	}
	u.CreatedAt = u.CreatedAt.UTC()
	u.UpdatedAt = u.UpdatedAt.UTC()
	return &u, nil
}

func (r *UserRepository) exec(ctx context.Context, op, query string, args ...any) error {
	res, err := r.db.ExecContext(ctx, query, args...)
	if err != nil {
		return unavailable(op, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return unavailable(op, err)
	}
	if n == 0 {
		return domain.ErrUserNotFound
	}
	return nil
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

func unavailable(op string, err error) error {
	return fmt.Errorf("%s: %w: %w", op, domain.ErrStoreUnavailable, err)
}
