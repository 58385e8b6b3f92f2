package persistence

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

const UsersTable = "users"

// UserRecord represents a row in the users table. AuthID is nullable: the
// signup trigger inserts rows before the identity provider reference is
// known.
type UserRecord struct {
	UserID    uuid.UUID  `db:"user_id"`
	AuthID    *string    `db:"auth_id"`
	Email     string     `db:"email"`
	FullName  string     `db:"full_name"`
	Role      string     `db:"role"`
	OrgID     *uuid.UUID `db:"org_id"`
	CreatedAt time.Time  `db:"created_at"`
	UpdatedAt time.Time  `db:"updated_at"`
}

var (
	// ErrUserNotFound indicates a missing user record.
	ErrUserNotFound = errors.New("user not found")
	// ErrUserConflict indicates a uniqueness violation (auth_id or email).
	ErrUserConflict = errors.New("user conflict")
)

// UserStore exposes persistence helpers for the users table.
type UserStore struct {
	pool *pgxpool.Pool
}

// NewUserStore returns a store instance.
func NewUserStore(pool *pgxpool.Pool) (*UserStore, error) {
	if pool == nil {
		return nil, errors.New("pool is required")
	}
	return &UserStore{pool: pool}, nil
}

// CreateUserParams captures the fields required to insert a new user record.
type CreateUserParams struct {
	UserID   uuid.UUID
	AuthID   string
	Email    string
	FullName string
	Role     string
	OrgID    uuid.UUID
}

const userColumns = "user_id, auth_id, email, full_name, role, org_id, created_at, updated_at"

// CreateUser inserts a new user and returns the persisted record.
func (s *UserStore) CreateUser(ctx context.Context, params CreateUserParams) (UserRecord, error) {
	if params.UserID == uuid.Nil {
		return UserRecord{}, errors.New("user id is required")
	}

	row := s.pool.QueryRow(ctx, fmt.Sprintf(`
        INSERT INTO %s (user_id, auth_id, email, full_name, role, org_id)
        VALUES ($1, $2, $3, $4, $5, $6)
        RETURNING %s
    `, UsersTable, userColumns),
		params.UserID,
		params.AuthID,
		strings.TrimSpace(params.Email),
		strings.TrimSpace(params.FullName),
		params.Role,
		params.OrgID,
	)

	user, err := scanUser(row)
	if err != nil {
		if isUniqueViolation(err) {
			return UserRecord{}, ErrUserConflict
		}
		return UserRecord{}, err
	}

	return user, nil
}

// GetByAuthID returns the user bound to the given auth reference.
func (s *UserStore) GetByAuthID(ctx context.Context, authID string) (UserRecord, error) {
	row := s.pool.QueryRow(ctx, fmt.Sprintf(`
        SELECT %s FROM %s WHERE auth_id = $1
    `, userColumns, UsersTable), authID)
	return scanUserNotFound(row)
}

// GetByEmail returns the user with the exact email.
func (s *UserStore) GetByEmail(ctx context.Context, email string) (UserRecord, error) {
	row := s.pool.QueryRow(ctx, fmt.Sprintf(`
        SELECT %s FROM %s WHERE email = $1
    `, userColumns, UsersTable), email)
	return scanUserNotFound(row)
}

// GetByEmailFold returns the user matching the email case-insensitively.
// Oldest row wins when historical rows differ only by case.
func (s *UserStore) GetByEmailFold(ctx context.Context, email string) (UserRecord, error) {
	row := s.pool.QueryRow(ctx, fmt.Sprintf(`
        SELECT %s FROM %s WHERE LOWER(email) = LOWER($1)
        ORDER BY created_at ASC LIMIT 1
    `, userColumns, UsersTable), email)
	return scanUserNotFound(row)
}

// GetByAnyKey returns the oldest user matching the auth reference or the
// case-insensitive email. Broadest lookup, used as the last resort of
// conflict resolution.
func (s *UserStore) GetByAnyKey(ctx context.Context, authID, email string) (UserRecord, error) {
	row := s.pool.QueryRow(ctx, fmt.Sprintf(`
        SELECT %s FROM %s
        WHERE auth_id = $1 OR LOWER(email) = LOWER($2)
        ORDER BY created_at ASC LIMIT 1
    `, userColumns, UsersTable), authID, email)
	return scanUserNotFound(row)
}

// UpdateAuthID re-points the auth reference at the current sign-in.
func (s *UserStore) UpdateAuthID(ctx context.Context, id uuid.UUID, authID string) (UserRecord, error) {
	row := s.pool.QueryRow(ctx, fmt.Sprintf(`
        UPDATE %s SET auth_id = $1, updated_at = NOW()
        WHERE user_id = $2
        RETURNING %s
    `, UsersTable, userColumns), authID, id)

	user, err := scanUser(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return UserRecord{}, ErrUserNotFound
		}
		if isUniqueViolation(err) {
			return UserRecord{}, ErrUserConflict
		}
		return UserRecord{}, err
	}

	return user, nil
}

// AssignOrg sets the owning organization for a user that has none yet.
func (s *UserStore) AssignOrg(ctx context.Context, id uuid.UUID, orgID uuid.UUID) (UserRecord, error) {
	row := s.pool.QueryRow(ctx, fmt.Sprintf(`
        UPDATE %s SET org_id = $1, updated_at = NOW()
        WHERE user_id = $2
        RETURNING %s
    `, UsersTable, userColumns), orgID, id)

	user, err := scanUser(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return UserRecord{}, ErrUserNotFound
		}
		return UserRecord{}, err
	}

	return user, nil
}

func scanUserNotFound(row pgx.Row) (UserRecord, error) {
	user, err := scanUser(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return UserRecord{}, ErrUserNotFound
		}
		return UserRecord{}, err
	}
	return user, nil
}

func scanUser(row pgx.Row) (UserRecord, error) {
	var user UserRecord
	if err := row.Scan(&user.UserID, &user.AuthID, &user.Email, &user.FullName, &user.Role, &user.OrgID, &user.CreatedAt, &user.UpdatedAt); err != nil {
		return UserRecord{}, err
	}
	return user, nil
}
