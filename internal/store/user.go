package store

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/jjudge-oj/accounts/types"
	"github.com/lib/pq"
)

// DefaultRole is listed for users that have no role assigned.
const DefaultRole = "default"

// DBTX is satisfied by *sql.DB, *sql.Tx and *sql.Conn.
type DBTX interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// UserRepository provides database access for users.
type UserRepository struct {
	db DBTX
}

// NewUserRepository constructs a UserRepository.
func NewUserRepository(db DBTX) *UserRepository {
	return &UserRepository{db: db}
}

const userColumns = `id, username, first_name, last_name, email, password_hash, token_version,
	locked_until, last_login_at, deleted_at, created_at, updated_at`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanUser(row rowScanner) (types.User, error) {
	var user types.User
	err := row.Scan(
		&user.ID,
		&user.Username,
		&user.FirstName,
		&user.LastName,
		&user.Email,
		&user.PasswordHash,
		&user.TokenVersion,
		&user.LockedUntil,
		&user.LastLoginAt,
		&user.DeletedAt,
		&user.CreatedAt,
		&user.UpdatedAt,
	)
	return user, err
}

// UsernameExists reports whether any row, soft-deleted included, holds the username.
func (r *UserRepository) UsernameExists(ctx context.Context, username string) (bool, error) {
	const query = `SELECT EXISTS(SELECT 1 FROM users WHERE username = $1)`

	var exists bool
	if err := r.db.QueryRowContext(ctx, query, username).Scan(&exists); err != nil {
		return false, classify("username exists", err)
	}
	return exists, nil
}

// EmailExists reports whether any row, soft-deleted included, holds the email.
func (r *UserRepository) EmailExists(ctx context.Context, email string) (bool, error) {
	const query = `SELECT EXISTS(SELECT 1 FROM users WHERE email = $1)`

	var exists bool
	if err := r.db.QueryRowContext(ctx, query, email).Scan(&exists); err != nil {
		return false, classify("email exists", err)
	}
	return exists, nil
}

// Insert creates a user and returns the stored row.
func (r *UserRepository) Insert(ctx context.Context, nu types.NewUser) (types.User, error) {
	const query = `
		INSERT INTO users (id, username, first_name, last_name, email, password_hash, token_version)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING ` + userColumns

	id, err := uuid.NewRandom()
	if err != nil {
		return types.User{}, fmt.Errorf("generate user id: %w", err)
	}

	row := r.db.QueryRowContext(ctx, query,
		id,
		nu.Username,
		nu.FirstName,
		nu.LastName,
		nu.Email,
		nu.PasswordHash,
		nu.TokenVersion,
	)
	user, err := scanUser(row)
	if err != nil {
		return types.User{}, classify("insert user", err)
	}
	return user, nil
}

// FindByID fetches a user by ID.
func (r *UserRepository) FindByID(ctx context.Context, id uuid.UUID) (types.User, error) {
	query := `SELECT ` + userColumns + ` FROM users WHERE id = $1`

	user, err := scanUser(r.db.QueryRowContext(ctx, query, id))
	if err != nil {
		return types.User{}, classify("find user by id", err)
	}
	return user, nil
}

// FindByUsernameOrEmail fetches the user whose username or email equals value.
// A username match wins over an email match on a different row.
func (r *UserRepository) FindByUsernameOrEmail(ctx context.Context, value string) (types.User, error) {
	query := `SELECT ` + userColumns + ` FROM users
		WHERE username = $1 OR email = $1
		ORDER BY CASE WHEN username = $1 THEN 0 ELSE 1 END
		LIMIT 1`

	user, err := scanUser(r.db.QueryRowContext(ctx, query, value))
	if err != nil {
		return types.User{}, classify("find user by username or email", err)
	}
	return user, nil
}

// UpdateProfile writes the provided profile fields and returns the updated row.
func (r *UserRepository) UpdateProfile(ctx context.Context, id uuid.UUID, update types.ProfileUpdate) (types.User, error) {
	if update.Empty() {
		return r.FindByID(ctx, id)
	}

	sets := make([]string, 0, 5)
	args := make([]any, 0, 5)
	add := func(column string, value *string) {
		if value == nil {
			return
		}
		args = append(args, *value)
		sets = append(sets, fmt.Sprintf("%s = $%d", column, len(args)))
	}
	add("username", update.Username)
	add("email", update.Email)
	add("first_name", update.FirstName)
	add("last_name", update.LastName)
	sets = append(sets, "updated_at = NOW()")
	args = append(args, id)

	query := fmt.Sprintf(`UPDATE users SET %s WHERE id = $%d RETURNING %s`,
		strings.Join(sets, ", "), len(args), userColumns)

	user, err := scanUser(r.db.QueryRowContext(ctx, query, args...))
	if err != nil {
		return types.User{}, classify("update profile", err)
	}
	return user, nil
}

// BumpTokenVersion stores a new token version and stamps last_login_at.
func (r *UserRepository) BumpTokenVersion(ctx context.Context, id uuid.UUID, version int32) (types.User, error) {
	query := `
		UPDATE users
		SET token_version = $1, last_login_at = NOW(), updated_at = NOW()
		WHERE id = $2
		RETURNING ` + userColumns

	user, err := scanUser(r.db.QueryRowContext(ctx, query, version, id))
	if err != nil {
		return types.User{}, classify("bump token version", err)
	}
	return user, nil
}

// UpdatePassword replaces the password hash and token version in one statement.
func (r *UserRepository) UpdatePassword(ctx context.Context, id uuid.UUID, passwordHash string, version int32) error {
	const query = `
		UPDATE users
		SET password_hash = $1, token_version = $2, updated_at = NOW()
		WHERE id = $3`

	result, err := r.db.ExecContext(ctx, query, passwordHash, version, id)
	if err != nil {
		return classify("update password", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return classify("update password", err)
	}
	if affected == 0 {
		return ErrNotFound
	}
	return nil
}

// ListWithRoles returns every user with its role names. Roles are loaded in a
// single batched query; users without roles get DefaultRole.
// Soft-deleted users are included.
func (r *UserRepository) ListWithRoles(ctx context.Context) ([]types.UserSummary, error) {
	const usersQuery = `
		SELECT id, username, email, first_name, last_name
		FROM users
		ORDER BY created_at, id`

	rows, err := r.db.QueryContext(ctx, usersQuery)
	if err != nil {
		return nil, classify("list users", err)
	}
	defer rows.Close()

	var (
		ids       []string
		summaries []types.UserSummary
	)
	index := make(map[uuid.UUID]int)
	for rows.Next() {
		var (
			id      uuid.UUID
			summary types.UserSummary
		)
		if err := rows.Scan(&id, &summary.Username, &summary.Email, &summary.FirstName, &summary.LastName); err != nil {
			return nil, classify("scan user", err)
		}
		index[id] = len(summaries)
		ids = append(ids, id.String())
		summaries = append(summaries, summary)
	}
	if err := rows.Err(); err != nil {
		return nil, classify("list users", err)
	}
	if len(summaries) == 0 {
		return []types.UserSummary{}, nil
	}

	const rolesQuery = `
		SELECT ur.user_id, r.name
		FROM users_roles ur
		JOIN roles r ON r.id = ur.role_id
		WHERE ur.user_id = ANY($1::uuid[])
		ORDER BY r.name`

	roleRows, err := r.db.QueryContext(ctx, rolesQuery, pq.Array(ids))
	if err != nil {
		return nil, classify("list user roles", err)
	}
	defer roleRows.Close()

	for roleRows.Next() {
		var (
			userID uuid.UUID
			name   string
		)
		if err := roleRows.Scan(&userID, &name); err != nil {
			return nil, classify("scan user role", err)
		}
		if i, ok := index[userID]; ok {
			summaries[i].Roles = append(summaries[i].Roles, name)
		}
	}
	if err := roleRows.Err(); err != nil {
		return nil, classify("list user roles", err)
	}

	for i := range summaries {
		if len(summaries[i].Roles) == 0 {
			summaries[i].Roles = []string{DefaultRole}
		}
	}
	return summaries, nil
}
