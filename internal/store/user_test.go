package store

import (
	"context"
	"database/sql"
	"errors"
	"net"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jjudge-oj/accounts/types"
	"github.com/lib/pq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var userColumnNames = []string{
	"id", "username", "first_name", "last_name", "email", "password_hash", "token_version",
	"locked_until", "last_login_at", "deleted_at", "created_at", "updated_at",
}

func newRepoWithMock(t *testing.T) (*UserRepository, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	require.NoError(t, err)
	t.Cleanup(func() {
		assert.NoError(t, mock.ExpectationsWereMet())
		_ = db.Close()
	})
	return NewUserRepository(db), mock
}

func janeRow(id uuid.UUID, version int32) *sqlmock.Rows {
	now := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	return sqlmock.NewRows(userColumnNames).AddRow(
		id.String(), "janedoe", "Jane", "Doe", "jane@example.com", "$argon2id$stub", version,
		nil, nil, nil, now, now,
	)
}

func TestUsernameExists(t *testing.T) {
	repo, mock := newRepoWithMock(t)

	mock.ExpectQuery(`(?s)^SELECT EXISTS\(SELECT 1 FROM users WHERE username = \$1\)$`).
		WithArgs("janedoe").
		WillReturnRows(sqlmock.NewRows([]string{"exists"}).AddRow(true))

	exists, err := repo.UsernameExists(context.Background(), "janedoe")
	require.NoError(t, err)
	assert.True(t, exists)
}

func TestEmailExists_False(t *testing.T) {
	repo, mock := newRepoWithMock(t)

	mock.ExpectQuery(`(?s)^SELECT EXISTS\(SELECT 1 FROM users WHERE email = \$1\)$`).
		WithArgs("nobody@example.com").
		WillReturnRows(sqlmock.NewRows([]string{"exists"}).AddRow(false))

	exists, err := repo.EmailExists(context.Background(), "nobody@example.com")
	require.NoError(t, err)
	assert.False(t, exists)
}

func TestInsert_Success(t *testing.T) {
	repo, mock := newRepoWithMock(t)
	id := uuid.New()

	mock.ExpectQuery(`(?s)INSERT\s+INTO\s+users\s*\(id, username, first_name, last_name, email, password_hash, token_version\).*RETURNING`).
		WithArgs(sqlmock.AnyArg(), "janedoe", "Jane", "Doe", "jane@example.com", "$argon2id$stub", int32(0)).
		WillReturnRows(janeRow(id, 0))

	user, err := repo.Insert(context.Background(), types.NewUser{
		FirstName:    "Jane",
		LastName:     "Doe",
		Username:     "janedoe",
		Email:        "jane@example.com",
		PasswordHash: "$argon2id$stub",
	})
	require.NoError(t, err)
	assert.Equal(t, id, user.ID)
	assert.Equal(t, "janedoe", user.Username)
	assert.Equal(t, int32(0), user.TokenVersion)
	assert.Nil(t, user.LastLoginAt)
}

func TestInsert_UniqueViolationLibPQ(t *testing.T) {
	repo, mock := newRepoWithMock(t)

	mock.ExpectQuery(`(?s)INSERT\s+INTO\s+users`).
		WillReturnError(&pq.Error{Code: "23505", Constraint: "users_email_key"})

	_, err := repo.Insert(context.Background(), types.NewUser{Username: "janedoe", Email: "jane@example.com"})
	require.Error(t, err)

	var conflict *ConflictError
	require.ErrorAs(t, err, &conflict)
	assert.Equal(t, "email", conflict.Field)
	assert.ErrorIs(t, err, ErrConflict)
	assert.Equal(t, "email already in use", err.Error())
}

func TestInsert_UniqueViolationPgx(t *testing.T) {
	repo, mock := newRepoWithMock(t)

	mock.ExpectQuery(`(?s)INSERT\s+INTO\s+users`).
		WillReturnError(&pgconn.PgError{Code: "23505", ConstraintName: "users_username_key"})

	_, err := repo.Insert(context.Background(), types.NewUser{Username: "janedoe", Email: "jane@example.com"})

	var conflict *ConflictError
	require.ErrorAs(t, err, &conflict)
	assert.Equal(t, "username", conflict.Field)
}

func TestInsert_OtherConstraintIsNotConflict(t *testing.T) {
	repo, mock := newRepoWithMock(t)

	mock.ExpectQuery(`(?s)INSERT\s+INTO\s+users`).
		WillReturnError(&pq.Error{Code: "23502", Column: "email"})

	_, err := repo.Insert(context.Background(), types.NewUser{})
	require.Error(t, err)
	assert.NotErrorIs(t, err, ErrConflict)
	assert.NotErrorIs(t, err, ErrUnavailable)
}

func TestFindByID_NotFound(t *testing.T) {
	repo, mock := newRepoWithMock(t)
	id := uuid.New()

	mock.ExpectQuery(`(?s)SELECT .* FROM users WHERE id = \$1$`).
		WithArgs(id).
		WillReturnError(sql.ErrNoRows)

	_, err := repo.FindByID(context.Background(), id)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestFindByID_DialFailureIsUnavailable(t *testing.T) {
	repo, mock := newRepoWithMock(t)
	id := uuid.New()

	mock.ExpectQuery(`(?s)SELECT .* FROM users WHERE id = \$1$`).
		WithArgs(id).
		WillReturnError(&net.OpError{Op: "dial", Net: "tcp", Err: errors.New("connection refused")})

	_, err := repo.FindByID(context.Background(), id)
	assert.ErrorIs(t, err, ErrUnavailable)
}

func TestFindByUsernameOrEmail_Found(t *testing.T) {
	repo, mock := newRepoWithMock(t)
	id := uuid.New()

	mock.ExpectQuery(`(?s)SELECT .* FROM users\s+WHERE username = \$1 OR email = \$1.*LIMIT 1$`).
		WithArgs("jane@example.com").
		WillReturnRows(janeRow(id, 7))

	user, err := repo.FindByUsernameOrEmail(context.Background(), "jane@example.com")
	require.NoError(t, err)
	assert.Equal(t, id, user.ID)
	assert.Equal(t, int32(7), user.TokenVersion)
	assert.Equal(t, "$argon2id$stub", user.PasswordHash)
}

func TestUpdateProfile_OnlyProvidedFields(t *testing.T) {
	repo, mock := newRepoWithMock(t)
	id := uuid.New()
	username := "janedoe"
	last := "Doe"

	mock.ExpectQuery(`(?s)^UPDATE users SET username = \$1, last_name = \$2, updated_at = NOW\(\) WHERE id = \$3 RETURNING`).
		WithArgs("janedoe", "Doe", id).
		WillReturnRows(janeRow(id, 3))

	user, err := repo.UpdateProfile(context.Background(), id, types.ProfileUpdate{Username: &username, LastName: &last})
	require.NoError(t, err)
	assert.Equal(t, "janedoe", user.Username)
}

func TestUpdateProfile_EmptyUpdateReadsRow(t *testing.T) {
	repo, mock := newRepoWithMock(t)
	id := uuid.New()

	mock.ExpectQuery(`(?s)SELECT .* FROM users WHERE id = \$1$`).
		WithArgs(id).
		WillReturnRows(janeRow(id, 3))

	user, err := repo.UpdateProfile(context.Background(), id, types.ProfileUpdate{})
	require.NoError(t, err)
	assert.Equal(t, id, user.ID)
}

func TestUpdateProfile_Conflict(t *testing.T) {
	repo, mock := newRepoWithMock(t)
	id := uuid.New()
	email := "taken@example.com"

	mock.ExpectQuery(`(?s)^UPDATE users SET email = \$1`).
		WithArgs(email, id).
		WillReturnError(&pq.Error{Code: "23505", Constraint: "users_email_key"})

	_, err := repo.UpdateProfile(context.Background(), id, types.ProfileUpdate{Email: &email})
	var conflict *ConflictError
	require.ErrorAs(t, err, &conflict)
	assert.Equal(t, "email", conflict.Field)
}

func TestBumpTokenVersion(t *testing.T) {
	repo, mock := newRepoWithMock(t)
	id := uuid.New()

	mock.ExpectQuery(`(?s)UPDATE users\s+SET token_version = \$1, last_login_at = NOW\(\), updated_at = NOW\(\)\s+WHERE id = \$2`).
		WithArgs(int32(42), id).
		WillReturnRows(janeRow(id, 42))

	user, err := repo.BumpTokenVersion(context.Background(), id, 42)
	require.NoError(t, err)
	assert.Equal(t, int32(42), user.TokenVersion)
}

func TestUpdatePassword_SingleStatement(t *testing.T) {
	repo, mock := newRepoWithMock(t)
	id := uuid.New()

	mock.ExpectExec(`(?s)UPDATE users\s+SET password_hash = \$1, token_version = \$2, updated_at = NOW\(\)\s+WHERE id = \$3`).
		WithArgs("$argon2id$new", int32(99), id).
		WillReturnResult(sqlmock.NewResult(0, 1))

	require.NoError(t, repo.UpdatePassword(context.Background(), id, "$argon2id$new", 99))
}

func TestUpdatePassword_NotFound(t *testing.T) {
	repo, mock := newRepoWithMock(t)
	id := uuid.New()

	mock.ExpectExec(`(?s)UPDATE users\s+SET password_hash`).
		WithArgs("h", int32(1), id).
		WillReturnResult(sqlmock.NewResult(0, 0))

	assert.ErrorIs(t, repo.UpdatePassword(context.Background(), id, "h", 1), ErrNotFound)
}

func TestListWithRoles_BatchesRolesAndDefaults(t *testing.T) {
	repo, mock := newRepoWithMock(t)
	alice := uuid.New()
	bob := uuid.New()

	mock.ExpectQuery(`(?s)SELECT id, username, email, first_name, last_name\s+FROM users\s+ORDER BY created_at, id`).
		WillReturnRows(sqlmock.NewRows([]string{"id", "username", "email", "first_name", "last_name"}).
			AddRow(alice.String(), "alice", "alice@example.com", "Alice", "Smith").
			AddRow(bob.String(), "bob", "bob@example.com", "Bob", "Jones"))

	mock.ExpectQuery(`(?s)SELECT ur.user_id, r.name\s+FROM users_roles ur.*ANY\(\$1::uuid\[\]\)`).
		WithArgs(pq.Array([]string{alice.String(), bob.String()})).
		WillReturnRows(sqlmock.NewRows([]string{"user_id", "name"}).
			AddRow(alice.String(), "admin").
			AddRow(alice.String(), "user"))

	got, err := repo.ListWithRoles(context.Background())
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, "alice", got[0].Username)
	assert.Equal(t, []string{"admin", "user"}, got[0].Roles)
	assert.Equal(t, "bob", got[1].Username)
	assert.Equal(t, []string{DefaultRole}, got[1].Roles)
}

func TestListWithRoles_EmptySkipsRoleQuery(t *testing.T) {
	repo, mock := newRepoWithMock(t)

	mock.ExpectQuery(`(?s)SELECT id, username, email, first_name, last_name\s+FROM users`).
		WillReturnRows(sqlmock.NewRows([]string{"id", "username", "email", "first_name", "last_name"}))

	got, err := repo.ListWithRoles(context.Background())
	require.NoError(t, err)
	assert.Empty(t, got)
	assert.NotNil(t, got)
}

func TestListWithRoles_QueryError(t *testing.T) {
	repo, mock := newRepoWithMock(t)

	mock.ExpectQuery(`(?s)SELECT id, username`).WillReturnError(errors.New("boom"))

	_, err := repo.ListWithRoles(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "list users")
}

func TestInsert_ValueTooLong(t *testing.T) {
	repo, mock := newRepoWithMock(t)

	mock.ExpectQuery(`(?s)INSERT\s+INTO\s+users`).
		WillReturnError(&pgconn.PgError{Code: "22001", ColumnName: "username"})

	_, err := repo.Insert(context.Background(), types.NewUser{Username: "janedoe", Email: "jane@example.com"})
	assert.ErrorIs(t, err, ErrValueTooLong)
	assert.NotErrorIs(t, err, ErrConflict)
}
