package repository

import (
	"context"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var userColumns = []string{"id", "email", "password", "name", "role", "status", "created_at", "updated_at"}

func TestPgUserRepositoryFindByID(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	repo := NewUserRepository(db)
	id := "6f1c2a4e-8b7d-4c3e-9a10-2b3c4d5e6f70"
	now := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)

	mock.ExpectQuery(`SELECT id, email, password, name, role, status, created_at, updated_at\s+FROM users WHERE id = \$1`).
		WithArgs(id).
		WillReturnRows(sqlmock.NewRows(userColumns).
			AddRow(id, "ada@example.com", "hash", "Ada", "admin", "active", now, now))

	user, err := repo.FindByID(context.Background(), id)
	require.NoError(t, err)
	require.NotNil(t, user)
	assert.Equal(t, "Ada", user.Name)
	assert.Equal(t, "admin", user.Role)
	assert.Equal(t, now, user.CreatedAt)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPgUserRepositoryFindByIDNotFound(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	repo := NewUserRepository(db)
	id := "6f1c2a4e-8b7d-4c3e-9a10-2b3c4d5e6f70"

	mock.ExpectQuery(`FROM users WHERE id = \$1`).
		WithArgs(id).
		WillReturnRows(sqlmock.NewRows(userColumns))

	user, err := repo.FindByID(context.Background(), id)
	require.NoError(t, err)
	assert.Nil(t, user)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPgUserRepositoryFindByIDSkipsMalformedIDs(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	user, err := NewUserRepository(db).FindByID(context.Background(), "not-a-uuid")
	require.NoError(t, err)
	assert.Nil(t, user)
	// no query may reach the database
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPgUserRepositoryCreateDefaults(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	now := time.Now().UTC()
	mock.ExpectQuery(`INSERT INTO users`).
		WithArgs("bo@example.com", "hash", "Bo", "member", "active").
		WillReturnRows(sqlmock.NewRows([]string{"id", "created_at", "updated_at"}).
			AddRow("0b7e3d1a-0000-4000-8000-000000000001", now, now))

	user := &User{Email: "bo@example.com", Password: "hash", Name: "Bo"}
	require.NoError(t, NewUserRepository(db).Create(context.Background(), user))
	assert.Equal(t, "0b7e3d1a-0000-4000-8000-000000000001", user.ID)
	assert.Equal(t, "member", user.Role)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPgUserRepositoryCount(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectQuery(`SELECT COUNT\(\*\) FROM users`).
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(3))

	n, err := NewUserRepository(db).Count(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int64(3), n)
}

func TestPgUserRepositoryCreateDuplicateEmail(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectQuery(`INSERT INTO users`).
		WillReturnError(&pgconn.PgError{Code: "23505", ConstraintName: "users_email_key"})

	err = NewUserRepository(db).Create(context.Background(), &User{Email: "BO@example.com", Name: "Bo"})
	assert.ErrorIs(t, err, ErrDuplicateEmail)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestMemoryUserRepositoryEmailIsUnique(t *testing.T) {
	repo := NewMemoryUserRepository()
	ctx := context.Background()

	require.NoError(t, repo.Create(ctx, &User{Email: "ada@example.com", Name: "Ada"}))
	assert.ErrorIs(t, repo.Create(ctx, &User{Email: "ADA@example.com", Name: "Ada again"}), ErrDuplicateEmail)

	u, err := repo.FindByEmail(ctx, "Ada@Example.com")
	require.NoError(t, err)
	require.NotNil(t, u)
	assert.Equal(t, "Ada", u.Name)
}
