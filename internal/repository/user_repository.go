package repository

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/Marga-Ghale/powerline-backend/internal/types"
	"github.com/google/uuid"
)

// UserRepository reads the accounts that own and sponsor positions. Emails
// are unique regardless of case.
type UserRepository interface {
	Create(ctx context.Context, user *User) error
	FindByID(ctx context.Context, id string) (*User, error)
	FindByEmail(ctx context.Context, email string) (*User, error)
	Count(ctx context.Context) (int64, error)
}

type pgUserRepository struct {
	db *sql.DB
}

func NewUserRepository(db *sql.DB) UserRepository {
	return &pgUserRepository{db: db}
}

func (r *pgUserRepository) Create(ctx context.Context, user *User) error {
	query := `
		INSERT INTO users (email, password, name, role, status)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING id, created_at, updated_at
	`
	if user.Status == "" {
		user.Status = types.UserActive
	}
	if user.Role == "" {
		user.Role = types.RoleMember
	}
	err := r.db.QueryRowContext(ctx, query,
		user.Email, user.Password, user.Name, user.Role, user.Status,
	).Scan(&user.ID, &user.CreatedAt, &user.UpdatedAt)
	return mapUniqueViolation(err)
}

func (r *pgUserRepository) FindByID(ctx context.Context, id string) (*User, error) {
	// ids arrive from tokens and request bodies; a malformed one cannot match a uuid column
	if _, err := uuid.Parse(id); err != nil {
		return nil, nil
	}
	query := `
		SELECT id, email, password, name, role, status, created_at, updated_at
		FROM users WHERE id = $1
	`
	return r.scanUser(r.db.QueryRowContext(ctx, query, id))
}

func (r *pgUserRepository) FindByEmail(ctx context.Context, email string) (*User, error) {
	query := `
		SELECT id, email, password, name, role, status, created_at, updated_at
		FROM users WHERE LOWER(email) = LOWER($1)
	`
	return r.scanUser(r.db.QueryRowContext(ctx, query, email))
}

func (r *pgUserRepository) Count(ctx context.Context) (int64, error) {
	var n int64
	err := r.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM users`).Scan(&n)
	return n, err
}

func (r *pgUserRepository) scanUser(row *sql.Row) (*User, error) {
	user := &User{}
	err := row.Scan(
		&user.ID, &user.Email, &user.Password, &user.Name,
		&user.Role, &user.Status, &user.CreatedAt, &user.UpdatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return user, nil
}

// newDocumentID generates ids for drivers without server-side defaults.
func newDocumentID() string {
	return uuid.NewString()
}

// stamp fills created/updated timestamps the way the SQL defaults would.
func stamp(created, updated *time.Time) {
	now := time.Now().UTC()
	if created.IsZero() {
		*created = now
	}
	*updated = now
}
