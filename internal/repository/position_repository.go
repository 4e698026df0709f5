package repository

import (
	"context"
	"errors"
	"strconv"
	"time"

	"github.com/Marga-Ghale/powerline-backend/internal/types"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Unique constraints declared in 000001_init.up.sql.
const (
	positionUniqueConstraint = "powerline_positions_position_key"
	userUniqueConstraint     = "powerline_positions_user_id_key"
	pgUniqueViolation        = "23505"
	emailUniqueIndex         = "users_email_key"
)

type PositionRepository interface {
	// Create inserts p. A taken position number yields ErrDuplicatePosition and
	// a user that already owns a position yields ErrDuplicateUserPosition.
	Create(ctx context.Context, p *Position) error
	// MaxPosition returns the highest assigned number, or 0 for an empty queue.
	MaxPosition(ctx context.Context) (int64, error)
	FindByUserID(ctx context.Context, userID string) (*Position, error)
	FindByPosition(ctx context.Context, position int64) (*Position, error)
	// FindRange returns positions in [from, to] ascending.
	FindRange(ctx context.Context, from, to int64) ([]*Position, error)
	FindFirst(ctx context.Context, limit int) ([]*Position, error)
	FindRecent(ctx context.Context, limit int) ([]*Position, error)
	FindBySponsor(ctx context.Context, sponsorID string) ([]*Position, error)
	List(ctx context.Context, filter PositionFilter) ([]*Position, int64, error)

	Count(ctx context.Context) (int64, error)
	CountBefore(ctx context.Context, position int64) (int64, error)
	CountAfter(ctx context.Context, position int64) (int64, error)
	CountSince(ctx context.Context, since time.Time) (int64, error)
	CountByStatus(ctx context.Context) (map[string]int64, error)
	DailyGrowth(ctx context.Context, since time.Time) ([]DailyCount, error)

	// AdvanceStatus applies update in a single atomic write and returns the
	// stored row with the status it replaced, or nil when the position does
	// not exist.
	AdvanceStatus(ctx context.Context, position int64, update StatusUpdate) (*Position, string, error)
}

type pgPositionRepository struct {
	pool *pgxpool.Pool
}

func NewPositionRepository(pool *pgxpool.Pool) PositionRepository {
	return &pgPositionRepository{pool: pool}
}

const positionColumns = `
	id, position, user_id, display_name, sponsor_id, sponsor_name, status, source,
	joined_at, contact_email, contact_phone, has_enrolled, enrollment_date,
	became_promoter, promoter_date, last_activity, activity_count, notes,
	created_at, updated_at
`

type rowScanner interface {
	Scan(dest ...any) error
}

// trailingScan scans extra columns selected after positionColumns.
type trailingScan struct {
	row   rowScanner
	extra []any
}

func (t trailingScan) Scan(dest ...any) error {
	return t.row.Scan(append(dest, t.extra...)...)
}

func scanPosition(row rowScanner) (*Position, error) {
	p := &Position{}
	err := row.Scan(
		&p.ID, &p.Position, &p.UserID, &p.DisplayName, &p.SponsorID, &p.SponsorName,
		&p.Status, &p.Source, &p.JoinedAt, &p.ContactEmail, &p.ContactPhone,
		&p.Progression.HasEnrolled, &p.Progression.EnrollmentDate,
		&p.Progression.BecamePromoter, &p.Progression.PromoterDate,
		&p.LastActivity, &p.ActivityCount, &p.Notes, &p.CreatedAt, &p.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return p, nil
}

// mapUniqueViolation turns a Postgres unique violation into the storage sentinel
// for the constraint that fired.
func mapUniqueViolation(err error) error {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == pgUniqueViolation {
		switch pgErr.ConstraintName {
		case positionUniqueConstraint:
			return ErrDuplicatePosition
		case userUniqueConstraint:
			return ErrDuplicateUserPosition
		case emailUniqueIndex:
			return ErrDuplicateEmail
		}
	}
	return err
}

func (r *pgPositionRepository) Create(ctx context.Context, p *Position) error {
	query := `
		INSERT INTO powerline_positions (
			position, user_id, display_name, sponsor_id, sponsor_name, status, source,
			joined_at, contact_email, contact_phone, last_activity
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $8)
		RETURNING id, created_at, updated_at
	`
	err := r.pool.QueryRow(ctx, query,
		p.Position, p.UserID, p.DisplayName, p.SponsorID, p.SponsorName, p.Status, p.Source,
		p.JoinedAt, p.ContactEmail, p.ContactPhone,
	).Scan(&p.ID, &p.CreatedAt, &p.UpdatedAt)
	if err != nil {
		return mapUniqueViolation(err)
	}
	p.LastActivity = p.JoinedAt
	return nil
}

func (r *pgPositionRepository) MaxPosition(ctx context.Context) (int64, error) {
	var highest int64
	err := r.pool.QueryRow(ctx, `SELECT COALESCE(MAX(position), 0) FROM powerline_positions`).Scan(&highest)
	return highest, err
}

func (r *pgPositionRepository) FindByUserID(ctx context.Context, userID string) (*Position, error) {
	if _, err := uuid.Parse(userID); err != nil {
		return nil, nil
	}
	query := `SELECT ` + positionColumns + ` FROM powerline_positions WHERE user_id = $1`
	p, err := scanPosition(r.pool.QueryRow(ctx, query, userID))
	if err == pgx.ErrNoRows {
		return nil, nil
	}
	return p, err
}

func (r *pgPositionRepository) FindByPosition(ctx context.Context, position int64) (*Position, error) {
	query := `SELECT ` + positionColumns + ` FROM powerline_positions WHERE position = $1`
	p, err := scanPosition(r.pool.QueryRow(ctx, query, position))
	if err == pgx.ErrNoRows {
		return nil, nil
	}
	return p, err
}

func (r *pgPositionRepository) FindRange(ctx context.Context, from, to int64) ([]*Position, error) {
	query := `SELECT ` + positionColumns + `
		FROM powerline_positions
		WHERE position BETWEEN $1 AND $2
		ORDER BY position ASC
	`
	return r.queryPositions(ctx, query, from, to)
}

func (r *pgPositionRepository) FindFirst(ctx context.Context, limit int) ([]*Position, error) {
	query := `SELECT ` + positionColumns + ` FROM powerline_positions ORDER BY position ASC LIMIT $1`
	return r.queryPositions(ctx, query, limit)
}

func (r *pgPositionRepository) FindRecent(ctx context.Context, limit int) ([]*Position, error) {
	query := `SELECT ` + positionColumns + `
		FROM powerline_positions
		ORDER BY joined_at DESC, position DESC
		LIMIT $1
	`
	return r.queryPositions(ctx, query, limit)
}

func (r *pgPositionRepository) FindBySponsor(ctx context.Context, sponsorID string) ([]*Position, error) {
	if _, err := uuid.Parse(sponsorID); err != nil {
		return []*Position{}, nil
	}
	query := `SELECT ` + positionColumns + `
		FROM powerline_positions
		WHERE sponsor_id = $1
		ORDER BY position ASC
	`
	return r.queryPositions(ctx, query, sponsorID)
}

func (r *pgPositionRepository) List(ctx context.Context, filter PositionFilter) ([]*Position, int64, error) {
	where := ` WHERE 1=1`
	args := []interface{}{}
	argIndex := 1

	if filter.Status != "" {
		where += ` AND status = $` + strconv.Itoa(argIndex)
		args = append(args, filter.Status)
		argIndex++
	}
	if filter.From > 0 {
		where += ` AND position >= $` + strconv.Itoa(argIndex)
		args = append(args, filter.From)
		argIndex++
	}
	if filter.To > 0 {
		where += ` AND position <= $` + strconv.Itoa(argIndex)
		args = append(args, filter.To)
		argIndex++
	}

	var total int64
	if err := r.pool.QueryRow(ctx, `SELECT COUNT(*) FROM powerline_positions`+where, args...).Scan(&total); err != nil {
		return nil, 0, err
	}

	query := `SELECT ` + positionColumns + ` FROM powerline_positions` + where +
		` ORDER BY position ASC LIMIT $` + strconv.Itoa(argIndex) + ` OFFSET $` + strconv.Itoa(argIndex+1)
	args = append(args, filter.Limit, filter.Offset)

	positions, err := r.queryPositions(ctx, query, args...)
	if err != nil {
		return nil, 0, err
	}
	return positions, total, nil
}

func (r *pgPositionRepository) Count(ctx context.Context) (int64, error) {
	return r.count(ctx, `SELECT COUNT(*) FROM powerline_positions`)
}

func (r *pgPositionRepository) CountBefore(ctx context.Context, position int64) (int64, error) {
	return r.count(ctx, `SELECT COUNT(*) FROM powerline_positions WHERE position < $1`, position)
}

func (r *pgPositionRepository) CountAfter(ctx context.Context, position int64) (int64, error) {
	return r.count(ctx, `SELECT COUNT(*) FROM powerline_positions WHERE position > $1`, position)
}

func (r *pgPositionRepository) CountSince(ctx context.Context, since time.Time) (int64, error) {
	return r.count(ctx, `SELECT COUNT(*) FROM powerline_positions WHERE joined_at >= $1`, since)
}

func (r *pgPositionRepository) CountByStatus(ctx context.Context) (map[string]int64, error) {
	rows, err := r.pool.Query(ctx, `SELECT status, COUNT(*) FROM powerline_positions GROUP BY status`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	counts := make(map[string]int64)
	for rows.Next() {
		var status string
		var n int64
		if err := rows.Scan(&status, &n); err != nil {
			return nil, err
		}
		counts[status] = n
	}
	return counts, rows.Err()
}

func (r *pgPositionRepository) DailyGrowth(ctx context.Context, since time.Time) ([]DailyCount, error) {
	query := `
		SELECT to_char(joined_at AT TIME ZONE 'UTC', 'YYYY-MM-DD') AS day, COUNT(*)
		FROM powerline_positions
		WHERE joined_at >= $1
		GROUP BY day
		ORDER BY day ASC
	`
	rows, err := r.pool.Query(ctx, query, since)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	growth := []DailyCount{}
	for rows.Next() {
		var d DailyCount
		if err := rows.Scan(&d.Date, &d.Count); err != nil {
			return nil, err
		}
		growth = append(growth, d)
	}
	return growth, rows.Err()
}

// AdvanceStatus locks the row in the CTE so the returned previous status is
// the one this write replaced.
func (r *pgPositionRepository) AdvanceStatus(ctx context.Context, position int64, update StatusUpdate) (*Position, string, error) {
	query := `
		WITH prev AS (
			SELECT position AS prev_position, status AS previous_status
			FROM powerline_positions WHERE position = $1
			FOR UPDATE
		)
		UPDATE powerline_positions SET
			status = $2,
			notes = CASE
				WHEN $3::text IS NULL THEN notes
				WHEN notes IS NULL OR notes = '' THEN right($3::text, 500)
				ELSE right(notes || E'\n' || $3::text, 500)
			END,
			last_activity = $4,
			activity_count = activity_count + 1,
			has_enrolled = has_enrolled OR $5::boolean,
			enrollment_date = CASE WHEN $5::boolean AND enrollment_date IS NULL THEN $4 ELSE enrollment_date END,
			became_promoter = became_promoter OR $6::boolean,
			promoter_date = CASE WHEN $6::boolean AND promoter_date IS NULL THEN $4 ELSE promoter_date END,
			updated_at = $4
		FROM prev
		WHERE position = prev.prev_position
		RETURNING ` + positionColumns + `, prev.previous_status`

	var previous string
	p, err := scanPosition(trailingScan{
		row: r.pool.QueryRow(ctx, query,
			position, update.Status, update.Notes, update.At,
			update.Milestone == types.PositionEnrolled, update.Milestone == types.PositionPromoter,
		),
		extra: []any{&previous},
	})
	if err == pgx.ErrNoRows {
		return nil, "", nil
	}
	if err != nil {
		return nil, "", err
	}
	return p, previous, nil
}

func (r *pgPositionRepository) count(ctx context.Context, query string, args ...interface{}) (int64, error) {
	var n int64
	err := r.pool.QueryRow(ctx, query, args...).Scan(&n)
	return n, err
}

func (r *pgPositionRepository) queryPositions(ctx context.Context, query string, args ...interface{}) ([]*Position, error) {
	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	positions := []*Position{}
	for rows.Next() {
		p, err := scanPosition(rows)
		if err != nil {
			return nil, err
		}
		positions = append(positions, p)
	}
	return positions, rows.Err()
}
