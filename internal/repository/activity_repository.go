package repository

import (
	"context"
	"strconv"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// ActivityRepository stores the audit trail of queue events, newest first.
type ActivityRepository interface {
	Create(ctx context.Context, activity *Activity) error
	FindByEntity(ctx context.Context, entityType, entityID string, limit int) ([]*Activity, error)
	FindByUser(ctx context.Context, userID string, limit int) ([]*Activity, error)
	FindRecent(ctx context.Context, limit int) ([]*Activity, error)
	DeleteOlderThan(ctx context.Context, olderThan time.Time) (int, error)
}

type pgActivityRepository struct {
	pool *pgxpool.Pool
}

func NewActivityRepository(pool *pgxpool.Pool) ActivityRepository {
	return &pgActivityRepository{pool: pool}
}

const (
	activityColumns = `id, type, entity_type, entity_id, user_id, changes, metadata, created_at`

	// rows removed per statement when pruning
	pruneBatch = 5000
)

// Create inserts the activity. A zero CreatedAt takes the database clock.
func (r *pgActivityRepository) Create(ctx context.Context, activity *Activity) error {
	var createdAt *time.Time
	if !activity.CreatedAt.IsZero() {
		createdAt = &activity.CreatedAt
	}

	return r.pool.QueryRow(ctx, `
		INSERT INTO activities (type, entity_type, entity_id, user_id, changes, metadata, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, COALESCE($7, NOW()))
		RETURNING id, created_at`,
		activity.Type, activity.EntityType, activity.EntityID,
		activity.UserID, activity.Changes, activity.Metadata, createdAt,
	).Scan(&activity.ID, &activity.CreatedAt)
}

func (r *pgActivityRepository) FindByEntity(ctx context.Context, entityType, entityID string, limit int) ([]*Activity, error) {
	return r.list(ctx, `WHERE entity_type = $1 AND entity_id = $2`, limit, entityType, entityID)
}

func (r *pgActivityRepository) FindByUser(ctx context.Context, userID string, limit int) ([]*Activity, error) {
	return r.list(ctx, `WHERE user_id = $1`, limit, userID)
}

func (r *pgActivityRepository) FindRecent(ctx context.Context, limit int) ([]*Activity, error) {
	return r.list(ctx, ``, limit)
}

// DeleteOlderThan prunes in batches so retention never holds a long lock on
// the table the enroll path writes to.
func (r *pgActivityRepository) DeleteOlderThan(ctx context.Context, olderThan time.Time) (int, error) {
	total := 0
	for {
		tag, err := r.pool.Exec(ctx, `
			DELETE FROM activities WHERE id IN (
				SELECT id FROM activities WHERE created_at < $1 LIMIT $2
			)`, olderThan, pruneBatch)
		if err != nil {
			return total, err
		}
		n := int(tag.RowsAffected())
		total += n
		if n < pruneBatch {
			return total, nil
		}
	}
}

// list runs a newest-first query. where uses $1..$n for args; the limit is
// bound after them.
func (r *pgActivityRepository) list(ctx context.Context, where string, limit int, args ...interface{}) ([]*Activity, error) {
	query := `SELECT ` + activityColumns + ` FROM activities ` + where +
		` ORDER BY created_at DESC LIMIT $` + strconv.Itoa(len(args)+1)

	rows, err := r.pool.Query(ctx, query, append(args, limit)...)
	if err != nil {
		return nil, err
	}
	activities, err := pgx.CollectRows(rows, scanActivity)
	if err != nil {
		return nil, err
	}
	if activities == nil {
		activities = []*Activity{}
	}
	return activities, nil
}

func scanActivity(row pgx.CollectableRow) (*Activity, error) {
	a := &Activity{}
	err := row.Scan(&a.ID, &a.Type, &a.EntityType, &a.EntityID, &a.UserID, &a.Changes, &a.Metadata, &a.CreatedAt)
	return a, err
}
