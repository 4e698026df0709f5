package repository

import (
	"database/sql"

	"github.com/jackc/pgx/v5/pgxpool"
	"go.mongodb.org/mongo-driver/v2/mongo"
)

type Repositories struct {
	PositionRepo PositionRepository
	UserRepo     UserRepository
	ActivityRepo ActivityRepository
}

// NewRepositories wires the postgres driver: positions and activities run on
// the pgx pool, users on the database/sql handle.
func NewRepositories(pool *pgxpool.Pool, db *sql.DB) *Repositories {
	return &Repositories{
		PositionRepo: NewPositionRepository(pool),
		ActivityRepo: NewActivityRepository(pool),
		UserRepo:     NewUserRepository(db),
	}
}

func NewMongoRepositories(database *mongo.Database) *Repositories {
	return &Repositories{
		PositionRepo: NewMongoPositionRepository(database),
		UserRepo:     NewMongoUserRepository(database),
		ActivityRepo: NewMongoActivityRepository(database),
	}
}

func NewMemoryRepositories() *Repositories {
	return &Repositories{
		PositionRepo: NewMemoryPositionRepository(),
		UserRepo:     NewMemoryUserRepository(),
		ActivityRepo: NewMemoryActivityRepository(),
	}
}
