package db

import (
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/postgres"
	_ "github.com/golang-migrate/migrate/v4/source/file"
	_ "github.com/lib/pq"
	"github.com/sirupsen/logrus"
)

// ErrDirtyMigration means a previous migration failed half way. The unique
// constraints enrollment depends on may be missing, so startup stops until an
// operator repairs the schema and runs `migrate force`.
var ErrDirtyMigration = errors.New("database schema is dirty")

// migrateLogger adapts logrus to migrate.Logger.
type migrateLogger struct {
	entry *logrus.Entry
}

func (l migrateLogger) Printf(format string, v ...interface{}) {
	l.entry.Infof(strings.TrimSuffix(format, "\n"), v...)
}

func (l migrateLogger) Verbose() bool {
	return l.entry.Logger.IsLevelEnabled(logrus.DebugLevel)
}

// RunMigrations applies every pending migration in migrationsPath.
func RunMigrations(databaseURL string, migrationsPath string) error {
	log := logrus.WithField("component", "db")

	conn, err := sql.Open("postgres", databaseURL)
	if err != nil {
		return fmt.Errorf("failed to open database: %w", err)
	}
	defer conn.Close()

	driver, err := postgres.WithInstance(conn, &postgres.Config{})
	if err != nil {
		return fmt.Errorf("failed to create postgres driver: %w", err)
	}

	m, err := migrate.NewWithDatabaseInstance("file://"+migrationsPath, "postgres", driver)
	if err != nil {
		return fmt.Errorf("failed to create migrate instance: %w", err)
	}
	m.Log = migrateLogger{entry: log}

	from, dirty, err := m.Version()
	switch {
	case errors.Is(err, migrate.ErrNilVersion):
		from = 0
	case err != nil:
		return fmt.Errorf("failed to get migration version: %w", err)
	case dirty:
		return fmt.Errorf("%w at version %d", ErrDirtyMigration, from)
	}

	if err := m.Up(); err != nil {
		if errors.Is(err, migrate.ErrNoChange) {
			log.WithField("version", from).Info("Database schema up to date")
			return nil
		}
		return fmt.Errorf("migration failed: %w", err)
	}

	to, _, _ := m.Version()
	log.WithFields(logrus.Fields{"from": from, "to": to}).Info("Database migrations completed")
	return nil
}
