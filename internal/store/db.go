package store

import (
	"database/sql"
	"fmt"

	gormcaches "github.com/go-gorm/caches/v4"
	"github.com/golang-migrate/migrate/v4"
	migratepg "github.com/golang-migrate/migrate/v4/database/postgres"
	_ "github.com/golang-migrate/migrate/v4/source/file"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/sentinel-voice/core/internal/apperr"
)

// Open connects to Postgres via gorm, installs the go-gorm/caches query
// cache plugin, and tunes the connection pool.
func Open(dsn string, maxOpen, maxIdle int, cache gormcaches.Cacher) (*gorm.DB, error) {
	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Warn),
	})
	if err != nil {
		return nil, apperr.Config("store.open", err)
	}

	if cache != nil {
		if err := db.Use(&gormcaches.Caches{Conf: &gormcaches.Config{Cacher: cache}}); err != nil {
			return nil, apperr.Config("store.use_caches", err)
		}
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, apperr.Config("store.underlying_sql_db", err)
	}
	if maxOpen > 0 {
		sqlDB.SetMaxOpenConns(maxOpen)
	}
	if maxIdle > 0 {
		sqlDB.SetMaxIdleConns(maxIdle)
	}

	return db, nil
}

// Migrate applies pending golang-migrate migrations found under
// migrationsPath against an already-open *sql.DB.
func Migrate(sqlDB *sql.DB, migrationsPath string) error {
	driver, err := migratepg.WithInstance(sqlDB, &migratepg.Config{})
	if err != nil {
		return apperr.Config("store.migrate.driver", err)
	}

	m, err := migrate.NewWithDatabaseInstance(
		fmt.Sprintf("file://%s", migrationsPath),
		"postgres", driver,
	)
	if err != nil {
		return apperr.Config("store.migrate.new", err)
	}

	if err := m.Up(); err != nil && err != migrate.ErrNoChange {
		return apperr.Config("store.migrate.up", err)
	}
	return nil
}
