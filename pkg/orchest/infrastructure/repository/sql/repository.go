// Package sql provides a gorm-backed implementation of the Store interface
// supporting sqlite, postgres and mysql.
package sql

import (
	"fmt"

	"gorm.io/driver/mysql"
	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"github.com/tigerroll/swell/pkg/orchest/core/config"
	repository "github.com/tigerroll/swell/pkg/orchest/core/domain/repository"
	"github.com/tigerroll/swell/pkg/orchest/support/util/exception"
)

// SQLStore implements the repository.Store interface on a gorm connection.
type SQLStore struct {
	db *gorm.DB
}

// NewSQLStore opens the configured database, migrates the schema, and returns
// the store.
func NewSQLStore(cfg config.StoreConfig) (*SQLStore, error) {
	const op = "sql"

	var dialector gorm.Dialector
	switch cfg.Driver {
	case "sqlite":
		dialector = sqlite.Open(cfg.DSN)
	case "postgres":
		dialector = postgres.Open(cfg.DSN)
	case "mysql":
		dialector = mysql.Open(cfg.DSN)
	default:
		return nil, exception.NewOrchestError(op,
			fmt.Sprintf("Unsupported store driver %q", cfg.Driver), nil, exception.KindConfigInvalid)
	}

	db, err := gorm.Open(dialector, &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Silent),
	})
	if err != nil {
		return nil, exception.NewInternalError(op,
			fmt.Sprintf("Failed to open %s database", cfg.Driver), err)
	}

	if err := db.AutoMigrate(
		&RunEntity{},
		&EventEntity{},
		&ScheduleStateEntity{},
		&SensorStateEntity{},
		&TickEntity{},
		&BackfillEntity{},
	); err != nil {
		return nil, exception.NewInternalError(op, "Failed to migrate store schema", err)
	}

	return &SQLStore{db: db}, nil
}

// NewSQLStoreFromDB wraps an already-open gorm connection, migrating the
// schema. Used by tests.
func NewSQLStoreFromDB(db *gorm.DB) (*SQLStore, error) {
	if err := db.AutoMigrate(
		&RunEntity{},
		&EventEntity{},
		&ScheduleStateEntity{},
		&SensorStateEntity{},
		&TickEntity{},
		&BackfillEntity{},
	); err != nil {
		return nil, exception.NewInternalError("sql", "Failed to migrate store schema", err)
	}
	return &SQLStore{db: db}, nil
}

// Close closes the underlying database connection.
func (s *SQLStore) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

var _ repository.Store = (*SQLStore)(nil)
