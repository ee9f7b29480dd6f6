package gormstore

import (
	"fmt"
	"strings"

	"github.com/eventhub/authcore"
	"github.com/glebarez/sqlite"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// Dialect identifiers.
const (
	DialectPostgres = "postgres"
	DialectSQLite   = "sqlite"
)

// Open connects according to cfg and, when cfg.AutoMigrate is set, creates
// the tables.
func Open(cfg authcore.DatabaseConfig) (*gorm.DB, error) {
	var dialector gorm.Dialector
	switch strings.ToLower(strings.TrimSpace(cfg.Driver)) {
	case "", DialectSQLite:
		dialector = sqlite.Open(cfg.DSN)
	case DialectPostgres:
		dialector = postgres.Open(cfg.DSN)
	default:
		return nil, fmt.Errorf("gormstore: unsupported driver %q", cfg.Driver)
	}

	conn, errOpen := gorm.Open(dialector, &gorm.Config{Logger: logger.Default.LogMode(logger.Silent)})
	if errOpen != nil {
		return nil, fmt.Errorf("gormstore: open: %w", errOpen)
	}

	sqlDB, errDB := conn.DB()
	if errDB != nil {
		return nil, fmt.Errorf("gormstore: pool: %w", errDB)
	}
	if cfg.MaxConnections > 0 {
		sqlDB.SetMaxOpenConns(cfg.MaxConnections)
	}
	if cfg.ConnMaxLifetime > 0 {
		sqlDB.SetConnMaxLifetime(cfg.ConnMaxLifetime)
	}

	if cfg.AutoMigrate {
		if errMigrate := Migrate(conn); errMigrate != nil {
			_ = sqlDB.Close()
			return nil, errMigrate
		}
	}
	return conn, nil
}

// Migrate creates or updates the principal tables.
func Migrate(conn *gorm.DB) error {
	if conn == nil {
		return fmt.Errorf("gormstore: nil connection")
	}
	if errAutoMigrate := conn.AutoMigrate(&User{}, &Admin{}); errAutoMigrate != nil {
		return fmt.Errorf("gormstore: migrate: %w", errAutoMigrate)
	}
	return nil
}

// DialectName returns the active dialect name.
func DialectName(conn *gorm.DB) string {
	if conn == nil || conn.Dialector == nil {
		return ""
	}
	return conn.Dialector.Name()
}
