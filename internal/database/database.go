// Package database opens the catalog database and owns its schema.
package database

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"

	sqlite3 "github.com/mattn/go-sqlite3"
	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"github.com/nexalabs/nexa/internal/config"
	"github.com/nexalabs/nexa/internal/logger"
	"github.com/nexalabs/nexa/internal/sortname"
)

// NaturalSortCollation is the collation name used for ORDER BY on sort
// titles. It is registered on every sqlite connection at open time.
const NaturalSortCollation = "NATSORT"

const sqliteDriverName = "sqlite3_nexa"

var registerDriverOnce sync.Once

func registerSQLiteDriver() {
	registerDriverOnce.Do(func() {
		sql.Register(sqliteDriverName, &sqlite3.SQLiteDriver{
			ConnectHook: func(conn *sqlite3.SQLiteConn) error {
				return conn.RegisterCollation(NaturalSortCollation, sortname.Compare)
			},
		})
	})
}

// Open connects to the configured database and migrates the schema.
func Open(cfg *config.DatabaseConfig) (*gorm.DB, error) {
	var (
		db  *gorm.DB
		err error
	)
	switch cfg.Type {
	case "postgres":
		db, err = openPostgres(cfg)
	case "sqlite", "":
		db, err = openSQLite(cfg.DatabasePath, cfg.LogQueries)
	default:
		return nil, fmt.Errorf("unsupported database type: %s", cfg.Type)
	}
	if err != nil {
		return nil, fmt.Errorf("connect database: %w", err)
	}

	if err := Migrate(db); err != nil {
		return nil, err
	}
	logger.Info("database initialized", "type", cfg.Type)
	return db, nil
}

var memorySeq atomic.Uint64

// OpenMemory opens a fresh in-memory sqlite database with the full schema.
// Used by tests; each call returns an isolated database.
func OpenMemory() (*gorm.DB, error) {
	dsn := fmt.Sprintf("file:mem%d?mode=memory&cache=shared", memorySeq.Add(1))
	db, err := openSQLite(dsn, false)
	if err != nil {
		return nil, err
	}
	if err := Migrate(db); err != nil {
		return nil, err
	}
	return db, nil
}

// Migrate applies the schema for every registered model.
func Migrate(db *gorm.DB) error {
	if err := db.AutoMigrate(AllModels()...); err != nil {
		return fmt.Errorf("migrate database: %w", err)
	}
	return nil
}

func openSQLite(path string, logQueries bool) (*gorm.DB, error) {
	registerSQLiteDriver()
	if dir := filepath.Dir(path); dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, err
		}
	}
	dialector := &sqlite.Dialector{DriverName: sqliteDriverName, DSN: path}
	return gorm.Open(dialector, &gorm.Config{Logger: gormLogger(logQueries), TranslateError: true})
}

func openPostgres(cfg *config.DatabaseConfig) (*gorm.DB, error) {
	return gorm.Open(postgres.Open(cfg.PostgresDSN), &gorm.Config{Logger: gormLogger(cfg.LogQueries), TranslateError: true})
}

func gormLogger(logQueries bool) gormlogger.Interface {
	if logQueries {
		return gormlogger.Default.LogMode(gormlogger.Info)
	}
	return gormlogger.Default.LogMode(gormlogger.Warn)
}

// NaturalOrder returns the ORDER BY expression for a sort-title column,
// using the natural-sort collation when the dialect supports it.
func NaturalOrder(db *gorm.DB, column string, desc bool) string {
	dir := "ASC"
	if desc {
		dir = "DESC"
	}
	if db.Dialector.Name() == "sqlite" {
		return fmt.Sprintf("%s COLLATE %s %s", column, NaturalSortCollation, dir)
	}
	return fmt.Sprintf("%s %s", column, dir)
}
