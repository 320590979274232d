// Package datastore opens the backing store and persists migration state.
package datastore

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/tphakala/mcmigrate/internal/conf"
	"github.com/tphakala/mcmigrate/internal/datastore/entities"
	"github.com/tphakala/mcmigrate/internal/logger"
)

// slowQueryThreshold is the duration above which a query is logged at WARN.
const slowQueryThreshold = 200 * time.Millisecond

// Manager defines the interface for database operations.
type Manager interface {
	// Initialize creates the migration bookkeeping tables and any legacy
	// table that does not exist yet. Existing legacy tables are not altered.
	Initialize() error
	// DB returns the underlying GORM database.
	DB() *gorm.DB
	// Path returns the database location (file path for SQLite, connection info for MySQL).
	Path() string
	// Close closes the database connection.
	Close() error
	// IsMySQL returns true if this is a MySQL manager.
	IsMySQL() bool
}

// Config holds configuration for the SQLite manager.
type Config struct {
	// Path is the database file. Parent directories are created.
	Path string
	// Logger receives gorm query logs. Nil discards them.
	Logger logger.Logger
}

// SQLiteManager handles a SQLite database file.
type SQLiteManager struct {
	db     *gorm.DB
	dbPath string
}

// NewSQLiteManager opens (or creates) the SQLite database at cfg.Path.
func NewSQLiteManager(cfg Config) (*SQLiteManager, error) {
	if cfg.Path == "" {
		return nil, fmt.Errorf("sqlite path is required")
	}
	if dir := filepath.Dir(cfg.Path); dir != "." {
		if err := os.MkdirAll(dir, 0o750); err != nil {
			return nil, fmt.Errorf("failed to create database directory: %w", err)
		}
	}

	// Build DSN with recommended SQLite pragmas
	dsn := fmt.Sprintf("%s?_journal_mode=WAL&_busy_timeout=5000&_foreign_keys=ON", cfg.Path)

	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger: gormLogger(cfg.Logger),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to open sqlite database: %w", err)
	}

	return &SQLiteManager{
		db:     db,
		dbPath: cfg.Path,
	}, nil
}

// Initialize creates the schema.
func (m *SQLiteManager) Initialize() error {
	return initializeSchema(m.db)
}

// DB returns the underlying GORM database.
func (m *SQLiteManager) DB() *gorm.DB {
	return m.db
}

// Path returns the database file path.
func (m *SQLiteManager) Path() string {
	return m.dbPath
}

// IsMySQL returns false for SQLite managers.
func (m *SQLiteManager) IsMySQL() bool {
	return false
}

// Close closes the database connection.
func (m *SQLiteManager) Close() error {
	sqlDB, err := m.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

// Open creates the manager selected by settings.Database.Type and
// initializes its schema.
func Open(settings *conf.Settings, log logger.Logger) (Manager, error) {
	var (
		m   Manager
		err error
	)

	switch settings.Database.Type {
	case conf.DatabaseMySQL:
		my := settings.Database.MySQL
		m, err = NewMySQLManager(&MySQLConfig{
			Host:     my.Host,
			Port:     my.Port,
			Username: my.Username,
			Password: my.Password,
			Database: my.Database,
			Logger:   log,
		})
	case conf.DatabaseSQLite, "":
		m, err = NewSQLiteManager(Config{Path: settings.Database.SQLite.Path, Logger: log})
	default:
		return nil, fmt.Errorf("unsupported database type %q", settings.Database.Type)
	}
	if err != nil {
		return nil, err
	}

	if err := m.Initialize(); err != nil {
		_ = m.Close()
		return nil, err
	}
	return m, nil
}

// legacyTables are owned by the event system. They are created only when
// missing, which is the case for fresh SQLite files and tests.
var legacyTables = []any{
	&entities.EventListGroup{},
	&entities.LegacyEventRel{},
	&entities.QuestionMailchimpField{},
}

func initializeSchema(db *gorm.DB) error {
	if err := db.AutoMigrate(
		&entities.StageState{},
		&entities.StageError{},
		&entities.EventIDMapping{},
	); err != nil {
		return fmt.Errorf("failed to migrate bookkeeping schema: %w", err)
	}

	migrator := db.Migrator()
	for _, model := range legacyTables {
		if migrator.HasTable(model) {
			continue
		}
		if err := migrator.CreateTable(model); err != nil {
			return fmt.Errorf("failed to create legacy table: %w", err)
		}
	}
	return nil
}

func gormLogger(log logger.Logger) *logger.GormLoggerAdapter {
	if log == nil {
		log = logger.NewSlogLogger(io.Discard, logger.LogLevelError, nil)
	}
	log = log.Module("gorm")
	return logger.NewGormLoggerAdapter(log, slowQueryThreshold)
}
