package datastore

import (
	"fmt"
	"net"
	"time"

	mysqldriver "github.com/go-sql-driver/mysql"
	"gorm.io/driver/mysql"
	"gorm.io/gorm"

	"github.com/tphakala/mcmigrate/internal/logger"
)

// MySQLConfig holds MySQL connection settings.
type MySQLConfig struct {
	Host     string
	Port     string
	Username string
	Password string
	Database string
	Logger   logger.Logger
}

// DSN formats the driver connection string.
func (c *MySQLConfig) DSN() string {
	cfg := mysqldriver.NewConfig()
	cfg.User = c.Username
	cfg.Passwd = c.Password
	cfg.Net = "tcp"
	cfg.Addr = net.JoinHostPort(c.Host, c.Port)
	cfg.DBName = c.Database
	cfg.ParseTime = true
	cfg.Loc = time.UTC
	cfg.Params = map[string]string{"charset": "utf8mb4"}
	return cfg.FormatDSN()
}

// MySQLManager handles a MySQL database.
type MySQLManager struct {
	db     *gorm.DB
	config *MySQLConfig
}

// NewMySQLManager connects to MySQL.
func NewMySQLManager(cfg *MySQLConfig) (*MySQLManager, error) {
	if cfg == nil {
		return nil, fmt.Errorf("mysql config is required")
	}
	if cfg.Database == "" {
		return nil, fmt.Errorf("mysql database name is required")
	}

	db, err := gorm.Open(mysql.Open(cfg.DSN()), &gorm.Config{
		Logger: gormLogger(cfg.Logger),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to mysql: %w", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("failed to get underlying sql.DB: %w", err)
	}
	sqlDB.SetMaxIdleConns(10)
	sqlDB.SetMaxOpenConns(100)
	sqlDB.SetConnMaxLifetime(time.Hour)

	return &MySQLManager{
		db:     db,
		config: cfg,
	}, nil
}

// Initialize creates the schema.
func (m *MySQLManager) Initialize() error {
	return initializeSchema(m.db)
}

// DB returns the underlying GORM database.
func (m *MySQLManager) DB() *gorm.DB {
	return m.db
}

// Path returns connection info without the password.
func (m *MySQLManager) Path() string {
	return fmt.Sprintf("mysql://%s@%s/%s", m.config.Username, net.JoinHostPort(m.config.Host, m.config.Port), m.config.Database)
}

// IsMySQL returns true for MySQL managers.
func (m *MySQLManager) IsMySQL() bool {
	return true
}

// Close closes the database connection.
func (m *MySQLManager) Close() error {
	sqlDB, err := m.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}
