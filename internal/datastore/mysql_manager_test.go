package datastore

import (
	"os"
	"testing"

	mysqldriver "github.com/go-sql-driver/mysql"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// getMySQLConfig returns MySQL config from environment variables.
// Returns nil if MySQL is not configured for testing.
func getMySQLConfig() *MySQLConfig {
	host := os.Getenv("MYSQL_TEST_HOST")
	if host == "" {
		return nil
	}

	port := os.Getenv("MYSQL_TEST_PORT")
	if port == "" {
		port = "3306"
	}

	return &MySQLConfig{
		Host:     host,
		Port:     port,
		Username: os.Getenv("MYSQL_TEST_USER"),
		Password: os.Getenv("MYSQL_TEST_PASSWORD"),
		Database: os.Getenv("MYSQL_TEST_DATABASE"),
	}
}

func TestMySQLConfig_DSN(t *testing.T) {
	cfg := &MySQLConfig{
		Host:     "db.example",
		Port:     "3307",
		Username: "wp",
		Password: "p@ss:word",
		Database: "wordpress",
	}

	parsed, err := mysqldriver.ParseDSN(cfg.DSN())
	require.NoError(t, err)
	assert.Equal(t, "wp", parsed.User)
	assert.Equal(t, "p@ss:word", parsed.Passwd)
	assert.Equal(t, "tcp", parsed.Net)
	assert.Equal(t, "db.example:3307", parsed.Addr)
	assert.Equal(t, "wordpress", parsed.DBName)
	assert.True(t, parsed.ParseTime)
	assert.Equal(t, "utf8mb4", parsed.Params["charset"])
}

func TestNewMySQLManager_Validation(t *testing.T) {
	_, err := NewMySQLManager(nil)
	require.Error(t, err)

	_, err = NewMySQLManager(&MySQLConfig{Host: "localhost", Port: "3306"})
	require.Error(t, err)
}

func TestMySQLManager_Path(t *testing.T) {
	m := &MySQLManager{config: &MySQLConfig{Host: "h", Port: "1", Username: "u", Password: "secret", Database: "d"}}
	assert.Equal(t, "mysql://u@h:1/d", m.Path())
	assert.NotContains(t, m.Path(), "secret")
	assert.True(t, m.IsMySQL())
}

func TestMySQLManager_Lifecycle(t *testing.T) {
	cfg := getMySQLConfig()
	if cfg == nil {
		t.Skip("MySQL not configured. Set MYSQL_TEST_HOST, MYSQL_TEST_USER, MYSQL_TEST_PASSWORD, MYSQL_TEST_DATABASE to enable.")
	}
	exerciseMySQL(t, cfg)
}

// exerciseMySQL runs the state manager through one stage on a live server.
func exerciseMySQL(t *testing.T, cfg *MySQLConfig) {
	t.Helper()

	mgr, err := NewMySQLManager(cfg)
	require.NoError(t, err)
	t.Cleanup(func() { _ = mgr.Close() })
	require.NoError(t, mgr.Initialize())

	sm := NewStateManager(mgr.DB(), "mysql-run", nil)
	ctx := t.Context()
	require.NoError(t, mgr.DB().Exec("DELETE FROM migration_stages WHERE name = ?", testStage).Error)

	_, err = sm.EnsureStage(ctx, testStage)
	require.NoError(t, err)
	require.NoError(t, sm.StartStage(ctx, testStage, 1))
	require.NoError(t, sm.IncrementProgress(ctx, testStage, 1, 1))
	require.NoError(t, sm.BeginFinalize(ctx, testStage))
	require.NoError(t, sm.CompleteStage(ctx, testStage))

	state, err := sm.GetStage(ctx, testStage)
	require.NoError(t, err)
	assert.True(t, state.Finalized)
}
