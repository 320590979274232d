//go:build integration

package datastore

import (
	"net"
	"testing"

	mysqldriver "github.com/go-sql-driver/mysql"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	tcmysql "github.com/testcontainers/testcontainers-go/modules/mysql"
)

func TestMySQLManager_Container(t *testing.T) {
	ctx := t.Context()

	ctr, err := tcmysql.Run(ctx, "mysql:8.0.36",
		tcmysql.WithDatabase("mcmigrate"),
		tcmysql.WithUsername("mcmigrate"),
		tcmysql.WithPassword("mcmigrate"),
	)
	testcontainers.CleanupContainer(t, ctr)
	require.NoError(t, err)

	conn, err := ctr.ConnectionString(ctx)
	require.NoError(t, err)
	parsed, err := mysqldriver.ParseDSN(conn)
	require.NoError(t, err)
	host, port, err := net.SplitHostPort(parsed.Addr)
	require.NoError(t, err)

	exerciseMySQL(t, &MySQLConfig{
		Host:     host,
		Port:     port,
		Username: parsed.User,
		Password: parsed.Passwd,
		Database: parsed.DBName,
	})
}
