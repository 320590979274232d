// Package testutil provides shared test helpers for mcmigrate packages.
package testutil

import (
	"io"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/tphakala/mcmigrate/internal/datastore"
	"github.com/tphakala/mcmigrate/internal/logger"
)

// DefaultTestTimeout is the standard timeout for async test operations.
const DefaultTestTimeout = 5 * time.Second

// WaitForChannel waits for a signal on ch or fails after timeout.
func WaitForChannel(t *testing.T, ch <-chan struct{}, timeout time.Duration, msg string) {
	t.Helper()
	select {
	case <-ch:
	case <-time.After(timeout):
		require.Fail(t, msg)
	}
}

// QuietLogger discards everything below error level.
func QuietLogger() logger.Logger {
	return logger.NewSlogLogger(io.Discard, logger.LogLevelError, nil)
}

// OpenSQLite creates an initialized SQLite store in a temp dir, closed on cleanup.
func OpenSQLite(t *testing.T, name string) datastore.Manager {
	t.Helper()
	mgr, err := datastore.NewSQLiteManager(datastore.Config{Path: filepath.Join(t.TempDir(), name)})
	require.NoError(t, err)
	require.NoError(t, mgr.Initialize())
	t.Cleanup(func() { _ = mgr.Close() })
	return mgr
}
