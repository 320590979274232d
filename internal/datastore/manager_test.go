package datastore

import (
	"database/sql"
	"path/filepath"
	"testing"

	_ "github.com/mattn/go-sqlite3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tphakala/mcmigrate/internal/conf"
	"github.com/tphakala/mcmigrate/internal/datastore/entities"
)

func TestNewSQLiteManager_RequiresPath(t *testing.T) {
	_, err := NewSQLiteManager(Config{})
	require.Error(t, err)
}

func TestSQLiteManager_InitializeCreatesAllTables(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "mc.db")
	mgr, err := NewSQLiteManager(Config{Path: path})
	require.NoError(t, err)
	t.Cleanup(func() { _ = mgr.Close() })

	require.NoError(t, mgr.Initialize())
	// Initialize is idempotent
	require.NoError(t, mgr.Initialize())

	assert.Equal(t, path, mgr.Path())
	assert.False(t, mgr.IsMySQL())

	migrator := mgr.DB().Migrator()
	for _, model := range []any{
		&entities.EventListGroup{},
		&entities.LegacyEventRel{},
		&entities.QuestionMailchimpField{},
		&entities.EventIDMapping{},
		&entities.StageState{},
		&entities.StageError{},
	} {
		assert.True(t, migrator.HasTable(model), "missing table for %T", model)
	}
}

func TestSQLiteManager_KeepsExistingLegacyTable(t *testing.T) {
	path := filepath.Join(t.TempDir(), "legacy.db")

	// A legacy table with an extra column the models do not know about
	raw, err := sql.Open("sqlite3", path)
	require.NoError(t, err)
	_, err = raw.Exec(`CREATE TABLE esp_event_mailchimp_list_group (
		EMC_ID INTEGER PRIMARY KEY AUTOINCREMENT,
		EVT_ID INTEGER NOT NULL,
		AMC_mailchimp_list_id TEXT NOT NULL,
		AMC_mailchimp_group_id TEXT NOT NULL,
		legacy_note TEXT
	)`)
	require.NoError(t, err)
	_, err = raw.Exec(`INSERT INTO esp_event_mailchimp_list_group
		(EVT_ID, AMC_mailchimp_list_id, AMC_mailchimp_group_id, legacy_note) VALUES (1, 'L1', '-1', 'keep')`)
	require.NoError(t, err)
	require.NoError(t, raw.Close())

	mgr, err := NewSQLiteManager(Config{Path: path})
	require.NoError(t, err)
	t.Cleanup(func() { _ = mgr.Close() })
	require.NoError(t, mgr.Initialize())

	assert.True(t, mgr.DB().Migrator().HasColumn(&entities.EventListGroup{}, "legacy_note"))

	var rows []entities.EventListGroup
	require.NoError(t, mgr.DB().Find(&rows).Error)
	require.Len(t, rows, 1)
	assert.Equal(t, "L1", rows[0].ListID)
}

func TestOpen_SQLiteAndUnsupported(t *testing.T) {
	settings := conf.Defaults()
	settings.Database.SQLite.Path = filepath.Join(t.TempDir(), "open.db")

	m, err := Open(settings, nil)
	require.NoError(t, err)
	assert.True(t, m.DB().Migrator().HasTable(&entities.StageState{}))
	require.NoError(t, m.Close())

	settings.Database.Type = "postgres"
	_, err = Open(settings, nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unsupported database type")
}
