package conf

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func TestLoad_Defaults(t *testing.T) {
	path := writeConfig(t, "debug: false\n")

	settings, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, DatabaseSQLite, settings.Database.Type)
	assert.Equal(t, DefaultBatchSize, settings.Migration.BatchSize)
	assert.Equal(t, DefaultMailChimpTimeout, settings.MailChimp.Timeout)
	assert.Equal(t, DefaultStages, settings.Migration.Stages)
	assert.Equal(t, "info", settings.Logging.Level)
	assert.Same(t, settings, GetSettings())
}

func TestLoad_FileValues(t *testing.T) {
	path := writeConfig(t, `
database:
  type: mysql
  mysql:
    host: db.internal
    port: "3307"
    username: ee
    password: secret
    database: wordpress
mailchimp:
  apikey: 0123456789abcdef0123456789abcdef-us6
  timeout: 5s
  ratelimit: 2.5
migration:
  batchsize: 10
  sleepbetween: 250ms
  stages: [listgroup]
logging:
  modulelevels:
    mailchimp: debug
`)

	settings, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, DatabaseMySQL, settings.Database.Type)
	assert.Equal(t, "db.internal", settings.Database.MySQL.Host)
	assert.Equal(t, "3307", settings.Database.MySQL.Port)
	assert.Equal(t, "0123456789abcdef0123456789abcdef-us6", settings.MailChimp.APIKey)
	assert.Equal(t, 5*time.Second, settings.MailChimp.Timeout)
	assert.InDelta(t, 2.5, settings.MailChimp.RateLimit, 0.001)
	assert.Equal(t, 10, settings.Migration.BatchSize)
	assert.Equal(t, 250*time.Millisecond, settings.Migration.SleepBetween)
	assert.Equal(t, []string{"listgroup"}, settings.Migration.Stages)
	assert.Equal(t, "debug", settings.Logging.ModuleLevels["mailchimp"])
}

func TestLoad_EnvOverrides(t *testing.T) {
	t.Setenv("MCMIGRATE_MAILCHIMP_APIKEY", "abc-us1")
	t.Setenv("MCMIGRATE_MIGRATION_BATCHSIZE", "7")
	path := writeConfig(t, "mailchimp:\n  apikey: fromfile-us2\n")

	settings, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "abc-us1", settings.MailChimp.APIKey)
	assert.Equal(t, 7, settings.Migration.BatchSize)
}

func TestLoad_InvalidSettings(t *testing.T) {
	path := writeConfig(t, "database:\n  type: postgres\nmigration:\n  batchsize: 0\n")

	_, err := Load(path)
	require.Error(t, err)

	var ve ValidationError
	require.ErrorAs(t, err, &ve)
	assert.Len(t, ve.Errors, 2)
}

func TestLoad_MissingExplicitFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	require.Error(t, err)
}

func TestSaveYAMLConfig_RoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "config.yaml")
	settings := Defaults()
	settings.MailChimp.APIKey = "abc-us3"
	settings.Migration.SleepBetween = 2 * time.Second

	require.NoError(t, SaveYAMLConfig(path, settings))

	loaded, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "abc-us3", loaded.MailChimp.APIKey)
	assert.Equal(t, 2*time.Second, loaded.Migration.SleepBetween)
	assert.Equal(t, settings.Database, loaded.Database)

	entries, err := os.ReadDir(filepath.Dir(path))
	require.NoError(t, err)
	assert.Len(t, entries, 1, "temporary file should be removed")
}

func TestLoad_ResolvesSecrets(t *testing.T) {
	keyFile := filepath.Join(t.TempDir(), "mailchimp_key")
	require.NoError(t, os.WriteFile(keyFile, []byte("filekey-us4\n"), 0o600))
	t.Setenv("MCM_DB_PASSWORD", "s3cret")

	path := writeConfig(t, `
mailchimp:
  apikey: ignored-us1
  apikeyfile: `+keyFile+`
database:
  mysql:
    password: ${MCM_DB_PASSWORD}
`)

	settings, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "filekey-us4", settings.MailChimp.APIKey)
	assert.Equal(t, "s3cret", settings.Database.MySQL.Password)
}

func TestLoad_MissingSecretReference(t *testing.T) {
	path := writeConfig(t, "mailchimp:\n  apikey: ${MCM_UNSET_KEY}\n")

	_, err := Load(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "mailchimp.apikey")
}
