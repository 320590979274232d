// Package conf loads and validates mcmigrate settings.
package conf

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"

	"github.com/tphakala/mcmigrate/internal/secrets"
)

// Database backends
const (
	DatabaseSQLite = "sqlite"
	DatabaseMySQL  = "mysql"
)

// LogSettings controls console and file logging.
type LogSettings struct {
	Level        string            // default level: trace, debug, info, warn, error
	Timezone     string            // IANA zone for file timestamps, empty for local time
	File         LogFileSettings   // JSON file output
	ModuleLevels map[string]string // per module overrides, e.g. mailchimp: debug
}

// LogFileSettings configures the JSON log file.
type LogFileSettings struct {
	Enabled bool
	Path    string
	Level   string
}

// SQLiteSettings holds the SQLite database path.
type SQLiteSettings struct {
	Path string
}

// MySQLSettings holds MySQL connection parameters.
type MySQLSettings struct {
	Host         string
	Port         string
	Username     string
	Password     string // may reference ${ENV_VARS}
	PasswordFile string // read the password from this file instead
	Database     string
}

// DatabaseSettings selects and configures the backing store holding the legacy tables.
type DatabaseSettings struct {
	Type   string // sqlite or mysql
	SQLite SQLiteSettings
	MySQL  MySQLSettings
}

// MailChimpSettings configures the remote directory client.
type MailChimpSettings struct {
	APIKey     string        // "secret-dc" form, e.g. 0123...-us6; may reference ${ENV_VARS}
	APIKeyFile string        // read the key from this file instead
	BaseURL    string        // overrides https://{dc}.api.mailchimp.com/3.0/
	Timeout    time.Duration // per request timeout
	RateLimit  float64       // requests per second, 0 disables limiting
	CacheTTL   time.Duration // response cache lifetime
}

// MigrationSettings controls the runner.
type MigrationSettings struct {
	BatchSize    int           // rows per chunk
	SleepBetween time.Duration // pause between chunks
	Stages       []string      // ordered stage list: eventrel, listgroup
}

// SentrySettings configures error reporting.
type SentrySettings struct {
	Enabled bool
	DSN     string
}

// TelemetrySettings configures the prometheus endpoint and Sentry.
type TelemetrySettings struct {
	Enabled bool   // true to expose /metrics
	Listen  string // metrics listen address
	Sentry  SentrySettings
}

// APISettings configures the control API.
type APISettings struct {
	Enabled bool
	Listen  string
}

// Settings contains all configuration options for mcmigrate.
type Settings struct {
	Debug bool // true to force debug logging

	Version string `yaml:"-"` // set from build info

	Logging   LogSettings
	Database  DatabaseSettings
	MailChimp MailChimpSettings
	Migration MigrationSettings
	Telemetry TelemetrySettings
	API       APISettings
}

var (
	settingsInstance *Settings
	settingsMutex    sync.RWMutex
)

// Load reads the configuration file and environment variables into a Settings value.
// An empty configFile searches the default config paths; a missing file is not an
// error and yields the defaults.
func Load(configFile string) (*Settings, error) {
	v := viper.New()
	if err := initViper(v, configFile); err != nil {
		return nil, fmt.Errorf("error initializing viper: %w", err)
	}

	settings := &Settings{}
	if err := v.Unmarshal(settings); err != nil {
		return nil, fmt.Errorf("error unmarshaling config into struct: %w", err)
	}

	if err := resolveSecrets(settings); err != nil {
		return nil, err
	}

	if err := ValidateSettings(settings); err != nil {
		return nil, fmt.Errorf("error validating settings: %w", err)
	}

	settingsMutex.Lock()
	settingsInstance = settings
	settingsMutex.Unlock()
	return settings, nil
}

// GetSettings returns the most recently loaded settings, or nil.
func GetSettings() *Settings {
	settingsMutex.RLock()
	defer settingsMutex.RUnlock()
	return settingsInstance
}

func initViper(v *viper.Viper, configFile string) error {
	setDefaultConfig(v)

	if err := bindEnvVars(v); err != nil {
		// invalid env values are reported but do not stop loading; validation catches the rest
		fmt.Fprintf(os.Stderr, "warning: %v\n", err)
	}

	if configFile != "" {
		v.SetConfigFile(configFile)
		return v.ReadInConfig()
	}

	v.SetConfigName("config")
	v.SetConfigType("yaml")
	paths, err := GetDefaultConfigPaths()
	if err != nil {
		return err
	}
	for _, path := range paths {
		v.AddConfigPath(path)
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if errors.As(err, &notFound) {
			return nil
		}
		return fmt.Errorf("error reading config file: %w", err)
	}
	return nil
}

// resolveSecrets replaces credential fields with their file or environment values.
func resolveSecrets(settings *Settings) error {
	fields := []struct {
		name  string
		file  string
		value *string
	}{
		{"mailchimp.apikey", settings.MailChimp.APIKeyFile, &settings.MailChimp.APIKey},
		{"database.mysql.password", settings.Database.MySQL.PasswordFile, &settings.Database.MySQL.Password},
	}
	for _, f := range fields {
		if f.file != "" && secrets.Permissive(f.file) {
			fmt.Fprintf(os.Stderr, "warning: %s secret file %s is readable by other users\n", f.name, f.file)
		}
		resolved, err := secrets.Resolve(f.file, *f.value)
		if err != nil {
			return fmt.Errorf("%s: %w", f.name, err)
		}
		*f.value = resolved
	}
	return nil
}

// Defaults returns a Settings value populated only from defaults.
func Defaults() *Settings {
	v := viper.New()
	setDefaultConfig(v)
	settings := &Settings{}
	// defaults are static and always decode
	_ = v.Unmarshal(settings)
	return settings
}

// SaveYAMLConfig writes settings to configPath.
// It overwrites the existing file, not preserving comments or structure.
func SaveYAMLConfig(configPath string, settings *Settings) error {
	yamlData, err := yaml.Marshal(settings)
	if err != nil {
		return fmt.Errorf("error marshaling settings to YAML: %w", err)
	}

	dir := filepath.Dir(configPath)
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return fmt.Errorf("error creating config directory: %w", err)
	}

	// write to a temp file first so a failed write never truncates the config
	tempFile, err := os.CreateTemp(dir, "config-*.yaml")
	if err != nil {
		return fmt.Errorf("error creating temporary file: %w", err)
	}
	tempFileName := tempFile.Name()
	defer func() { _ = os.Remove(tempFileName) }()

	if _, err := tempFile.Write(yamlData); err != nil {
		_ = tempFile.Close()
		return fmt.Errorf("error writing to temporary file: %w", err)
	}
	if err := tempFile.Close(); err != nil {
		return fmt.Errorf("error closing temporary file: %w", err)
	}

	if err := os.Rename(tempFileName, configPath); err != nil {
		return fmt.Errorf("error replacing config file: %w", err)
	}
	return nil
}
