// env.go - Environment variable configuration and validation
package conf

import (
	"fmt"
	"os"
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// envBinding holds metadata for environment variable bindings (internal use)
type envBinding struct {
	ConfigKey string             // Viper config key
	EnvVar    string             // Environment variable name
	Validate  func(string) error // Optional validation function
}

// getEnvBindings returns all environment variable bindings with validation
func getEnvBindings() []envBinding {
	return []envBinding{
		{"debug", "MCMIGRATE_DEBUG", validateEnvBool},
		{"logging.level", "MCMIGRATE_LOG_LEVEL", validateEnvLogLevel},

		// Database
		{"database.type", "MCMIGRATE_DATABASE_TYPE", validateEnvDatabaseType},
		{"database.sqlite.path", "MCMIGRATE_DATABASE_SQLITE_PATH", nil},
		{"database.mysql.host", "MCMIGRATE_DATABASE_MYSQL_HOST", nil},
		{"database.mysql.port", "MCMIGRATE_DATABASE_MYSQL_PORT", validateEnvPort},
		{"database.mysql.username", "MCMIGRATE_DATABASE_MYSQL_USERNAME", nil},
		{"database.mysql.password", "MCMIGRATE_DATABASE_MYSQL_PASSWORD", nil},
		{"database.mysql.passwordfile", "MCMIGRATE_DATABASE_MYSQL_PASSWORD_FILE", nil},
		{"database.mysql.database", "MCMIGRATE_DATABASE_MYSQL_DATABASE", nil},

		// MailChimp
		{"mailchimp.apikey", "MCMIGRATE_MAILCHIMP_APIKEY", nil},
		{"mailchimp.apikeyfile", "MCMIGRATE_MAILCHIMP_APIKEY_FILE", nil},
		{"mailchimp.baseurl", "MCMIGRATE_MAILCHIMP_BASEURL", nil},
		{"mailchimp.timeout", "MCMIGRATE_MAILCHIMP_TIMEOUT", validateEnvDuration},
		{"mailchimp.ratelimit", "MCMIGRATE_MAILCHIMP_RATELIMIT", validateEnvRateLimit},

		// Migration
		{"migration.batchsize", "MCMIGRATE_MIGRATION_BATCHSIZE", validateEnvBatchSize},
		{"migration.sleepbetween", "MCMIGRATE_MIGRATION_SLEEPBETWEEN", validateEnvDuration},

		// Telemetry
		{"telemetry.enabled", "MCMIGRATE_TELEMETRY_ENABLED", validateEnvBool},
		{"telemetry.sentry.enabled", "MCMIGRATE_SENTRY_ENABLED", validateEnvBool},
		{"telemetry.sentry.dsn", "MCMIGRATE_SENTRY_DSN", nil},
	}
}

// bindEnvVars sets up environment variable bindings with validation (internal)
func bindEnvVars(v *viper.Viper) error {
	var warnings []string

	for _, binding := range getEnvBindings() {
		if err := v.BindEnv(binding.ConfigKey, binding.EnvVar); err != nil {
			warnings = append(warnings, fmt.Sprintf("Failed to bind %s: %v", binding.EnvVar, err))
			continue
		}

		if binding.Validate != nil {
			if envValue := os.Getenv(binding.EnvVar); envValue != "" {
				if err := binding.Validate(envValue); err != nil {
					warnings = append(warnings, fmt.Sprintf("Invalid %s value: %v", binding.EnvVar, err))
				}
			}
		}
	}

	if len(warnings) > 0 {
		return fmt.Errorf("environment variable issues:\n  - %s", strings.Join(warnings, "\n  - "))
	}
	return nil
}

func validateEnvBool(value string) error {
	if _, err := strconv.ParseBool(value); err != nil {
		return fmt.Errorf("invalid boolean value '%s': must be true/false, 1/0, t/f", value)
	}
	return nil
}

var validLogLevels = []string{"trace", "debug", "info", "warn", "error"}

func validateEnvLogLevel(value string) error {
	if !slices.Contains(validLogLevels, strings.ToLower(value)) {
		return fmt.Errorf("must be one of: %s", strings.Join(validLogLevels, ", "))
	}
	return nil
}

func validateEnvDatabaseType(value string) error {
	switch value {
	case DatabaseSQLite, DatabaseMySQL:
		return nil
	}
	return fmt.Errorf("must be one of: %s, %s", DatabaseSQLite, DatabaseMySQL)
}

func validateEnvPort(value string) error {
	port, err := strconv.Atoi(value)
	if err != nil {
		return fmt.Errorf("invalid port: %w", err)
	}
	if port < 1 || port > 65535 {
		return fmt.Errorf("port must be between 1 and 65535, got %d", port)
	}
	return nil
}

func validateEnvDuration(value string) error {
	d, err := time.ParseDuration(value)
	if err != nil {
		return fmt.Errorf("invalid duration: %w", err)
	}
	if d < 0 {
		return fmt.Errorf("duration must be non-negative, got %s", d)
	}
	return nil
}

func validateEnvRateLimit(value string) error {
	limit, err := strconv.ParseFloat(value, 64)
	if err != nil {
		return fmt.Errorf("invalid rate limit: %w", err)
	}
	if limit < 0 {
		return fmt.Errorf("rate limit must be non-negative, got %g", limit)
	}
	return nil
}

func validateEnvBatchSize(value string) error {
	size, err := strconv.Atoi(value)
	if err != nil {
		return fmt.Errorf("invalid batch size: %w", err)
	}
	if size < 1 {
		return fmt.Errorf("batch size must be positive, got %d", size)
	}
	return nil
}
