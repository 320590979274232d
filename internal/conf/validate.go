// conf/validate.go

package conf

import (
	"fmt"
	"net"
	"slices"
	"strings"
)

// Known stage identifiers for migration.stages
const (
	StageEventRel  = "eventrel"
	StageListGroup = "listgroup"
)

// ValidationError represents a collection of validation errors
type ValidationError struct {
	Errors []string
}

// Error returns a string representation of the validation errors
func (ve ValidationError) Error() string {
	return fmt.Sprintf("Validation errors: %v", ve.Errors)
}

// ValidateSettings validates the entire Settings struct
func ValidateSettings(settings *Settings) error {
	ve := ValidationError{}

	ve.Errors = append(ve.Errors, validateLogging(&settings.Logging)...)
	ve.Errors = append(ve.Errors, validateDatabase(&settings.Database)...)
	ve.Errors = append(ve.Errors, validateMailChimp(&settings.MailChimp)...)
	ve.Errors = append(ve.Errors, validateMigration(&settings.Migration)...)

	if settings.Telemetry.Enabled {
		if err := validateListen(settings.Telemetry.Listen); err != nil {
			ve.Errors = append(ve.Errors, fmt.Sprintf("telemetry.listen: %v", err))
		}
	}
	if settings.Telemetry.Sentry.Enabled && settings.Telemetry.Sentry.DSN == "" {
		ve.Errors = append(ve.Errors, "telemetry.sentry.dsn is required when sentry is enabled")
	}
	if settings.API.Enabled {
		if err := validateListen(settings.API.Listen); err != nil {
			ve.Errors = append(ve.Errors, fmt.Sprintf("api.listen: %v", err))
		}
	}

	if len(ve.Errors) > 0 {
		return ve
	}
	return nil
}

func validateLogging(s *LogSettings) []string {
	var errs []string
	if s.Level != "" && !slices.Contains(validLogLevels, strings.ToLower(s.Level)) {
		errs = append(errs, fmt.Sprintf("logging.level %q is not one of %s", s.Level, strings.Join(validLogLevels, ", ")))
	}
	if s.File.Enabled && s.File.Path == "" {
		errs = append(errs, "logging.file.path is required when file logging is enabled")
	}
	return errs
}

func validateDatabase(s *DatabaseSettings) []string {
	switch s.Type {
	case DatabaseSQLite:
		if s.SQLite.Path == "" {
			return []string{"database.sqlite.path is required for sqlite"}
		}
	case DatabaseMySQL:
		var errs []string
		if s.MySQL.Host == "" {
			errs = append(errs, "database.mysql.host is required for mysql")
		}
		if s.MySQL.Database == "" {
			errs = append(errs, "database.mysql.database is required for mysql")
		}
		if s.MySQL.Port != "" {
			if err := validateEnvPort(s.MySQL.Port); err != nil {
				errs = append(errs, fmt.Sprintf("database.mysql.port: %v", err))
			}
		}
		return errs
	default:
		return []string{fmt.Sprintf("database.type %q must be %s or %s", s.Type, DatabaseSQLite, DatabaseMySQL)}
	}
	return nil
}

// The API key itself is not validated here; an unusable key skips the
// remote lookup and is reported per row instead of refusing to start.
func validateMailChimp(s *MailChimpSettings) []string {
	var errs []string
	if s.Timeout < 0 {
		errs = append(errs, "mailchimp.timeout must be non-negative")
	}
	if s.RateLimit < 0 {
		errs = append(errs, "mailchimp.ratelimit must be non-negative")
	}
	if s.BaseURL != "" && !strings.HasPrefix(s.BaseURL, "http://") && !strings.HasPrefix(s.BaseURL, "https://") {
		errs = append(errs, "mailchimp.baseurl must be an http or https URL")
	}
	return errs
}

func validateMigration(s *MigrationSettings) []string {
	var errs []string
	if s.BatchSize < 1 {
		errs = append(errs, fmt.Sprintf("migration.batchsize must be positive, got %d", s.BatchSize))
	}
	if s.SleepBetween < 0 {
		errs = append(errs, "migration.sleepbetween must be non-negative")
	}
	seen := make(map[string]bool, len(s.Stages))
	for _, stage := range s.Stages {
		if stage != StageEventRel && stage != StageListGroup {
			errs = append(errs, fmt.Sprintf("migration.stages: unknown stage %q", stage))
			continue
		}
		if seen[stage] {
			errs = append(errs, fmt.Sprintf("migration.stages: duplicate stage %q", stage))
		}
		seen[stage] = true
	}
	return errs
}

func validateListen(addr string) error {
	if _, _, err := net.SplitHostPort(addr); err != nil {
		return fmt.Errorf("invalid address %q: %w", addr, err)
	}
	return nil
}
