// conf/defaults.go default values for settings
package conf

import (
	"time"

	"github.com/spf13/viper"
)

// Default values shared with other packages
const (
	DefaultBatchSize        = 50
	DefaultMailChimpTimeout = 30 * time.Second
	DefaultCacheTTL         = 10 * time.Minute
	DefaultMetricsListen    = "127.0.0.1:9108"
	DefaultAPIListen        = "127.0.0.1:8087"
)

// DefaultStages is the stage order used when none is configured.
var DefaultStages = []string{"eventrel", "listgroup"}

// Sets default values for the configuration.
func setDefaultConfig(v *viper.Viper) {
	v.SetDefault("debug", false)

	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.timezone", "")
	v.SetDefault("logging.file.enabled", false)
	v.SetDefault("logging.file.path", "logs/mcmigrate.log")
	v.SetDefault("logging.file.level", "debug")

	v.SetDefault("database.type", DatabaseSQLite)
	v.SetDefault("database.sqlite.path", "mcmigrate.db")
	v.SetDefault("database.mysql.host", "localhost")
	v.SetDefault("database.mysql.port", "3306")
	v.SetDefault("database.mysql.username", "")
	v.SetDefault("database.mysql.password", "")
	v.SetDefault("database.mysql.passwordfile", "")
	v.SetDefault("database.mysql.database", "")

	v.SetDefault("mailchimp.apikey", "")
	v.SetDefault("mailchimp.apikeyfile", "")
	v.SetDefault("mailchimp.baseurl", "")
	v.SetDefault("mailchimp.timeout", DefaultMailChimpTimeout)
	v.SetDefault("mailchimp.ratelimit", 5.0)
	v.SetDefault("mailchimp.cachettl", DefaultCacheTTL)

	v.SetDefault("migration.batchsize", DefaultBatchSize)
	v.SetDefault("migration.sleepbetween", 100*time.Millisecond)
	v.SetDefault("migration.stages", DefaultStages)

	v.SetDefault("telemetry.enabled", false)
	v.SetDefault("telemetry.listen", DefaultMetricsListen)
	v.SetDefault("telemetry.sentry.enabled", false)
	v.SetDefault("telemetry.sentry.dsn", "")

	v.SetDefault("api.enabled", false)
	v.SetDefault("api.listen", DefaultAPIListen)
}
