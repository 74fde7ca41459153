package config

import (
	"fmt"
	"strings"

	"github.com/spf13/viper"
)

// Load loads configuration from environment variables and config files
func Load() (*viper.Viper, error) {
	v := viper.New()

	// Set config type
	v.SetConfigType("yaml")

	// Set environment variable prefix
	v.SetEnvPrefix("OPPHUB")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Set defaults
	setDefaults(v)

	// Load config file if exists
	configPaths := []string{
		".",
		"/etc/opphub",
	}

	for _, path := range configPaths {
		v.AddConfigPath(path)
	}
	v.SetConfigName("config")

	// Read config file (ignore if not found)
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
	}

	return v, nil
}

func setDefaults(v *viper.Viper) {
	// Database defaults
	v.SetDefault("database.type", "sqlite")
	v.SetDefault("database.dsn", "opphub.db")
	v.SetDefault("database.max_connections", 25)
	v.SetDefault("database.max_idle_time", 300)

	// Server defaults
	v.SetDefault("server.host", "0.0.0.0")
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.read_timeout", "15s")
	v.SetDefault("server.write_timeout", "15s")

	// Redis defaults
	v.SetDefault("redis.enabled", false)
	v.SetDefault("redis.url", "redis://localhost:6379/0")
	v.SetDefault("redis.changes_channel", "opphub:changes")

	// Cache defaults
	v.SetDefault("cache.enabled", true)
	v.SetDefault("cache.key_prefix", "opphub:")
	v.SetDefault("cache.timeout", "2s")

	// Search index defaults
	v.SetDefault("search.index_path", "opphub.bleve")
	v.SetDefault("search.query_timeout", "5s")
	v.SetDefault("search.max_page_size", 100)
	v.SetDefault("search.facet_size", 20)
	v.SetDefault("search.reindex_page_size", 500)

	// Indexer defaults
	v.SetDefault("indexer.bulk_rate_limit", 10) // batches per second
	v.SetDefault("indexer.bulk_burst", 5)

	// Behavior tracking defaults
	v.SetDefault("behavior.queue_size", 1024)

	// Scheduler defaults
	v.SetDefault("scheduler.expired_sweep", "0 * * * *") // hourly
	v.SetDefault("scheduler.full_reindex", "30 3 * * *") // nightly
}
