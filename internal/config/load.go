package config

import (
	"fmt"
	"reflect"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/spf13/viper"
)

// stringToDurationHookFunc converts duration strings like "60s" or "10m"
// into time.Duration values during unmarshalling.
func stringToDurationHookFunc() viper.DecoderConfigOption {
	return viper.DecodeHook(func(
		f reflect.Type,
		t reflect.Type,
		data interface{},
	) (interface{}, error) {
		if f.Kind() != reflect.String || t != reflect.TypeOf(time.Duration(0)) {
			return data, nil
		}
		return time.ParseDuration(data.(string))
	})
}

// Load reads configuration from environment variables and an optional config
// file. Environment variables use the DRIVEFLOW_ prefix with underscores for
// nesting (e.g. DRIVEFLOW_SERVER_PORT) and take precedence over file values.
// Returns a populated Config struct or an error if loading/validation fails.
func Load() (*Config, error) {
	v := viper.New()

	// Defaults mirror the limits the pipeline was designed around.
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.log_level", "info")
	v.SetDefault("pipeline.worker_count", 0)
	v.SetDefault("pipeline.queue_size", 100)
	v.SetDefault("pipeline.max_attempts", 3)
	v.SetDefault("pipeline.retry_delay", "60s")
	v.SetDefault("pipeline.task_deadline", "600s")
	v.SetDefault("pipeline.poll_interval", "5s")
	v.SetDefault("pipeline.reaper_period", "3600s")
	v.SetDefault("pipeline.staleness_threshold", "3600s")
	v.SetDefault("quota.per_minute", 15)
	v.SetDefault("quota.per_day", 1500)
	v.SetDefault("quota.timezone", "Asia/Bangkok")
	v.SetDefault("quota.fallback_provider", "ollama")
	v.SetDefault("ai.gemini_model", "gemini-2.0-flash")
	v.SetDefault("ai.embedding_model", "text-embedding-004")
	v.SetDefault("ai.ollama_url", "http://localhost:11434")
	v.SetDefault("ai.ollama_model", "llama3.2")
	v.SetDefault("storage.bucket", "driveflow-files")
	v.SetDefault("storage.thumbnail_size", 300)
	v.SetDefault("vector.collection", "driveflow_files")

	// Empty defaults register the remaining keys with viper so that
	// AutomaticEnv can populate them; validation rejects the empty values.
	for _, key := range []string{
		"database.url",
		"ai.gemini_api_key",
		"storage.endpoint", "storage.access_key", "storage.secret_key",
		"vector.url",
		"messaging.channel_secret", "messaging.channel_token",
	} {
		v.SetDefault(key, "")
	}

	v.SetConfigName("driveflow")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	v.AddConfigPath("/etc/driveflow")

	if err := v.ReadInConfig(); err != nil {
		// A missing config file is fine; everything can come from the
		// environment. Any other read error is fatal.
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	v.SetEnvPrefix("DRIVEFLOW")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	var cfg Config
	if err := v.Unmarshal(&cfg, stringToDurationHookFunc()); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	validate := validator.New()
	if err := validate.Struct(&cfg); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return &cfg, nil
}
