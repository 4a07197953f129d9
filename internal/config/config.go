package config

import "time"

// Config holds all application configuration.
// It organizes settings into logical groups for better maintainability.
type Config struct {
	Server    ServerConfig    `mapstructure:"server"    validate:"required"`
	Database  DatabaseConfig  `mapstructure:"database"  validate:"required"`
	Pipeline  PipelineConfig  `mapstructure:"pipeline"  validate:"required"`
	Quota     QuotaConfig     `mapstructure:"quota"     validate:"required"`
	AI        AIConfig        `mapstructure:"ai"        validate:"required"`
	Storage   StorageConfig   `mapstructure:"storage"   validate:"required"`
	Vector    VectorConfig    `mapstructure:"vector"`
	Messaging MessagingConfig `mapstructure:"messaging"`
}

// ServerConfig contains all server-related configuration settings.
type ServerConfig struct {
	Port     int    `mapstructure:"port"      validate:"required,gt=0,lt=65536"`
	LogLevel string `mapstructure:"log_level" validate:"required,oneof=debug info warn error"`
}

// DatabaseConfig contains all database-related configuration settings.
type DatabaseConfig struct {
	URL string `mapstructure:"url" validate:"required"`
}

// PipelineConfig configures the background task pipeline: worker pool size,
// retry policy, per-task deadline, and the reaper that reclaims abandoned
// claims. A zero worker count means one worker per available CPU core.
type PipelineConfig struct {
	WorkerCount        int           `mapstructure:"worker_count"        validate:"gte=0"`
	QueueSize          int           `mapstructure:"queue_size"          validate:"required,gt=0"`
	MaxAttempts        int           `mapstructure:"max_attempts"        validate:"required,gt=0"`
	RetryDelay         time.Duration `mapstructure:"retry_delay"         validate:"required"`
	TaskDeadline       time.Duration `mapstructure:"task_deadline"       validate:"required"`
	PollInterval       time.Duration `mapstructure:"poll_interval"       validate:"required"`
	ReaperPeriod       time.Duration `mapstructure:"reaper_period"       validate:"required"`
	StalenessThreshold time.Duration `mapstructure:"staleness_threshold" validate:"required"`
}

// QuotaConfig holds the admission limits for the primary AI provider and the
// identity of the fallback provider used once the daily quota is spent.
type QuotaConfig struct {
	PerMinute        int    `mapstructure:"per_minute"        validate:"required,gt=0"`
	PerDay           int    `mapstructure:"per_day"           validate:"required,gt=0"`
	Timezone         string `mapstructure:"timezone"          validate:"required"`
	FallbackProvider string `mapstructure:"fallback_provider" validate:"required"`
}

// AIConfig contains the AI provider integration settings.
type AIConfig struct {
	GeminiAPIKey   string `mapstructure:"gemini_api_key"  validate:"required"`
	GeminiModel    string `mapstructure:"gemini_model"    validate:"required"`
	EmbeddingModel string `mapstructure:"embedding_model" validate:"required"`
	OllamaURL      string `mapstructure:"ollama_url"      validate:"required,url"`
	OllamaModel    string `mapstructure:"ollama_model"    validate:"required"`
}

// StorageConfig contains the object storage connection settings.
type StorageConfig struct {
	Endpoint      string `mapstructure:"endpoint"       validate:"required"`
	AccessKey     string `mapstructure:"access_key"     validate:"required"`
	SecretKey     string `mapstructure:"secret_key"     validate:"required"`
	Bucket        string `mapstructure:"bucket"         validate:"required"`
	UseTLS        bool   `mapstructure:"use_tls"`
	ThumbnailSize int    `mapstructure:"thumbnail_size" validate:"required,gt=0"`
}

// VectorConfig contains the vector index connection settings.
type VectorConfig struct {
	URL        string `mapstructure:"url"`
	Collection string `mapstructure:"collection"`
}

// MessagingConfig contains the push-notification channel settings.
// Empty credentials disable outbound notifications.
type MessagingConfig struct {
	ChannelSecret string `mapstructure:"channel_secret"`
	ChannelToken  string `mapstructure:"channel_token"`
}
