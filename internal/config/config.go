package config

import "time"

// Config holds all application configuration.
// It organizes settings into logical groups for better maintainability.
type Config struct {
	Server   ServerConfig   `mapstructure:"server"   validate:"required"`
	Database DatabaseConfig `mapstructure:"database" validate:"required"`
	Redis    RedisConfig    `mapstructure:"redis"    validate:"required"`
	Storage  StorageConfig  `mapstructure:"storage"  validate:"required"`
	LLM      LLMConfig      `mapstructure:"llm"      validate:"required"`
	Pipeline PipelineConfig `mapstructure:"pipeline" validate:"required"`
}

// ServerConfig contains all server-related configuration settings.
type ServerConfig struct {
	Port     int    `mapstructure:"port"      validate:"required,gt=0,lt=65536"`
	LogLevel string `mapstructure:"log_level" validate:"required,oneof=debug info warn error"`
}

// DatabaseConfig contains all database-related configuration settings.
type DatabaseConfig struct {
	URL string `mapstructure:"url" validate:"required,url"`
}

// RedisConfig contains settings for the cache/lock backend.
type RedisConfig struct {
	Addr     string `mapstructure:"addr" validate:"required,hostname_port"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"   validate:"gte=0"`
}

// StorageConfig contains blob storage settings. Backend selects between
// the S3 implementation and the local filesystem implementation.
type StorageConfig struct {
	Backend  string `mapstructure:"backend"   validate:"required,oneof=s3 local"`
	Bucket   string `mapstructure:"bucket"    validate:"required_if=Backend s3"`
	Region   string `mapstructure:"region"    validate:"required_if=Backend s3"`
	LocalDir string `mapstructure:"local_dir" validate:"required_if=Backend local"`
}

// LLMConfig contains all LLM integration related settings.
type LLMConfig struct {
	GeminiAPIKey      string `mapstructure:"gemini_api_key"      validate:"required"`
	ModelName         string `mapstructure:"model_name"          validate:"required"`
	MaxRetries        int    `mapstructure:"max_retries"         validate:"gte=0,lte=10"`
	RetryDelaySeconds int    `mapstructure:"retry_delay_seconds" validate:"gte=1,lte=30"`
	MaxPromptChars    int    `mapstructure:"max_prompt_chars"    validate:"gte=1000"`
}

// PipelineConfig contains the queue, worker and cache tuning knobs.
type PipelineConfig struct {
	WorkerCount        int           `mapstructure:"worker_count"         validate:"required,gte=1,lte=64"`
	MaxAttempts        int           `mapstructure:"max_attempts"         validate:"required,gte=1,lte=10"`
	RetryBaseDelay     time.Duration `mapstructure:"retry_base_delay"     validate:"required"`
	RatePerSecond      float64       `mapstructure:"rate_per_second"      validate:"required,gt=0"`
	CacheTTL           time.Duration `mapstructure:"cache_ttl"            validate:"required"`
	InFlightTTL        time.Duration `mapstructure:"inflight_ttl"         validate:"required"`
	ProcessingLockTTL  time.Duration `mapstructure:"processing_lock_ttl"  validate:"required"`
	BreakerThreshold   int           `mapstructure:"breaker_threshold"    validate:"required,gte=1"`
	BreakerResetWindow time.Duration `mapstructure:"breaker_reset_window" validate:"required"`
	CompletedRetention time.Duration `mapstructure:"completed_retention"  validate:"required"`
	FailedRetention    time.Duration `mapstructure:"failed_retention"     validate:"required"`
}
