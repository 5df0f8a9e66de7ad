package config

import (
	"errors"
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/spf13/viper"
)

// Defaults applied when neither the environment nor a config file sets a value.
const (
	defaultPort               = 8080
	defaultLogLevel           = "info"
	defaultUploadDir          = "./uploads"
	defaultMaxUploadSizeMB    = 50
	defaultDeepgramModel      = "nova-2"
	defaultGeminiModel        = "gemini-2.0-flash"
	defaultCallTimeoutSeconds = 60
	defaultMaxRetries         = 2 // retries after the first attempt: 3 attempts total
	defaultRetryDelaySeconds  = 2
	defaultTokenLifetime      = 60 // minutes
	defaultWorkerCount        = 2
	defaultQueueSize          = 100
	defaultStuckJobAgeMinutes = 30
)

// Load reads configuration from environment variables and an optional
// config.yaml in the working directory. Environment variables use the
// VOICENOTE_ prefix with underscores separating nested keys
// (e.g. VOICENOTE_DATABASE_URL, VOICENOTE_LLM_GEMINI_API_KEY).
// Environment variables take precedence over values from config files.
// Returns a populated Config struct or an error if loading/validation fails.
func Load() (*Config, error) {
	v := viper.New()

	setDefaults(v)

	// Optional config file; absence is not an error.
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	v.SetEnvPrefix("VOICENOTE")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := validator.New().Struct(&cfg); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return &cfg, nil
}

// setDefaults registers defaults for every key so viper's AutomaticEnv can
// bind the corresponding environment variables.
func setDefaults(v *viper.Viper) {
	v.SetDefault("server.port", defaultPort)
	v.SetDefault("server.log_level", defaultLogLevel)

	v.SetDefault("database.url", "")

	v.SetDefault("auth.jwt_secret", "")
	v.SetDefault("auth.token_lifetime_minutes", defaultTokenLifetime)

	v.SetDefault("upload.dir", defaultUploadDir)
	v.SetDefault("upload.max_upload_size_mb", defaultMaxUploadSizeMB)

	v.SetDefault("transcription.deepgram_api_key", "")
	v.SetDefault("transcription.model", defaultDeepgramModel)
	v.SetDefault("transcription.language", "")
	v.SetDefault("transcription.timeout_seconds", defaultCallTimeoutSeconds)
	v.SetDefault("transcription.max_retries", defaultMaxRetries)
	v.SetDefault("transcription.retry_delay_seconds", defaultRetryDelaySeconds)

	v.SetDefault("llm.gemini_api_key", "")
	v.SetDefault("llm.model_name", defaultGeminiModel)
	v.SetDefault("llm.timeout_seconds", defaultCallTimeoutSeconds)
	v.SetDefault("llm.max_retries", defaultMaxRetries)
	v.SetDefault("llm.retry_delay_seconds", defaultRetryDelaySeconds)

	v.SetDefault("worker.count", defaultWorkerCount)
	v.SetDefault("worker.queue_size", defaultQueueSize)
	v.SetDefault("worker.stuck_job_age_minutes", defaultStuckJobAgeMinutes)
}
