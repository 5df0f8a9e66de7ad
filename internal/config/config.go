package config

// Config holds all application configuration.
// It organizes settings into logical groups for better maintainability.
type Config struct {
	Server        ServerConfig        `mapstructure:"server"        validate:"required"`
	Database      DatabaseConfig      `mapstructure:"database"      validate:"required"`
	Auth          AuthConfig          `mapstructure:"auth"          validate:"required"`
	Upload        UploadConfig        `mapstructure:"upload"        validate:"required"`
	Transcription TranscriptionConfig `mapstructure:"transcription" validate:"required"`
	LLM           LLMConfig           `mapstructure:"llm"           validate:"required"`
	Worker        WorkerConfig        `mapstructure:"worker"`
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

// AuthConfig contains all authentication and authorization settings.
// Identity is issued elsewhere; this service only verifies tokens.
type AuthConfig struct {
	JWTSecret string `mapstructure:"jwt_secret" validate:"required,min=32"`

	// TokenLifetimeMinutes controls the expiry of locally generated
	// tokens (the dev token tool). Validation accepts any unexpired token
	// signed with the shared secret regardless of who issued it.
	TokenLifetimeMinutes int `mapstructure:"token_lifetime_minutes" validate:"gt=0"`
}

// UploadConfig contains audio upload settings.
type UploadConfig struct {
	// Dir is the directory for stored audio blobs. Partial uploads live
	// in a tmp/ subdirectory until completion.
	Dir string `mapstructure:"dir" validate:"required"`

	// MaxUploadSizeMB bounds the size of a single audio upload.
	MaxUploadSizeMB int `mapstructure:"max_upload_size_mb" validate:"gt=0"`
}

// TranscriptionConfig contains the Deepgram integration settings.
type TranscriptionConfig struct {
	DeepgramAPIKey    string `mapstructure:"deepgram_api_key" validate:"required"`
	Model             string `mapstructure:"model"            validate:"required"`
	Language          string `mapstructure:"language"`
	TimeoutSeconds    int    `mapstructure:"timeout_seconds"     validate:"gt=0"`
	MaxRetries        int    `mapstructure:"max_retries"         validate:"gte=0"`
	RetryDelaySeconds int    `mapstructure:"retry_delay_seconds" validate:"gt=0"`
}

// LLMConfig contains the Gemini summarization settings.
type LLMConfig struct {
	GeminiAPIKey      string `mapstructure:"gemini_api_key" validate:"required"`
	ModelName         string `mapstructure:"model_name"     validate:"required"`
	TimeoutSeconds    int    `mapstructure:"timeout_seconds"     validate:"gt=0"`
	MaxRetries        int    `mapstructure:"max_retries"         validate:"gte=0"`
	RetryDelaySeconds int    `mapstructure:"retry_delay_seconds" validate:"gt=0"`
}

// WorkerConfig contains background job processing settings.
type WorkerConfig struct {
	// Count is the number of concurrent job workers.
	Count int `mapstructure:"count"`

	// QueueSize is the buffer size of the in-memory job channel.
	QueueSize int `mapstructure:"queue_size"`

	// StuckJobAgeMinutes is how long a job may sit in processing before
	// the monitor resets it to pending for redelivery.
	StuckJobAgeMinutes int `mapstructure:"stuck_job_age_minutes"`
}
