// Package config builds the single immutable configuration object the
// process is constructed from. It is read once at startup; nothing in the
// core re-reads the environment afterward.
package config

import (
	"time"

	"github.com/threadline/dialoguecore/internal/pkg/logger"
)

type Config struct {
	Debug bool
	Host  string
	Port  string

	DBURL       string
	DBUser      string
	DBPassword  string
	DBNamespace string
	DBDatabase  string

	LLMProvider string
	LLMAPIKey   string
	LLMAPIURL   string
	LLMModel    string

	MaxContextLength     int
	ResponseWindowHours  int
	SessionTimeoutHours  int

	ToolTimeoutSeconds      int
	ToolLockRedisURL        string
	PipelineDeadlineSeconds int

	LogLevel string
	LogFile  string

	CORSOrigins string

	OtelExporter string

	GoogleCredentialsPath string
	GoogleCredentialsJSON string

	MediaRoot string
}

// ResponseWindow returns the configured default response window as a Duration.
func (c Config) ResponseWindow() time.Duration {
	return time.Duration(c.ResponseWindowHours) * time.Hour
}

// SessionIdleThreshold returns the configured default session-idle threshold.
func (c Config) SessionIdleThreshold() time.Duration {
	return time.Duration(c.SessionTimeoutHours) * time.Hour
}

// PipelineDeadline returns the default end-to-end deadline for one
// processInput invocation.
func (c Config) PipelineDeadline() time.Duration {
	return time.Duration(c.PipelineDeadlineSeconds) * time.Second
}

// ToolTimeout returns the default per-tool invocation timeout.
func (c Config) ToolTimeout() time.Duration {
	return time.Duration(c.ToolTimeoutSeconds) * time.Second
}

// Load reads the process environment into a Config. log may be nil.
func Load(log *logger.Logger) Config {
	return Config{
		Debug: getEnvAsBool("DEBUG", false, log),
		Host:  getEnv("HOST", "0.0.0.0", log),
		Port:  getEnv("PORT", "8080", log),

		DBURL:       getEnv("DB_URL", "memory", log),
		DBUser:      getEnv("DB_USER", "", log),
		DBPassword:  getEnv("DB_PASSWORD", "", log),
		DBNamespace: getEnv("DB_NAMESPACE", "public", log),
		DBDatabase:  getEnv("DB_DATABASE", "dialoguecore", log),

		LLMProvider: getEnv("LLM_PROVIDER", "mock", log),
		LLMAPIKey:   getEnv("LLM_API_KEY", "", log),
		LLMAPIURL:   getEnv("LLM_API_URL", "", log),
		LLMModel:    getEnv("LLM_MODEL", "mock-1", log),

		MaxContextLength:    getEnvAsInt("MAX_CONTEXT_LENGTH", 4000, log),
		ResponseWindowHours: getEnvAsInt("RESPONSE_WINDOW_HOURS", 3, log),
		SessionTimeoutHours: getEnvAsInt("SESSION_TIMEOUT_HOURS", 1, log),

		ToolTimeoutSeconds:      getEnvAsInt("TOOL_TIMEOUT_SECONDS", 10, log),
		ToolLockRedisURL:        getEnv("TOOL_LOCK_REDIS_URL", "", log),
		PipelineDeadlineSeconds: getEnvAsInt("PIPELINE_DEADLINE_SECONDS", 120, log),

		LogLevel: getEnv("LOG_LEVEL", "debug", log),
		LogFile:  getEnv("LOG_FILE", "", log),

		CORSOrigins: getEnv("CORS_ORIGINS", "*", log),

		OtelExporter: getEnv("OTEL_EXPORTER", "stdout", log),

		GoogleCredentialsPath: getEnv("GOOGLE_APPLICATION_CREDENTIALS", "", log),
		GoogleCredentialsJSON: getEnv("GOOGLE_APPLICATION_CREDENTIALS_JSON", "", log),

		MediaRoot: getEnv("MEDIA_ROOT", "./data/media", log),
	}
}
