package config

import (
	"os"
	"strconv"
	"time"

	"github.com/threadline/dialoguecore/internal/pkg/logger"
)

func getEnv(key, defaultVal string, log *logger.Logger) string {
	if log != nil {
		log = log.With("env_var", key)
	}
	val, ok := os.LookupEnv(key)
	if !ok {
		if log != nil {
			log.Debug("environment variable not found, using default", "default", defaultVal)
		}
		return defaultVal
	}
	if log != nil {
		log.Debug("environment variable found, using environment", "value", val)
	}
	return val
}

func getEnvAsInt(key string, defaultVal int, log *logger.Logger) int {
	if log != nil {
		log = log.With("env_var", key)
	}
	valStr, ok := os.LookupEnv(key)
	if !ok {
		return defaultVal
	}
	i, err := strconv.Atoi(valStr)
	if err != nil {
		if log != nil {
			log.Debug("environment variable could not be parsed as int, using default", "providedVal", valStr, "error", err)
		}
		return defaultVal
	}
	return i
}

func getEnvAsBool(key string, defaultVal bool, log *logger.Logger) bool {
	valStr, ok := os.LookupEnv(key)
	if !ok {
		return defaultVal
	}
	b, err := strconv.ParseBool(valStr)
	if err != nil {
		return defaultVal
	}
	return b
}

func getEnvAsDuration(key string, defaultVal time.Duration, log *logger.Logger) time.Duration {
	valStr, ok := os.LookupEnv(key)
	if !ok {
		return defaultVal
	}
	secs, err := strconv.Atoi(valStr)
	if err != nil {
		return defaultVal
	}
	return time.Duration(secs) * time.Second
}
