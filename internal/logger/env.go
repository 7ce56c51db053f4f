package logger

import (
	"os"
	"strings"
)

// ConfigFromEnv reads the LOG_* keys, falling back to the generic service keys.
func ConfigFromEnv(service string) Config {
	return Config{
		Level:   getenvDefault("LOG_LEVEL", "info"),
		Format:  getenvDefault("LOG_FORMAT", "json"),
		Service: getenvDefault("LOG_SERVICE", getenvDefault("SERVICE_NAME", service)),
		Env:     getenvDefault("LOG_ENV", getenvDefault("ENV", os.Getenv("APP_ENV"))),
		Version: os.Getenv("VERSION"),
		Output:  getenvDefault("LOG_OUTPUT", "stdout"),
	}
}

func getenvDefault(key, def string) string {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def
	}
	return v
}
