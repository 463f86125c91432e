// Package config reads runtime settings from the environment and .env files.
package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/sirupsen/logrus"
)

// Environment variable names.
const (
	EnvLogLevel    = "GEOWATCH_LOG_LEVEL"
	EnvLogFormat   = "GEOWATCH_LOG_FORMAT"
	EnvPolicy      = "GEOWATCH_POLICY"
	EnvListen      = "GEOWATCH_LISTEN"
	EnvBroker      = "GEOWATCH_MQTT_BROKER"
	EnvTopic       = "GEOWATCH_MQTT_TOPIC"
	EnvSerialPort  = "GEOWATCH_SERIAL_PORT"
	EnvSerialBaud  = "GEOWATCH_SERIAL_BAUD"
	EnvPageURL     = "GEOWATCH_PAGE_URL"
	EnvADBSerial   = "GEOWATCH_ADB_SERIAL"
	EnvAuditLog    = "GEOWATCH_AUDIT_LOG"
	EnvBridgeURL   = "GEOWATCH_BRIDGE_URL"
	EnvInterval    = "GEOWATCH_INTERVAL"
	EnvUERE        = "GEOWATCH_UERE"
	EnvMaxAttempts = "GEOWATCH_MAX_ATTEMPTS"
)

// LoadEnv loads environment variables from .env files in the working
// directory. Later files override earlier ones; missing files are skipped.
func LoadEnv(logger logrus.FieldLogger) []string {
	files := []string{".env", ".env.local"}
	loaded := make([]string, 0, len(files))
	for _, file := range files {
		if _, err := os.Stat(file); err != nil {
			continue
		}
		if err := godotenv.Overload(file); err != nil {
			if logger != nil {
				logger.WithError(err).Warnf("failed to load %s", file)
			}
			continue
		}
		loaded = append(loaded, file)
	}
	if logger != nil {
		if len(loaded) == 0 {
			logger.Debug("no env files loaded, using process environment")
		} else {
			logger.Debugf("loaded env files: %s", strings.Join(loaded, ", "))
		}
	}
	return loaded
}

// GetEnv gets an environment variable with a default value.
func GetEnv(key, defaultValue string) string {
	if value := strings.TrimSpace(os.Getenv(key)); value != "" {
		return value
	}
	return defaultValue
}

// GetEnvInt gets an integer environment variable with a default value.
func GetEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if parsed, err := strconv.Atoi(strings.TrimSpace(value)); err == nil {
			return parsed
		}
	}
	return defaultValue
}

// GetEnvFloat gets a float environment variable with a default value.
func GetEnvFloat(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if parsed, err := strconv.ParseFloat(strings.TrimSpace(value), 64); err == nil {
			return parsed
		}
	}
	return defaultValue
}

// GetEnvBool gets a boolean environment variable with a default value.
func GetEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if parsed, err := strconv.ParseBool(strings.TrimSpace(value)); err == nil {
			return parsed
		}
	}
	return defaultValue
}

// GetEnvDuration gets a duration environment variable ("15s", "2m").
func GetEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if parsed, err := time.ParseDuration(strings.TrimSpace(value)); err == nil {
			return parsed
		}
	}
	return defaultValue
}

// GetLogLevel reads GEOWATCH_LOG_LEVEL. Unknown values mean info.
func GetLogLevel() logrus.Level {
	lvl, err := logrus.ParseLevel(GetEnv(EnvLogLevel, "info"))
	if err != nil {
		return logrus.InfoLevel
	}
	return lvl
}
