// Package config loads editor settings from the environment, optionally
// seeded from a .env file next to the binary.
package config

import (
	"os"
	"path/filepath"
	"strconv"

	"github.com/joho/godotenv"
)

// Config stores the editor configuration.
type Config struct {
	// Inference.
	Provider    string // cpu, cuda, directml
	DeviceID    int
	Threads     int
	Detector    string // yin, fcpe, rmvpe
	ModelDir    string // watched for model file changes
	UseSegModel bool   // model-based note segmentation when available

	// Session.
	LastFile       string
	Language       string
	UndoDepth      int
	WindowGeometry string // "WxH+X+Y", consumed by a UI shell

	// Logging.
	LogLevel string
	LogPath  string
}

// getEnv gets an environment variable or returns a default value.
func getEnv(key, fallback string) string {
	if value, exists := os.LookupEnv(key); exists {
		return value
	}
	return fallback
}

// getEnvInt gets an environment variable as int or returns a default value.
func getEnvInt(key string, fallback int) int {
	if value, exists := os.LookupEnv(key); exists {
		if n, err := strconv.Atoi(value); err == nil {
			return n
		}
	}
	return fallback
}

// getEnvBool gets an environment variable as bool or returns a default.
func getEnvBool(key string, fallback bool) bool {
	if value, exists := os.LookupEnv(key); exists {
		if b, err := strconv.ParseBool(value); err == nil {
			return b
		}
	}
	return fallback
}

// Load reads configuration from the environment. A .env file in the
// working directory is merged in without overriding existing variables.
func Load() *Config {
	_ = godotenv.Load()

	return &Config{
		Provider:       getEnv("VOCAL_PROVIDER", "cpu"),
		DeviceID:       getEnvInt("VOCAL_DEVICE_ID", 0),
		Threads:        getEnvInt("VOCAL_THREADS", 0),
		Detector:       getEnv("VOCAL_DETECTOR", "rmvpe"),
		ModelDir:       getEnv("VOCAL_MODEL_DIR", filepath.Join("models")),
		UseSegModel:    getEnvBool("VOCAL_SEG_MODEL", false),
		LastFile:       getEnv("VOCAL_LAST_FILE", ""),
		Language:       getEnv("VOCAL_LANGUAGE", "en"),
		UndoDepth:      getEnvInt("VOCAL_UNDO_DEPTH", 64),
		WindowGeometry: getEnv("VOCAL_WINDOW_GEOMETRY", ""),
		LogLevel:       getEnv("VOCAL_LOG_LEVEL", "info"),
		LogPath:        getEnv("VOCAL_LOG_PATH", ""),
	}
}
