// Package config loads process configuration from the environment.
package config

import (
	"os"
	"strconv"
)

// Config holds tool configuration.
type Config struct {
	LogLevel  string
	StoreType string
	StorePath string

	LLMProvider       string
	LLMModel          string
	RequestsPerSecond float64
	BatchSize         int

	RedisAddr string
}

// Load loads configuration from environment variables. Component
// factories that need credentials (store backends, LLM providers)
// read the environment themselves; Config carries the knobs the CLI
// and service wiring consume directly.
func Load() *Config {
	logLevel := os.Getenv("WAIVERN_LOG_LEVEL")
	if logLevel == "" {
		logLevel = "info"
	}

	storeType := os.Getenv("WAIVERN_STORE_TYPE")
	if storeType == "" {
		storeType = "filesystem"
	}

	storePath := os.Getenv("WAIVERN_STORE_PATH")
	if storePath == "" {
		storePath = ".wct"
	}

	rps := 2.0
	if v := os.Getenv("WAIVERN_LLM_RPS"); v != "" {
		if parsed, err := strconv.ParseFloat(v, 64); err == nil && parsed > 0 {
			rps = parsed
		}
	}

	batchSize := 0
	if v := os.Getenv("WAIVERN_LLM_BATCH_SIZE"); v != "" {
		if parsed, err := strconv.Atoi(v); err == nil && parsed > 0 {
			batchSize = parsed
		}
	}

	return &Config{
		LogLevel:          logLevel,
		StoreType:         storeType,
		StorePath:         storePath,
		LLMProvider:       os.Getenv("LLM_PROVIDER"),
		LLMModel:          os.Getenv("WAIVERN_LLM_MODEL"),
		RequestsPerSecond: rps,
		BatchSize:         batchSize,
		RedisAddr:         os.Getenv("WAIVERN_REDIS_ADDR"),
	}
}
