// Package config reads flat environment configuration, optionally seeded
// from a .env file.
package config

import (
	"fmt"
	"os"
	"strconv"

	"github.com/joho/godotenv"
)

// Load reads the .env file named by MATHLANG_ENV (or .env by default), then
// the corresponding .secret sidecar if it exists. Missing files are fine;
// all config is plain env vars read via os.Getenv after loading.
func Load() error {
	envFile := os.Getenv("MATHLANG_ENV")
	if envFile == "" {
		envFile = ".env"
	}

	_ = godotenv.Load(envFile)
	_ = godotenv.Load(envFile + ".secret")

	return nil
}

func ServerPort() int {
	port, err := strconv.Atoi(os.Getenv("SERVER_PORT"))
	if err != nil {
		return 8080
	}
	return port
}

func ServerAddr() string {
	return fmt.Sprintf(":%d", ServerPort())
}

// DatabaseURL returns the Postgres connection string. Empty means run
// without persistence.
func DatabaseURL() string {
	return os.Getenv("DATABASE_URL")
}

// RulesPath returns a directory of extra rule YAML files layered on top of
// the built-in knowledge base. Empty means built-ins only.
func RulesPath() string {
	return os.Getenv("RULES_PATH")
}

// RateLimitRPS returns the request rate limit. Defaults to 100.
func RateLimitRPS() float64 {
	rps, err := strconv.ParseFloat(os.Getenv("RATE_LIMIT_RPS"), 64)
	if err != nil || rps <= 0 {
		return 100
	}
	return rps
}

// RateLimitBurst returns the burst size for rate limiting. Defaults to 20.
func RateLimitBurst() int {
	burst, err := strconv.Atoi(os.Getenv("RATE_LIMIT_BURST"))
	if err != nil || burst <= 0 {
		return 20
	}
	return burst
}

// LogLevel returns the log level (debug, info, warn, error). Defaults to
// "info".
func LogLevel() string {
	level := os.Getenv("LOG_LEVEL")
	if level == "" {
		return "info"
	}
	return level
}

// FuzzyJudge reports whether mistaken steps should carry fuzzy closeness
// metadata. Defaults to on.
func FuzzyJudge() bool {
	v := os.Getenv("FUZZY_JUDGE")
	if v == "" {
		return true
	}
	enabled, err := strconv.ParseBool(v)
	if err != nil {
		return true
	}
	return enabled
}
