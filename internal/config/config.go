package config

import (
	"os"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog/log"
)

// Config holds the runtime settings for the API server. Values come from
// the environment, with a .env file loaded first if present.
type Config struct {
	Port         string
	DatabasePath string
	JWTSecret    string
	Debug        bool
}

// Load reads configuration from the environment. Missing values fall back
// to development defaults; the JWT secret default is not suitable for
// production use.
func Load() *Config {
	if err := godotenv.Load(); err != nil {
		log.Debug().Msg("no .env file found, using environment")
	}

	return &Config{
		Port:         getEnv("PORT", "8080"),
		DatabasePath: getEnv("DATABASE_PATH", "ledger.db"),
		JWTSecret:    getEnv("JWT_SECRET", "ledger-dev-secret"),
		Debug:        os.Getenv("DEBUG") == "true",
	}
}

func getEnv(key, fallback string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return fallback
}
