package config

import (
	"fmt"
	"os"
	"strconv"

	"guess-duel-backend/internal/models"
)

type Config struct {
	Env  string
	Port string

	RedisURL  string
	RedisPass string
	RedisDB   int

	JWTSecret string

	BetLimits  models.BetLimits
	GuessRange models.GuessRange
}

func Load() (*Config, error) {
	cfg := &Config{
		Env:       getEnv("APP_ENV", "development"),
		Port:      getEnv("PORT", "8080"),
		RedisURL:  getEnv("REDIS_URL", "localhost:6379"),
		RedisPass: getEnv("REDIS_PASSWORD", ""),
		RedisDB:   getEnvInt("REDIS_DB", 0),
		JWTSecret: getEnv("JWT_SECRET", ""),
		BetLimits: models.BetLimits{
			Min:  getEnvFloat("MIN_BET", 10),
			Max:  getEnvFloat("MAX_BET", 1000),
			Step: getEnvFloat("BET_STEP", 5),
		},
		GuessRange: models.GuessRange{
			Min: getEnvInt("GUESS_MIN", 1),
			Max: getEnvInt("GUESS_MAX", 100),
		},
	}

	if cfg.JWTSecret == "" {
		if cfg.Env == "production" {
			return nil, fmt.Errorf("JWT_SECRET is required in production")
		}
		cfg.JWTSecret = "dev-secret-do-not-use-in-production"
	}

	if cfg.BetLimits.Min <= 0 || cfg.BetLimits.Min >= cfg.BetLimits.Max {
		return nil, fmt.Errorf("invalid bet limits: min=%.2f max=%.2f",
			cfg.BetLimits.Min, cfg.BetLimits.Max)
	}
	if cfg.BetLimits.Step <= 0 {
		return nil, fmt.Errorf("invalid bet step: %.2f", cfg.BetLimits.Step)
	}
	if cfg.GuessRange.Min >= cfg.GuessRange.Max {
		return nil, fmt.Errorf("invalid guess range: min=%d max=%d",
			cfg.GuessRange.Min, cfg.GuessRange.Max)
	}

	return cfg, nil
}

func getEnv(key, fallback string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	if value := os.Getenv(key); value != "" {
		if parsed, err := strconv.Atoi(value); err == nil {
			return parsed
		}
	}
	return fallback
}

func getEnvFloat(key string, fallback float64) float64 {
	if value := os.Getenv(key); value != "" {
		if parsed, err := strconv.ParseFloat(value, 64); err == nil {
			return parsed
		}
	}
	return fallback
}
