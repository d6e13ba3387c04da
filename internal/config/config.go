package config

import (
	"log"
	"os"
	"strconv"

	"github.com/joho/godotenv"
)

const defaultDSN = "host=localhost user=postgres password=postgres dbname=agribalance port=5432 sslmode=disable"

type Config struct {
	HTTPPort    string
	DBDriver    string // postgres | sqlite
	DatabaseDSN string
	JWTSecret   string
	CORSOrigins string
	LogLevel    string
	AppEnv      string

	// Allowed overage of a reported harvest over the estimated yield.
	HarvestTolerance float64
	// Allowed overage of a selling quantity over the actual harvested yield.
	SaleQuantityTolerance float64
}

func Load() *Config {
	if err := godotenv.Load(); err != nil {
		log.Printf("[cfg] no .env file loaded, using process environment: %v", err)
	}

	cfg := &Config{
		HTTPPort:              getEnv("HTTP_PORT", "8080"),
		DBDriver:              getEnv("DB_DRIVER", "postgres"),
		DatabaseDSN:           getEnv("DATABASE_DSN", defaultDSN),
		JWTSecret:             getEnv("JWT_SECRET", ""),
		CORSOrigins:           getEnv("CORS_ALLOWED_ORIGINS", "http://localhost:5173"),
		LogLevel:              getEnv("LOG_LEVEL", "info"),
		AppEnv:                getEnv("APP_ENV", "production"),
		HarvestTolerance:      getEnvFloat("HARVEST_TOLERANCE", 0.10),
		SaleQuantityTolerance: getEnvFloat("SALE_QUANTITY_TOLERANCE", 0.05),
	}

	if cfg.JWTSecret == "" {
		log.Fatal("[FATAL] JWT_SECRET is not set")
	}
	if len(cfg.JWTSecret) < 32 {
		log.Fatal("[FATAL] JWT_SECRET must be at least 32 characters")
	}
	if cfg.DBDriver != "postgres" && cfg.DBDriver != "sqlite" {
		log.Fatalf("[FATAL] unsupported DB_DRIVER %q (postgres|sqlite)", cfg.DBDriver)
	}
	if cfg.DBDriver == "postgres" && cfg.DatabaseDSN == defaultDSN {
		log.Println("[WARN] DATABASE_DSN is using the default value, set your own Postgres connection for production.")
	}
	if cfg.DBDriver == "sqlite" && cfg.DatabaseDSN == defaultDSN {
		cfg.DatabaseDSN = "agribalance.db?_pragma=busy_timeout(5000)&_pragma=foreign_keys(1)"
	}
	if cfg.CORSOrigins == "http://localhost:5173" {
		log.Println("[WARN] CORS_ALLOWED_ORIGINS is using the default value, set your own domain for production.")
	}
	if cfg.HarvestTolerance < 0 || cfg.SaleQuantityTolerance < 0 {
		log.Fatal("[FATAL] tolerances cannot be negative")
	}

	return cfg
}

func getEnv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func getEnvFloat(key string, def float64) float64 {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		log.Printf("[WARN] %s=%q is not a number, using %v", key, v, def)
		return def
	}
	return f
}
