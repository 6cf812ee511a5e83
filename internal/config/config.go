// Package config loads application configuration from environment
// variables, optionally seeded from a .env file.
package config

import (
	"log"
	"os"

	"github.com/joho/godotenv"
)

// Config holds the process-wide settings of the API server.  Each field
// corresponds to an environment variable.
type Config struct {
	Env         string // application environment (e.g. "dev", "production")
	Port        string // HTTP port to listen on
	StoreDriver string // "mysql" or "memory"
	DBUser      string
	DBPass      string // optional
	DBHost      string
	DBPort      string
	DBName      string
	AMQPURL     string // empty disables the emergency audit queue
}

// LoadDotEnv loads variables from the given files (".env" when none is
// given) without overriding variables already set.  A missing file is not
// an error.
func LoadDotEnv(files ...string) {
	if len(files) == 0 {
		files = []string{".env"}
	}
	for _, f := range files {
		if _, err := os.Stat(f); err != nil {
			continue
		}
		if err := godotenv.Load(f); err != nil {
			log.Printf("config: cannot load %s: %v", f, err)
		}
	}
}

// Load reads the server configuration.  The database variables are only
// required when STORE_DRIVER is mysql; missing required values cause the
// program to exit with a fatal log message.
func Load() Config {
	cfg := Config{
		Env:         envStr("APP_ENV", "dev"),
		Port:        envStr("APP_PORT", "8080"),
		StoreDriver: envStr("STORE_DRIVER", "mysql"),
		DBPass:      os.Getenv("DB_PASS"),
		AMQPURL:     os.Getenv("AMQP_URL"),
	}
	if cfg.StoreDriver == "mysql" {
		cfg.DBUser = must("DB_USER")
		cfg.DBHost = must("DB_HOST")
		cfg.DBPort = envStr("DB_PORT", "3306")
		cfg.DBName = must("DB_NAME")
	}
	return cfg
}

// must retrieves the value of a required environment variable.  If the
// variable is unset or empty, the application logs a fatal error and exits.
func must(key string) string {
	v, ok := os.LookupEnv(key)
	if !ok || v == "" {
		log.Fatalf("missing required env var: %s", key)
	}
	return v
}
