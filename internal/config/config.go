package config

import (
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

// Config carries everything the service reads from the environment.
type Config struct {
	HTTPAddr         string
	PGDSN            string
	PromoteInterval  time.Duration
	EvaluateInterval time.Duration
	ReportBaseURL    string
	DocumentsDir     string
	RateBurst        int
	RatePerSecond    int
}

// Load reads an optional .env file and then the process environment.
// Missing values fall back to development defaults.
func Load() Config {
	// .env is a developer convenience; absence is not an error.
	_ = godotenv.Load()

	return Config{
		HTTPAddr:         getString("POLISURE_HTTP_ADDR", ":8080"),
		PGDSN:            os.Getenv("POLISURE_PG_DSN"),
		PromoteInterval:  getDuration("POLISURE_PROMOTE_INTERVAL", 5*time.Minute),
		EvaluateInterval: getDuration("POLISURE_EVALUATE_INTERVAL", 10*time.Minute),
		ReportBaseURL:    getString("POLISURE_REPORTS_URL", "http://localhost:8081/api/v1"),
		DocumentsDir:     getString("POLISURE_DOCUMENTS_DIR", "documents"),
		RateBurst:        getInt("POLISURE_RATE_BURST", 20),
		RatePerSecond:    getInt("POLISURE_RATE_PER_SECOND", 10),
	}
}

func getString(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func getDuration(key string, def time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	d, err := time.ParseDuration(v)
	if err != nil || d <= 0 {
		return def
	}
	return d
}

func getInt(key string, def int) int {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil || n <= 0 {
		return def
	}
	return n
}
