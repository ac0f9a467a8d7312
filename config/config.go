package config

import (
	"os"
	"path/filepath"
	"strconv"
	"time"
)

// Config holds all runtime configuration for the search engine and server.
type Config struct {
	// Provider selects the nearby-search backend: "google" (legacy Nearby
	// Search, paginated) or "places-v1" (Places API New, single page).
	Provider     string
	GoogleAPIKey string

	// Recursion. MaxDepth 0 searches only the root disk.
	MaxDepth             int
	SaturationLimit      int
	MinSplitRadius       float64
	MaxConcurrentQueries int

	// Timing
	PageDelay    time.Duration
	QueryTimeout time.Duration

	// Storage
	DataDir string

	// Search input defaults
	DefaultRadius         float64
	DefaultType           string
	DefaultMinRating      float64
	DefaultMinRatingCount int
}

// Default returns a Config populated with sensible defaults.
func Default() Config {
	provider := getEnv("SWEEP_PROVIDER", "google")
	saturation := 60
	if provider == "places-v1" {
		saturation = 20
	}
	return Config{
		Provider:     provider,
		GoogleAPIKey: getEnv("GOOGLE_API_KEY", ""),

		MaxDepth:             getEnvInt("SWEEP_MAX_DEPTH", 3),
		SaturationLimit:      getEnvInt("SWEEP_SATURATION_LIMIT", saturation),
		MinSplitRadius:       getEnvFloat("SWEEP_MIN_SPLIT_RADIUS", 100),
		MaxConcurrentQueries: getEnvInt("SWEEP_MAX_CONCURRENT_QUERIES", 0),

		PageDelay:    getEnvDuration("SWEEP_PAGE_DELAY", 1000*time.Millisecond),
		QueryTimeout: getEnvDuration("SWEEP_QUERY_TIMEOUT", 30*time.Second),

		DataDir: getEnv("SWEEP_DATA_DIR", filepath.Join(os.ExpandEnv("$HOME/.sweep"), "data")),

		DefaultRadius:         getEnvFloat("SWEEP_RADIUS", 1000),
		DefaultType:           getEnv("SWEEP_TYPE", "park"),
		DefaultMinRating:      getEnvFloat("SWEEP_MIN_RATING", 4.0),
		DefaultMinRatingCount: getEnvInt("SWEEP_MIN_RATING_COUNT", 20),
	}
}

func getEnv(key string, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	parsed, err := strconv.Atoi(v)
	if err != nil {
		return fallback
	}
	return parsed
}

func getEnvFloat(key string, fallback float64) float64 {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	parsed, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return fallback
	}
	return parsed
}

func getEnvDuration(key string, fallback time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	parsed, err := time.ParseDuration(v)
	if err != nil {
		return fallback
	}
	return parsed
}
