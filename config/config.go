package config

import (
	"log"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config holds all service configuration loaded from environment variables.
// The api, ingestor and predictor binaries share one Config; each reads the
// fields it cares about.
type Config struct {
	// Storage
	MongoURI      string
	MongoDatabase string

	// API service
	APIAddr      string
	WSSendBuffer int

	// Metrics listener for the headless binaries (ingestor, predictor)
	MetricsAddr string

	// Event bus. Empty RedisAddr keeps sync_complete events in-process.
	RedisAddr     string
	RedisPassword string

	// Ingest
	Symbols           []string // empty = enumerate from storage
	BootstrapStart    time.Time
	SyncInterval      time.Duration
	SyncRetries       int
	SyncRetryDelay    time.Duration
	SyncRetryMaxDelay time.Duration
	BinanceBaseURL    string // empty = SDK default

	// Predictor
	ValidationInterval   time.Duration
	ModelsDir            string
	TrainEpochs          int
	TrainBatchSize       int
	TrainLearningRate    float64
	TrainValidationSplit float64
	JournalPath          string // empty = training journal disabled
	ModelCacheSize       int

	// Logging
	LogLevel  string
	LogPretty bool
}

// Load reads configuration from environment variables with sensible defaults.
// Malformed values are fatal.
func Load() *Config {
	return &Config{
		MongoURI:      getEnv("MONGO_URI", "mongodb://localhost:27017"),
		MongoDatabase: getEnv("MONGO_DATABASE", "binance_data"),

		APIAddr:      getEnv("API_ADDR", ":8888"),
		WSSendBuffer: getInt("WS_SEND_BUFFER", 64),

		MetricsAddr: getEnv("METRICS_ADDR", ":9090"),

		RedisAddr:     getEnv("REDIS_ADDR", ""),
		RedisPassword: getEnv("REDIS_PASSWORD", ""),

		Symbols:           ParseSymbols(getEnv("SYMBOLS", "")),
		BootstrapStart:    getTime("BOOTSTRAP_START", "2025-06-01T00:00:00Z"),
		SyncInterval:      getDuration("SYNC_INTERVAL", 60*time.Second),
		SyncRetries:       getInt("SYNC_RETRIES", 3),
		SyncRetryDelay:    getDuration("SYNC_RETRY_DELAY", 10*time.Second),
		SyncRetryMaxDelay: getDuration("SYNC_RETRY_MAX_DELAY", 60*time.Second),
		BinanceBaseURL:    getEnv("BINANCE_BASE_URL", ""),

		ValidationInterval:   getDuration("VALIDATION_INTERVAL", 5*time.Second),
		ModelsDir:            getEnv("MODELS_DIR", "./models"),
		TrainEpochs:          getInt("TRAIN_EPOCHS", 50),
		TrainBatchSize:       getInt("TRAIN_BATCH_SIZE", 32),
		TrainLearningRate:    getFloat("TRAIN_LEARNING_RATE", 0.001),
		TrainValidationSplit: getFloat("TRAIN_VALIDATION_SPLIT", 0.2),
		JournalPath:          getEnv("JOURNAL_PATH", ""),
		ModelCacheSize:       getInt("MODEL_CACHE_SIZE", 8),

		LogLevel:  getEnv("LOG_LEVEL", "info"),
		LogPretty: getBool("LOG_PRETTY", false),
	}
}

// ParseSymbols parses a comma-separated symbol list into uppercase symbols,
// e.g. "btcusdt, ETHUSDT" -> ["BTCUSDT", "ETHUSDT"].
func ParseSymbols(s string) []string {
	var symbols []string
	for _, part := range strings.Split(s, ",") {
		part = strings.ToUpper(strings.TrimSpace(part))
		if part == "" {
			continue
		}
		symbols = append(symbols, part)
	}
	return symbols
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getInt(key string, fallback int) int {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		log.Fatalf("[config] invalid %s=%q: %v", key, v, err)
	}
	return n
}

func getFloat(key string, fallback float64) float64 {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		log.Fatalf("[config] invalid %s=%q: %v", key, v, err)
	}
	return f
}

func getBool(key string, fallback bool) bool {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		log.Fatalf("[config] invalid %s=%q: %v", key, v, err)
	}
	return b
}

func getDuration(key string, fallback time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		log.Fatalf("[config] invalid %s=%q: %v", key, v, err)
	}
	return d
}

func getTime(key, fallback string) time.Time {
	v := os.Getenv(key)
	if v == "" {
		v = fallback
	}
	t, err := time.Parse(time.RFC3339, v)
	if err != nil {
		log.Fatalf("[config] invalid %s=%q: %v", key, v, err)
	}
	return t.UTC()
}
