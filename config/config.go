package config

import (
	"log"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config holds all application configuration loaded from environment variables.
type Config struct {
	// Broker credentials
	BrokerBaseURL    string
	BrokerStreamURL  string
	BrokerAPIKey     string
	BrokerClientCode string
	BrokerPassword   string
	BrokerTOTPSecret string

	// Decision collaborator
	DecisionURL    string
	DecisionAPIKey string

	// Infrastructure
	RedisAddr     string
	RedisPassword string
	SQLitePath    string
	MetricsAddr   string

	// Scan universe: comma-separated "SYMBOL:TF" pairs, e.g.
	// "EURUSD:1h,GBPUSD:1h,BTCUSDT:5m"
	ScanUnits string

	// Scan profile
	Mode          string
	ScanInterval  time.Duration
	FetchCount    int
	MinConfidence float64
	ExpiryBars    int
	TimeoutBars   int

	// Notifications
	TelegramBotToken string
	TelegramChatID   string
	WebhookURL       string
}

// Load reads configuration from environment variables with sensible defaults.
func Load() *Config {
	return &Config{
		BrokerBaseURL:    mustEnv("BROKER_BASE_URL"),
		BrokerStreamURL:  getEnv("BROKER_STREAM_URL", ""),
		BrokerAPIKey:     mustEnv("BROKER_API_KEY"),
		BrokerClientCode: mustEnv("BROKER_CLIENT_CODE"),
		BrokerPassword:   mustEnv("BROKER_PASSWORD"),
		BrokerTOTPSecret: mustEnv("BROKER_TOTP_SECRET"),

		DecisionURL:    mustEnv("DECISION_URL"),
		DecisionAPIKey: getEnv("DECISION_API_KEY", ""),

		RedisAddr:     getEnv("REDIS_ADDR", "localhost:6379"),
		RedisPassword: getEnv("REDIS_PASSWORD", ""),
		SQLitePath:    getEnv("SQLITE_PATH", "data/signals.db"),
		MetricsAddr:   getEnv("METRICS_ADDR", ":9090"),

		ScanUnits: getEnv("SCAN_UNITS", "EURUSD:1h,GBPUSD:1h"),

		Mode:          getEnv("SCAN_MODE", "strict"),
		ScanInterval:  getDuration("SCAN_INTERVAL", time.Minute),
		FetchCount:    getInt("FETCH_COUNT", 200),
		MinConfidence: getFloat("MIN_CONFIDENCE", 0.6),
		ExpiryBars:    getInt("EXPIRY_BARS", 12),
		TimeoutBars:   getInt("TIMEOUT_BARS", 50),

		TelegramBotToken: getEnv("TELEGRAM_BOT_TOKEN", ""),
		TelegramChatID:   getEnv("TELEGRAM_CHAT_ID", ""),
		WebhookURL:       getEnv("WEBHOOK_URL", ""),
	}
}

// ScanUnit is one parsed symbol/timeframe pair.
type ScanUnit struct {
	Symbol    string
	Timeframe string
}

// ParseUnits parses the ScanUnits string into symbol/timeframe pairs.
// Malformed entries are skipped with a warning.
func (c *Config) ParseUnits() []ScanUnit {
	parts := strings.Split(c.ScanUnits, ",")
	units := make([]ScanUnit, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p == "" {
			continue
		}
		sym, tf, ok := strings.Cut(p, ":")
		if !ok || sym == "" || tf == "" {
			log.Printf("[config] skipping invalid scan unit: %q", p)
			continue
		}
		units = append(units, ScanUnit{Symbol: sym, Timeframe: tf})
	}
	return units
}

func mustEnv(key string) string {
	v := os.Getenv(key)
	if v == "" {
		log.Fatalf("[config] required env var %s not set", key)
	}
	return v
}

func getEnv(key, fallback string) string {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	return v
}

func getInt(key string, fallback int) int {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	n, err := strconv.Atoi(v)
	if err != nil || n <= 0 {
		log.Printf("[config] invalid %s=%q, using %d", key, v, fallback)
		return fallback
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
		log.Printf("[config] invalid %s=%q, using %g", key, v, fallback)
		return fallback
	}
	return f
}

func getDuration(key string, fallback time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	d, err := time.ParseDuration(v)
	if err != nil || d <= 0 {
		log.Printf("[config] invalid %s=%q, using %s", key, v, fallback)
		return fallback
	}
	return d
}
