package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

type MarketSource string

const (
	MarketSimulated MarketSource = "SIMULATED"
	MarketBinance   MarketSource = "BINANCE"
)

// BinKinds lists the collections kept in the document store, one bin each.
var BinKinds = []string{
	"users",
	"transactions",
	"notifications",
	"agentApplications",
	"accountDetails",
	"messages",
}

type Config struct {
	Port             string
	JSONBinBaseURL   string
	JSONBinAccessKey string
	BinRegistryPath  string
	BinIDs           map[string]string // pre-seeded bin ids, keyed by kind

	SessionTTL    time.Duration
	AdminEmail    string
	AdminPassword string
	DemoEmail     string
	DemoPassword  string

	TelegramToken   string
	TelegramAdminID int64

	MarketSource   MarketSource
	MarketInterval time.Duration

	AllowedOrigins []string
	LogLevel       string
	LogFormat      string

	EnvFileLoaded bool
}

// Load reads .env (if present) and the process environment.
func Load() (*Config, error) {
	loaded := godotenv.Load() == nil

	cfg, err := fromEnv()
	if err != nil {
		return nil, err
	}
	cfg.EnvFileLoaded = loaded
	return cfg, nil
}

func fromEnv() (*Config, error) {
	cfg := &Config{
		Port:             envOr("PORT", "8080"),
		JSONBinBaseURL:   strings.TrimRight(envOr("JSONBIN_BASE_URL", "https://api.jsonbin.io/v3"), "/"),
		JSONBinAccessKey: os.Getenv("JSONBIN_ACCESS_KEY"),
		BinRegistryPath:  envOr("BIN_REGISTRY_PATH", "prime_pips_bin_ids.json"),
		BinIDs:           make(map[string]string),
		AdminEmail:       envOr("ADMIN_EMAIL", "admin@primepips.com"),
		AdminPassword:    envOr("ADMIN_PASSWORD", "admin123"),
		DemoEmail:        envOr("DEMO_EMAIL", "demo@primepips.com"),
		DemoPassword:     envOr("DEMO_PASSWORD", "demo123"),
		TelegramToken:    os.Getenv("TELEGRAM_BOT_TOKEN"),
		LogLevel:         envOr("LOG_LEVEL", "info"),
		LogFormat:        envOr("LOG_FORMAT", "console"),
	}

	for _, kind := range BinKinds {
		if id := os.Getenv(binEnvName(kind)); id != "" {
			cfg.BinIDs[kind] = id
		}
	}

	var err error
	if cfg.SessionTTL, err = durationEnv("SESSION_TTL", 24*time.Hour); err != nil {
		return nil, err
	}
	if cfg.MarketInterval, err = durationEnv("MARKET_INTERVAL", 3*time.Second); err != nil {
		return nil, err
	}

	if v := os.Getenv("TELEGRAM_ADMIN_ID"); v != "" {
		id, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("invalid TELEGRAM_ADMIN_ID %q: %w", v, err)
		}
		cfg.TelegramAdminID = id
	}

	switch src := strings.ToUpper(envOr("MARKET_SOURCE", string(MarketSimulated))); MarketSource(src) {
	case MarketSimulated, MarketBinance:
		cfg.MarketSource = MarketSource(src)
	default:
		return nil, fmt.Errorf("invalid MARKET_SOURCE %q", src)
	}

	for _, o := range strings.Split(envOr("CORS_ORIGINS", "*"), ",") {
		if o = strings.TrimSpace(o); o != "" {
			cfg.AllowedOrigins = append(cfg.AllowedOrigins, o)
		}
	}

	return cfg, nil
}

// binEnvName maps "agentApplications" to JSONBIN_AGENTAPPLICATIONS_BIN.
func binEnvName(kind string) string {
	return "JSONBIN_" + strings.ToUpper(kind) + "_BIN"
}

func envOr(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func durationEnv(key string, def time.Duration) (time.Duration, error) {
	v := os.Getenv(key)
	if v == "" {
		return def, nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return 0, fmt.Errorf("invalid %s %q: %w", key, v, err)
	}
	return d, nil
}
