package config

import (
	"os"
	"strconv"
	"strings"
	"time"
)

var global *Config

// Config is process-wide configuration loaded from .env / environment.
// Per-symbol tuning lives on the grid controller, not here.
type Config struct {
	// Service
	APIServerPort int
	LogLevel      string
	DBPath        string

	// Exchange credentials
	BinanceAPIKey    string
	BinanceSecretKey string
	UseTestnet       bool

	// Risk / allocation
	RiskMode           string // conservative, aggressive, automatic, or "" = recommend by capital
	AllowFallbackPairs bool   // top-N fallback when no pair passes filters
	WorkingCapitalPct  float64
	MinOrderUSD        float64
	Leverage           int

	// Grid tuning
	BaseGridSpacing float64 // fraction, e.g. 0.006 = 0.6%
	LevelsPerSide   int
	CCIFloor        float64 // momentum floor, ladder pauses below it

	// Scheduling
	LadderInterval  time.Duration
	ReallocInterval time.Duration
	ReportInterval  time.Duration
	BalanceCacheTTL time.Duration

	// Pair selection
	SymbolsOverride []string // when set, skips the catalogue entirely
}

// Init loads global configuration from environment variables
func Init() {
	cfg := &Config{
		APIServerPort:      8080,
		LogLevel:           "info",
		DBPath:             "data/gridpilot.db",
		AllowFallbackPairs: true,
		WorkingCapitalPct:  0.5,
		MinOrderUSD:        10,
		Leverage:           1,
		BaseGridSpacing:    0.006,
		LevelsPerSide:      3,
		CCIFloor:           -100,
		LadderInterval:     30 * time.Second,
		ReallocInterval:    30 * time.Minute,
		ReportInterval:     time.Hour,
		BalanceCacheTTL:    30 * time.Second,
	}

	if v := os.Getenv("API_SERVER_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil && port > 0 {
			cfg.APIServerPort = port
		}
	}
	if v := os.Getenv("LOG_LEVEL"); v != "" {
		cfg.LogLevel = strings.ToLower(strings.TrimSpace(v))
	}
	if v := os.Getenv("DB_PATH"); v != "" {
		cfg.DBPath = v
	}

	cfg.BinanceAPIKey = strings.TrimSpace(os.Getenv("BINANCE_API_KEY"))
	cfg.BinanceSecretKey = strings.TrimSpace(os.Getenv("BINANCE_SECRET_KEY"))
	cfg.UseTestnet = envBool("USE_TESTNET", false)

	if v := os.Getenv("RISK_MODE"); v != "" {
		cfg.RiskMode = strings.ToLower(strings.TrimSpace(v))
	}
	cfg.AllowFallbackPairs = envBool("ALLOW_FALLBACK_PAIRS", cfg.AllowFallbackPairs)
	cfg.WorkingCapitalPct = envFloat("WORKING_CAPITAL_PCT", cfg.WorkingCapitalPct)
	cfg.MinOrderUSD = envFloat("MIN_ORDER_USD", cfg.MinOrderUSD)
	cfg.Leverage = envInt("LEVERAGE", cfg.Leverage)

	cfg.BaseGridSpacing = envFloat("BASE_GRID_SPACING", cfg.BaseGridSpacing)
	cfg.LevelsPerSide = envInt("LEVELS_PER_SIDE", cfg.LevelsPerSide)
	// CCI floors are usually negative, so the positive-only helper does
	// not apply here
	if v := os.Getenv("CCI_FLOOR"); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			cfg.CCIFloor = f
		}
	}

	cfg.LadderInterval = envDuration("LADDER_INTERVAL", cfg.LadderInterval)
	cfg.ReallocInterval = envDuration("REALLOC_INTERVAL", cfg.ReallocInterval)
	cfg.ReportInterval = envDuration("REPORT_INTERVAL", cfg.ReportInterval)
	cfg.BalanceCacheTTL = envDuration("BALANCE_CACHE_TTL", cfg.BalanceCacheTTL)

	if v := os.Getenv("SYMBOLS"); v != "" {
		for _, s := range strings.Split(v, ",") {
			s = strings.ToUpper(strings.TrimSpace(s))
			if s != "" {
				cfg.SymbolsOverride = append(cfg.SymbolsOverride, s)
			}
		}
	}

	global = cfg
}

// Get returns the global configuration
func Get() *Config {
	if global == nil {
		Init()
	}
	return global
}

// Reload re-reads the environment into the existing global struct so every
// holder of the pointer observes the new values. Running tickers keep
// their old intervals until restarted.
func Reload() *Config {
	old := global
	Init()
	if old != nil {
		*old = *global
		global = old
	}
	return global
}

func envBool(key string, def bool) bool {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	return strings.ToLower(strings.TrimSpace(v)) == "true"
}

func envInt(key string, def int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			return n
		}
	}
	return def
}

func envFloat(key string, def float64) float64 {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil && f > 0 {
			return f
		}
	}
	return def
}

func envDuration(key string, def time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil && d > 0 {
			return d
		}
	}
	return def
}
