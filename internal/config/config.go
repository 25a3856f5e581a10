package config

import (
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/shopspring/decimal"

	"github.com/mtlprog/folio/internal/rebalance"
	"github.com/mtlprog/folio/internal/validation"
)

// Config holds all application configuration loaded from environment variables.
type Config struct {
	DatabaseURL     string
	OwnerID         string
	HTTPPort        string
	AdminAPIKey     string
	CacheDir        string
	CacheMaxAge     time.Duration
	RefreshInterval time.Duration
	WeightTolerance decimal.Decimal
	Rebalance       rebalance.Options

	// AllowedOrigins lists the browser origins allowed to call the API.
	AllowedOrigins []string

	SheetsSpreadsheetID   string
	GoogleCredentialsJSON string
	// ExportTargetID picks the allocation the report worker exports. Empty uses the newest.
	ExportTargetID string
	ExportInterval time.Duration
	ExportXLSXPath string

	// QuotesAPIKey enables the EODHD quote refresh when set.
	QuotesAPIKey        string
	QuotesURL           string
	QuotesExchange      string
	QuotesRetryMax      int
	QuotesRetryDelay    time.Duration
	QuotesRateLimit     int
	QuoteWorkerInterval time.Duration

	SnapshotInterval time.Duration
	// SnapshotSchedule is a cron expression in UTC; it replaces SnapshotInterval when set.
	SnapshotSchedule string
}

// Load reads configuration from environment variables with sensible defaults.
// A .env file in the working directory is loaded first when present; variables
// already set in the environment win.
func Load() Config {
	_ = godotenv.Load()

	defaults := rebalance.DefaultOptions()
	return Config{
		DatabaseURL:     envOrDefaultWarn("DATABASE_URL", ""),
		OwnerID:         envOrDefault("OWNER_ID", "default"),
		HTTPPort:        envOrDefault("HTTP_PORT", "8080"),
		AdminAPIKey:     envOrDefault("ADMIN_API_KEY", ""),
		CacheDir:        envOrDefault("CACHE_DIR", ".folio-cache"),
		CacheMaxAge:     envOrDefaultDuration("CACHE_MAX_AGE", 24*time.Hour),
		RefreshInterval: envOrDefaultDuration("REFRESH_INTERVAL", 5*time.Minute),
		WeightTolerance: envOrDefaultDecimal("WEIGHT_TOLERANCE", validation.DefaultWeightTolerance),
		Rebalance: rebalance.Options{
			MinimumUnit:        envOrDefaultDecimal("REBALANCE_MIN_UNIT", defaults.MinimumUnit),
			Threshold:          envOrDefaultDecimal("REBALANCE_THRESHOLD", defaults.Threshold),
			Commission:         envOrDefaultDecimal("REBALANCE_COMMISSION", defaults.Commission),
			ConsiderCommission: envOrDefaultBool("REBALANCE_CONSIDER_COMMISSION", defaults.ConsiderCommission),
			AllowFractional:    envOrDefaultBool("REBALANCE_ALLOW_FRACTIONAL", defaults.AllowFractional),
			Rounding:           envOrDefaultRounding("REBALANCE_ROUNDING", defaults.Rounding),
		},
		AllowedOrigins:        envOrDefaultList("CORS_ALLOWED_ORIGINS", []string{"http://localhost:3000"}),
		SheetsSpreadsheetID:   envOrDefault("SHEETS_SPREADSHEET_ID", ""),
		GoogleCredentialsJSON: envOrDefault("GOOGLE_CREDENTIALS_JSON", ""),
		ExportTargetID:        envOrDefault("EXPORT_TARGET_ID", ""),
		ExportInterval:        envOrDefaultDuration("EXPORT_INTERVAL", time.Hour),
		ExportXLSXPath:        envOrDefault("EXPORT_XLSX_PATH", ""),
		QuotesAPIKey:          envOrDefault("QUOTES_API_KEY", ""),
		QuotesURL:             envOrDefault("QUOTES_URL", "https://eodhd.com/api"),
		QuotesExchange:        envOrDefault("QUOTES_EXCHANGE", "US"),
		QuotesRetryMax:        envOrDefaultInt("QUOTES_RETRY_MAX", 3),
		QuotesRetryDelay:      envOrDefaultDuration("QUOTES_RETRY_DELAY", 10*time.Second),
		QuotesRateLimit:       envOrDefaultInt("QUOTES_RATE_LIMIT", 5),
		QuoteWorkerInterval:   envOrDefaultDuration("QUOTE_WORKER_INTERVAL", time.Hour),
		SnapshotInterval:      envOrDefaultDuration("SNAPSHOT_INTERVAL", 6*time.Hour),
		SnapshotSchedule:      envOrDefault("SNAPSHOT_SCHEDULE", ""),
	}
}

// ExportEnabled reports whether any plan export destination is configured.
func (c Config) ExportEnabled() bool {
	return c.ExportXLSXPath != "" || (c.SheetsSpreadsheetID != "" && c.GoogleCredentialsJSON != "")
}

func envOrDefault(key, defaultVal string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return defaultVal
}

func envOrDefaultList(key string, defaultVal []string) []string {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	var out []string
	for _, part := range strings.Split(v, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	if len(out) == 0 {
		return defaultVal
	}
	return out
}

func envOrDefaultWarn(key, defaultVal string) string {
	v := envOrDefault(key, defaultVal)
	if v == "" {
		slog.Warn("required env var not set", "key", key)
	}
	return v
}

func envOrDefaultInt(key string, defaultVal int) int {
	if v := os.Getenv(key); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			slog.Warn("invalid integer env var, using default", "key", key, "value", v, "default", defaultVal)
			return defaultVal
		}
		return n
	}
	return defaultVal
}

func envOrDefaultDuration(key string, defaultVal time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil || d <= 0 {
			slog.Warn("invalid duration env var, using default", "key", key, "value", v, "default", defaultVal)
			return defaultVal
		}
		return d
	}
	return defaultVal
}

func envOrDefaultDecimal(key string, defaultVal decimal.Decimal) decimal.Decimal {
	if v := os.Getenv(key); v != "" {
		d, err := decimal.NewFromString(strings.TrimSpace(v))
		if err != nil || d.IsNegative() {
			slog.Warn("invalid decimal env var, using default", "key", key, "value", v, "default", defaultVal.String())
			return defaultVal
		}
		return d
	}
	return defaultVal
}

func envOrDefaultBool(key string, defaultVal bool) bool {
	if v := os.Getenv(key); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			slog.Warn("invalid boolean env var, using default", "key", key, "value", v, "default", defaultVal)
			return defaultVal
		}
		return b
	}
	return defaultVal
}

func envOrDefaultRounding(key string, defaultVal rebalance.Rounding) rebalance.Rounding {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	r := rebalance.Rounding(strings.ToLower(strings.TrimSpace(v)))
	if !r.Valid() {
		slog.Warn("invalid rounding env var, using default", "key", key, "value", v, "default", defaultVal)
		return defaultVal
	}
	return r
}
