package config

import (
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"
	"time"
)

type Config struct {
	// Telegram
	TelegramToken  string
	AllowedChatIDs []int64

	// Database
	DBPath string

	// Currency
	BaseCurrency       string
	ExchangeRateURL    string
	ExchangeRateMaxAge time.Duration

	// Extraction
	LLMAPIKey        string
	LLMBaseURL       string
	LLMModel         string
	LLMCLICommand    string
	LLMTimeout       time.Duration
	RateLimitPerHour int

	// Pending confirmations
	PendingTTL time.Duration

	// Health and metrics server
	HealthCheckPort int

	// AMQP
	AMQPURL      string
	AMQPExchange string
	AMQPQueue    string

	// Google Sheets mirror
	GoogleSpreadsheetID      string
	GoogleSheetName          string
	GoogleServiceAccountJSON string
	GoogleServiceAccountFile string

	// Logging
	Debug     bool
	LogLevel  string
	LogFormat string
}

var currencyPattern = regexp.MustCompile(`^[A-Z]{3}$`)

func Load() *Config {
	cfg := &Config{
		TelegramToken:  getEnv("TELEGRAM_BOT_TOKEN", ""),
		AllowedChatIDs: getEnvInt64List("ALLOWED_CHAT_IDS"),

		DBPath: getEnv("DB_PATH", "kazo.db"),

		BaseCurrency:       strings.ToUpper(getEnv("BASE_CURRENCY", "EUR")),
		ExchangeRateURL:    getEnv("EXCHANGE_RATE_URL", "https://api.frankfurter.app/latest"),
		ExchangeRateMaxAge: time.Duration(getEnvInt("EXCHANGE_RATE_CACHE_HOURS", 24)) * time.Hour,

		LLMAPIKey:        getEnv("LLM_API_KEY", ""),
		LLMBaseURL:       getEnv("LLM_BASE_URL", ""),
		LLMModel:         getEnv("LLM_MODEL", "gpt-4o-mini"),
		LLMCLICommand:    getEnv("LLM_CLI_COMMAND", "claude"),
		LLMTimeout:       getEnvDuration("LLM_TIMEOUT", 120*time.Second),
		RateLimitPerHour: getEnvInt("RATE_LIMIT_PER_HOUR", 30),

		PendingTTL: getEnvDuration("PENDING_TTL", 5*time.Minute),

		HealthCheckPort: getEnvInt("HEALTH_CHECK_PORT", 8080),

		AMQPURL:      getEnv("AMQP_URL", ""),
		AMQPExchange: getEnv("AMQP_EXCHANGE", "kazo"),
		AMQPQueue:    getEnv("AMQP_QUEUE", "kazo_sheets_sync"),

		GoogleSpreadsheetID:      getEnv("GOOGLE_SPREADSHEET_ID", ""),
		GoogleSheetName:          getEnv("GOOGLE_SHEET_NAME", "Expenses"),
		GoogleServiceAccountJSON: getEnv("GOOGLE_SERVICE_ACCOUNT_JSON", ""),
		GoogleServiceAccountFile: getEnv("GOOGLE_SERVICE_ACCOUNT_FILE", ""),

		Debug:     getEnvBool("DEBUG", false),
		LogLevel:  getEnv("LOG_LEVEL", "info"),
		LogFormat: getEnv("LOG_FORMAT", "text"),
	}
	if cfg.Debug {
		cfg.LogLevel = "debug"
	}
	return cfg
}

// ChatAllowed reports whether chatID may use the bot. An empty allowlist
// admits everyone.
func (c *Config) ChatAllowed(chatID int64) bool {
	if len(c.AllowedChatIDs) == 0 {
		return true
	}
	for _, id := range c.AllowedChatIDs {
		if id == chatID {
			return true
		}
	}
	return false
}

// AMQPEnabled reports whether expense events should be published.
func (c *Config) AMQPEnabled() bool {
	return c.AMQPURL != ""
}

// Validate checks settings needed by the bot process and returns every
// problem at once
func (c *Config) Validate() error {
	var errors []string

	if c.TelegramToken == "" {
		errors = append(errors, "TELEGRAM_BOT_TOKEN is required")
	}

	if !currencyPattern.MatchString(c.BaseCurrency) {
		errors = append(errors, fmt.Sprintf("invalid base currency '%s': must be a 3-letter ISO code", c.BaseCurrency))
	}

	if c.DBPath == "" {
		errors = append(errors, "database path cannot be empty")
	} else {
		dir := filepath.Dir(c.DBPath)
		if dir != "." && dir != "" {
			if _, err := os.Stat(dir); os.IsNotExist(err) {
				if err := os.MkdirAll(dir, 0755); err != nil {
					errors = append(errors, fmt.Sprintf("cannot create database directory '%s': %v", dir, err))
				}
			}
		}
	}

	if u, err := url.Parse(c.ExchangeRateURL); err != nil || (u.Scheme != "http" && u.Scheme != "https") {
		errors = append(errors, fmt.Sprintf("invalid exchange rate URL '%s': must be http or https", c.ExchangeRateURL))
	}
	if c.ExchangeRateMaxAge <= 0 {
		errors = append(errors, "exchange rate cache hours must be positive")
	}

	if c.LLMAPIKey == "" && c.LLMCLICommand == "" {
		errors = append(errors, "either LLM_API_KEY or LLM_CLI_COMMAND must be set")
	}
	if c.LLMTimeout < time.Second {
		errors = append(errors, fmt.Sprintf("invalid LLM timeout %v: must be at least 1 second", c.LLMTimeout))
	}
	if c.RateLimitPerHour < 1 {
		errors = append(errors, fmt.Sprintf("invalid rate limit %d: must be at least 1 per hour", c.RateLimitPerHour))
	}

	if c.PendingTTL < time.Second {
		errors = append(errors, fmt.Sprintf("invalid pending TTL %v: must be at least 1 second", c.PendingTTL))
	}

	if c.HealthCheckPort < 0 || c.HealthCheckPort > 65535 {
		errors = append(errors, fmt.Sprintf("invalid health check port %d: must be between 0 and 65535", c.HealthCheckPort))
	}

	errors = append(errors, c.validateAMQP()...)

	if len(errors) > 0 {
		return fmt.Errorf("configuration validation failed:\n- %s", strings.Join(errors, "\n- "))
	}
	return nil
}

// ValidateSync checks settings needed by the Sheets mirror worker.
func (c *Config) ValidateSync() error {
	var errors []string
	if c.AMQPURL == "" {
		errors = append(errors, "AMQP_URL is required for the sync worker")
	}
	errors = append(errors, c.validateAMQP()...)
	if c.GoogleSpreadsheetID == "" {
		errors = append(errors, "GOOGLE_SPREADSHEET_ID is required for the sync worker")
	}
	if c.GoogleSheetName == "" {
		errors = append(errors, "GOOGLE_SHEET_NAME cannot be empty")
	}
	if c.GoogleServiceAccountJSON == "" && c.GoogleServiceAccountFile == "" {
		errors = append(errors, "either GOOGLE_SERVICE_ACCOUNT_JSON or GOOGLE_SERVICE_ACCOUNT_FILE must be provided")
	}
	if c.GoogleServiceAccountFile != "" {
		if _, err := os.Stat(c.GoogleServiceAccountFile); os.IsNotExist(err) {
			errors = append(errors, fmt.Sprintf("Google service account file does not exist: %s", c.GoogleServiceAccountFile))
		}
	}
	if len(errors) > 0 {
		return fmt.Errorf("configuration validation failed:\n- %s", strings.Join(errors, "\n- "))
	}
	return nil
}

func (c *Config) validateAMQP() []string {
	if c.AMQPURL == "" {
		return nil
	}
	var errors []string
	if parsedURL, err := url.Parse(c.AMQPURL); err != nil {
		errors = append(errors, fmt.Sprintf("invalid AMQP URL '%s': %v", c.AMQPURL, err))
	} else if parsedURL.Scheme != "amqp" && parsedURL.Scheme != "amqps" {
		errors = append(errors, fmt.Sprintf("invalid AMQP URL scheme '%s': must be 'amqp' or 'amqps'", parsedURL.Scheme))
	}
	if c.AMQPExchange == "" {
		errors = append(errors, "AMQP exchange name cannot be empty when AMQP URL is provided")
	}
	if c.AMQPQueue == "" {
		errors = append(errors, "AMQP queue name cannot be empty when AMQP URL is provided")
	}
	return errors
}

// ServiceAccountCredentials returns the raw service account JSON, reading the
// file when only a path is configured.
func (c *Config) ServiceAccountCredentials() ([]byte, error) {
	if c.GoogleServiceAccountJSON != "" {
		return []byte(c.GoogleServiceAccountJSON), nil
	}
	b, err := os.ReadFile(c.GoogleServiceAccountFile)
	if err != nil {
		return nil, fmt.Errorf("read service account file: %w", err)
	}
	return b, nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if i, err := strconv.Atoi(value); err == nil {
			return i
		}
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if b, err := strconv.ParseBool(value); err == nil {
			return b
		}
	}
	return defaultValue
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return defaultValue
}

// getEnvInt64List parses a comma-separated list of integers, skipping blanks
// and malformed entries.
func getEnvInt64List(key string) []int64 {
	value := os.Getenv(key)
	if value == "" {
		return nil
	}
	var out []int64
	for _, part := range strings.Split(value, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		if id, err := strconv.ParseInt(part, 10, 64); err == nil {
			out = append(out, id)
		}
	}
	return out
}
