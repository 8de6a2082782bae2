package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

type Config struct {
	Server    ServerConfig
	Data      DataConfig
	Upload    UploadConfig
	Session   SessionConfig
	Cache     CacheConfig
	Analytics AnalyticsConfig
	Logger    LoggerConfig
	Security  SecurityConfig
}

type ServerConfig struct {
	Host            string
	Port            int
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	IdleTimeout     time.Duration
	ShutdownTimeout time.Duration
}

// DataConfig names an optional CSV opened as a session at startup.
type DataConfig struct {
	CSVFile string
}

type UploadConfig struct {
	MaxBytes int64
}

type SessionConfig struct {
	MaxSessions int
}

type CacheConfig struct {
	Enabled bool
	Dir     string
}

// AnalyticsConfig mirrors analytics.Options. Zero values take the engine
// defaults.
type AnalyticsConfig struct {
	Clusters            int
	Seed                uint64
	ChurnThresholdDays  int
	HistogramBins       int
	TopN                int
	ForecastConfidence  float64
	BasketMinSupport    float64
	BasketMinConfidence float64
	BasketMaxItems      int
	ReferenceDate       time.Time
}

type LoggerConfig struct {
	Level  string
	Format string
}

type SecurityConfig struct {
	EnableCSRF      bool
	EnableRateLimit bool
	RateLimitRPS    int
	RateLimitBurst  int
	AllowedOrigins  []string
	TrustedProxies  []string
}

func Load() (*Config, error) {
	cfg := &Config{
		Server: ServerConfig{
			Host:            getEnvString("SERVER_HOST", "localhost"),
			Port:            getEnvInt("SERVER_PORT", 8084),
			ReadTimeout:     getEnvDuration("SERVER_READ_TIMEOUT", 30*time.Second),
			WriteTimeout:    getEnvDuration("SERVER_WRITE_TIMEOUT", 60*time.Second),
			IdleTimeout:     getEnvDuration("SERVER_IDLE_TIMEOUT", 60*time.Second),
			ShutdownTimeout: getEnvDuration("SERVER_SHUTDOWN_TIMEOUT", 30*time.Second),
		},
		Data: DataConfig{
			CSVFile: getEnvString("DATA_CSV_FILE", ""),
		},
		Upload: UploadConfig{
			MaxBytes: int64(getEnvInt("UPLOAD_MAX_BYTES", 32<<20)),
		},
		Session: SessionConfig{
			MaxSessions: getEnvInt("SESSION_MAX", 32),
		},
		Cache: CacheConfig{
			Enabled: getEnvBool("CACHE_ENABLED", true),
			Dir:     getEnvString("CACHE_DIR", ".cache"),
		},
		Analytics: AnalyticsConfig{
			Clusters:            getEnvInt("ANALYTICS_CLUSTERS", 5),
			Seed:                getEnvUint64("ANALYTICS_SEED", 42),
			ChurnThresholdDays:  getEnvInt("ANALYTICS_CHURN_DAYS", 90),
			HistogramBins:       getEnvInt("ANALYTICS_HISTOGRAM_BINS", 10),
			TopN:                getEnvInt("ANALYTICS_TOP_N", 10),
			ForecastConfidence:  getEnvFloat("ANALYTICS_FORECAST_CONFIDENCE", 0.95),
			BasketMinSupport:    getEnvFloat("ANALYTICS_BASKET_MIN_SUPPORT", 0.01),
			BasketMinConfidence: getEnvFloat("ANALYTICS_BASKET_MIN_CONFIDENCE", 0.5),
			BasketMaxItems:      getEnvInt("ANALYTICS_BASKET_MAX_ITEMS", 3),
			ReferenceDate:       getEnvDate("ANALYTICS_REFERENCE_DATE"),
		},
		Logger: LoggerConfig{
			Level:  getEnvString("LOG_LEVEL", "info"),
			Format: getEnvString("LOG_FORMAT", "json"),
		},
		Security: SecurityConfig{
			EnableCSRF:      getEnvBool("SECURITY_CSRF_ENABLED", true),
			EnableRateLimit: getEnvBool("SECURITY_RATE_LIMIT_ENABLED", true),
			RateLimitRPS:    getEnvInt("SECURITY_RATE_LIMIT_RPS", 100),
			RateLimitBurst:  getEnvInt("SECURITY_RATE_LIMIT_BURST", 10),
			AllowedOrigins:  getEnvStringSlice("SECURITY_ALLOWED_ORIGINS", []string{"http://localhost:8084"}),
			TrustedProxies:  getEnvStringSlice("SECURITY_TRUSTED_PROXIES", []string{"127.0.0.1"}),
		},
	}

	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

func (c *Config) validate() error {
	if c.Server.Port < 1 || c.Server.Port > 65535 {
		return fmt.Errorf("server port must be between 1 and 65535, got %d", c.Server.Port)
	}

	if c.Server.ReadTimeout <= 0 {
		return fmt.Errorf("server read timeout must be positive")
	}

	if c.Server.WriteTimeout <= 0 {
		return fmt.Errorf("server write timeout must be positive")
	}

	if c.Upload.MaxBytes <= 0 {
		return fmt.Errorf("upload max bytes must be positive")
	}

	if c.Session.MaxSessions <= 0 {
		return fmt.Errorf("session max must be positive")
	}

	if c.Cache.Enabled && c.Cache.Dir == "" {
		return fmt.Errorf("cache dir cannot be empty when the cache is enabled")
	}

	if c.Analytics.Clusters < 1 {
		return fmt.Errorf("analytics clusters must be at least 1, got %d", c.Analytics.Clusters)
	}

	if c.Analytics.ChurnThresholdDays < 0 {
		return fmt.Errorf("analytics churn threshold cannot be negative")
	}

	if c.Analytics.BasketMinSupport <= 0 || c.Analytics.BasketMinSupport > 1 {
		return fmt.Errorf("basket min support must be in (0, 1], got %g", c.Analytics.BasketMinSupport)
	}

	if c.Analytics.BasketMinConfidence <= 0 || c.Analytics.BasketMinConfidence > 1 {
		return fmt.Errorf("basket min confidence must be in (0, 1], got %g", c.Analytics.BasketMinConfidence)
	}

	validLogLevels := []string{"debug", "info", "warn", "error"}
	if !contains(validLogLevels, c.Logger.Level) {
		return fmt.Errorf("invalid log level %q, must be one of: %s", c.Logger.Level, strings.Join(validLogLevels, ", "))
	}

	validLogFormats := []string{"json", "text"}
	if !contains(validLogFormats, c.Logger.Format) {
		return fmt.Errorf("invalid log format %q, must be one of: %s", c.Logger.Format, strings.Join(validLogFormats, ", "))
	}

	if c.Security.RateLimitRPS <= 0 {
		return fmt.Errorf("rate limit RPS must be positive")
	}

	if c.Security.RateLimitBurst <= 0 {
		return fmt.Errorf("rate limit burst must be positive")
	}

	return nil
}

func getEnvString(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

func getEnvUint64(key string, defaultValue uint64) uint64 {
	if value := os.Getenv(key); value != "" {
		if uintValue, err := strconv.ParseUint(value, 10, 64); err == nil {
			return uintValue
		}
	}
	return defaultValue
}

func getEnvFloat(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if floatValue, err := strconv.ParseFloat(value, 64); err == nil {
			return floatValue
		}
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if boolValue, err := strconv.ParseBool(value); err == nil {
			return boolValue
		}
	}
	return defaultValue
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if duration, err := time.ParseDuration(value); err == nil {
			return duration
		}
	}
	return defaultValue
}

// getEnvDate reads a YYYY-MM-DD date. Unset or unparseable is the zero time.
func getEnvDate(key string) time.Time {
	if value := os.Getenv(key); value != "" {
		if date, err := time.Parse(time.DateOnly, value); err == nil {
			return date
		}
	}
	return time.Time{}
}

func getEnvStringSlice(key string, defaultValue []string) []string {
	if value := os.Getenv(key); value != "" {
		parts := strings.Split(value, ",")
		for i := range parts {
			parts[i] = strings.TrimSpace(parts[i])
		}
		return parts
	}
	return defaultValue
}

func contains(slice []string, item string) bool {
	for _, s := range slice {
		if s == item {
			return true
		}
	}
	return false
}

func (c *Config) Address() string {
	return fmt.Sprintf("%s:%d", c.Server.Host, c.Server.Port)
}
