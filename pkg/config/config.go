package config

import (
	"fmt"
	"strings"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

type Config struct {
	Server    ServerConfig
	SQLite    SQLiteConfig
	Redis     RedisConfig
	Cache     CacheConfig
	Logging   LoggingConfig
	KPI       KPIConfig
	Forecast  ForecastConfig
	Scorecard ScorecardConfig
	Scheduler SchedulerConfig
	RateLimit RateLimitConfig
	Security  SecurityConfig
}

type ServerConfig struct {
	Host         string
	Port         int
	ReadTimeout  int
	WriteTimeout int
	BodyLimit    int
}

type SQLiteConfig struct {
	Path string
}

type RedisConfig struct {
	Enabled  bool
	Host     string
	Port     int
	Password string
	DB       int
}

type CacheConfig struct {
	ForecastTTLSec int
	// Breaker trips after this many consecutive redis failures.
	BreakerFailures   uint32
	BreakerTimeoutSec int
}

type LoggingConfig struct {
	Level      string
	Format     string
	OutputPath string
}

type KPIConfig struct {
	// Capacity is the number of concurrent clients the delivery organisation can serve.
	Capacity int
}

type ForecastConfig struct {
	Trials                int
	MaxTrials             int
	Seed                  uint64
	Workers               int
	DefaultDefectsPerKLOC float64
}

type ScorecardConfig struct {
	Quarter      string
	ManualInputs map[string]float64
}

type SchedulerConfig struct {
	Enabled     bool
	RefreshSpec string
}

type RateLimitConfig struct {
	MaxRequestsPerMinute int
}

type SecurityConfig struct {
	AllowedOrigins []string
	IsDevelopment  bool
}

func Load() (*Config, error) {
	// A missing .env is normal outside local development.
	_ = godotenv.Load()

	viper.SetConfigName("config")
	viper.SetConfigType("yaml")
	viper.AddConfigPath(".")
	viper.AddConfigPath("./config")
	viper.AddConfigPath("/etc/dss")

	viper.SetEnvPrefix("DSS")
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()

	setDefaults()

	if err := viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	var config Config
	if err := viper.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := config.Validate(); err != nil {
		return nil, err
	}

	return &config, nil
}

func (c *Config) Validate() error {
	if c.KPI.Capacity <= 0 {
		return fmt.Errorf("kpi.capacity must be positive, got %d", c.KPI.Capacity)
	}
	if c.Forecast.Trials <= 0 || c.Forecast.Trials > c.Forecast.MaxTrials {
		return fmt.Errorf("forecast.trials must be in [1, %d], got %d", c.Forecast.MaxTrials, c.Forecast.Trials)
	}
	if c.Forecast.DefaultDefectsPerKLOC <= 0 {
		return fmt.Errorf("forecast.defaultDefectsPerKLOC must be positive")
	}
	return nil
}

func setDefaults() {
	viper.SetDefault("server.host", "0.0.0.0")
	viper.SetDefault("server.port", 8080)
	viper.SetDefault("server.readTimeout", 30)
	viper.SetDefault("server.writeTimeout", 30)
	viper.SetDefault("server.bodyLimit", 4194304)

	viper.SetDefault("sqlite.path", "./data/dss.db")

	viper.SetDefault("redis.enabled", true)
	viper.SetDefault("redis.host", "localhost")
	viper.SetDefault("redis.port", 6379)
	viper.SetDefault("redis.db", 0)

	viper.SetDefault("cache.forecastTTLSec", 3600)
	viper.SetDefault("cache.breakerFailures", 5)
	viper.SetDefault("cache.breakerTimeoutSec", 30)

	viper.SetDefault("logging.level", "info")
	viper.SetDefault("logging.format", "json")
	viper.SetDefault("logging.outputPath", "stdout")

	viper.SetDefault("kpi.capacity", 50)

	viper.SetDefault("forecast.trials", 10000)
	viper.SetDefault("forecast.maxTrials", 1000000)
	viper.SetDefault("forecast.seed", 0)
	viper.SetDefault("forecast.workers", 4)
	viper.SetDefault("forecast.defaultDefectsPerKLOC", 8.5)

	viper.SetDefault("scorecard.quarter", "Q1 2025")

	viper.SetDefault("scheduler.enabled", true)
	viper.SetDefault("scheduler.refreshSpec", "@every 15m")

	viper.SetDefault("ratelimit.maxRequestsPerMinute", 120)

	viper.SetDefault("security.isDevelopment", false)
}
