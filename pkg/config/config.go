package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

type Config struct {
	Environment string `yaml:"environment"`
	Log         struct {
		Level  string `yaml:"level"`
		Format string `yaml:"format"`
		// ErrorTopic enables the error log collector when set.
		ErrorTopic string `yaml:"error_topic"`
	} `yaml:"log"`
	Server struct {
		Port            int           `yaml:"port"`
		ReadTimeout     time.Duration `yaml:"read_timeout"`
		WriteTimeout    time.Duration `yaml:"write_timeout"`
		ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
		RateLimit       struct {
			PerSecond float64 `yaml:"per_second"`
			Burst     int     `yaml:"burst"`
		} `yaml:"rate_limit"`
		// AllowedOrigins gates CORS and websocket upgrades. Empty means
		// same-origin only; "*" allows any origin.
		AllowedOrigins []string `yaml:"allowed_origins"`
		// StreamToken is required to subscribe to every client's assessments.
		// Without it only per-client subscriptions are accepted.
		StreamToken string `yaml:"stream_token"`
	} `yaml:"server"`
	Metrics struct {
		Enabled bool   `yaml:"enabled"`
		Path    string `yaml:"path"`
	} `yaml:"metrics"`
	Kafka struct {
		Brokers      []string `yaml:"brokers"`
		RequiredAcks int      `yaml:"required_acks"`
		Compression  string   `yaml:"compression"`
		Topics       struct {
			Bars          string `yaml:"bars"`
			Updates       string `yaml:"updates"`
			Notifications string `yaml:"notifications"`
		} `yaml:"topics"`
		Producer struct {
			MaxAttempts  int           `yaml:"max_attempts"`
			Linger       time.Duration `yaml:"linger"`
			BatchBytes   int           `yaml:"batch_bytes"`
			BatchSize    int           `yaml:"batch_size"`
			WriteTimeout time.Duration `yaml:"write_timeout"`
			ReadTimeout  time.Duration `yaml:"read_timeout"`
			Async        bool          `yaml:"async"`
		} `yaml:"producer"`
		Consumer struct {
			GroupID    string        `yaml:"group_id"`
			Workers    int           `yaml:"workers"`
			BufferSize int           `yaml:"buffer_size"`
			RetryMax   int           `yaml:"retry_max"`
			BackoffMin time.Duration `yaml:"backoff_min"`
			BackoffMax time.Duration `yaml:"backoff_max"`
			DLQTopic   string        `yaml:"dlq_topic"`
			MinBytes   int           `yaml:"min_bytes"`
			MaxBytes   int           `yaml:"max_bytes"`
		} `yaml:"consumer"`
	} `yaml:"kafka"`
	ClickHouse struct {
		Host             string        `yaml:"host"`
		Port             int           `yaml:"port"`
		Database         string        `yaml:"database"`
		User             string        `yaml:"user"`
		Password         string        `yaml:"password"`
		UseHTTP          bool          `yaml:"use_http"`
		AsyncInsert      bool          `yaml:"async_insert"`
		WaitForAsync     bool          `yaml:"wait_for_async_insert"`
		DialTimeout      time.Duration `yaml:"dial_timeout"`
		ReadTimeout      time.Duration `yaml:"read_timeout"`
		MaxExecutionTime time.Duration `yaml:"max_execution_time"`
		Compress         bool          `yaml:"compress"`
	} `yaml:"clickhouse"`
	Postgres struct {
		DSN             string        `yaml:"dsn"`
		MaxOpenConns    int           `yaml:"max_open_conns"`
		MaxIdleConns    int           `yaml:"max_idle_conns"`
		ConnMaxLifetime time.Duration `yaml:"conn_max_lifetime"`
		AutoMigrate     bool          `yaml:"auto_migrate"`
	} `yaml:"postgres"`
	Redis struct {
		Enabled  bool   `yaml:"enabled"`
		Host     string `yaml:"host"`
		Port     int    `yaml:"port"`
		Password string `yaml:"password"`
		DB       int    `yaml:"db"`
		Prefix   string `yaml:"prefix"`
		// DialTimeout also bounds the startup ping.
		DialTimeout time.Duration `yaml:"dial_timeout"`
		Timeout     time.Duration `yaml:"timeout"`
	} `yaml:"redis"`
	Cache struct {
		VolatilityTTL time.Duration `yaml:"volatility_ttl"`
		MemoryMaxSize int           `yaml:"memory_max_size"`
	} `yaml:"cache"`
	Estimator struct {
		// Method is historical or predictive.
		Method      string `yaml:"method"`
		HistoryBars int    `yaml:"history_bars"`
		Benchmark   string `yaml:"benchmark"`
		Model       struct {
			File       string        `yaml:"file"`
			URL        string        `yaml:"url"`
			Timeout    time.Duration `yaml:"timeout"`
			MaxElapsed time.Duration `yaml:"max_elapsed"`
		} `yaml:"model"`
	} `yaml:"estimator"`
	Risk struct {
		// DefaultTolerance is nil when unset.
		DefaultTolerance *float64      `yaml:"default_tolerance"`
		Cooldown         time.Duration `yaml:"cooldown"`
		// NotifyPolicy is always or outside.
		NotifyPolicy string `yaml:"notify_policy"`
		// DedupBackend is postgres, redis or memory.
		DedupBackend string `yaml:"dedup_backend"`
	} `yaml:"risk"`
	Fanout struct {
		// Mode is index or scan.
		Mode          string        `yaml:"mode"`
		PageSize      int           `yaml:"page_size"`
		Workers       int           `yaml:"workers"`
		FlushInterval time.Duration `yaml:"flush_interval"`
		MaxBatch      int           `yaml:"max_batch"`
	} `yaml:"fanout"`
	Notify struct {
		// Backend is kafka or log.
		Backend string `yaml:"backend"`
		Sender  string `yaml:"sender"`
		Subject string `yaml:"subject"`
	} `yaml:"notify"`
}

// Load reads and parses a YAML configuration file.
func Load(path string) (*Config, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}

	var c Config
	if err := yaml.Unmarshal(b, &c); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	c.applyDefaults()

	// Validate required fields
	if err := c.Validate(); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}

	return &c, nil
}

// LoadWithEnv loads config from YAML and overrides with environment variables.
// A .env file in the working directory is loaded first when present.
func LoadWithEnv(path string) (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("load .env: %w", err)
	}

	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}
	var c Config
	if err := yaml.Unmarshal(b, &c); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}

	// Override with environment variables
	if err := c.applyEnv(); err != nil {
		return nil, err
	}
	c.applyDefaults()

	if err := c.Validate(); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}
	return &c, nil
}

func (c *Config) applyEnv() error {
	if v := os.Getenv("KAFKA_BROKERS"); v != "" {
		c.Kafka.Brokers = strings.Split(v, ",")
	}
	if v := os.Getenv("POSTGRES_DSN"); v != "" {
		c.Postgres.DSN = v
	}
	if v := os.Getenv("CLICKHOUSE_HOST"); v != "" {
		c.ClickHouse.Host = v
	}
	if v := os.Getenv("CLICKHOUSE_PASSWORD"); v != "" {
		c.ClickHouse.Password = v
	}
	if v := os.Getenv("REDIS_HOST"); v != "" {
		c.Redis.Host = v
	}
	if v := os.Getenv("REDIS_PASSWORD"); v != "" {
		c.Redis.Password = v
	}
	if v := os.Getenv("STREAM_TOKEN"); v != "" {
		c.Server.StreamToken = v
	}
	if v := os.Getenv("SENDER_EMAIL"); v != "" {
		c.Notify.Sender = v
	}
	if v := os.Getenv("MODEL_URL"); v != "" {
		c.Estimator.Model.URL = v
	}
	if v := os.Getenv("ESTIMATOR_METHOD"); v != "" {
		c.Estimator.Method = v
	}
	if v := os.Getenv("VOL_TOLERANCE_DEFAULT"); v != "" {
		f, err := strconv.ParseFloat(v, 64)
		if err != nil {
			return fmt.Errorf("VOL_TOLERANCE_DEFAULT: %w", err)
		}
		c.Risk.DefaultTolerance = &f
	}
	if v := os.Getenv("EMAIL_COOLDOWN_SECONDS"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("EMAIL_COOLDOWN_SECONDS: %w", err)
		}
		c.Risk.Cooldown = time.Duration(n) * time.Second
	}
	return nil
}

func (c *Config) applyDefaults() {
	if c.Server.Port == 0 {
		c.Server.Port = 8080
	}
	if c.Server.ShutdownTimeout == 0 {
		c.Server.ShutdownTimeout = 10 * time.Second
	}
	if c.Metrics.Path == "" {
		c.Metrics.Path = "/metrics"
	}
	if c.Estimator.Method == "" {
		c.Estimator.Method = "historical"
	}
	if c.Estimator.HistoryBars == 0 {
		c.Estimator.HistoryBars = 120
	}
	if c.Estimator.Benchmark == "" {
		c.Estimator.Benchmark = "GSPC"
	}
	if c.Estimator.Model.Timeout == 0 {
		c.Estimator.Model.Timeout = 10 * time.Second
	}
	if c.Estimator.Model.MaxElapsed == 0 {
		c.Estimator.Model.MaxElapsed = time.Minute
	}
	if c.Risk.DefaultTolerance == nil {
		tol := 0.10
		c.Risk.DefaultTolerance = &tol
	}
	if c.Risk.Cooldown == 0 {
		c.Risk.Cooldown = 300 * time.Second
	}
	if c.Risk.NotifyPolicy == "" {
		c.Risk.NotifyPolicy = "always"
	}
	if c.Risk.DedupBackend == "" {
		c.Risk.DedupBackend = "postgres"
	}
	if c.Fanout.Mode == "" {
		c.Fanout.Mode = "index"
	}
	if c.Fanout.PageSize == 0 {
		c.Fanout.PageSize = 100
	}
	if c.Fanout.Workers == 0 {
		c.Fanout.Workers = 4
	}
	if c.Fanout.FlushInterval == 0 {
		c.Fanout.FlushInterval = 2 * time.Second
	}
	if c.Fanout.MaxBatch == 0 {
		c.Fanout.MaxBatch = 256
	}
	if c.Notify.Backend == "" {
		c.Notify.Backend = "kafka"
	}
	if c.Cache.VolatilityTTL == 0 {
		c.Cache.VolatilityTTL = 5 * time.Minute
	}
	if c.Cache.MemoryMaxSize == 0 {
		c.Cache.MemoryMaxSize = 10000
	}
}

// Tolerance returns the configured default tolerance band width.
func (c *Config) Tolerance() float64 {
	if c.Risk.DefaultTolerance == nil {
		return 0.10
	}
	return *c.Risk.DefaultTolerance
}

// Validate checks if the configuration is valid.
func (c *Config) Validate() error {
	if c.Environment == "" {
		return fmt.Errorf("environment is required")
	}
	if len(c.Kafka.Brokers) == 0 {
		return fmt.Errorf("kafka.brokers cannot be empty")
	}
	if c.Kafka.Topics.Bars == "" || c.Kafka.Topics.Updates == "" {
		return fmt.Errorf("kafka.topics.bars and kafka.topics.updates are required")
	}
	switch c.Estimator.Method {
	case "historical":
	case "predictive":
		if c.Estimator.Model.File == "" && c.Estimator.Model.URL == "" {
			return fmt.Errorf("estimator.model.file or estimator.model.url is required for the predictive method")
		}
	default:
		return fmt.Errorf("estimator.method must be 'historical' or 'predictive', got '%s'", c.Estimator.Method)
	}
	if c.Estimator.HistoryBars < 30 {
		return fmt.Errorf("estimator.history_bars must be >= 30, got %d", c.Estimator.HistoryBars)
	}
	if c.Risk.DefaultTolerance != nil && *c.Risk.DefaultTolerance < 0 {
		return fmt.Errorf("risk.default_tolerance must be >= 0, got %v", *c.Risk.DefaultTolerance)
	}
	if c.Risk.Cooldown < 0 {
		return fmt.Errorf("risk.cooldown must be >= 0, got %s", c.Risk.Cooldown)
	}
	if c.Risk.NotifyPolicy != "always" && c.Risk.NotifyPolicy != "outside" {
		return fmt.Errorf("risk.notify_policy must be 'always' or 'outside', got '%s'", c.Risk.NotifyPolicy)
	}
	switch c.Risk.DedupBackend {
	case "postgres":
	case "redis":
		if !c.Redis.Enabled {
			return fmt.Errorf("risk.dedup_backend 'redis' requires redis.enabled")
		}
	case "memory":
		if c.Environment == "production" {
			return fmt.Errorf("risk.dedup_backend 'memory' is not allowed in production")
		}
	default:
		return fmt.Errorf("risk.dedup_backend must be 'postgres', 'redis' or 'memory', got '%s'", c.Risk.DedupBackend)
	}
	if c.Postgres.DSN == "" {
		return fmt.Errorf("postgres.dsn is required")
	}
	if c.ClickHouse.Host == "" {
		return fmt.Errorf("clickhouse.host is required")
	}
	if c.Fanout.Mode != "index" && c.Fanout.Mode != "scan" {
		return fmt.Errorf("fanout.mode must be 'index' or 'scan', got '%s'", c.Fanout.Mode)
	}
	if c.Notify.Backend != "kafka" && c.Notify.Backend != "log" {
		return fmt.Errorf("notify.backend must be 'kafka' or 'log', got '%s'", c.Notify.Backend)
	}
	if c.Notify.Backend == "kafka" && c.Kafka.Topics.Notifications == "" {
		return fmt.Errorf("kafka.topics.notifications is required for the kafka notify backend")
	}
	if c.Notify.Backend == "kafka" && c.Notify.Sender == "" {
		return fmt.Errorf("notify.sender is required for the kafka notify backend")
	}
	return nil
}
