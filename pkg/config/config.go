package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/creasty/defaults"
	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

type Config struct {
	Environment string `yaml:"environment" default:"development"`
	Server      struct {
		Port            int           `yaml:"port" default:"8080"`
		ReadTimeout     time.Duration `yaml:"read_timeout" default:"10s"`
		WriteTimeout    time.Duration `yaml:"write_timeout" default:"10s"`
		ShutdownTimeout time.Duration `yaml:"shutdown_timeout" default:"10s"`
		AllowOrigins    []string      `yaml:"allow_origins"`
	} `yaml:"server"`
	Logging struct {
		Level          string        `yaml:"level" default:"info"`
		Format         string        `yaml:"format" default:"console"`
		Output         string        `yaml:"output" default:"stdout"`
		MaxSizeMB      int           `yaml:"max_size_mb" default:"25"`
		MaxBackups     int           `yaml:"max_backups" default:"10"`
		CollectorTopic string        `yaml:"collector_topic"`
		CollectorEvery time.Duration `yaml:"collector_interval" default:"30s"`
	} `yaml:"logging"`
	Metrics struct {
		Enabled bool   `yaml:"enabled" default:"true"`
		Path    string `yaml:"path" default:"/metrics"`
	} `yaml:"metrics"`
	Backend struct {
		Type string `yaml:"type" default:"clickhouse"`
	} `yaml:"backend"`
	Persistence struct {
		BufferSize      int           `yaml:"buffer_size" default:"2000"`
		MaxRPSPerSymbol int           `yaml:"max_rps_per_symbol" default:"20"`
		BatchSize       int           `yaml:"batch_size" default:"100"`
		FlushInterval   time.Duration `yaml:"flush_interval" default:"200ms"`
	} `yaml:"persistence"`
	Kafka struct {
		Brokers      []string `yaml:"brokers"`
		Topic        string   `yaml:"topic" default:"price_updates"`
		RequiredAcks int      `yaml:"required_acks" default:"1"`
		Compression  string   `yaml:"compression" default:"snappy"`
		Producer     struct {
			MaxAttempts  int           `yaml:"max_attempts" default:"3"`
			Linger       time.Duration `yaml:"linger" default:"50ms"`
			BatchBytes   int           `yaml:"batch_bytes" default:"1048576"`
			BatchSize    int           `yaml:"batch_size" default:"100"`
			WriteTimeout time.Duration `yaml:"write_timeout" default:"10s"`
			ReadTimeout  time.Duration `yaml:"read_timeout" default:"10s"`
			Async        bool          `yaml:"async" default:"true"`
		} `yaml:"producer"`
		Consumer struct {
			Enabled    bool          `yaml:"enabled"`
			GroupID    string        `yaml:"group_id" default:"tradedesk-history"`
			Workers    int           `yaml:"workers" default:"2"`
			BufferSize int           `yaml:"buffer_size" default:"256"`
			RetryMax   int           `yaml:"retry_max" default:"3"`
			BackoffMin time.Duration `yaml:"backoff_min" default:"50ms"`
			BackoffMax time.Duration `yaml:"backoff_max" default:"2s"`
			DLQTopic   string        `yaml:"dlq_topic"`
			MinBytes   int           `yaml:"min_bytes" default:"1"`
			MaxBytes   int           `yaml:"max_bytes" default:"10000000"`
			MaxWait    time.Duration `yaml:"max_wait" default:"500ms"`
		} `yaml:"consumer"`
	} `yaml:"kafka"`
	ClickHouse struct {
		Enabled          bool          `yaml:"enabled" default:"true"`
		Host             string        `yaml:"host" default:"localhost"`
		Port             int           `yaml:"port" default:"9000"`
		Database         string        `yaml:"database" default:"tradedesk"`
		User             string        `yaml:"user" default:"default"`
		Password         string        `yaml:"password"`
		UseHTTP          bool          `yaml:"use_http"`
		AsyncInsert      bool          `yaml:"async_insert" default:"true"`
		WaitForAsync     bool          `yaml:"wait_for_async_insert"`
		DialTimeout      time.Duration `yaml:"dial_timeout" default:"5s"`
		ReadTimeout      time.Duration `yaml:"read_timeout" default:"10s"`
		WriteTimeout     time.Duration `yaml:"write_timeout" default:"10s"`
		MaxExecutionTime time.Duration `yaml:"max_execution_time" default:"30s"`
		RetentionDays    int           `yaml:"retention_days"`
	} `yaml:"clickhouse"`
	Redis struct {
		Enabled   bool          `yaml:"enabled"`
		Addr      string        `yaml:"addr" default:"localhost:6379"`
		Password  string        `yaml:"password"`
		DB        int           `yaml:"db"`
		Prefix    string        `yaml:"prefix" default:"tradedesk"`
		LatestTTL time.Duration `yaml:"latest_ttl" default:"10m"`
	} `yaml:"redis"`
	Finnhub struct {
		APIKey         string        `yaml:"api_key"`
		WebSocketURL   string        `yaml:"websocket_url" default:"wss://ws.finnhub.io"`
		RestURL        string        `yaml:"rest_url" default:"https://finnhub.io/api/v1"`
		RestTimeout    time.Duration `yaml:"rest_timeout" default:"10s"`
		RestRatePerSec float64       `yaml:"rest_rate_per_sec" default:"1"`
		RestBurst      float64       `yaml:"rest_burst" default:"30"`
		QuoteCacheTTL  time.Duration `yaml:"quote_cache_ttl" default:"5s"`
	} `yaml:"finnhub"`
	Relay struct {
		PingInterval         time.Duration `yaml:"ping_interval" default:"30s"`
		BackoffBase          time.Duration `yaml:"backoff_base" default:"1s"`
		BackoffMax           time.Duration `yaml:"backoff_max" default:"30s"`
		MaxReconnectAttempts int           `yaml:"max_reconnect_attempts" default:"5"`
		SendBuffer           int           `yaml:"send_buffer" default:"256"`
		DebugMessages        bool          `yaml:"debug_messages"`
	} `yaml:"relay"`
}

// Load reads and parses a YAML configuration file. An empty path yields defaults only.
func Load(path string) (*Config, error) {
	c, err := read(path)
	if err != nil {
		return nil, err
	}

	// Validate required fields
	if err := c.Validate(); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}

	return c, nil
}

// LoadWithEnv loads .env (if present) and the YAML file, then overrides with environment variables.
func LoadWithEnv(path string) (*Config, error) {
	// .env is optional; a missing file is not an error
	_ = godotenv.Load()

	c, err := read(path)
	if err != nil {
		return nil, err
	}

	c.applyEnv()

	if err := c.Validate(); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}
	return c, nil
}

func read(path string) (*Config, error) {
	var c Config
	// defaults first so explicit zero values in YAML (false, 0) win
	if err := defaults.Set(&c); err != nil {
		return nil, fmt.Errorf("config defaults: %w", err)
	}

	if path == "" {
		return &c, nil
	}

	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}
	if err := yaml.Unmarshal(b, &c); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	return &c, nil
}

func (c *Config) applyEnv() {
	if v := os.Getenv("FINNHUB_API_KEY"); v != "" {
		c.Finnhub.APIKey = v
	}
	if v := os.Getenv("BACKEND"); v != "" {
		c.Backend.Type = v
	}
	if v := os.Getenv("KAFKA_BROKERS"); v != "" {
		c.Kafka.Brokers = splitList(v)
	}
	if v := os.Getenv("KAFKA_TOPIC"); v != "" {
		c.Kafka.Topic = v
	}
	if v := os.Getenv("REDIS_ADDR"); v != "" {
		c.Redis.Addr = v
		c.Redis.Enabled = true
	}
	if v := os.Getenv("HTTP_PORT"); v != "" {
		if p, err := strconv.Atoi(v); err == nil {
			c.Server.Port = p
		}
	}
	if v := os.Getenv("LOG_LEVEL"); v != "" {
		c.Logging.Level = v
	}
}

// Validate checks if the configuration is valid.
// A missing Finnhub API key is allowed here; endpoints that need it report 500.
func (c *Config) Validate() error {
	if c.Environment == "" {
		return fmt.Errorf("environment is required")
	}
	switch c.Backend.Type {
	case "clickhouse":
		if !c.ClickHouse.Enabled {
			return fmt.Errorf("backend.type 'clickhouse' requires clickhouse.enabled")
		}
	case "kafka":
		if len(c.Kafka.Brokers) == 0 {
			return fmt.Errorf("backend.type 'kafka' requires kafka.brokers")
		}
	case "none":
	default:
		return fmt.Errorf("backend.type must be 'clickhouse', 'kafka' or 'none', got '%s'", c.Backend.Type)
	}
	if c.Kafka.Consumer.Enabled && !c.ClickHouse.Enabled {
		return fmt.Errorf("kafka.consumer requires clickhouse.enabled")
	}
	if c.ClickHouse.RetentionDays < 0 {
		return fmt.Errorf("clickhouse.retention_days must be >= 0")
	}
	if c.Relay.MaxReconnectAttempts < 0 {
		return fmt.Errorf("relay.max_reconnect_attempts must be >= 0")
	}
	if c.Relay.BackoffBase <= 0 || c.Relay.BackoffMax < c.Relay.BackoffBase {
		return fmt.Errorf("relay backoff must satisfy 0 < backoff_base <= backoff_max")
	}
	return nil
}

// HasAPIKey reports whether an upstream credential is configured.
func (c *Config) HasAPIKey() bool { return strings.TrimSpace(c.Finnhub.APIKey) != "" }

func splitList(s string) []string {
	parts := strings.Split(s, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
