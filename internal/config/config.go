package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

const (
	RealtimePostgres = "postgres"
	RealtimeRedis    = "redis"
)

type Config struct {
	ServerPort    string `yaml:"server_port"`
	DBHost        string `yaml:"db_host"`
	DBPort        string `yaml:"db_port"`
	DBUser        string `yaml:"db_user"`
	DBPassword    string `yaml:"db_password"`
	DBName        string `yaml:"db_name"`
	DBSSLMode     string `yaml:"db_sslmode"`
	RedisAddr     string `yaml:"redis_addr"`
	RedisPassword string `yaml:"redis_password"`
	JWTSecret     string `yaml:"jwt_secret"`
	LogLevel      string `yaml:"log_level"`

	// AllowedOrigins feeds CORS and the websocket origin check. Empty means
	// same-origin only for websockets and any origin for CORS.
	AllowedOrigins []string `yaml:"allowed_origins"`

	// RealtimeDriver selects the change feed: "postgres" (LISTEN/NOTIFY) or
	// "redis" (pub/sub).
	RealtimeDriver string `yaml:"realtime_driver"`

	UnreadTTL          time.Duration `yaml:"unread_ttl"`
	UnreadPollInterval time.Duration `yaml:"unread_poll_interval"`

	// Per-actor request rate on the API.
	RateLimitRPS   float64 `yaml:"rate_limit_rps"`
	RateLimitBurst int     `yaml:"rate_limit_burst"`
}

func defaults() *Config {
	return &Config{
		ServerPort:         "8080",
		DBHost:             "localhost",
		DBPort:             "5432",
		DBUser:             "pulse",
		DBPassword:         "pulse_dev_password",
		DBName:             "pulse",
		DBSSLMode:          "disable",
		RedisAddr:          "localhost:6379",
		JWTSecret:          "dev-secret-change-me",
		LogLevel:           "info",
		RealtimeDriver:     RealtimePostgres,
		UnreadTTL:          10 * time.Second,
		UnreadPollInterval: 20 * time.Second,
		RateLimitRPS:       10,
		RateLimitBurst:     20,
	}
}

// Load reads .env (if present), then the YAML file named by CONFIG_FILE (if
// set), then environment variables. Later sources win.
func Load() (*Config, error) {
	_ = godotenv.Load()

	cfg := defaults()
	if path := os.Getenv("CONFIG_FILE"); path != "" {
		if err := cfg.loadFile(path); err != nil {
			return nil, err
		}
	}

	cfg.ServerPort = getEnv("SERVER_PORT", cfg.ServerPort)
	cfg.DBHost = getEnv("DB_HOST", cfg.DBHost)
	cfg.DBPort = getEnv("DB_PORT", cfg.DBPort)
	cfg.DBUser = getEnv("DB_USER", cfg.DBUser)
	cfg.DBPassword = getEnv("DB_PASSWORD", cfg.DBPassword)
	cfg.DBName = getEnv("DB_NAME", cfg.DBName)
	cfg.DBSSLMode = getEnv("DB_SSLMODE", cfg.DBSSLMode)
	cfg.RedisAddr = getEnv("REDIS_ADDR", cfg.RedisAddr)
	cfg.RedisPassword = getEnv("REDIS_PASSWORD", cfg.RedisPassword)
	cfg.JWTSecret = getEnv("JWT_SECRET", cfg.JWTSecret)
	cfg.LogLevel = getEnv("LOG_LEVEL", cfg.LogLevel)
	cfg.RealtimeDriver = getEnv("REALTIME_DRIVER", cfg.RealtimeDriver)
	if origins := getEnv("ALLOWED_ORIGINS", ""); origins != "" {
		cfg.AllowedOrigins = splitList(origins)
	}

	var err error
	if cfg.UnreadTTL, err = getDuration("UNREAD_TTL", cfg.UnreadTTL); err != nil {
		return nil, err
	}
	if cfg.UnreadPollInterval, err = getDuration("UNREAD_POLL_INTERVAL", cfg.UnreadPollInterval); err != nil {
		return nil, err
	}
	if v := getEnv("RATE_LIMIT_RPS", ""); v != "" {
		if cfg.RateLimitRPS, err = strconv.ParseFloat(v, 64); err != nil {
			return nil, fmt.Errorf("parsing RATE_LIMIT_RPS: %w", err)
		}
	}
	if v := getEnv("RATE_LIMIT_BURST", ""); v != "" {
		if cfg.RateLimitBurst, err = strconv.Atoi(v); err != nil {
			return nil, fmt.Errorf("parsing RATE_LIMIT_BURST: %w", err)
		}
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) DatabaseURL() string {
	return fmt.Sprintf("postgres://%s:%s@%s:%s/%s?sslmode=%s",
		c.DBUser, c.DBPassword, c.DBHost, c.DBPort, c.DBName, c.DBSSLMode)
}

func (c *Config) loadFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("reading config file: %w", err)
	}
	if err := yaml.Unmarshal(data, c); err != nil {
		return fmt.Errorf("parsing config file %s: %w", path, err)
	}
	return nil
}

func (c *Config) validate() error {
	switch c.RealtimeDriver {
	case RealtimePostgres, RealtimeRedis:
	default:
		return fmt.Errorf("unknown realtime driver %q", c.RealtimeDriver)
	}
	if c.UnreadTTL <= 0 {
		return fmt.Errorf("unread ttl must be positive, got %s", c.UnreadTTL)
	}
	if c.UnreadPollInterval <= 0 {
		return fmt.Errorf("unread poll interval must be positive, got %s", c.UnreadPollInterval)
	}
	return nil
}

func getEnv(key, fallback string) string {
	val, exists := os.LookupEnv(key)

	if exists {
		return val
	}

	return fallback
}

func getDuration(key string, fallback time.Duration) (time.Duration, error) {
	val, exists := os.LookupEnv(key)
	if !exists {
		return fallback, nil
	}
	d, err := time.ParseDuration(val)
	if err != nil {
		return 0, fmt.Errorf("parsing %s: %w", key, err)
	}
	return d, nil
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
