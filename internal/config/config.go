package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
	"github.com/shopspring/decimal"
	"gopkg.in/yaml.v3"

	"exchange/internal/logging"
)

const (
	DriverPostgres = "postgres"
	DriverMemory   = "memory"
)

type Config struct {
	ServerPort  string `yaml:"server_port"`
	StoreDriver string `yaml:"store_driver"`

	DBHost     string `yaml:"db_host"`
	DBPort     string `yaml:"db_port"`
	DBUser     string `yaml:"db_user"`
	DBPassword string `yaml:"db_password"`
	DBName     string `yaml:"db_name"`
	DBSSLMode  string `yaml:"db_sslmode"`

	JWTSecret string        `yaml:"jwt_secret"`
	TokenTTL  time.Duration `yaml:"token_ttl"`

	RedisAddr     string `yaml:"redis_addr"`
	RedisPassword string `yaml:"redis_password"`

	RatesAPIURL   string        `yaml:"rates_api_url"`
	RatesAPIKey   string        `yaml:"rates_api_key"`
	RatesCacheTTL time.Duration `yaml:"rates_cache_ttl"`

	SMTPHost     string `yaml:"smtp_host"`
	SMTPPort     int    `yaml:"smtp_port"`
	SMTPUser     string `yaml:"smtp_user"`
	SMTPPassword string `yaml:"smtp_password"`
	MailFrom     string `yaml:"mail_from"`

	// ReferralReward is kept as text so YAML and env values share one parser.
	ReferralReward string `yaml:"referral_reward"`

	RateLimitRPS   int `yaml:"rate_limit_rps"`
	RateLimitBurst int `yaml:"rate_limit_burst"`

	LogLevel  string `yaml:"log_level"`
	LogFormat string `yaml:"log_format"`

	referralReward decimal.Decimal
}

func Default() *Config {
	return &Config{
		ServerPort:     "8080",
		StoreDriver:    DriverPostgres,
		DBPort:         "5432",
		DBSSLMode:      "disable",
		TokenTTL:       24 * time.Hour,
		RatesAPIURL:    "https://api.coingecko.com/api/v3",
		RatesCacheTTL:  5 * time.Minute,
		SMTPPort:       587,
		ReferralReward: "10",
		RateLimitRPS:   20,
		RateLimitBurst: 40,
		LogLevel:       "info",
		LogFormat:      "json",
	}
}

// Load reads defaults, then the optional YAML file at path (or CONFIG_FILE),
// then .env, then the process environment.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path == "" {
		path = os.Getenv("CONFIG_FILE")
	}
	if path != "" {
		if err := cfg.loadFile(path); err != nil {
			return nil, err
		}
	}

	if err := godotenv.Load(); err != nil {
		logging.Debug("No .env file found, using system environment variables")
	}

	if err := cfg.applyEnv(); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) loadFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read config file: %w", err)
	}
	if err := yaml.Unmarshal(data, c); err != nil {
		return fmt.Errorf("parse config file %s: %w", path, err)
	}
	return nil
}

func (c *Config) applyEnv() error {
	setString(&c.ServerPort, "SERVER_PORT")
	setString(&c.StoreDriver, "STORE_DRIVER")
	setString(&c.DBHost, "DB_HOST")
	setString(&c.DBPort, "DB_PORT")
	setString(&c.DBUser, "DB_USER")
	setString(&c.DBPassword, "DB_PASSWORD")
	setString(&c.DBName, "DB_NAME")
	setString(&c.DBSSLMode, "DB_SSLMODE")
	setString(&c.JWTSecret, "JWT_SECRET")
	setString(&c.RedisAddr, "REDIS_ADDR")
	setString(&c.RedisPassword, "REDIS_PASSWORD")
	setString(&c.RatesAPIURL, "RATES_API_URL")
	setString(&c.RatesAPIKey, "RATES_API_KEY")
	setString(&c.SMTPHost, "SMTP_HOST")
	setString(&c.SMTPUser, "SMTP_USER")
	setString(&c.SMTPPassword, "SMTP_PASSWORD")
	setString(&c.MailFrom, "MAIL_FROM")
	setString(&c.ReferralReward, "REFERRAL_REWARD")
	setString(&c.LogLevel, "LOG_LEVEL")
	setString(&c.LogFormat, "LOG_FORMAT")

	if err := setDuration(&c.TokenTTL, "TOKEN_TTL"); err != nil {
		return err
	}
	if err := setDuration(&c.RatesCacheTTL, "RATES_CACHE_TTL"); err != nil {
		return err
	}
	if err := setInt(&c.SMTPPort, "SMTP_PORT"); err != nil {
		return err
	}
	if err := setInt(&c.RateLimitRPS, "RATE_LIMIT_RPS"); err != nil {
		return err
	}
	return setInt(&c.RateLimitBurst, "RATE_LIMIT_BURST")
}

func (c *Config) Validate() error {
	if c.JWTSecret == "" {
		return errors.New("JWT_SECRET is required")
	}
	switch c.StoreDriver {
	case DriverPostgres:
		if c.DBHost == "" {
			return errors.New("DB_HOST is required for the postgres store")
		}
	case DriverMemory:
	default:
		return fmt.Errorf("unknown store driver %q", c.StoreDriver)
	}

	reward, err := decimal.NewFromString(c.ReferralReward)
	if err != nil {
		return fmt.Errorf("invalid referral reward %q: %w", c.ReferralReward, err)
	}
	if reward.IsNegative() {
		return errors.New("referral reward must not be negative")
	}
	c.referralReward = reward

	if c.TokenTTL <= 0 {
		return errors.New("token ttl must be positive")
	}
	if c.RatesCacheTTL <= 0 {
		return errors.New("rates cache ttl must be positive")
	}
	if c.RateLimitRPS <= 0 || c.RateLimitBurst <= 0 {
		return errors.New("rate limit values must be positive")
	}
	return nil
}

// ReferralRewardAmount is the parsed ReferralReward. Valid after Validate.
func (c *Config) ReferralRewardAmount() decimal.Decimal {
	return c.referralReward
}

// DSN builds a lib/pq connection string.
func (c *Config) DSN() string {
	dsn := fmt.Sprintf("host=%s port=%s user=%s dbname=%s sslmode=%s",
		c.DBHost, c.DBPort, c.DBUser, c.DBName, c.DBSSLMode)
	if c.DBPassword != "" {
		dsn += fmt.Sprintf(" password=%s", c.DBPassword)
	}
	return dsn
}

func setString(dst *string, key string) {
	if v, ok := os.LookupEnv(key); ok {
		*dst = v
	}
}

func setDuration(dst *time.Duration, key string) error {
	v, ok := os.LookupEnv(key)
	if !ok || v == "" {
		return nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return fmt.Errorf("invalid %s: %w", key, err)
	}
	*dst = d
	return nil
}

func setInt(dst *int, key string) error {
	v, ok := os.LookupEnv(key)
	if !ok || v == "" {
		return nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return fmt.Errorf("invalid %s: %w", key, err)
	}
	*dst = n
	return nil
}
