package infra

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// DefaultUserAgent is sent with every market API request.
const DefaultUserAgent = "crypto-tracker/1.0 (+https://github.com/crypto-tracker)"

// Config holds every setting of the application.
// LoadConfig reads it from YAML and then lets environment variables override secrets.
type Config struct {
	App struct {
		Name    string `yaml:"name"`
		Version string `yaml:"version"`
	} `yaml:"app"`

	API struct {
		CoinGecko struct {
			BaseURL           string `yaml:"base_url"`
			APIKey            string `yaml:"api_key"`
			TimeoutSec        int    `yaml:"timeout_sec"`
			RequestsPerMinute int    `yaml:"requests_per_minute"`
			ChartDays         int    `yaml:"chart_days"`
		} `yaml:"coingecko"`
		ExchangeRate struct {
			PollIntervalSec int `yaml:"poll_interval_sec"`
		} `yaml:"exchange_rate"`
	} `yaml:"api"`

	Refresh struct {
		IntervalSec     int    `yaml:"interval_sec"`
		ThrottleSec     int    `yaml:"throttle_sec"`
		BackoffMaxSec   int    `yaml:"backoff_max_sec"`
		BaseCurrency    string `yaml:"base_currency"`
		DisplayCurrency string `yaml:"display_currency"`
	} `yaml:"refresh"`

	// Rates seeds the conversion table until the first successful rates fetch.
	Rates map[string]float64 `yaml:"rates"`

	Store struct {
		Driver     string `yaml:"driver"` // "sqlite" or "redis"
		SQLitePath string `yaml:"sqlite_path"`
		Redis      struct {
			Addr     string `yaml:"addr"`
			Password string `yaml:"password"`
			DB       int    `yaml:"db"`
		} `yaml:"redis"`
	} `yaml:"store"`

	Cache struct {
		Dir string `yaml:"dir"`
	} `yaml:"cache"`

	Feed struct {
		Enabled bool   `yaml:"enabled"`
		Addr    string `yaml:"addr"`
	} `yaml:"feed"`

	User struct {
		ID string `yaml:"id"`
	} `yaml:"user"`

	Logging struct {
		Level  string `yaml:"level"`
		Format string `yaml:"format"` // "text" or "json"
	} `yaml:"logging"`
}

// LoadConfig reads and parses the config file at path.
func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return ParseConfig(data)
}

// ParseConfig parses YAML config data, applies defaults and env overrides, and validates.
func ParseConfig(data []byte) (*Config, error) {
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, err
	}

	// A missing .env is normal; real environment variables still apply.
	_ = godotenv.Load()

	cfg.applyDefaults()
	overrideWithEnv(&cfg)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return &cfg, nil
}

func (c *Config) applyDefaults() {
	if c.App.Name == "" {
		c.App.Name = AppName
	}
	if c.API.CoinGecko.BaseURL == "" {
		c.API.CoinGecko.BaseURL = "https://api.coingecko.com/api/v3"
	}
	if c.API.CoinGecko.TimeoutSec == 0 {
		c.API.CoinGecko.TimeoutSec = 30
	}
	if c.API.CoinGecko.RequestsPerMinute == 0 {
		c.API.CoinGecko.RequestsPerMinute = 30
	}
	if c.API.CoinGecko.ChartDays == 0 {
		c.API.CoinGecko.ChartDays = 365
	}
	if c.API.ExchangeRate.PollIntervalSec == 0 {
		c.API.ExchangeRate.PollIntervalSec = 600
	}
	if c.Refresh.IntervalSec == 0 {
		c.Refresh.IntervalSec = 60
	}
	if c.Refresh.ThrottleSec == 0 {
		c.Refresh.ThrottleSec = 60
	}
	if c.Refresh.BackoffMaxSec == 0 {
		c.Refresh.BackoffMaxSec = 600
	}
	if c.Refresh.BaseCurrency == "" {
		c.Refresh.BaseCurrency = "usd"
	}
	if c.Refresh.DisplayCurrency == "" {
		c.Refresh.DisplayCurrency = c.Refresh.BaseCurrency
	}
	c.Refresh.BaseCurrency = strings.ToLower(c.Refresh.BaseCurrency)
	c.Refresh.DisplayCurrency = strings.ToLower(c.Refresh.DisplayCurrency)
	if len(c.Rates) == 0 {
		c.Rates = map[string]float64{"usd": 1.0, "eur": 0.92, "gbp": 0.78}
	}
	if c.Store.Driver == "" {
		c.Store.Driver = "sqlite"
	}
	if c.Store.Redis.Addr == "" {
		c.Store.Redis.Addr = "127.0.0.1:6379"
	}
	if c.Feed.Addr == "" {
		c.Feed.Addr = "localhost:8090"
	}
	if c.Logging.Level == "" {
		c.Logging.Level = "info"
	}
	if c.Logging.Format == "" {
		c.Logging.Format = "text"
	}
}

// Validate checks configuration validity
func (c *Config) Validate() error {
	base := c.API.CoinGecko.BaseURL
	if !strings.HasPrefix(base, "http://") && !strings.HasPrefix(base, "https://") {
		return fmt.Errorf("invalid CoinGecko base URL: %s", base)
	}
	if c.Refresh.IntervalSec <= 0 {
		return fmt.Errorf("refresh interval must be positive")
	}
	if c.Refresh.ThrottleSec <= 0 {
		return fmt.Errorf("throttle interval must be positive")
	}
	if c.Refresh.BaseCurrency == "" {
		return fmt.Errorf("base currency is required")
	}
	if c.API.CoinGecko.RequestsPerMinute < 0 {
		return fmt.Errorf("requests per minute must not be negative")
	}

	switch c.Store.Driver {
	case "sqlite", "redis":
	default:
		return fmt.Errorf("unknown store driver: %s", c.Store.Driver)
	}

	return nil
}

// RefreshInterval is the fixed delay between refresh cycles.
func (c *Config) RefreshInterval() time.Duration {
	return time.Duration(c.Refresh.IntervalSec) * time.Second
}

// ThrottleInterval is how long a canonical refresh stays fresh.
func (c *Config) ThrottleInterval() time.Duration {
	return time.Duration(c.Refresh.ThrottleSec) * time.Second
}

// RatesInterval is the delay between exchange rate fetches.
func (c *Config) RatesInterval() time.Duration {
	return time.Duration(c.API.ExchangeRate.PollIntervalSec) * time.Second
}

// overrideWithEnv lets environment variables take precedence over the file.
func overrideWithEnv(cfg *Config) {
	if key := os.Getenv("COINGECKO_API_KEY"); key != "" {
		cfg.API.CoinGecko.APIKey = key
	}
	if pass := os.Getenv("CRYPTO_REDIS_PASSWORD"); pass != "" {
		cfg.Store.Redis.Password = pass
	}
	if id := os.Getenv("CRYPTO_USER_ID"); id != "" {
		cfg.User.ID = id
	}
}
