package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/robfig/cron/v3"
	"github.com/rustyeddy/tradebook/market"
	"gopkg.in/yaml.v3"
)

// ErrNoStartingBalance means account.starting_balance is missing. Every
// balance depends on it, so it is a hard configuration error.
var ErrNoStartingBalance = errors.New("account.starting_balance is required")

// Config represents the complete tradebook configuration
type Config struct {
	Account AccountConfig `json:"account" yaml:"account"`
	Storage StorageConfig `json:"storage" yaml:"storage"`
	Market  MarketConfig  `json:"market" yaml:"market"`
	Prices  PricesConfig  `json:"prices" yaml:"prices"`
	Server  ServerConfig  `json:"server" yaml:"server"`
	Log     LogConfig     `json:"log" yaml:"log"`
}

// AccountConfig contains account initialization parameters
type AccountConfig struct {
	StartingBalance *float64 `json:"starting_balance" yaml:"starting_balance"`
	Currency        string   `json:"currency" yaml:"currency"`
}

type StorageConfig struct {
	DBPath string `json:"db_path" yaml:"db_path"`
}

// MarketConfig describes the trading session used for EOD snapshots
type MarketConfig struct {
	Timezone    string   `json:"timezone" yaml:"timezone"`
	CloseTime   string   `json:"close_time" yaml:"close_time"`     // "HH:MM" local
	EODSchedule string   `json:"eod_schedule" yaml:"eod_schedule"` // cron, 5 fields
	Holidays    []string `json:"holidays,omitempty" yaml:"holidays,omitempty"`
}

// PricesConfig selects the price provider
type PricesConfig struct {
	Provider     string             `json:"provider" yaml:"provider"` // "alpaca" or "static"
	RequestDelay string             `json:"request_delay" yaml:"request_delay"`
	Feed         string             `json:"feed,omitempty" yaml:"feed,omitempty"`
	APIKeyID     string             `json:"api_key_id,omitempty" yaml:"api_key_id,omitempty"`
	APISecretKey string             `json:"api_secret_key,omitempty" yaml:"api_secret_key,omitempty"`
	Static       map[string]float64 `json:"static,omitempty" yaml:"static,omitempty"`
}

type ServerConfig struct {
	Addr           string   `json:"addr" yaml:"addr"`
	AllowedOrigins []string `json:"allowed_origins,omitempty" yaml:"allowed_origins,omitempty"`
}

type LogConfig struct {
	Level  string `json:"level" yaml:"level"`
	Pretty bool   `json:"pretty" yaml:"pretty"`
}

// LoadFromFile loads configuration from a file (YAML, or JSON as a fallback)
func LoadFromFile(path string) (*Config, error) {
	cfg, err := readFile(path)
	if err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}

func readFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config file: %w", err)
	}

	cfg := Default()
	cfg.Account.StartingBalance = nil

	// Try YAML first, fall back to JSON
	if err := yaml.Unmarshal(data, cfg); err != nil {
		if jerr := json.Unmarshal(data, cfg); jerr != nil {
			return nil, fmt.Errorf("parse config (tried YAML and JSON): %w", jerr)
		}
	}
	return cfg, nil
}

// Load reads .env (if present), the config file at path (defaults when path
// is empty), then applies environment overrides and validates.
func Load(path string) (*Config, error) {
	_ = godotenv.Load()

	cfg := Default()
	if path != "" {
		var err error
		if cfg, err = readFile(path); err != nil {
			return nil, err
		}
	}
	if err := cfg.applyEnv(); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}

func (c *Config) applyEnv() error {
	c.Storage.DBPath = getEnv("TRADEBOOK_DB", c.Storage.DBPath)
	c.Log.Level = getEnv("TRADEBOOK_LOG_LEVEL", c.Log.Level)
	c.Server.Addr = getEnv("TRADEBOOK_HTTP_ADDR", c.Server.Addr)
	c.Prices.APIKeyID = getEnv("APCA_API_KEY_ID", c.Prices.APIKeyID)
	c.Prices.APISecretKey = getEnv("APCA_API_SECRET_KEY", c.Prices.APISecretKey)
	if v := os.Getenv("TRADEBOOK_STARTING_BALANCE"); v != "" {
		f, err := strconv.ParseFloat(v, 64)
		if err != nil {
			return fmt.Errorf("TRADEBOOK_STARTING_BALANCE: %w", err)
		}
		c.Account.StartingBalance = &f
	}
	return nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// SaveToFile saves configuration to a file (JSON or YAML based on extension)
func (c *Config) SaveToFile(path string) error {
	var data []byte
	var err error

	if strings.HasSuffix(path, ".yaml") || strings.HasSuffix(path, ".yml") {
		data, err = yaml.Marshal(c)
	} else {
		data, err = json.MarshalIndent(c, "", "  ")
	}
	if err != nil {
		return fmt.Errorf("marshal config: %w", err)
	}

	if err := os.WriteFile(path, data, 0o600); err != nil {
		return fmt.Errorf("write config file: %w", err)
	}
	return nil
}

// Validate checks if the configuration is valid
func (c *Config) Validate() error {
	if c.Account.StartingBalance == nil {
		return ErrNoStartingBalance
	}
	if *c.Account.StartingBalance < 0 {
		return fmt.Errorf("account.starting_balance must not be negative")
	}
	if c.Account.Currency == "" {
		return fmt.Errorf("account.currency is required")
	}
	if c.Storage.DBPath == "" {
		return fmt.Errorf("storage.db_path is required")
	}
	if _, err := c.Calendar(); err != nil {
		return fmt.Errorf("market: %w", err)
	}
	if c.Market.EODSchedule != "" {
		if _, err := cron.ParseStandard(c.Market.EODSchedule); err != nil {
			return fmt.Errorf("market.eod_schedule: %w", err)
		}
	}
	switch c.Prices.Provider {
	case "alpaca", "static":
	default:
		return fmt.Errorf("prices.provider must be 'alpaca' or 'static'")
	}
	if _, err := c.RequestDelay(); err != nil {
		return fmt.Errorf("prices.request_delay: %w", err)
	}
	for k, p := range c.Prices.Static {
		if p <= 0 {
			return fmt.Errorf("prices.static[%s] must be positive", k)
		}
	}
	return nil
}

// Calendar builds the trading calendar from the market section.
func (c *Config) Calendar() (market.Calendar, error) {
	return market.NewCalendar(c.Market.Timezone, c.Market.CloseTime, c.Market.Holidays)
}

func (c *Config) RequestDelay() (time.Duration, error) {
	if c.Prices.RequestDelay == "" {
		return 0, nil
	}
	d, err := time.ParseDuration(c.Prices.RequestDelay)
	if err != nil {
		return 0, err
	}
	if d < 0 {
		return 0, fmt.Errorf("must not be negative")
	}
	return d, nil
}

// Default returns a configuration with sensible defaults
func Default() *Config {
	start := 10000.0
	return &Config{
		Account: AccountConfig{
			StartingBalance: &start,
			Currency:        "USD",
		},
		Storage: StorageConfig{
			DBPath: "./tradebook.db",
		},
		Market: MarketConfig{
			Timezone:    "America/New_York",
			CloseTime:   "16:00",
			EODSchedule: "15 16 * * 1-5",
		},
		Prices: PricesConfig{
			Provider:     "static",
			RequestDelay: "250ms",
			Feed:         "iex",
		},
		Server: ServerConfig{
			Addr:           ":8080",
			AllowedOrigins: []string{"*"},
		},
		Log: LogConfig{
			Level: "info",
		},
	}
}
