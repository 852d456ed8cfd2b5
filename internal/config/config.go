package config

import (
	"fmt"
	"os"
	"strings"
	"time"
	_ "time/tzdata"

	"github.com/rs/zerolog"
	"gopkg.in/yaml.v3"
)

// DefaultPath is used when neither --config nor CONFIG_PATH is set.
const DefaultPath = "configs/config.yaml"

// Config holds all application configuration.
type Config struct {
	Database struct {
		SQLitePath string `yaml:"sqlite_path"`
	} `yaml:"database"`
	HTTP struct {
		Addr string `yaml:"addr"`
	} `yaml:"http"`
	Quote struct {
		Source      string        `yaml:"source"`
		BaseURL     string        `yaml:"base_url"`
		APIKey      string        `yaml:"api_key"`
		Timeout     time.Duration `yaml:"timeout"`
		Concurrency int           `yaml:"concurrency"`
		RPS         float64       `yaml:"rps"`
		Burst       int           `yaml:"burst"`
	} `yaml:"quote"`
	Schedule struct {
		RefreshCrons  []string `yaml:"refresh_crons"`
		AutoCloseCron string   `yaml:"auto_close_cron"`
	} `yaml:"schedule"`
	Strategy struct {
		StopProfitPct  float64 `yaml:"stop_profit_pct"`
		StopLossPct    float64 `yaml:"stop_loss_pct"`
		MaxHoldingDays int     `yaml:"max_holding_days"`
		AutoClose      *bool   `yaml:"auto_close"`
		StateFile      string  `yaml:"state_file"`
	} `yaml:"strategy"`
	Telegram struct {
		BotToken string `yaml:"bot_token"`
		ChatID   string `yaml:"chat_id"`
	} `yaml:"telegram"`
	Log struct {
		Level  string `yaml:"level"`
		Pretty bool   `yaml:"pretty"`
	} `yaml:"log"`
	Timezone string `yaml:"timezone"`
	Proxy    string `yaml:"proxy"`
}

// Quote sources.
const (
	SourceYahoo = "yahoo"
	SourceREST  = "rest"
	SourceMock  = "mock"
)

// Path resolves the config file location. An explicit flag value wins over
// CONFIG_PATH.
func Path(flag string) string {
	if flag != "" {
		return flag
	}
	if v := os.Getenv("CONFIG_PATH"); v != "" {
		return v
	}
	return DefaultPath
}

// Load reads config from a YAML file, then applies environment variable
// overrides and defaults. A missing file is not an error.
func Load(path string) (*Config, error) {
	cfg := &Config{}

	data, err := os.ReadFile(path)
	if err != nil && !os.IsNotExist(err) {
		return nil, fmt.Errorf("read config: %w", err)
	}
	if len(data) > 0 {
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse config: %w", err)
		}
	}

	cfg.applyEnv()
	cfg.applyDefaults()
	return cfg, nil
}

func (c *Config) applyEnv() {
	for env, dst := range map[string]*string{
		"SQLITE_PATH":        &c.Database.SQLitePath,
		"HTTP_ADDR":          &c.HTTP.Addr,
		"TELEGRAM_BOT_TOKEN": &c.Telegram.BotToken,
		"TELEGRAM_CHAT_ID":   &c.Telegram.ChatID,
		"QUOTE_SOURCE":       &c.Quote.Source,
		"QUOTE_BASE_URL":     &c.Quote.BaseURL,
		"QUOTE_API_KEY":      &c.Quote.APIKey,
		"HTTPS_PROXY":        &c.Proxy,
		"LEDGER_TIMEZONE":    &c.Timezone,
		"LOG_LEVEL":          &c.Log.Level,
	} {
		if v := os.Getenv(env); v != "" {
			*dst = v
		}
	}
}

func (c *Config) applyDefaults() {
	if c.Database.SQLitePath == "" {
		c.Database.SQLitePath = "data/pickledger.db"
	}
	if c.HTTP.Addr == "" {
		c.HTTP.Addr = ":8080"
	}
	if c.Quote.Source == "" {
		c.Quote.Source = SourceYahoo
		if c.Quote.BaseURL != "" {
			c.Quote.Source = SourceREST
		}
	}
	if c.Quote.Timeout == 0 {
		c.Quote.Timeout = 10 * time.Second
	}
	if c.Quote.Concurrency == 0 {
		c.Quote.Concurrency = 4
	}
	if c.Quote.RPS == 0 {
		c.Quote.RPS = 5
	}
	if c.Quote.Burst == 0 {
		c.Quote.Burst = 5
	}
	if len(c.Schedule.RefreshCrons) == 0 {
		// A-share sessions, Asia/Shanghai.
		c.Schedule.RefreshCrons = []string{"0 35 9 * * 1-5", "0 0 11 * * 1-5", "0 5 13 * * 1-5", "0 5 15 * * 1-5"}
	}
	if c.Strategy.StopProfitPct == 0 {
		c.Strategy.StopProfitPct = 15
	}
	if c.Strategy.StopLossPct == 0 {
		c.Strategy.StopLossPct = -8
	}
	if c.Strategy.MaxHoldingDays == 0 {
		c.Strategy.MaxHoldingDays = 30
	}
	if c.Strategy.AutoClose == nil {
		on := true
		c.Strategy.AutoClose = &on
	}
	if c.Strategy.StateFile == "" {
		c.Strategy.StateFile = "data/stop_config.json"
	}
	if c.Log.Level == "" {
		c.Log.Level = "info"
	}
	if c.Timezone == "" {
		c.Timezone = "Asia/Shanghai"
	}
}

// Validate checks that all fields are usable.
func (c *Config) Validate() error {
	switch c.Quote.Source {
	case SourceYahoo, SourceMock:
	case SourceREST:
		if c.Quote.BaseURL == "" {
			return fmt.Errorf("quote.base_url is required for the rest source")
		}
	default:
		return fmt.Errorf("quote.source %q is not one of yahoo, rest, mock", c.Quote.Source)
	}
	if c.Quote.Timeout < 0 {
		return fmt.Errorf("quote.timeout must not be negative")
	}
	if c.Quote.Concurrency < 1 {
		return fmt.Errorf("quote.concurrency must be positive")
	}
	if c.Quote.RPS < 0 || c.Quote.Burst < 1 {
		return fmt.Errorf("quote.rps must not be negative and quote.burst must be positive")
	}
	if c.Strategy.StopProfitPct <= 0 {
		return fmt.Errorf("strategy.stop_profit_pct must be positive")
	}
	if c.Strategy.StopLossPct >= 0 {
		return fmt.Errorf("strategy.stop_loss_pct must be negative")
	}
	if c.Strategy.MaxHoldingDays <= 0 {
		return fmt.Errorf("strategy.max_holding_days must be positive")
	}
	if (c.Telegram.BotToken == "") != (c.Telegram.ChatID == "") {
		return fmt.Errorf("telegram.bot_token and telegram.chat_id must be set together")
	}
	if _, err := zerolog.ParseLevel(strings.ToLower(c.Log.Level)); err != nil {
		return fmt.Errorf("log.level: %w", err)
	}
	if _, err := time.LoadLocation(c.Timezone); err != nil {
		return fmt.Errorf("timezone: %w", err)
	}
	return nil
}

// Location returns the configured day-bucketing time zone.
func (c *Config) Location() (*time.Location, error) {
	return time.LoadLocation(c.Timezone)
}

// TelegramEnabled reports whether notifications are configured.
func (c *Config) TelegramEnabled() bool {
	return c.Telegram.BotToken != "" && c.Telegram.ChatID != ""
}
