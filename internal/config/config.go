// Package config provides configuration management for the trading application.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/creasty/defaults"
	"github.com/go-playground/validator/v10"
	"github.com/spf13/viper"

	"github.com/Bing4Ever/quant-trading-sub001/internal/logging"
	"github.com/Bing4Ever/quant-trading-sub001/internal/models"
)

// Config holds all application configuration.
type Config struct {
	Trading     TradingConfig     `mapstructure:"trading"`
	Risk        RiskConfig        `mapstructure:"risk"`
	Finnhub     FinnhubConfig     `mapstructure:"finnhub"`
	Breaker     BreakerConfig     `mapstructure:"breaker"`
	OpenAI      OpenAIConfig      `mapstructure:"openai"`
	Store       StoreConfig       `mapstructure:"store"`
	Kafka       KafkaConfig       `mapstructure:"kafka"`
	Metrics     MetricsConfig     `mapstructure:"metrics"`
	Log         logging.LogConfig `mapstructure:"log"`
	Credentials Credentials       `mapstructure:"-"` // Loaded separately
}

// TradingConfig holds trading-related configuration. Capital and commission
// are fixed for the life of the process.
type TradingConfig struct {
	Mode            string             `mapstructure:"mode" default:"paper" validate:"oneof=simulation paper live"`
	Broker          string             `mapstructure:"broker" default:"paper" validate:"required"`
	InitialCapital  float64            `mapstructure:"initial_capital" default:"100000" validate:"gt=0"`
	CommissionRate  float64            `mapstructure:"commission_rate" default:"0.001" validate:"gte=0,lt=1"`
	PollInterval    time.Duration      `mapstructure:"poll_interval" default:"30s" validate:"gt=0"`
	Symbols         []string           `mapstructure:"symbols"`
	Strategy        string             `mapstructure:"strategy" default:"manual"`
	DefaultQuantity int                `mapstructure:"default_quantity" default:"100" validate:"gt=0"`
	OrderType       string             `mapstructure:"order_type" default:"market" validate:"oneof=market limit stop stop_limit"`
	MinConfidence   float64            `mapstructure:"min_confidence" default:"0" validate:"gte=0,lte=1"`
	Exchange        string             `mapstructure:"exchange" default:"NSE"`
	Prices          map[string]float64 `mapstructure:"prices"` // seed quotes for the paper broker
}

// RiskConfig holds the six fractional risk thresholds.
type RiskConfig struct {
	MaxPositionSize    float64 `mapstructure:"max_position_size" default:"0.10" validate:"gte=0,lte=1"`
	MaxTotalExposure   float64 `mapstructure:"max_total_exposure" default:"0.80" validate:"gte=0,lte=1"`
	MaxSingleTradeSize float64 `mapstructure:"max_single_trade_size" default:"0.05" validate:"gte=0,lte=1"`
	MaxDailyLoss       float64 `mapstructure:"max_daily_loss" default:"0.02" validate:"gte=0,lte=1"`
	MaxDrawdown        float64 `mapstructure:"max_drawdown" default:"0.10" validate:"gte=0,lte=1"`
	MinCashReserve     float64 `mapstructure:"min_cash_reserve" default:"0.10" validate:"gte=0,lte=1"`
}

// FinnhubConfig holds the market-data feed settings.
type FinnhubConfig struct {
	WebsocketURL string        `mapstructure:"websocket_url" default:"wss://ws.finnhub.io"`
	PingInterval time.Duration `mapstructure:"ping_interval" default:"20s"`
}

// BreakerConfig holds the circuit breaker settings for live brokers.
type BreakerConfig struct {
	Enabled          bool          `mapstructure:"enabled" default:"true"`
	FailureThreshold int           `mapstructure:"failure_threshold" default:"5" validate:"gt=0"`
	Cooldown         time.Duration `mapstructure:"cooldown" default:"30s" validate:"gt=0"`
}

// OpenAIConfig holds the signal advisor settings.
type OpenAIConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	Model   string `mapstructure:"model" default:"gpt-4o-mini"`
}

// StoreConfig holds journal persistence settings.
type StoreConfig struct {
	Enabled bool   `mapstructure:"enabled" default:"true"`
	Path    string `mapstructure:"path"`
}

// KafkaConfig holds the optional event publisher settings.
type KafkaConfig struct {
	Enabled bool     `mapstructure:"enabled"`
	Brokers []string `mapstructure:"brokers" validate:"required_if=Enabled true"`
	Topic   string   `mapstructure:"topic" default:"trader.orders"`
}

// MetricsConfig holds the Prometheus endpoint settings.
type MetricsConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	Addr    string `mapstructure:"addr" default:":9108"`
}

// Credentials holds API credentials.
type Credentials struct {
	Zerodha ZerodhaCredentials `mapstructure:"zerodha"`
	Finnhub FinnhubCredentials `mapstructure:"finnhub"`
	OpenAI  OpenAICredentials  `mapstructure:"openai"`
}

// ZerodhaCredentials holds Zerodha API credentials.
type ZerodhaCredentials struct {
	APIKey      string `mapstructure:"api_key"`
	APISecret   string `mapstructure:"api_secret"`
	AccessToken string `mapstructure:"access_token"`
}

// FinnhubCredentials holds Finnhub API credentials.
type FinnhubCredentials struct {
	APIKey string `mapstructure:"api_key"`
}

// OpenAICredentials holds OpenAI API credentials.
type OpenAICredentials struct {
	APIKey string `mapstructure:"api_key"`
}

// DefaultConfigDir returns the default configuration directory.
func DefaultConfigDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ".config/quant-trader"
	}
	return filepath.Join(home, ".config", "quant-trader")
}

// Default returns a configuration populated from struct defaults only.
func Default() (*Config, error) {
	cfg := &Config{}
	if err := defaults.Set(cfg); err != nil {
		return nil, fmt.Errorf("applying defaults: %w", err)
	}
	if cfg.Store.Path == "" {
		cfg.Store.Path = filepath.Join(DefaultConfigDir(), "journal.db")
	}
	if cfg.Log.FilePath == "" {
		cfg.Log.FilePath = logging.DefaultLogPath()
	}
	return cfg, nil
}

// Load loads configuration from the specified directory.
// If configDir is empty, uses the default config directory. Missing files
// are replaced by templates and the defaults are used.
func Load(configDir string) (*Config, error) {
	if configDir == "" {
		configDir = DefaultConfigDir()
	}

	cfg, err := Default()
	if err != nil {
		return nil, err
	}

	if err := loadConfigFile(configDir, "config", configTemplate, cfg); err != nil {
		return nil, fmt.Errorf("loading config.toml: %w", err)
	}

	if err := loadConfigFile(configDir, "credentials", credentialsTemplate, &cfg.Credentials); err != nil {
		return nil, fmt.Errorf("loading credentials.toml: %w", err)
	}

	applyEnvOverrides(cfg)
	cfg.Trading.Prices = upperKeys(cfg.Trading.Prices)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	return cfg, nil
}

func loadConfigFile(configDir, name, template string, target interface{}) error {
	v := viper.New()
	v.SetConfigName(name)
	v.SetConfigType("toml")
	v.AddConfigPath(configDir)

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if errors.As(err, &notFound) {
			return writeTemplate(configDir, name, template)
		}
		return err
	}

	return v.Unmarshal(target)
}

func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("TRADER_MODE"); v != "" {
		cfg.Trading.Mode = v
	}
	if v := os.Getenv("TRADER_BROKER"); v != "" {
		cfg.Trading.Broker = v
	}
	if v := os.Getenv("TRADER_SYMBOLS"); v != "" {
		cfg.Trading.Symbols = strings.Split(v, ",")
	}

	if v := os.Getenv("ZERODHA_API_KEY"); v != "" {
		cfg.Credentials.Zerodha.APIKey = v
	}
	if v := os.Getenv("ZERODHA_API_SECRET"); v != "" {
		cfg.Credentials.Zerodha.APISecret = v
	}
	if v := os.Getenv("ZERODHA_ACCESS_TOKEN"); v != "" {
		cfg.Credentials.Zerodha.AccessToken = v
	}
	if v := os.Getenv("FINNHUB_API_KEY"); v != "" {
		cfg.Credentials.Finnhub.APIKey = v
	}
	if v := os.Getenv("OPENAI_API_KEY"); v != "" {
		cfg.Credentials.OpenAI.APIKey = v
	}
}

// upperKeys restores ticker case; viper lowercases map keys.
func upperKeys(prices map[string]float64) map[string]float64 {
	if len(prices) == 0 {
		return prices
	}
	out := make(map[string]float64, len(prices))
	for symbol, price := range prices {
		out[strings.ToUpper(symbol)] = price
	}
	return out
}

var validate = validator.New()

// Validate validates the configuration.
func (c *Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		return err
	}

	if models.TradingMode(c.Trading.Mode) == models.ModeLive && c.Trading.Broker == "paper" {
		return fmt.Errorf("live mode cannot use the paper broker")
	}
	if c.OpenAI.Enabled && c.Credentials.OpenAI.APIKey == "" {
		return fmt.Errorf("openai advisor enabled without an api key")
	}

	return nil
}

// IsPaperMode returns true if orders are matched in memory.
func (c *Config) IsPaperMode() bool {
	return models.TradingMode(c.Trading.Mode) != models.ModeLive
}
