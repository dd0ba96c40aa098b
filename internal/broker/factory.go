package broker

import (
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/rs/zerolog"

	"github.com/Bing4Ever/quant-trading-sub001/internal/config"
	"github.com/Bing4Ever/quant-trading-sub001/internal/errors"
	"github.com/Bing4Ever/quant-trading-sub001/internal/resilience"
)

// Builder constructs a broker from application configuration.
type Builder func(cfg *config.Config, logger zerolog.Logger) (Broker, error)

// Factory is a registry of broker builders keyed by identifier.
type Factory struct {
	builders    map[string]Builder
	defaultName string
	mu          sync.RWMutex
}

// NewFactory creates an empty factory.
func NewFactory() *Factory {
	return &Factory{builders: make(map[string]Builder)}
}

// NewDefaultFactory creates a factory with the paper, zerodha and finnhub
// backends registered. Paper is the default.
func NewDefaultFactory() *Factory {
	f := NewFactory()
	f.Register("paper", buildPaper, true)
	f.Register("zerodha", buildZerodha, false)
	f.Register("finnhub", buildFinnhub, false)
	return f
}

// Register adds or replaces a builder. The first registration, or any with
// isDefault set, becomes the default.
func (f *Factory) Register(name string, builder Builder, isDefault bool) {
	f.mu.Lock()
	defer f.mu.Unlock()

	name = strings.ToLower(name)
	f.builders[name] = builder
	if isDefault || f.defaultName == "" {
		f.defaultName = name
	}
}

// Create builds the named broker. An empty name selects the default.
func (f *Factory) Create(name string, cfg *config.Config, logger zerolog.Logger) (Broker, error) {
	f.mu.RLock()
	if name == "" {
		name = f.defaultName
	}
	builder, ok := f.builders[strings.ToLower(name)]
	f.mu.RUnlock()

	if !ok {
		return nil, fmt.Errorf("%w: %q (registered: %s)", errors.ErrUnknownBroker, name, strings.Join(f.Registered(), ", "))
	}
	return builder(cfg, logger)
}

// Registered returns the registered identifiers, sorted.
func (f *Factory) Registered() []string {
	f.mu.RLock()
	defer f.mu.RUnlock()

	names := make([]string, 0, len(f.builders))
	for name := range f.builders {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Default returns the default identifier.
func (f *Factory) Default() string {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return f.defaultName
}

func buildPaper(cfg *config.Config, logger zerolog.Logger) (Broker, error) {
	paperCfg := PaperBrokerConfig{
		InitialCapital: cfg.Trading.InitialCapital,
		CommissionRate: cfg.Trading.CommissionRate,
		Logger:         logger,
	}
	// Live quotes from Finnhub when a key is present, seed table otherwise.
	if cfg.Credentials.Finnhub.APIKey != "" {
		paperCfg.Feed = newFinnhubFromConfig(cfg, logger)
	} else if len(cfg.Trading.Prices) > 0 {
		paperCfg.Prices = StaticPrices(cfg.Trading.Prices)
	}
	return NewPaperBroker(paperCfg), nil
}

func buildZerodha(cfg *config.Config, logger zerolog.Logger) (Broker, error) {
	creds := cfg.Credentials.Zerodha
	if creds.APIKey == "" {
		return nil, fmt.Errorf("%w: zerodha api_key is required", errors.ErrConfigInvalid)
	}
	var b Broker = NewZerodhaBroker(ZerodhaConfig{
		APIKey:      creds.APIKey,
		AccessToken: creds.AccessToken,
		Exchange:    cfg.Trading.Exchange,
		Logger:      logger,
	})
	if cfg.Breaker.Enabled {
		b = NewGuardedBroker(b, resilience.CircuitBreakerConfig{
			FailureThreshold: cfg.Breaker.FailureThreshold,
			SuccessThreshold: 1,
			Cooldown:         cfg.Breaker.Cooldown,
		})
	}
	return b, nil
}

func buildFinnhub(cfg *config.Config, logger zerolog.Logger) (Broker, error) {
	if cfg.Credentials.Finnhub.APIKey == "" {
		return nil, fmt.Errorf("%w: finnhub api_key is required", errors.ErrConfigInvalid)
	}
	return newFinnhubFromConfig(cfg, logger), nil
}

func newFinnhubFromConfig(cfg *config.Config, logger zerolog.Logger) *FinnhubFeed {
	return NewFinnhubFeed(FinnhubConfig{
		APIKey:       cfg.Credentials.Finnhub.APIKey,
		WebsocketURL: cfg.Finnhub.WebsocketURL,
		Symbols:      cfg.Trading.Symbols,
		PingInterval: cfg.Finnhub.PingInterval,
		Logger:       logger,
	})
}
