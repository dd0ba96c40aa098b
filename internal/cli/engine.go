package cli

import (
	"context"
	"fmt"

	"github.com/Bing4Ever/quant-trading-sub001/internal/broker"
	"github.com/Bing4Ever/quant-trading-sub001/internal/config"
	"github.com/Bing4Ever/quant-trading-sub001/internal/metrics"
	"github.com/Bing4Ever/quant-trading-sub001/internal/models"
	"github.com/Bing4Ever/quant-trading-sub001/internal/risk"
	"github.com/Bing4Ever/quant-trading-sub001/internal/store"
	"github.com/Bing4Ever/quant-trading-sub001/internal/trading"
)

// session is a connected broker with an engine built on it.
type session struct {
	cfg     *config.Config
	broker  broker.Broker
	engine  *trading.Engine
	journal store.Journal
	metrics *metrics.Recorder
}

// Close disconnects the broker and closes the journal.
func (s *session) Close(ctx context.Context) error {
	var firstErr error
	if s.broker != nil {
		if err := s.broker.Disconnect(ctx); err != nil {
			firstErr = err
		}
	}
	if s.journal != nil {
		if err := s.journal.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

func riskLimits(cfg *config.Config) risk.Limits {
	return risk.Limits{
		MaxPositionSize:    cfg.Risk.MaxPositionSize,
		MaxTotalExposure:   cfg.Risk.MaxTotalExposure,
		MaxSingleTradeSize: cfg.Risk.MaxSingleTradeSize,
		MaxDailyLoss:       cfg.Risk.MaxDailyLoss,
		MaxDrawdown:        cfg.Risk.MaxDrawdown,
		MinCashReserve:     cfg.Risk.MinCashReserve,
	}
}

// openJournal builds the configured sinks. Sinks that fail to open are
// logged and skipped.
func (a *App) openJournal(cfg *config.Config) store.Journal {
	var journals []store.Journal

	if cfg.Store.Enabled && cfg.Store.Path != "" {
		j, err := store.NewSQLiteJournal(cfg.Store.Path)
		if err != nil {
			a.Logger.Warn().Err(err).Str("path", cfg.Store.Path).Msg("Journal unavailable")
		} else {
			journals = append(journals, j)
		}
	}

	if cfg.Kafka.Enabled {
		p, err := store.NewKafkaPublisher(store.KafkaConfig{Brokers: cfg.Kafka.Brokers, Topic: cfg.Kafka.Topic})
		if err != nil {
			a.Logger.Warn().Err(err).Msg("Kafka publisher unavailable")
		} else {
			journals = append(journals, p)
		}
	}

	return store.NewFanout(journals...)
}

// openSession creates and connects the configured broker, then builds an
// engine on it. Callers must Close the session.
func (a *App) openSession(ctx context.Context, brokerName string, rec *metrics.Recorder) (*session, error) {
	cfg, err := a.config()
	if err != nil {
		return nil, err
	}
	if brokerName == "" {
		brokerName = cfg.Trading.Broker
	}

	b, err := a.Factory.Create(brokerName, cfg, a.Logger)
	if err != nil {
		return nil, err
	}
	if err := b.Connect(ctx); err != nil {
		return nil, fmt.Errorf("connecting %s: %w", b.Name(), err)
	}
	if !cfg.IsPaperMode() {
		a.Logger.Warn().Str("broker", b.Name()).Msg("Live mode: orders are routed to the broker")
	}

	s := &session{cfg: cfg, broker: b, metrics: rec, journal: a.openJournal(cfg)}

	s.engine, err = trading.NewEngine(ctx, trading.EngineConfig{
		Broker:          b,
		Limits:          riskLimits(cfg),
		DefaultQuantity: cfg.Trading.DefaultQuantity,
		OrderType:       models.ParseOrderType(cfg.Trading.OrderType),
		MinConfidence:   cfg.Trading.MinConfidence,
		Journal:         s.journal,
		Metrics:         rec,
		Logger:          a.Logger,
	})
	if err != nil {
		s.Close(ctx)
		return nil, err
	}
	return s, nil
}
