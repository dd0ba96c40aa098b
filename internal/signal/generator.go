// Package signal turns raw strategy output into normalized trading signals.
package signal

import (
	"sort"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/Bing4Ever/quant-trading-sub001/internal/logging"
	"github.com/Bing4Ever/quant-trading-sub001/internal/models"
)

// Generator converts raw strategy records into TradingSignals and keeps an
// append-only history of what it produced.
type Generator struct {
	history []models.TradingSignal
	now     func() time.Time
	logger  zerolog.Logger
	mu      sync.RWMutex
}

// NewGenerator creates a new signal generator.
func NewGenerator(logger zerolog.Logger) *Generator {
	return &Generator{
		now:    time.Now,
		logger: logging.WithComponent(logger, "signal"),
	}
}

// Generate maps a raw record onto a signal. Signal > 0 buys, < 0 sells and 0
// produces nothing. The limit price is only taken from TargetPrice for limit
// orders; a limit order without a target carries no price.
func (g *Generator) Generate(symbol, strategy string, raw models.RawSignal, quantity int, orderType models.OrderType) (models.TradingSignal, bool) {
	var action models.OrderSide
	switch {
	case raw.Signal > 0:
		action = models.OrderSideBuy
	case raw.Signal < 0:
		action = models.OrderSideSell
	default:
		return models.TradingSignal{}, false
	}

	var price *float64
	if orderType == models.OrderTypeLimit && raw.TargetPrice != nil {
		price = models.Float(*raw.TargetPrice)
	}

	sig := models.TradingSignal{
		Symbol:     symbol,
		Strategy:   strategy,
		Action:     action,
		Quantity:   quantity,
		Price:      price,
		OrderType:  orderType,
		Confidence: raw.Confidence,
		Reason:     raw.Reason,
		Timestamp:  g.now(),
	}

	g.mu.Lock()
	g.history = append(g.history, sig)
	g.mu.Unlock()

	logging.LogSignal(g.logger, symbol, strategy, string(action), quantity, raw.Confidence)
	return sig, true
}

// GenerateBatch generates signals for each symbol and each strategy result
// recorded for it. Symbols are visited in order, strategies by name.
func (g *Generator) GenerateBatch(symbols []string, results map[string]map[string]models.RawSignal, quantity int, orderType models.OrderType) []models.TradingSignal {
	var signals []models.TradingSignal
	for _, symbol := range symbols {
		byStrategy, ok := results[symbol]
		if !ok {
			continue
		}

		strategies := make([]string, 0, len(byStrategy))
		for name := range byStrategy {
			strategies = append(strategies, name)
		}
		sort.Strings(strategies)

		for _, name := range strategies {
			if sig, ok := g.Generate(symbol, name, byStrategy[name], quantity, orderType); ok {
				signals = append(signals, sig)
			}
		}
	}

	g.logger.Debug().Int("count", len(signals)).Msg("Batch signals generated")
	return signals
}

// Filter keeps signals with confidence >= minConfidence, sorted by
// confidence descending. maxSignals <= 0 means no cap.
func Filter(signals []models.TradingSignal, minConfidence float64, maxSignals int) []models.TradingSignal {
	filtered := make([]models.TradingSignal, 0, len(signals))
	for _, s := range signals {
		if s.Confidence >= minConfidence {
			filtered = append(filtered, s)
		}
	}

	sort.SliceStable(filtered, func(i, j int) bool {
		return filtered[i].Confidence > filtered[j].Confidence
	})

	if maxSignals > 0 && len(filtered) > maxSignals {
		filtered = filtered[:maxSignals]
	}
	return filtered
}

// Recent returns up to limit of the most recent signals, oldest first.
func (g *Generator) Recent(limit int) []models.TradingSignal {
	g.mu.RLock()
	defer g.mu.RUnlock()

	start := 0
	if limit >= 0 && len(g.history) > limit {
		start = len(g.history) - limit
	}
	out := make([]models.TradingSignal, len(g.history)-start)
	copy(out, g.history[start:])
	return out
}

// ClearHistory drops all recorded signals.
func (g *Generator) ClearHistory() {
	g.mu.Lock()
	g.history = nil
	g.mu.Unlock()
	g.logger.Info().Msg("Signal history cleared")
}

// SideCounts counts signals per action.
type SideCounts struct {
	Buy  int `json:"buy"`
	Sell int `json:"sell"`
}

func (c *SideCounts) add(action models.OrderSide) {
	if action == models.OrderSideBuy {
		c.Buy++
	} else {
		c.Sell++
	}
}

// Statistics aggregates the signal history.
type Statistics struct {
	Total      int                   `json:"total_signals"`
	Buy        int                   `json:"buy_signals"`
	Sell       int                   `json:"sell_signals"`
	Strategies map[string]SideCounts `json:"strategies"`
	Symbols    map[string]SideCounts `json:"symbols"`
}

// Statistics returns counts by action, strategy and symbol.
func (g *Generator) Statistics() Statistics {
	g.mu.RLock()
	defer g.mu.RUnlock()

	stats := Statistics{
		Total:      len(g.history),
		Strategies: make(map[string]SideCounts),
		Symbols:    make(map[string]SideCounts),
	}

	for _, s := range g.history {
		if s.Action == models.OrderSideBuy {
			stats.Buy++
		} else {
			stats.Sell++
		}

		byStrategy := stats.Strategies[s.Strategy]
		byStrategy.add(s.Action)
		stats.Strategies[s.Strategy] = byStrategy

		bySymbol := stats.Symbols[s.Symbol]
		bySymbol.add(s.Action)
		stats.Symbols[s.Symbol] = bySymbol
	}

	return stats
}
