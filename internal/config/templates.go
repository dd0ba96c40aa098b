package config

import (
	"fmt"
	"os"
	"path/filepath"
)

const configTemplate = `# Quant Trader Configuration

[trading]
# Trading mode: "simulation", "paper" or "live"
mode = "paper"
# Broker backend: paper, zerodha, finnhub
broker = "paper"
# Starting capital for the paper broker
initial_capital = 100000.0
# Commission charged per trade as a fraction of trade value
commission_rate = 0.001
# Reconciliation cadence
poll_interval = "30s"
# Symbols the runtime asks the advisor about
symbols = []
strategy = "manual"
default_quantity = 100
# market, limit, stop, stop_limit
order_type = "market"
# Signals below this confidence are dropped
min_confidence = 0.0
# Exchange prefix for Zerodha instruments
exchange = "NSE"

# Seed quotes for the paper broker
[trading.prices]
# AAPL = 150.0

[risk]
# All limits are fractions of equity
max_position_size = 0.10
max_total_exposure = 0.80
max_single_trade_size = 0.05
max_daily_loss = 0.02
max_drawdown = 0.10
min_cash_reserve = 0.10

[finnhub]
websocket_url = "wss://ws.finnhub.io"
ping_interval = "20s"

[breaker]
# Fail fast after repeated transport errors from a live broker
enabled = true
failure_threshold = 5
cooldown = "30s"

[openai]
# Ask the model for signals on each poll
enabled = false
model = "gpt-4o-mini"

[store]
# SQLite journal of executions and reconciliations
enabled = true
# path = "~/.config/quant-trader/journal.db"

[kafka]
enabled = false
brokers = ["localhost:9092"]
topic = "trader.orders"

[metrics]
enabled = false
addr = ":9108"

[log]
level = "info"
console = true
file = true
max_size = 100
max_backups = 7
max_age = 30
`

const credentialsTemplate = `# API Credentials
# Environment variables take precedence over values in this file.

[zerodha]
api_key = ""
api_secret = ""
access_token = ""

[finnhub]
api_key = ""

[openai]
api_key = ""
`

// writeTemplate writes a template file for a missing config file.
// Credentials are written with owner-only permissions.
func writeTemplate(configDir, name, template string) error {
	if err := os.MkdirAll(configDir, 0755); err != nil {
		return fmt.Errorf("creating config directory: %w", err)
	}

	perm := os.FileMode(0644)
	if name == "credentials" {
		perm = 0600
	}

	path := filepath.Join(configDir, name+".toml")
	if err := os.WriteFile(path, []byte(template), perm); err != nil {
		return fmt.Errorf("writing %s template: %w", name, err)
	}

	return nil
}

// TemplatePath returns where the main config file lives in configDir.
func TemplatePath(configDir string) string {
	if configDir == "" {
		configDir = DefaultConfigDir()
	}
	return filepath.Join(configDir, "config.toml")
}
