package cli

import (
	"context"
	"fmt"
	"net/http"
	"os"
	ossignal "os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/Bing4Ever/quant-trading-sub001/internal/broker"
	"github.com/Bing4Ever/quant-trading-sub001/internal/execution"
	"github.com/Bing4Ever/quant-trading-sub001/internal/metrics"
	"github.com/Bing4Ever/quant-trading-sub001/internal/models"
	"github.com/Bing4Ever/quant-trading-sub001/internal/signal"
	"github.com/Bing4Ever/quant-trading-sub001/internal/trading"
)

func newSignalCmd(app *App) *cobra.Command {
	var (
		brokerName string
		strategy   string
		quantity   int
		orderType  string
		price      float64
		confidence float64
		reason     string
	)

	cmd := &cobra.Command{
		Use:   "signal <symbol> <buy|sell>",
		Short: "Process one realtime signal and reconcile it",
		Long: `Runs one signal through risk validation and execution on a fresh engine,
then reconciles pending orders once and prints both results.`,
		Args: cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			output := NewOutput(cmd)

			s, err := app.openSession(ctx, brokerName, nil)
			if err != nil {
				return err
			}
			defer s.Close(ctx)

			req := trading.RealtimeRequest{
				Symbol:     strings.ToUpper(args[0]),
				Strategy:   strategy,
				Action:     args[1],
				Confidence: confidence,
				Reason:     reason,
				Quantity:   quantity,
				OrderType:  models.OrderType(orderType),
			}
			if price > 0 {
				req.TargetPrice = models.Float(price)
			}

			result := s.engine.ProcessRealtimeSignal(ctx, req)
			updates := s.engine.ReconcileOrders(ctx)

			if output.IsJSON() {
				if err := output.JSON(map[string]interface{}{"result": result, "updates": updates}); err != nil {
					return err
				}
			} else {
				printResult(output, result)
				printUpdates(output, updates)
			}

			if result.Failure == execution.FailureUnsupported {
				return result.Err
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&brokerName, "broker", "", "broker backend (default from config)")
	cmd.Flags().StringVar(&strategy, "strategy", "manual", "strategy name recorded on the order")
	cmd.Flags().IntVarP(&quantity, "quantity", "q", 0, "order quantity (default from config)")
	cmd.Flags().StringVarP(&orderType, "type", "t", "", "order type: market, limit, stop, stop_limit")
	cmd.Flags().Float64VarP(&price, "price", "p", 0, "limit price")
	cmd.Flags().Float64Var(&confidence, "confidence", 1, "signal confidence (0-1)")
	cmd.Flags().StringVar(&reason, "reason", "", "free-text reason")

	return cmd
}

func printResult(output *Output, r trading.RealtimeResult) {
	output.Bold("Signal %s %s", strings.ToUpper(r.Action), r.Symbol)
	output.Printf("  Status:   %s\n", output.Status(string(r.Status)))
	if r.OrderID != "" {
		output.Printf("  Order ID: %s\n", r.OrderID)
	}
	if r.Risk != nil {
		output.Printf("  Risk:     %s\n", r.Risk.Reason)
	}
	if r.Failure != "" {
		output.Printf("  Failure:  %s\n", r.Failure)
	}
	if r.Reason != "" && r.Status != trading.StatusRejected {
		output.Printf("  Reason:   %s\n", r.Reason)
	}
}

func printUpdates(output *Output, updates []trading.OrderUpdate) {
	if len(updates) == 0 {
		return
	}
	output.Println()
	table := NewTable(output, "ORDER", "SYMBOL", "SIDE", "STATUS", "QTY", "PRICE", "EQUITY", "CASH")
	for _, u := range updates {
		equity, cash := "-", "-"
		if u.RiskSnapshot != nil {
			equity = FormatMoney(u.RiskSnapshot.Equity)
			cash = FormatMoney(u.RiskSnapshot.Cash)
		}
		table.AddRow(
			u.OrderID,
			u.Order.Symbol,
			string(u.Order.Side),
			output.Status(string(u.Status)),
			fmt.Sprintf("%d", u.Order.FilledQty),
			FormatPrice(u.Order.FilledPrice),
			equity,
			cash,
		)
	}
	table.Render()
}

func newRiskCmd(app *App) *cobra.Command {
	var brokerName string

	cmd := &cobra.Command{
		Use:   "risk",
		Short: "Show the risk snapshot and position suggestions",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			output := NewOutput(cmd)

			s, err := app.openSession(ctx, brokerName, nil)
			if err != nil {
				return err
			}
			defer s.Close(ctx)

			m, err := s.engine.Risk().Metrics(ctx)
			if err != nil {
				return err
			}
			suggestions, err := s.engine.Risk().PositionSuggestions(ctx)
			if err != nil {
				return err
			}
			account, err := broker.Account(ctx, s.broker, s.cfg.Trading.InitialCapital)
			if err != nil {
				return err
			}

			if output.IsJSON() {
				return output.JSON(map[string]interface{}{"account": account, "metrics": m, "suggestions": suggestions})
			}

			output.Bold("Risk Snapshot (%s)", account.ID)
			output.Printf("  Equity:         %s (%s since start)\n", FormatMoney(m.Equity), output.PnL(m.Equity-account.InitialCapital))
			output.Printf("  Cash:           %s (%s)\n", FormatMoney(m.Cash), FormatRatio(m.CashRatio))
			output.Printf("  Exposure:       %s / %s\n", FormatRatio(m.TotalExposure), FormatRatio(m.Limits.MaxTotalExposure))
			output.Printf("  Drawdown:       %s / %s\n", FormatRatio(m.CurrentDrawdown), FormatRatio(m.Limits.MaxDrawdown))
			output.Printf("  Daily P&L:      %s\n", output.PnL(m.DailyPnL))
			if m.LargestPositionSymbol != "" {
				output.Printf("  Largest:        %s %s\n", m.LargestPositionSymbol, FormatRatio(m.LargestPositionRatio))
			}

			for _, r := range suggestions.Reduce {
				output.Warning("Reduce %s by %d shares to %s", r.Symbol, r.ReduceQuantity, FormatRatio(r.TargetRatio))
			}
			for _, inc := range suggestions.CanIncrease {
				output.Info("%s can grow by %s", inc.Symbol, FormatRatio(inc.AvailableRatio))
			}
			for _, w := range suggestions.Warnings {
				output.Warning("%s", w.Message)
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&brokerName, "broker", "", "broker backend (default from config)")
	return cmd
}

func newRunCmd(app *App) *cobra.Command {
	var (
		brokerName string
		once       bool
	)

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run the polling runtime",
		Long: `Connects the configured broker and, every poll interval, asks the advisor
(when enabled) for signals, reconciles pending orders and updates peak
equity. Stops on SIGINT or SIGTERM.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := ossignal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			cfg, err := app.config()
			if err != nil {
				return err
			}

			var rec *metrics.Recorder
			if cfg.Metrics.Enabled {
				rec = metrics.New()
				srv := serveMetrics(app, cfg.Metrics.Addr, rec)
				defer func() {
					shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
					defer cancel()
					srv.Shutdown(shutdownCtx)
				}()
			}

			s, err := app.openSession(ctx, brokerName, rec)
			if err != nil {
				return err
			}
			defer s.Close(context.Background())

			var advisor trading.Advisor
			if cfg.OpenAI.Enabled {
				advisor = signal.NewAdvisor(signal.AdvisorConfig{
					APIKey: cfg.Credentials.OpenAI.APIKey,
					Model:  cfg.OpenAI.Model,
					Logger: app.Logger,
				})
			}

			rt := trading.NewRuntime(s.engine, trading.RuntimeConfig{
				Symbols:  cfg.Trading.Symbols,
				Interval: cfg.Trading.PollInterval,
				Advisor:  advisor,
				Logger:   app.Logger,
			})

			if once {
				report := rt.Tick(ctx)
				output := NewOutput(cmd)
				if output.IsJSON() {
					return output.JSON(report)
				}
				for _, r := range report.Signals {
					printResult(output, r)
				}
				printUpdates(output, report.Updates)
				return nil
			}
			return rt.Run(ctx)
		},
	}

	cmd.Flags().StringVar(&brokerName, "broker", "", "broker backend (default from config)")
	cmd.Flags().BoolVar(&once, "once", false, "run a single pass and exit")
	return cmd
}

func serveMetrics(app *App, addr string, rec *metrics.Recorder) *http.Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", rec.Handler())
	srv := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}

	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			app.Logger.Error().Err(err).Str("addr", addr).Msg("Metrics server failed")
		}
	}()
	app.Logger.Info().Str("addr", addr).Msg("Serving metrics")
	return srv
}
