// Package cli provides the command-line interface for the trading application.
package cli

import (
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/Bing4Ever/quant-trading-sub001/internal/broker"
	"github.com/Bing4Ever/quant-trading-sub001/internal/config"
	"github.com/Bing4Ever/quant-trading-sub001/internal/logging"
)

// Version information
const (
	Version   = "0.1.0"
	BuildDate = "2024-01-01"
)

// App holds the application dependencies. Config is loaded before any
// command runs; a load failure is kept in LoadErr so `config validate` can
// report it.
type App struct {
	ConfigDir string
	Config    *config.Config
	LoadErr   error
	Logger    zerolog.Logger
	Factory   *broker.Factory
}

// config returns the loaded configuration or the load error.
func (a *App) config() (*config.Config, error) {
	if a.LoadErr != nil {
		return nil, a.LoadErr
	}
	return a.Config, nil
}

// NewRootCmd creates the root command for the CLI.
func NewRootCmd(app *App) *cobra.Command {
	if app.Factory == nil {
		app.Factory = broker.NewDefaultFactory()
	}

	rootCmd := &cobra.Command{
		Use:   "trader",
		Short: "Quant Trader - signal to order execution core",
		Long: `Quant Trader turns strategy signals into broker orders.

Every signal is validated against account-level risk limits before it is
submitted. Pending orders are reconciled against the broker on a fixed
cadence. The paper broker simulates fills in memory with the same contract
as the live backends.

Use 'trader help <command>' for more information about a command.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			dir, _ := cmd.Flags().GetString("config")
			if dir != "" {
				app.ConfigDir = dir
			}
			if app.ConfigDir == "" {
				app.ConfigDir = config.DefaultConfigDir()
			}

			if app.Config == nil {
				app.Config, app.LoadErr = config.Load(app.ConfigDir)
				if app.LoadErr == nil {
					app.Logger = logging.NewLoggerWithConfig(app.Config.Log)
				}
			}

			debug, _ := cmd.Flags().GetBool("debug")
			if debug {
				logging.SetDebugLevel()
				app.Logger = app.Logger.Level(zerolog.DebugLevel)
			}
			return nil
		},
	}

	rootCmd.PersistentFlags().String("config", "", "config directory (default: ~/.config/quant-trader)")
	rootCmd.PersistentFlags().Bool("json", false, "output in JSON format")
	rootCmd.PersistentFlags().Bool("debug", false, "enable debug logging")

	rootCmd.AddCommand(newVersionCmd())
	rootCmd.AddCommand(newConfigCmd(app))
	rootCmd.AddCommand(newBrokersCmd(app))
	rootCmd.AddCommand(newSignalCmd(app))
	rootCmd.AddCommand(newRiskCmd(app))
	rootCmd.AddCommand(newRunCmd(app))

	return rootCmd
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		RunE: func(cmd *cobra.Command, args []string) error {
			output := NewOutput(cmd)
			if output.IsJSON() {
				return output.JSON(map[string]string{
					"version":    Version,
					"build_date": BuildDate,
				})
			}
			output.Printf("Quant Trader v%s\n", Version)
			output.Dim("Build date: %s", BuildDate)
			return nil
		},
	}
}

func newConfigCmd(app *App) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Configuration management",
		Long:  "View and validate application configuration.",
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "show",
		Short: "Show current configuration",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := app.config()
			if err != nil {
				return err
			}
			output := NewOutput(cmd)
			if output.IsJSON() {
				return output.JSON(cfg)
			}
			showConfig(output, cfg)
			return nil
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "path",
		Short: "Show configuration file path",
		RunE: func(cmd *cobra.Command, args []string) error {
			output := NewOutput(cmd)
			path := config.TemplatePath(app.ConfigDir)
			if output.IsJSON() {
				return output.JSON(map[string]string{"dir": app.ConfigDir, "path": path})
			}
			output.Println(path)
			return nil
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "validate",
		Short: "Validate configuration files",
		RunE: func(cmd *cobra.Command, args []string) error {
			output := NewOutput(cmd)
			if app.LoadErr != nil {
				if output.IsJSON() {
					output.JSON(map[string]interface{}{"valid": false, "error": app.LoadErr.Error()})
				} else {
					output.Error("Configuration validation failed: %v", app.LoadErr)
				}
				return app.LoadErr
			}
			if output.IsJSON() {
				return output.JSON(map[string]bool{"valid": true})
			}
			output.Success("✓ Configuration is valid")
			return nil
		},
	})

	return cmd
}

func showConfig(output *Output, cfg *config.Config) {
	output.Bold("Trading Configuration")
	if cfg.IsPaperMode() {
		output.Printf("  Mode:             %s (orders matched in memory)\n", cfg.Trading.Mode)
	} else {
		output.Printf("  Mode:             %s (orders routed to %s)\n", cfg.Trading.Mode, cfg.Trading.Broker)
	}
	output.Printf("  Broker:           %s\n", cfg.Trading.Broker)
	output.Printf("  Initial Capital:  %s\n", FormatMoney(cfg.Trading.InitialCapital))
	output.Printf("  Commission Rate:  %s\n", FormatRatio(cfg.Trading.CommissionRate))
	output.Printf("  Poll Interval:    %s\n", cfg.Trading.PollInterval)
	output.Printf("  Symbols:          %v\n", cfg.Trading.Symbols)
	output.Printf("  Default Quantity: %d\n", cfg.Trading.DefaultQuantity)
	output.Printf("  Order Type:       %s\n", cfg.Trading.OrderType)
	output.Println()

	output.Bold("Risk Limits")
	output.Printf("  Max Position Size:     %s\n", FormatRatio(cfg.Risk.MaxPositionSize))
	output.Printf("  Max Total Exposure:    %s\n", FormatRatio(cfg.Risk.MaxTotalExposure))
	output.Printf("  Max Single Trade Size: %s\n", FormatRatio(cfg.Risk.MaxSingleTradeSize))
	output.Printf("  Max Daily Loss:        %s\n", FormatRatio(cfg.Risk.MaxDailyLoss))
	output.Printf("  Max Drawdown:          %s\n", FormatRatio(cfg.Risk.MaxDrawdown))
	output.Printf("  Min Cash Reserve:      %s\n", FormatRatio(cfg.Risk.MinCashReserve))
	output.Println()

	output.Bold("Integrations")
	output.Printf("  Journal:  %v (%s)\n", cfg.Store.Enabled, cfg.Store.Path)
	output.Printf("  Kafka:    %v %v\n", cfg.Kafka.Enabled, cfg.Kafka.Brokers)
	output.Printf("  Metrics:  %v (%s)\n", cfg.Metrics.Enabled, cfg.Metrics.Addr)
	output.Printf("  Advisor:  %v (%s)\n", cfg.OpenAI.Enabled, cfg.OpenAI.Model)
}

func newBrokersCmd(app *App) *cobra.Command {
	return &cobra.Command{
		Use:   "brokers",
		Short: "List registered broker backends",
		RunE: func(cmd *cobra.Command, args []string) error {
			output := NewOutput(cmd)
			names := app.Factory.Registered()
			if output.IsJSON() {
				return output.JSON(map[string]interface{}{"brokers": names, "default": app.Factory.Default()})
			}
			for _, name := range names {
				if name == app.Factory.Default() {
					output.Printf("%s %s\n", name, output.faint.Sprint("(default)"))
				} else {
					output.Println(name)
				}
			}
			return nil
		},
	}
}
