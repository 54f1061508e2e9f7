package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/ftchann/uniswap-twamm/lib/config"
	"github.com/ftchann/uniswap-twamm/lib/executor"
	ppool "github.com/ftchann/uniswap-twamm/lib/pool"
	ent "github.com/ftchann/uniswap-twamm/lib/transaction"
)

func main() {
	root := &cobra.Command{
		Use:          "twamm-sim",
		Short:        "Concentrated liquidity pool simulator with long term orders",
		SilenceUsage: true,
	}

	root.PersistentFlags().String("config", "", "config file path")

	replayCmd := &cobra.Command{
		Use:   "replay",
		Short: "Replay pool events and write the resulting pool state",
		RunE:  runReplay,
	}

	replayCmd.Flags().String("events", "", "input events JSON array")
	replayCmd.Flags().String("out", "./data/result.json", "output result JSON path")
	replayCmd.Flags().String("token0", "TOKEN0", "token0 symbol")
	replayCmd.Flags().String("token1", "TOKEN1", "token1 symbol")
	replayCmd.Flags().Int32("decimals0", 18, "token0 decimals")
	replayCmd.Flags().Int32("decimals1", 18, "token1 decimals")
	replayCmd.Flags().Uint32("fee", 3000, "swap fee in hundredths of a bip")
	replayCmd.Flags().Int("tick-spacing", 60, "tick spacing")
	replayCmd.Flags().String("sqrt-price-x96", "79228162514264337593543950336", "initial sqrt price as Q64.96")
	replayCmd.Flags().Uint64("expiration-interval", 3600, "long term order expiration interval in seconds")
	replayCmd.Flags().Uint64("start-time", 0, "pool initialization timestamp")
	replayCmd.Flags().Int("price-window", 1024, "number of price samples kept for statistics")
	replayCmd.Flags().String("log-level", "info", "log level (debug, info, warn, error)")

	root.AddCommand(replayCmd)

	if err := root.Execute(); err != nil {
		os.Exit(1)
	}
}

func runReplay(cmd *cobra.Command, _ []string) error {
	cfgFile, _ := cmd.Flags().GetString("config")
	cfg, err := config.Load(cfgFile, cmd.Flags())
	if err != nil {
		return err
	}

	logger, err := newLogger(cfg.LogLevel)
	if err != nil {
		return err
	}
	defer logger.Sync()

	if err := cfg.Validate(); err != nil {
		return err
	}
	sqrtPriceX96, err := cfg.InitialSqrtPrice()
	if err != nil {
		return err
	}

	transactions, err := ent.ReadFile(cfg.Events)
	if err != nil {
		return err
	}
	logger.Info("loaded events", zap.String("path", cfg.Events), zap.Int("count", len(transactions)))

	pool, err := ppool.NewPool(cfg.Token0, cfg.Token1, cfg.Fee, cfg.TickSpacing, cfg.ExpirationInterval, ppool.WithLogger(logger))
	if err != nil {
		return fmt.Errorf("create pool: %w", err)
	}
	if err := pool.Initialize(cfg.StartTime, sqrtPriceX96); err != nil {
		return fmt.Errorf("initialize pool: %w", err)
	}

	execution := executor.CreateExecution(pool, cfg.StartTime, transactions,
		executor.WithLogger(logger),
		executor.WithDecimals(cfg.Decimals0, cfg.Decimals1),
		executor.WithPriceWindow(cfg.PriceWindow),
	)
	save, err := execution.Run()
	if err != nil {
		return err
	}
	if err := save.Write(cfg.Out); err != nil {
		return err
	}

	logger.Info("result written", zap.String("path", cfg.Out), zap.Int("failed", save.Failed))
	return nil
}

func newLogger(level string) (*zap.Logger, error) {
	cfg := zap.NewProductionConfig()
	cfg.Level = zap.NewAtomicLevel()
	if err := cfg.Level.UnmarshalText([]byte(level)); err != nil {
		return nil, err
	}

	cfg.EncoderConfig.TimeKey = "ts"
	cfg.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder

	return cfg.Build()
}
