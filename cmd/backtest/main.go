package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/licongshen12/Kalman-Filter-Based-Trading/internal/account"
	"github.com/licongshen12/Kalman-Filter-Based-Trading/internal/backtest"
	"github.com/licongshen12/Kalman-Filter-Based-Trading/internal/config"
	"github.com/licongshen12/Kalman-Filter-Based-Trading/internal/exchange"
	"github.com/licongshen12/Kalman-Filter-Based-Trading/internal/kalman"
	"github.com/licongshen12/Kalman-Filter-Based-Trading/internal/log"
	"github.com/licongshen12/Kalman-Filter-Based-Trading/internal/market"
	sig "github.com/licongshen12/Kalman-Filter-Based-Trading/internal/signal"
	"github.com/licongshen12/Kalman-Filter-Based-Trading/internal/store"
)

func main() {
	var configPath string
	var runSweep bool
	flag.StringVar(&configPath, "config", "", "配置文件路径，默认使用 configs/config.yaml")
	flag.BoolVar(&runSweep, "sweep", false, "对 sweep 配置中的阈值组合执行参数扫描")
	flag.Parse()

	cfg, err := config.Load(configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "加载配置失败: %v\n", err)
		os.Exit(1)
	}

	logger, err := log.NewLogger(cfg.Logging)
	if err != nil {
		fmt.Fprintf(os.Stderr, "初始化日志失败: %v\n", err)
		os.Exit(1)
	}
	defer func(logger *zap.Logger) {
		_ = logger.Sync()
	}(logger)

	sqliteStore, err := store.NewSQLite(cfg.Database)
	if err != nil {
		logger.Error("初始化数据库失败", zap.Error(err))
		os.Exit(1)
	}
	defer func() {
		if closeErr := sqliteStore.Close(); closeErr != nil {
			logger.Warn("关闭数据库失败", zap.Error(closeErr))
		}
	}()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	series, err := exchange.LoadSeries(ctx, cfg.Data, logger)
	if err != nil {
		logger.Error("加载价格序列失败", zap.Error(err))
		os.Exit(1)
	}

	startedAt := time.Now().UTC()

	if runSweep {
		runs, err := backtest.Sweep(ctx, cfg, series, logger)
		if err != nil {
			logger.Error("参数扫描失败", zap.Error(err))
			os.Exit(1)
		}
		for _, run := range runs {
			if _, err := sqliteStore.SaveResult(ctx, startedAt, run.Result); err != nil {
				logger.Warn("保存扫描结果失败", zap.Error(err))
			}
			printMetrics(run.Result)
		}
		return
	}

	result, err := runBacktest(ctx, cfg, series, logger)
	if err != nil {
		logger.Error("回测执行失败", zap.Error(err))
		os.Exit(1)
	}

	if _, err := sqliteStore.SaveResult(ctx, startedAt, result); err != nil {
		logger.Warn("保存回测结果失败", zap.Error(err))
	}

	printMetrics(result)
}

func runBacktest(ctx context.Context, cfg *config.Config, series market.Series, logger *zap.Logger) (backtest.Result, error) {
	filter, err := kalman.New(cfg.Filter)
	if err != nil {
		return backtest.Result{}, err
	}

	generator, err := sig.NewGenerator(cfg.Signal)
	if err != nil {
		return backtest.Result{}, err
	}

	accountant, err := account.NewAccountant(cfg.Account, logger)
	if err != nil {
		return backtest.Result{}, err
	}

	engine, err := backtest.NewEngine(
		backtest.Config{Label: cfg.Data.PerpMarket},
		backtest.NewSeriesProvider(series),
		filter,
		generator,
		accountant,
		logger,
	)
	if err != nil {
		return backtest.Result{}, err
	}

	return engine.Run(ctx)
}

func printMetrics(result backtest.Result) {
	fmt.Printf("\n=== %s ===\n", result.Label)
	fmt.Printf("Termination: %s\n", result.TerminationReason)
	fmt.Printf("Total Return: %.4f\n", result.Metrics.TotalReturn)
	fmt.Printf("Sharpe Ratio: %.4f\n", result.Metrics.SharpeRatio)
	fmt.Printf("Max Drawdown: %.4f\n", result.Metrics.MaxDrawdown)
	fmt.Printf("Number of Trades: %d\n", result.Metrics.Trades)
	fmt.Printf("Average Trade PnL: %.4f\n", result.Metrics.AvgTradePnL)
	fmt.Printf("Final Equity: %.2f\n", result.FinalEquity)
}
