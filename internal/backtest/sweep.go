package backtest

import (
	"context"
	"fmt"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/licongshen12/Kalman-Filter-Based-Trading/internal/account"
	"github.com/licongshen12/Kalman-Filter-Based-Trading/internal/config"
	"github.com/licongshen12/Kalman-Filter-Based-Trading/internal/kalman"
	"github.com/licongshen12/Kalman-Filter-Based-Trading/internal/market"
	"github.com/licongshen12/Kalman-Filter-Based-Trading/internal/signal"
)

// SweepRun 为一组阈值对应的回测结果。
type SweepRun struct {
	EntryThreshold float64
	ExitThreshold  float64
	Result         Result
}

// Sweep 对多组进出场阈值并行执行回测。
// 每次运行持有独立的滤波器、信号生成器与账户，互不共享可变状态。
func Sweep(ctx context.Context, cfg *config.Config, series market.Series, logger *zap.Logger) ([]SweepRun, error) {
	if cfg == nil {
		return nil, fmt.Errorf("backtest: 配置不能为空")
	}
	if err := cfg.Sweep.Validate(); err != nil {
		return nil, fmt.Errorf("backtest: %w", err)
	}
	if len(cfg.Sweep.EntryThresholds) == 0 {
		return nil, nil
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	runs := make([]SweepRun, len(cfg.Sweep.EntryThresholds))

	group, groupCtx := errgroup.WithContext(ctx)
	parallelism := cfg.Sweep.Parallelism
	if parallelism <= 0 {
		parallelism = 4
	}
	group.SetLimit(parallelism)

	for i := range cfg.Sweep.EntryThresholds {
		group.Go(func() error {
			entry := cfg.Sweep.EntryThresholds[i]
			exit := cfg.Sweep.ExitThresholds[i]

			signalCfg := cfg.Signal
			signalCfg.EntryThreshold = entry
			signalCfg.ExitThreshold = exit

			result, err := runOnce(groupCtx, cfg.Filter, signalCfg, cfg.Account, series, logger, fmt.Sprintf("sweep_entry%.2f_exit%.2f", entry, exit))
			if err != nil {
				return err
			}

			runs[i] = SweepRun{
				EntryThreshold: entry,
				ExitThreshold:  exit,
				Result:         result,
			}
			return nil
		})
	}

	if err := group.Wait(); err != nil {
		return nil, err
	}

	return runs, nil
}

// runOnce 以独立组件执行一次回测。
func runOnce(ctx context.Context, filterCfg config.FilterConfig, signalCfg config.SignalConfig, accountCfg config.AccountConfig, series market.Series, logger *zap.Logger, label string) (Result, error) {
	filter, err := kalman.New(filterCfg)
	if err != nil {
		return Result{}, err
	}

	generator, err := signal.NewGenerator(signalCfg)
	if err != nil {
		return Result{}, err
	}

	accountant, err := account.NewAccountant(accountCfg, logger)
	if err != nil {
		return Result{}, err
	}

	engine, err := NewEngine(Config{Label: label}, NewSeriesProvider(series), filter, generator, accountant, logger)
	if err != nil {
		return Result{}, err
	}

	return engine.Run(ctx)
}
