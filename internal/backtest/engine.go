// Package backtest 驱动滤波、信号与记账的时间步循环并汇总结果。
package backtest

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/licongshen12/Kalman-Filter-Based-Trading/internal/account"
	"github.com/licongshen12/Kalman-Filter-Based-Trading/internal/kalman"
	"github.com/licongshen12/Kalman-Filter-Based-Trading/internal/market"
	"github.com/licongshen12/Kalman-Filter-Based-Trading/internal/signal"
)

// 回测终止原因。
const (
	TerminationCompleted  = "completed"
	TerminationDivergence = "divergence"
	TerminationMargin     = "margin_liquidation"
)

// Record 为单个时间步的回测输出。
type Record struct {
	Timestamp  time.Time
	PriceA     float64
	PriceB     float64
	Intercept  float64
	HedgeRatio float64
	ZScore     float64
	Signal     signal.Signal
	Direction  account.Direction
	Equity     float64
}

// Result 汇总回测结果，构建完成后不再修改。
type Result struct {
	Label             string
	Records           []Record
	Trades            []account.TradeRecord
	EquityCurve       []float64
	ReturnSeries      []float64
	Metrics           Metrics
	TerminationReason string
	DivergenceStep    int
	DivergedAt        time.Time
	FinalEquity       float64
}

// Engine 串联滤波器、信号生成器与记账器执行回测。
type Engine struct {
	cfg        Config
	provider   PairProvider
	filter     Estimator
	generator  *signal.Generator
	accountant *account.Accountant
	logger     *zap.Logger
}

// NewEngine 构建回测引擎。
func NewEngine(cfg Config, provider PairProvider, estimator Estimator, generator *signal.Generator, accountant *account.Accountant, logger *zap.Logger) (*Engine, error) {
	if provider == nil {
		return nil, errors.New("backtest: provider 不能为空")
	}
	if estimator == nil {
		return nil, errors.New("backtest: estimator 不能为空")
	}
	if generator == nil {
		return nil, errors.New("backtest: signal generator 不能为空")
	}
	if accountant == nil {
		return nil, errors.New("backtest: accountant 不能为空")
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	return &Engine{
		cfg:        cfg.normalize(),
		provider:   provider,
		filter:     estimator,
		generator:  generator,
		accountant: accountant,
		logger:     logger,
	}, nil
}

// Run 执行完整回测流程。
// 滤波器发散或保证金击穿时提前终止并强制平仓，仍返回可用的部分结果；
// 输入时间戳未严格递增时立即失败。
func (e *Engine) Run(ctx context.Context) (Result, error) {
	result := Result{
		Label:             e.cfg.Label,
		TerminationReason: TerminationCompleted,
	}
	result.EquityCurve = append(result.EquityCurve, e.accountant.Equity())

	var (
		lastPair     market.PricePair
		havePair     bool
		prevBetaSign float64
	)

	for {
		pair, ok, err := e.provider.Next(ctx)
		if err != nil {
			return Result{}, err
		}
		if !ok {
			break
		}

		if havePair && !pair.Timestamp.After(lastPair.Timestamp) {
			return Result{}, fmt.Errorf("backtest: %w: %s 不晚于上一条记录", market.ErrMisaligned, pair.Timestamp)
		}

		stepResult, err := e.filter.Step(pair.PriceA, pair.PriceB)
		if err != nil {
			var divergence *kalman.DivergenceError
			if !errors.As(err, &divergence) {
				return Result{}, err
			}

			// 发散后状态不可信：在最后一个有效价格上强平并提前终止。
			e.logger.Warn("滤波器发散，提前终止回测",
				zap.Int("step", divergence.Step),
				zap.String("reason", divergence.Reason),
			)
			if havePair {
				e.accountant.ForceLiquidate(lastPair, TerminationDivergence)
			}
			result.TerminationReason = TerminationDivergence
			result.DivergenceStep = divergence.Step
			result.DivergedAt = pair.Timestamp
			break
		}

		if sign := signOf(stepResult.HedgeRatio); sign != 0 {
			if prevBetaSign != 0 && sign != prevBetaSign {
				e.logger.Warn("对冲比率符号翻转",
					zap.Time("ts", pair.Timestamp),
					zap.Float64("hedge_ratio", stepResult.HedgeRatio),
				)
			}
			prevBetaSign = sign
		}

		sig, zscore := e.generator.Evaluate(stepResult, e.accountant.Snapshot().Open())
		if err := e.accountant.Apply(sig, pair, stepResult.HedgeRatio); err != nil {
			return Result{}, err
		}

		lastPair = pair
		havePair = true

		equity := e.accountant.Equity()
		prevEquity := result.EquityCurve[len(result.EquityCurve)-1]
		result.EquityCurve = append(result.EquityCurve, equity)
		if prevEquity != 0 {
			result.ReturnSeries = append(result.ReturnSeries, equity/prevEquity-1)
		}

		result.Records = append(result.Records, Record{
			Timestamp:  pair.Timestamp,
			PriceA:     pair.PriceA,
			PriceB:     pair.PriceB,
			Intercept:  stepResult.Intercept,
			HedgeRatio: stepResult.HedgeRatio,
			ZScore:     zscore,
			Signal:     sig,
			Direction:  e.accountant.Snapshot().Direction,
			Equity:     equity,
		})

		if e.accountant.MarginBreached(pair) {
			e.logger.Warn("保证金击穿，强制平仓", zap.Time("ts", pair.Timestamp))
			e.accountant.ForceLiquidate(pair, TerminationMargin)
			result.TerminationReason = TerminationMargin
			break
		}
	}

	// 回测终点不允许遗留头寸。
	if result.TerminationReason == TerminationCompleted && havePair {
		e.accountant.ForceLiquidate(lastPair, "horizon")
	}

	result.FinalEquity = e.accountant.Equity()
	if n := len(result.EquityCurve); n > 0 {
		result.EquityCurve[n-1] = result.FinalEquity
	}
	if n := len(result.Records); n > 0 {
		result.Records[n-1].Equity = result.FinalEquity
		result.Records[n-1].Direction = e.accountant.Snapshot().Direction
	}

	result.Trades = e.accountant.TradeLog()
	result.Metrics = calculateMetrics(result.EquityCurve, result.ReturnSeries, closedTradePnLs(result.Trades), e.cfg.AnnualizationFactor)

	e.logger.Info("回测完成",
		zap.String("label", result.Label),
		zap.String("termination", result.TerminationReason),
		zap.Int("steps", len(result.Records)),
		zap.Int("trades", result.Metrics.Trades),
		zap.Float64("final_equity", result.FinalEquity),
	)

	return result, nil
}

func closedTradePnLs(trades []account.TradeRecord) []float64 {
	var pnls []float64
	for _, trade := range trades {
		if trade.Action == "ENTRY" {
			continue
		}
		pnls = append(pnls, trade.RealizedPnL)
	}
	return pnls
}

func signOf(v float64) float64 {
	switch {
	case v > 0:
		return 1
	case v < 0:
		return -1
	default:
		return 0
	}
}
