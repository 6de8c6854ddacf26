package backtest

import (
	"context"

	"github.com/licongshen12/Kalman-Filter-Based-Trading/internal/kalman"
	"github.com/licongshen12/Kalman-Filter-Based-Trading/internal/market"
)

// PairProvider 按时间顺序提供对齐的价格对。
type PairProvider interface {
	Next(ctx context.Context) (market.PricePair, bool, error)
}

// Estimator 为逐步状态估计接口，生产实现为 *kalman.Filter。
type Estimator interface {
	Step(priceA, priceB float64) (kalman.StepResult, error)
}
