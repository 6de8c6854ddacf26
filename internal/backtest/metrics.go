package backtest

import (
	"math"

	"gonum.org/v1/gonum/stat"
)

// Metrics 记录回测绩效指标。
type Metrics struct {
	TotalReturn float64
	MaxDrawdown float64
	SharpeRatio float64
	Trades      int
	AvgTradePnL float64
}

func calculateMetrics(equity, returns []float64, tradePnLs []float64, annualFactor float64) Metrics {
	if len(equity) == 0 {
		return Metrics{}
	}

	initial := equity[0]
	final := equity[len(equity)-1]
	totalReturn := 0.0
	if initial > 0 {
		totalReturn = final/initial - 1
	}

	metrics := Metrics{
		TotalReturn: totalReturn,
		MaxDrawdown: computeDrawdown(equity),
		SharpeRatio: computeSharpe(returns, annualFactor),
		Trades:      len(tradePnLs),
	}
	if len(tradePnLs) > 0 {
		metrics.AvgTradePnL = stat.Mean(tradePnLs, nil)
	}

	return metrics
}

func computeDrawdown(equity []float64) float64 {
	var peak float64
	maxDD := 0.0
	for _, v := range equity {
		if v > peak {
			peak = v
		}
		if peak <= 0 {
			continue
		}
		dd := (v - peak) / peak
		if dd < maxDD {
			maxDD = dd
		}
	}
	return math.Abs(maxDD)
}

func computeSharpe(returns []float64, annualFactor float64) float64 {
	if len(returns) < 2 {
		return 0
	}

	mean := stat.Mean(returns, nil)
	std := stat.StdDev(returns, nil)
	if std == 0 || math.IsNaN(std) {
		return 0
	}

	return (mean / std) * annualFactor
}
