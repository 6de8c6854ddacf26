package backtest

import (
	"context"

	"github.com/licongshen12/Kalman-Filter-Based-Trading/internal/market"
)

// SeriesProvider 以已校验的 Series 顺序提供价格对。
type SeriesProvider struct {
	series market.Series
	index  int
}

// NewSeriesProvider 创建序列提供者。
func NewSeriesProvider(series market.Series) *SeriesProvider {
	return &SeriesProvider{series: series}
}

func (p *SeriesProvider) Next(ctx context.Context) (market.PricePair, bool, error) {
	if err := ctx.Err(); err != nil {
		return market.PricePair{}, false, err
	}
	if p.index >= p.series.Len() {
		return market.PricePair{}, false, nil
	}
	pair := p.series.At(p.index)
	p.index++
	return pair, true, nil
}

// SlicePairProvider 以原始切片顺序提供价格对，对齐校验交由引擎完成。
type SlicePairProvider struct {
	pairs []market.PricePair
	index int
}

// NewSlicePairProvider 创建切片提供者。
func NewSlicePairProvider(pairs []market.PricePair) *SlicePairProvider {
	return &SlicePairProvider{pairs: pairs}
}

func (p *SlicePairProvider) Next(ctx context.Context) (market.PricePair, bool, error) {
	if err := ctx.Err(); err != nil {
		return market.PricePair{}, false, err
	}
	if p.index >= len(p.pairs) {
		return market.PricePair{}, false, nil
	}
	pair := p.pairs[p.index]
	p.index++
	return pair, true, nil
}
