package market

import (
	"errors"
	"fmt"
)

// ErrMisaligned 表示输入价格序列不满足对齐约束。
var ErrMisaligned = errors.New("价格序列未对齐")

// NewSeries 校验价格对序列并构造 Series。
// 要求时间戳严格递增且价格为正，否则返回 ErrMisaligned。
func NewSeries(pairs []PricePair) (Series, error) {
	if len(pairs) == 0 {
		return Series{}, fmt.Errorf("market: %w: 序列为空", ErrMisaligned)
	}

	for i, pair := range pairs {
		if pair.Timestamp.IsZero() {
			return Series{}, fmt.Errorf("market: %w: 第%d条记录缺少时间戳", ErrMisaligned, i)
		}
		if pair.PriceA <= 0 || pair.PriceB <= 0 {
			return Series{}, fmt.Errorf("market: %w: 第%d条记录价格必须为正", ErrMisaligned, i)
		}
		if i > 0 && !pair.Timestamp.After(pairs[i-1].Timestamp) {
			return Series{}, fmt.Errorf("market: %w: 第%d条记录时间戳未严格递增", ErrMisaligned, i)
		}
	}

	dst := make([]PricePair, len(pairs))
	copy(dst, pairs)
	return Series{pairs: dst}, nil
}

// Merge 按时间戳内连接两组K线并构造对齐序列。
// a 为交割合约K线，b 为永续合约K线，仅保留两边都存在的时间点。
func Merge(a, b []Candle) (Series, error) {
	if len(a) == 0 || len(b) == 0 {
		return Series{}, fmt.Errorf("market: %w: 合并输入不能为空", ErrMisaligned)
	}

	byTime := make(map[int64]float64, len(b))
	for _, candle := range b {
		byTime[candle.Timestamp.UTC().Unix()] = candle.Close
	}

	pairs := make([]PricePair, 0, len(a))
	for _, candle := range a {
		priceB, ok := byTime[candle.Timestamp.UTC().Unix()]
		if !ok {
			continue
		}
		pairs = append(pairs, PricePair{
			Timestamp: candle.Timestamp.UTC(),
			PriceA:    candle.Close,
			PriceB:    priceB,
		})
	}

	if len(pairs) == 0 {
		return Series{}, fmt.Errorf("market: %w: 两组K线没有共同时间点", ErrMisaligned)
	}

	return NewSeries(pairs)
}
