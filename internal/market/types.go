package market

import "time"

// Candle 代表单根K线。
type Candle struct {
	Timestamp time.Time
	Open      float64
	High      float64
	Low       float64
	Close     float64
	Volume    float64
}

// PricePair 为同一时刻的永续与交割合约收盘价。
// 约定 A 为交割合约价格（回归因变量），B 为永续合约价格（回归自变量）。
type PricePair struct {
	Timestamp time.Time
	PriceA    float64
	PriceB    float64
}

// Series 为按时间升序排列、经过对齐校验的价格序列。
type Series struct {
	pairs []PricePair
}

// Len 返回序列长度。
func (s Series) Len() int {
	return len(s.pairs)
}

// At 返回第 i 个价格对。
func (s Series) At(i int) PricePair {
	return s.pairs[i]
}

// Pairs 返回序列副本，调用方修改不影响原序列。
func (s Series) Pairs() []PricePair {
	dst := make([]PricePair, len(s.pairs))
	copy(dst, s.pairs)
	return dst
}
