// Package account 负责仓位、资金与逐笔盈亏的记录。
package account

import (
	"errors"
	"fmt"
	"math"
	"time"

	"go.uber.org/zap"

	"github.com/licongshen12/Kalman-Filter-Based-Trading/internal/config"
	"github.com/licongshen12/Kalman-Filter-Based-Trading/internal/market"
	"github.com/licongshen12/Kalman-Filter-Based-Trading/internal/signal"
)

// Direction 表示价差头寸方向。
type Direction int

const (
	Flat Direction = iota
	// LongSpread 买入交割合约、卖出永续合约。
	LongSpread
	// ShortSpread 卖出交割合约、买入永续合约。
	ShortSpread
)

// String 返回方向名称。
func (d Direction) String() string {
	switch d {
	case LongSpread:
		return "LONG"
	case ShortSpread:
		return "SHORT"
	default:
		return "FLAT"
	}
}

// Position 为当前持仓快照，UnitsA/UnitsB 带方向符号。
type Position struct {
	Direction     Direction
	UnitsA        float64
	UnitsB        float64
	EntryPriceA   float64
	EntryPriceB   float64
	EntryHedge    float64
	EntryTime     time.Time
	UnrealizedPnL float64
}

// Open 判断是否存在未平仓头寸。
func (p Position) Open() bool {
	return p.Direction != Flat
}

// TradeRecord 为一次进场或出场的流水记录。
type TradeRecord struct {
	Timestamp   time.Time
	Action      string
	Direction   Direction
	PriceA      float64
	PriceB      float64
	UnitsA      float64
	UnitsB      float64
	HedgeRatio  float64
	RealizedPnL float64
	Cost        float64
}

// SizePosition 依据对冲比率计算两腿数量，纯函数，不依赖历史仓位。
// 交割腿数量由名义本金决定，永续腿按 β 缩放以保持市值中性。
func SizePosition(hedgeRatio float64, pair market.PricePair, notional float64) (unitsA, unitsB float64) {
	unitsA = notional / pair.PriceA
	unitsB = notional * hedgeRatio / pair.PriceB
	return unitsA, unitsB
}

// Accountant 响应信号维护头寸与资金状态。
type Accountant struct {
	cfg    config.AccountConfig
	logger *zap.Logger

	cash     float64
	position Position
	trades   []TradeRecord
}

// NewAccountant 创建账户记账器，非法配置在任何信号处理前被拒绝。
func NewAccountant(cfg config.AccountConfig, logger *zap.Logger) (*Accountant, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("account: %w", err)
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	return &Accountant{
		cfg:    cfg,
		logger: logger,
		cash:   cfg.InitialEquity,
	}, nil
}

// Apply 将信号转化为仓位变更并刷新盈亏。
func (a *Accountant) Apply(sig signal.Signal, pair market.PricePair, hedgeRatio float64) error {
	switch sig {
	case signal.LongSpread:
		return a.enter(LongSpread, pair, hedgeRatio)
	case signal.ShortSpread:
		return a.enter(ShortSpread, pair, hedgeRatio)
	case signal.Exit:
		if !a.position.Open() {
			return errors.New("account: 无持仓时收到 EXIT 信号")
		}
		a.close(pair, "EXIT")
		return nil
	case signal.Hold:
		a.mark(pair)
		return nil
	default:
		return fmt.Errorf("account: 未知信号 %v", sig)
	}
}

func (a *Accountant) enter(dir Direction, pair market.PricePair, hedgeRatio float64) error {
	if a.position.Open() {
		return errors.New("account: 持仓期间不允许加仓")
	}
	if hedgeRatio <= 0 {
		return fmt.Errorf("account: 对冲比率 %f 无法构造市值中性头寸", hedgeRatio)
	}

	notional := a.cfg.TradeNotional
	if a.cfg.SizingMode == config.SizingRiskFraction {
		notional = a.cfg.RiskFraction * a.Equity()
	}

	unitsA, unitsB := SizePosition(hedgeRatio, pair, notional)
	if dir == ShortSpread {
		unitsA, unitsB = -unitsA, unitsB
	} else {
		unitsB = -unitsB
	}

	a.cash -= a.cfg.TransactionCost
	a.position = Position{
		Direction:   dir,
		UnitsA:      unitsA,
		UnitsB:      unitsB,
		EntryPriceA: pair.PriceA,
		EntryPriceB: pair.PriceB,
		EntryHedge:  hedgeRatio,
		EntryTime:   pair.Timestamp,
	}

	a.trades = append(a.trades, TradeRecord{
		Timestamp:  pair.Timestamp,
		Action:     "ENTRY",
		Direction:  dir,
		PriceA:     pair.PriceA,
		PriceB:     pair.PriceB,
		UnitsA:     unitsA,
		UnitsB:     unitsB,
		HedgeRatio: hedgeRatio,
		Cost:       a.cfg.TransactionCost,
	})

	a.logger.Debug("开仓",
		zap.String("direction", dir.String()),
		zap.Float64("price_a", pair.PriceA),
		zap.Float64("price_b", pair.PriceB),
		zap.Float64("hedge_ratio", hedgeRatio),
	)

	return nil
}

func (a *Accountant) close(pair market.PricePair, action string) {
	pnl := a.markToMarket(pair)
	a.cash += pnl - a.cfg.TransactionCost

	a.trades = append(a.trades, TradeRecord{
		Timestamp:   pair.Timestamp,
		Action:      action,
		Direction:   a.position.Direction,
		PriceA:      pair.PriceA,
		PriceB:      pair.PriceB,
		UnitsA:      -a.position.UnitsA,
		UnitsB:      -a.position.UnitsB,
		HedgeRatio:  a.position.EntryHedge,
		RealizedPnL: pnl,
		Cost:        a.cfg.TransactionCost,
	})

	a.logger.Debug("平仓",
		zap.String("action", action),
		zap.String("direction", a.position.Direction.String()),
		zap.Float64("realized_pnl", pnl),
	)

	a.position = Position{}
}

// mark 按最新价格刷新未实现盈亏，不改变头寸。
func (a *Accountant) mark(pair market.PricePair) {
	if !a.position.Open() {
		return
	}
	a.position.UnrealizedPnL = a.markToMarket(pair)
}

func (a *Accountant) markToMarket(pair market.PricePair) float64 {
	return a.position.UnitsA*(pair.PriceA-a.position.EntryPriceA) +
		a.position.UnitsB*(pair.PriceB-a.position.EntryPriceB)
}

// ForceLiquidate 以给定价格强制平掉未平仓头寸，用于回测结束、发散终止或保证金不足。
func (a *Accountant) ForceLiquidate(pair market.PricePair, reason string) {
	if !a.position.Open() {
		return
	}
	a.logger.Info("强制平仓", zap.String("reason", reason), zap.Time("ts", pair.Timestamp))
	a.close(pair, "LIQUIDATE")
}

// Equity 返回现金加未实现盈亏后的净值。
func (a *Accountant) Equity() float64 {
	return a.cash + a.position.UnrealizedPnL
}

// Snapshot 返回当前仓位副本。
func (a *Accountant) Snapshot() Position {
	return a.position
}

// TradeLog 返回成交流水副本。
func (a *Accountant) TradeLog() []TradeRecord {
	dst := make([]TradeRecord, len(a.trades))
	copy(dst, a.trades)
	return dst
}

// MarginRatio 返回净值与保证金占用之比，无持仓时为 +Inf。
func (a *Accountant) MarginRatio(pair market.PricePair) float64 {
	required := a.marginRequired()
	if required == 0 {
		return math.Inf(1)
	}
	a.mark(pair)
	return a.Equity() / required
}

// MarginBreached 判断是否跌破维持保证金比率。
func (a *Accountant) MarginBreached(pair market.PricePair) bool {
	if !a.cfg.EnableMarginCheck || !a.position.Open() {
		return false
	}
	return a.MarginRatio(pair) < a.cfg.MaintenanceMarginRatio
}

func (a *Accountant) marginRequired() float64 {
	return (math.Abs(a.position.UnitsA*a.position.EntryPriceA) +
		math.Abs(a.position.UnitsB*a.position.EntryPriceB)) / a.cfg.Leverage
}
