// Package signal 将滤波残差转换为价差交易信号。
package signal

import (
	"fmt"
	"math"

	talib "github.com/markcheno/go-talib"

	"github.com/licongshen12/Kalman-Filter-Based-Trading/internal/config"
	"github.com/licongshen12/Kalman-Filter-Based-Trading/internal/kalman"
)

// Signal 为单个时间点的交易指令。
type Signal int

const (
	Hold Signal = iota
	LongSpread
	ShortSpread
	Exit
)

// String 返回信号名称。
func (s Signal) String() string {
	switch s {
	case Hold:
		return "HOLD"
	case LongSpread:
		return "LONG_SPREAD"
	case ShortSpread:
		return "SHORT_SPREAD"
	case Exit:
		return "EXIT"
	default:
		return fmt.Sprintf("SIGNAL(%d)", int(s))
	}
}

// Generator 依据 z 分数阈值生成进出场信号。
// 持仓期间不产生新的进场信号，仅允许 EXIT 或 HOLD。
type Generator struct {
	cfg       config.SignalConfig
	residuals []float64
}

// NewGenerator 构造信号生成器，非法阈值在任何评估前被拒绝。
func NewGenerator(cfg config.SignalConfig) (*Generator, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("signal: %w", err)
	}
	return &Generator{cfg: cfg}, nil
}

// Evaluate 消费一条滤波输出并返回信号与对应 z 分数。
func (g *Generator) Evaluate(result kalman.StepResult, inPosition bool) (Signal, float64) {
	z, ok := g.zscore(result)
	if !ok {
		return Hold, 0
	}

	if inPosition {
		if math.Abs(z) < g.cfg.ExitThreshold {
			return Exit, z
		}
		return Hold, z
	}

	// 对冲比率为负或过小时价差头寸无法对冲，跳过进场。
	if result.HedgeRatio <= 0 || math.Abs(result.HedgeRatio) < g.cfg.MinHedgeRatio {
		return Hold, z
	}

	switch {
	case z > g.cfg.EntryThreshold:
		return ShortSpread, z
	case z < -g.cfg.EntryThreshold:
		return LongSpread, z
	default:
		return Hold, z
	}
}

// zscore 依据配置模式计算标准化残差。
func (g *Generator) zscore(result kalman.StepResult) (float64, bool) {
	switch g.cfg.ZScoreMode {
	case config.ZScoreRolling:
		return g.rollingZScore(result.Residual)
	default:
		std := math.Sqrt(math.Max(result.Variance, 0))
		if std <= 0 {
			return 0, false
		}
		return result.Residual / std, true
	}
}

// rollingZScore 以残差滚动窗口的均值与标准差做标准化，窗口未满时不出信号。
func (g *Generator) rollingZScore(residual float64) (float64, bool) {
	g.residuals = append(g.residuals, residual)
	if len(g.residuals) > g.cfg.RollingWindow {
		g.residuals = g.residuals[len(g.residuals)-g.cfg.RollingWindow:]
	}
	if len(g.residuals) < g.cfg.RollingWindow {
		return 0, false
	}

	mean := talib.Sma(g.residuals, len(g.residuals))
	std := talib.StdDev(g.residuals, len(g.residuals), 1.0)

	latestStd := std[len(std)-1]
	if latestStd <= 0 || math.IsNaN(latestStd) {
		return 0, false
	}

	return (residual - mean[len(mean)-1]) / latestStd, true
}
