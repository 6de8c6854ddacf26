package backtest

import "math"

// Config 定义单次回测的引擎参数。
type Config struct {
	// Label 标识一次回测运行，用于日志与持久化。
	Label string
	// AnnualizationFactor 将单步夏普比率折算为年化，0 时按1小时步长取默认值。
	AnnualizationFactor float64
}

func (c Config) normalize() Config {
	cfg := c
	if cfg.Label == "" {
		cfg.Label = "default"
	}
	if cfg.AnnualizationFactor <= 0 {
		cfg.AnnualizationFactor = math.Sqrt(24 * 365)
	}
	return cfg
}
