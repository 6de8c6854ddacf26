package config

import (
	"errors"
	"fmt"
	"time"

	"go.uber.org/multierr"
)

// ErrInvalid 标记配置校验失败，可用 errors.Is 识别。
var ErrInvalid = errors.New("配置无效")

// Config 聚合回测系统运行所需的全部配置项。
type Config struct {
	App      AppConfig      `mapstructure:"app"`
	Data     DataConfig     `mapstructure:"data"`
	Filter   FilterConfig   `mapstructure:"filter"`
	Signal   SignalConfig   `mapstructure:"signal"`
	Account  AccountConfig  `mapstructure:"account"`
	Sweep    SweepConfig    `mapstructure:"sweep"`
	Database DatabaseConfig `mapstructure:"database"`
	Logging  LoggingConfig  `mapstructure:"logging"`
}

// AppConfig 控制应用级参数。
type AppConfig struct {
	Environment string `mapstructure:"environment"`
}

// DataConfig 描述价格数据来源。
// Source 为 "csv" 时从本地文件读取，为 "exchange" 时在线拉取。
type DataConfig struct {
	Source           string      `mapstructure:"source"`
	PerpCSV          string      `mapstructure:"perp_csv"`
	FutureCSV        string      `mapstructure:"future_csv"`
	PerpMarket       string      `mapstructure:"perp_market"`
	FutureInstrument string      `mapstructure:"future_instrument"`
	Timeframe        string      `mapstructure:"timeframe"`
	Limit            int         `mapstructure:"limit"`
	Retry            RetryConfig `mapstructure:"retry"`
}

// RetryConfig 统一控制交易所调用重试机制。
type RetryConfig struct {
	MaxAttempts int           `mapstructure:"max_attempts"`
	MinDelay    time.Duration `mapstructure:"min_delay"`
	MaxDelay    time.Duration `mapstructure:"max_delay"`
}

// FilterConfig 描述卡尔曼滤波器参数，状态向量为 [截距 α, 对冲比率 β]。
type FilterConfig struct {
	PriorIntercept   float64 `mapstructure:"prior_intercept"`
	PriorHedgeRatio  float64 `mapstructure:"prior_hedge_ratio"`
	PriorVariance    float64 `mapstructure:"prior_variance"`
	ProcessNoise     float64 `mapstructure:"process_noise"`
	ObservationNoise float64 `mapstructure:"observation_noise"`
	AdaptiveWindow   int     `mapstructure:"adaptive_window"`
	ResetWindow      int     `mapstructure:"reset_window"`
}

// SignalConfig 描述信号生成阈值。
type SignalConfig struct {
	EntryThreshold float64 `mapstructure:"entry_threshold"`
	ExitThreshold  float64 `mapstructure:"exit_threshold"`
	ZScoreMode     string  `mapstructure:"zscore_mode"`
	RollingWindow  int     `mapstructure:"rolling_window"`
	MinHedgeRatio  float64 `mapstructure:"min_hedge_ratio"`
}

// 信号 z 分数的两种计算方式。
const (
	ZScorePredictive = "predictive"
	ZScoreRolling    = "rolling"
)

// AccountConfig 描述仓位与资金参数。
type AccountConfig struct {
	InitialEquity          float64 `mapstructure:"initial_equity"`
	SizingMode             string  `mapstructure:"sizing_mode"`
	TradeNotional          float64 `mapstructure:"trade_notional"`
	RiskFraction           float64 `mapstructure:"risk_fraction"`
	TransactionCost        float64 `mapstructure:"transaction_cost"`
	Leverage               float64 `mapstructure:"leverage"`
	MaintenanceMarginRatio float64 `mapstructure:"maintenance_margin_ratio"`
	EnableMarginCheck      bool    `mapstructure:"enable_margin_check"`
}

// 仓位规模的两种计算方式。
const (
	SizingNotional     = "notional"
	SizingRiskFraction = "risk_fraction"
)

// SweepConfig 定义阈值参数扫描范围，列表为空时不执行扫描。
type SweepConfig struct {
	EntryThresholds []float64 `mapstructure:"entry_thresholds"`
	ExitThresholds  []float64 `mapstructure:"exit_thresholds"`
	Parallelism     int       `mapstructure:"parallelism"`
}

// DatabaseConfig 管理数据库连接。
type DatabaseConfig struct {
	Path            string        `mapstructure:"path"`
	MaxOpenConns    int           `mapstructure:"max_open_conns"`
	MaxIdleConns    int           `mapstructure:"max_idle_conns"`
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime"`
	InMemory        bool          `mapstructure:"in_memory"`
}

// LoggingConfig 控制日志输出。
type LoggingConfig struct {
	Level            string   `mapstructure:"level"`
	Encoding         string   `mapstructure:"encoding"`
	Development      bool     `mapstructure:"development"`
	OutputPaths      []string `mapstructure:"output_paths"`
	ErrorOutputPaths []string `mapstructure:"error_output_paths"`
}

// Validate 在任何回测步骤执行前校验全部配置。
func (c *Config) Validate() error {
	var err error

	if c.App.Environment == "" {
		err = multierr.Append(err, errors.New("app.environment 不能为空"))
	}

	switch c.Data.Source {
	case "csv":
		if c.Data.PerpCSV == "" || c.Data.FutureCSV == "" {
			err = multierr.Append(err, errors.New("data.source=csv 时 perp_csv 与 future_csv 不能为空"))
		}
	case "exchange":
		if c.Data.PerpMarket == "" {
			err = multierr.Append(err, errors.New("data.perp_market 不能为空"))
		}
		if c.Data.FutureInstrument == "" {
			err = multierr.Append(err, errors.New("data.future_instrument 不能为空"))
		}
		if c.Data.Limit <= 0 {
			err = multierr.Append(err, errors.New("data.limit 必须大于0"))
		}
		if c.Data.Retry.MaxAttempts <= 0 {
			err = multierr.Append(err, errors.New("data.retry.max_attempts 必须大于0"))
		}
		if c.Data.Retry.MinDelay <= 0 || c.Data.Retry.MaxDelay <= 0 {
			err = multierr.Append(err, errors.New("data.retry.delay 必须为正"))
		}
		if c.Data.Retry.MinDelay > c.Data.Retry.MaxDelay {
			err = multierr.Append(err, errors.New("data.retry.min_delay 不能大于 max_delay"))
		}
	default:
		err = multierr.Append(err, fmt.Errorf("data.source 必须为 csv 或 exchange，当前为 %q", c.Data.Source))
	}

	err = multierr.Append(err, c.Filter.check())
	err = multierr.Append(err, c.Signal.check())
	err = multierr.Append(err, c.Account.check())
	err = multierr.Append(err, c.Sweep.check())

	if c.Database.Path == "" && !c.Database.InMemory {
		err = multierr.Append(err, errors.New("database.path 不能为空"))
	}
	if c.Database.MaxOpenConns <= 0 {
		err = multierr.Append(err, errors.New("database.max_open_conns 必须大于0"))
	}
	if c.Database.MaxIdleConns < 0 {
		err = multierr.Append(err, errors.New("database.max_idle_conns 不能为负"))
	}
	if c.Database.ConnMaxLifetime < 0 {
		err = multierr.Append(err, errors.New("database.conn_max_lifetime 不能为负"))
	}
	if c.Logging.Level == "" {
		err = multierr.Append(err, errors.New("logging.level 不能为空"))
	}
	if c.Logging.Encoding == "" {
		err = multierr.Append(err, errors.New("logging.encoding 不能为空"))
	}
	if len(c.Logging.OutputPaths) == 0 {
		err = multierr.Append(err, errors.New("logging.output_paths 至少包含一个输出目标"))
	}
	if len(c.Logging.ErrorOutputPaths) == 0 {
		err = multierr.Append(err, errors.New("logging.error_output_paths 至少包含一个输出目标"))
	}

	if err != nil {
		return fmt.Errorf("%w: %w", ErrInvalid, err)
	}

	return nil
}

// Validate 校验滤波器参数，非法参数在任何 step 执行前被拒绝。
func (c FilterConfig) Validate() error {
	if err := c.check(); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalid, err)
	}
	return nil
}

func (c FilterConfig) check() error {
	var err error

	if c.PriorVariance <= 0 {
		err = multierr.Append(err, errors.New("filter.prior_variance 必须大于0"))
	}
	if c.ProcessNoise <= 0 || c.ProcessNoise >= 1 {
		err = multierr.Append(err, errors.New("filter.process_noise 必须位于(0,1)"))
	}
	if c.ObservationNoise <= 0 {
		err = multierr.Append(err, errors.New("filter.observation_noise 必须大于0"))
	}
	if c.AdaptiveWindow < 0 || c.AdaptiveWindow == 1 {
		err = multierr.Append(err, errors.New("filter.adaptive_window 必须为0或至少为2"))
	}
	if c.ResetWindow < 0 {
		err = multierr.Append(err, errors.New("filter.reset_window 不能为负"))
	}

	return err
}

// Validate 校验信号阈值。
func (c SignalConfig) Validate() error {
	if err := c.check(); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalid, err)
	}
	return nil
}

func (c SignalConfig) check() error {
	var err error

	if c.EntryThreshold <= 0 {
		err = multierr.Append(err, errors.New("signal.entry_threshold 必须大于0"))
	}
	if c.ExitThreshold <= 0 {
		err = multierr.Append(err, errors.New("signal.exit_threshold 必须大于0"))
	}
	if c.EntryThreshold <= c.ExitThreshold {
		err = multierr.Append(err, errors.New("signal.entry_threshold 必须大于 exit_threshold"))
	}
	switch c.ZScoreMode {
	case ZScorePredictive:
	case ZScoreRolling:
		if c.RollingWindow < 2 {
			err = multierr.Append(err, errors.New("signal.rolling_window 在 rolling 模式下至少为2"))
		}
	default:
		err = multierr.Append(err, fmt.Errorf("signal.zscore_mode 必须为 predictive 或 rolling，当前为 %q", c.ZScoreMode))
	}
	if c.MinHedgeRatio < 0 {
		err = multierr.Append(err, errors.New("signal.min_hedge_ratio 不能为负"))
	}

	return err
}

// Validate 校验账户参数。
func (c AccountConfig) Validate() error {
	if err := c.check(); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalid, err)
	}
	return nil
}

func (c AccountConfig) check() error {
	var err error

	if c.InitialEquity <= 0 {
		err = multierr.Append(err, errors.New("account.initial_equity 必须大于0"))
	}
	switch c.SizingMode {
	case SizingNotional:
		if c.TradeNotional <= 0 {
			err = multierr.Append(err, errors.New("account.trade_notional 必须大于0"))
		}
	case SizingRiskFraction:
		if c.RiskFraction <= 0 || c.RiskFraction > 1 {
			err = multierr.Append(err, errors.New("account.risk_fraction 必须位于(0,1]"))
		}
	default:
		err = multierr.Append(err, fmt.Errorf("account.sizing_mode 必须为 notional 或 risk_fraction，当前为 %q", c.SizingMode))
	}
	if c.TransactionCost < 0 {
		err = multierr.Append(err, errors.New("account.transaction_cost 不能为负"))
	}
	if c.Leverage < 1 {
		err = multierr.Append(err, errors.New("account.leverage 至少为1"))
	}
	if c.EnableMarginCheck && (c.MaintenanceMarginRatio <= 0 || c.MaintenanceMarginRatio >= 1) {
		err = multierr.Append(err, errors.New("account.maintenance_margin_ratio 必须位于(0,1)"))
	}

	return err
}

// Validate 校验参数扫描配置。
func (c SweepConfig) Validate() error {
	if err := c.check(); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalid, err)
	}
	return nil
}

func (c SweepConfig) check() error {
	var err error

	if len(c.EntryThresholds) != len(c.ExitThresholds) {
		err = multierr.Append(err, errors.New("sweep.entry_thresholds 与 exit_thresholds 长度必须一致"))
	}
	for i := range c.EntryThresholds {
		if i < len(c.ExitThresholds) && c.EntryThresholds[i] <= c.ExitThresholds[i] {
			err = multierr.Append(err, fmt.Errorf("sweep 第%d组阈值 entry 必须大于 exit", i))
		}
	}
	if c.Parallelism < 0 {
		err = multierr.Append(err, errors.New("sweep.parallelism 不能为负"))
	}

	return err
}
