package config

import (
	"errors"
	"fmt"
	"strings"

	mapstructure "github.com/go-viper/mapstructure/v2"
	"github.com/spf13/viper"
)

const (
	defaultConfigPath = "configs/config.yaml"
	envPrefix         = "kalman"
)

// Load 读取配置文件并结合环境变量返回 Config。
func Load(path string) (*Config, error) {
	v := viper.New()

	if path == "" {
		path = defaultConfigPath
	}

	v.SetConfigFile(path)
	v.SetConfigType("yaml")

	v.SetEnvPrefix(envPrefix)
	replacer := strings.NewReplacer(".", "_")
	v.SetEnvKeyReplacer(replacer)
	v.AutomaticEnv()

	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if errors.As(err, &notFound) {
			return nil, fmt.Errorf("未找到配置文件 %q: %w", path, err)
		}
		return nil, fmt.Errorf("读取配置文件失败: %w", err)
	}

	var cfg Config
	if err := v.Unmarshal(&cfg, decodeHook()); err != nil {
		return nil, fmt.Errorf("解析配置失败: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("app.environment", "development")

	v.SetDefault("data.source", "csv")
	v.SetDefault("data.perp_csv", "data/processed/btc_usdt_processed.csv")
	v.SetDefault("data.future_csv", "data/processed/btc_3m_processed.csv")
	v.SetDefault("data.perp_market", "BTC/USDT:USDT")
	v.SetDefault("data.future_instrument", "BTC-27JUN25")
	v.SetDefault("data.timeframe", "1m")
	v.SetDefault("data.limit", 1000)
	v.SetDefault("data.retry.max_attempts", 5)
	v.SetDefault("data.retry.min_delay", "500ms")
	v.SetDefault("data.retry.max_delay", "5s")

	v.SetDefault("filter.prior_intercept", 0.0)
	v.SetDefault("filter.prior_hedge_ratio", 0.0)
	v.SetDefault("filter.prior_variance", 1.0)
	v.SetDefault("filter.process_noise", 1e-5)
	v.SetDefault("filter.observation_noise", 0.001)
	v.SetDefault("filter.adaptive_window", 0)
	v.SetDefault("filter.reset_window", 0)

	v.SetDefault("signal.entry_threshold", 2.0)
	v.SetDefault("signal.exit_threshold", 0.5)
	v.SetDefault("signal.zscore_mode", ZScorePredictive)
	v.SetDefault("signal.rolling_window", 40)
	v.SetDefault("signal.min_hedge_ratio", 0.05)

	v.SetDefault("account.initial_equity", 100000.0)
	v.SetDefault("account.sizing_mode", SizingNotional)
	v.SetDefault("account.trade_notional", 100000.0)
	v.SetDefault("account.risk_fraction", 0.10)
	v.SetDefault("account.transaction_cost", 0.0)
	v.SetDefault("account.leverage", 10.0)
	v.SetDefault("account.maintenance_margin_ratio", 0.25)
	v.SetDefault("account.enable_margin_check", false)

	v.SetDefault("sweep.parallelism", 4)

	v.SetDefault("database.path", "data/backtest.db")
	v.SetDefault("database.max_open_conns", 4)
	v.SetDefault("database.max_idle_conns", 4)
	v.SetDefault("database.conn_max_lifetime", "1h")
	v.SetDefault("database.in_memory", false)

	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.encoding", "console")
	v.SetDefault("logging.development", true)
	v.SetDefault("logging.output_paths", []string{"stdout"})
	v.SetDefault("logging.error_output_paths", []string{"stderr"})
}

func decodeHook() viper.DecoderConfigOption {
	return func(dc *mapstructure.DecoderConfig) {
		dc.TagName = "mapstructure"
		dc.DecodeHook = mapstructure.ComposeDecodeHookFunc(
			mapstructure.StringToTimeDurationHookFunc(),
			mapstructure.StringToSliceHookFunc(","),
		)
	}
}
