package exchange

import (
	"context"
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"strconv"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/licongshen12/Kalman-Filter-Based-Trading/internal/config"
	"github.com/licongshen12/Kalman-Filter-Based-Trading/internal/market"
)

// LoadSeries 按配置来源构造对齐的价格序列。
func LoadSeries(ctx context.Context, cfg config.DataConfig, logger *zap.Logger) (market.Series, error) {
	if logger == nil {
		logger = zap.NewNop()
	}

	switch cfg.Source {
	case "exchange":
		return fetchSeries(ctx, cfg, logger)
	default:
		return loadCSVSeries(cfg, logger)
	}
}

// fetchSeries 并行拉取两条腿的K线后按时间戳对齐。
func fetchSeries(ctx context.Context, cfg config.DataConfig, logger *zap.Logger) (market.Series, error) {
	var (
		perpCandles   []market.Candle
		futureCandles []market.Candle
	)

	group, groupCtx := errgroup.WithContext(ctx)

	group.Go(func() error {
		data, err := NewPerpClient(cfg, logger).FetchCandles(groupCtx)
		if err != nil {
			return err
		}
		perpCandles = data
		return nil
	})

	group.Go(func() error {
		data, err := NewFutureClient(cfg, logger).FetchCandles(groupCtx)
		if err != nil {
			return err
		}
		futureCandles = data
		return nil
	})

	if err := group.Wait(); err != nil {
		return market.Series{}, err
	}

	series, err := market.Merge(futureCandles, perpCandles)
	if err != nil {
		return market.Series{}, err
	}

	logger.Info("价格序列拉取完成",
		zap.Int("perp_candles", len(perpCandles)),
		zap.Int("future_candles", len(futureCandles)),
		zap.Int("aligned_pairs", series.Len()),
	)

	return series, nil
}

// loadCSVSeries 读取两份已处理的CSV并按时间戳对齐。
func loadCSVSeries(cfg config.DataConfig, logger *zap.Logger) (market.Series, error) {
	futureCandles, err := readCandleCSV(cfg.FutureCSV)
	if err != nil {
		return market.Series{}, err
	}

	perpCandles, err := readCandleCSV(cfg.PerpCSV)
	if err != nil {
		return market.Series{}, err
	}

	series, err := market.Merge(futureCandles, perpCandles)
	if err != nil {
		return market.Series{}, err
	}

	logger.Info("价格序列加载完成",
		zap.String("perp_csv", cfg.PerpCSV),
		zap.String("future_csv", cfg.FutureCSV),
		zap.Int("aligned_pairs", series.Len()),
	)

	return series, nil
}

// readCandleCSV 解析 timestamp,open,high,low,close,volume 格式的CSV。
func readCandleCSV(path string) ([]market.Candle, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("exchange: 打开CSV %q 失败: %w", path, err)
	}
	defer file.Close()

	reader := csv.NewReader(file)
	reader.FieldsPerRecord = 6

	header, err := reader.Read()
	if err != nil {
		return nil, fmt.Errorf("exchange: 读取CSV %q 表头失败: %w", path, err)
	}
	if header[0] != "timestamp" {
		return nil, fmt.Errorf("exchange: CSV %q 表头首列应为 timestamp，当前为 %q", path, header[0])
	}

	var candles []market.Candle
	line := 1
	for {
		record, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("exchange: 读取CSV %q 第%d行失败: %w", path, line, err)
		}
		line++

		ts, err := parseTimestamp(record[0])
		if err != nil {
			return nil, fmt.Errorf("exchange: CSV %q 第%d行时间戳无效: %w", path, line, err)
		}

		values := make([]float64, 5)
		for i := 0; i < 5; i++ {
			v, err := strconv.ParseFloat(record[i+1], 64)
			if err != nil {
				return nil, fmt.Errorf("exchange: CSV %q 第%d行数值无效: %w", path, line, err)
			}
			values[i] = v
		}

		candles = append(candles, market.Candle{
			Timestamp: ts,
			Open:      values[0],
			High:      values[1],
			Low:       values[2],
			Close:     values[3],
			Volume:    values[4],
		})
	}

	if len(candles) == 0 {
		return nil, fmt.Errorf("exchange: CSV %q 不包含任何K线", path)
	}

	return candles, nil
}

func parseTimestamp(raw string) (time.Time, error) {
	layouts := []string{
		time.RFC3339,
		"2006-01-02 15:04:05",
		"2006-01-02T15:04:05",
	}
	for _, layout := range layouts {
		if ts, err := time.Parse(layout, raw); err == nil {
			return ts.UTC(), nil
		}
	}
	if ms, err := strconv.ParseInt(raw, 10, 64); err == nil {
		return time.UnixMilli(ms).UTC(), nil
	}
	return time.Time{}, fmt.Errorf("无法解析时间戳 %q", raw)
}
