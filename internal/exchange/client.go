// Package exchange 负责拉取并对齐永续与交割合约的历史价格。
package exchange

import (
	"context"
	"fmt"
	"time"

	ccxt "github.com/ccxt/ccxt/go/v4"
	"go.uber.org/zap"

	"github.com/licongshen12/Kalman-Filter-Based-Trading/internal/config"
	"github.com/licongshen12/Kalman-Filter-Based-Trading/internal/market"
)

// PerpClient 拉取 Binance USDⓈ-M 永续合约K线。
type PerpClient struct {
	cfg      config.DataConfig
	logger   *zap.Logger
	exchange *ccxt.Binanceusdm
}

// NewPerpClient 构造永续合约数据客户端。
func NewPerpClient(cfg config.DataConfig, logger *zap.Logger) *PerpClient {
	if logger == nil {
		logger = zap.NewNop()
	}

	ex := ccxt.NewBinanceusdm(map[string]interface{}{
		"enableRateLimit": true,
		"options": map[string]interface{}{
			"adjustForTimeDifference": true,
			"defaultType":             "future",
		},
	})

	return &PerpClient{
		cfg:      cfg,
		logger:   logger,
		exchange: ex,
	}
}

// FetchCandles 拉取永续合约K线。
func (c *PerpClient) FetchCandles(ctx context.Context) ([]market.Candle, error) {
	var raw []ccxt.OHLCV

	err := callWithRetry(ctx, c.logger, c.cfg.Retry, "fetch_perp_ohlcv", func() error {
		result, err := c.exchange.FetchOHLCV(
			c.cfg.PerpMarket,
			ccxt.WithFetchOHLCVTimeframe(c.cfg.Timeframe),
			ccxt.WithFetchOHLCVLimit(int64(c.cfg.Limit)),
		)
		if err != nil {
			return err
		}
		raw = result
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("exchange: 拉取永续K线失败: %w", err)
	}

	return convertCandles(raw), nil
}

// FutureClient 拉取 Deribit 交割合约K线。
type FutureClient struct {
	cfg      config.DataConfig
	logger   *zap.Logger
	exchange *ccxt.Deribit
}

// NewFutureClient 构造交割合约数据客户端。
func NewFutureClient(cfg config.DataConfig, logger *zap.Logger) *FutureClient {
	if logger == nil {
		logger = zap.NewNop()
	}

	ex := ccxt.NewDeribit(map[string]interface{}{
		"enableRateLimit": true,
	})

	return &FutureClient{
		cfg:      cfg,
		logger:   logger,
		exchange: ex,
	}
}

// FetchCandles 拉取交割合约K线。
func (c *FutureClient) FetchCandles(ctx context.Context) ([]market.Candle, error) {
	var raw []ccxt.OHLCV

	err := callWithRetry(ctx, c.logger, c.cfg.Retry, "fetch_future_ohlcv", func() error {
		result, err := c.exchange.FetchOHLCV(
			c.cfg.FutureInstrument,
			ccxt.WithFetchOHLCVTimeframe(c.cfg.Timeframe),
			ccxt.WithFetchOHLCVLimit(int64(c.cfg.Limit)),
		)
		if err != nil {
			return err
		}
		raw = result
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("exchange: 拉取交割K线失败: %w", err)
	}

	return convertCandles(raw), nil
}

func convertCandles(raw []ccxt.OHLCV) []market.Candle {
	candles := make([]market.Candle, 0, len(raw))
	for _, item := range raw {
		candles = append(candles, market.Candle{
			Timestamp: time.UnixMilli(item.Timestamp).UTC(),
			Open:      item.Open,
			High:      item.High,
			Low:       item.Low,
			Close:     item.Close,
			Volume:    item.Volume,
		})
	}
	return candles
}

func callWithRetry(ctx context.Context, logger *zap.Logger, retry config.RetryConfig, operation string, fn func() error) error {
	attempt := 0
	delay := retry.MinDelay
	if delay <= 0 {
		delay = 500 * time.Millisecond
	}
	maxDelay := retry.MaxDelay
	if maxDelay <= 0 {
		maxDelay = 5 * time.Second
	}
	maxAttempts := retry.MaxAttempts
	if maxAttempts <= 0 {
		maxAttempts = 1
	}

	for {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}

		attempt++
		start := time.Now()
		err := fn()
		duration := time.Since(start)
		if err == nil {
			if attempt > 1 {
				logger.Info("交易所调用重试后成功",
					zap.String("operation", operation),
					zap.Int("attempts", attempt),
					zap.Duration("latency", duration),
				)
			}
			return nil
		}

		if !IsRetryable(err) || attempt >= maxAttempts {
			logger.Error("交易所调用失败",
				zap.String("operation", operation),
				zap.Int("attempts", attempt),
				zap.Duration("latency", duration),
				zap.Error(err),
			)
			return err
		}

		wait := delay
		if wait > maxDelay {
			wait = maxDelay
		}

		logger.Warn("交易所调用失败，等待重试",
			zap.String("operation", operation),
			zap.Int("attempt", attempt),
			zap.Duration("wait", wait),
			zap.Error(err),
		)

		timer := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}

		delay *= 2
		if delay > maxDelay {
			delay = maxDelay
		}
	}
}
