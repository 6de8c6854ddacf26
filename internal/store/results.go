package store

import (
	"context"
	"fmt"
	"time"

	"github.com/licongshen12/Kalman-Filter-Based-Trading/internal/backtest"
)

// RunSummary 为历史回测的摘要记录。
type RunSummary struct {
	ID          int64
	Label       string
	StartedAt   time.Time
	Termination string
	Steps       int
	Trades      int
	TotalReturn float64
	FinalEquity float64
}

// SaveResult 持久化一次回测结果及其成交流水，返回运行ID。
func (s *Store) SaveResult(ctx context.Context, startedAt time.Time, result backtest.Result) (int64, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("store: 开启事务失败: %w", err)
	}
	defer func() {
		_ = tx.Rollback()
	}()

	res, err := tx.ExecContext(ctx,
		`INSERT INTO backtest_runs (label, started_at, termination, divergence_step, steps, trades, total_return, max_drawdown, sharpe_ratio, final_equity)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		result.Label,
		startedAt.UTC().Format(time.RFC3339),
		result.TerminationReason,
		result.DivergenceStep,
		len(result.Records),
		result.Metrics.Trades,
		result.Metrics.TotalReturn,
		result.Metrics.MaxDrawdown,
		result.Metrics.SharpeRatio,
		result.FinalEquity,
	)
	if err != nil {
		return 0, fmt.Errorf("store: 写入回测记录失败: %w", err)
	}

	runID, err := res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("store: 获取运行ID失败: %w", err)
	}

	for _, trade := range result.Trades {
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO backtest_trades (run_id, occurred_at, action, direction, price_a, price_b, units_a, units_b, hedge_ratio, realized_pnl, cost)
			 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			runID,
			trade.Timestamp.UTC().Format(time.RFC3339),
			trade.Action,
			trade.Direction.String(),
			trade.PriceA,
			trade.PriceB,
			trade.UnitsA,
			trade.UnitsB,
			trade.HedgeRatio,
			trade.RealizedPnL,
			trade.Cost,
		); err != nil {
			return 0, fmt.Errorf("store: 写入成交流水失败: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("store: 提交事务失败: %w", err)
	}

	return runID, nil
}

// RecentRuns 返回最近的回测摘要，按开始时间倒序。
func (s *Store) RecentRuns(ctx context.Context, limit int) ([]RunSummary, error) {
	if limit <= 0 {
		limit = 10
	}

	rows, err := s.db.QueryContext(ctx,
		`SELECT id, label, started_at, termination, steps, trades, total_return, final_equity
		 FROM backtest_runs ORDER BY id DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("store: 查询回测记录失败: %w", err)
	}
	defer rows.Close()

	var summaries []RunSummary
	for rows.Next() {
		var summary RunSummary
		var startedAt string
		if err := rows.Scan(&summary.ID, &summary.Label, &startedAt, &summary.Termination,
			&summary.Steps, &summary.Trades, &summary.TotalReturn, &summary.FinalEquity); err != nil {
			return nil, fmt.Errorf("store: 扫描回测记录失败: %w", err)
		}
		if ts, err := time.Parse(time.RFC3339, startedAt); err == nil {
			summary.StartedAt = ts
		}
		summaries = append(summaries, summary)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("store: 遍历回测记录失败: %w", err)
	}

	return summaries, nil
}
