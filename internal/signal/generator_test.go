package signal

import (
	"errors"
	"testing"

	"github.com/licongshen12/Kalman-Filter-Based-Trading/internal/config"
	"github.com/licongshen12/Kalman-Filter-Based-Trading/internal/kalman"
)

func validSignalConfig() config.SignalConfig {
	return config.SignalConfig{
		EntryThreshold: 2.0,
		ExitThreshold:  0.5,
		ZScoreMode:     config.ZScorePredictive,
		RollingWindow:  40,
		MinHedgeRatio:  0.05,
	}
}

func stepResult(residual, variance, hedgeRatio float64) kalman.StepResult {
	return kalman.StepResult{
		Residual:   residual,
		Variance:   variance,
		HedgeRatio: hedgeRatio,
	}
}

func TestNewGenerator_RejectsInvalidThresholds(t *testing.T) {
	cases := []struct {
		name   string
		mutate func(*config.SignalConfig)
	}{
		{"entry below exit", func(c *config.SignalConfig) { c.EntryThreshold = 0.3 }},
		{"entry equals exit", func(c *config.SignalConfig) { c.EntryThreshold = c.ExitThreshold }},
		{"zero exit", func(c *config.SignalConfig) { c.ExitThreshold = 0 }},
		{"unknown mode", func(c *config.SignalConfig) { c.ZScoreMode = "kalman" }},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			cfg := validSignalConfig()
			tc.mutate(&cfg)
			if _, err := NewGenerator(cfg); err == nil {
				t.Fatalf("expected config error, got nil")
			} else if !errors.Is(err, config.ErrInvalid) {
				t.Fatalf("expected ErrInvalid, got %v", err)
			}
		})
	}
}

func TestEvaluate_ThresholdRule(t *testing.T) {
	cases := []struct {
		name       string
		residual   float64
		inPosition bool
		want       Signal
	}{
		{"flat small residual holds", 0.5, false, Hold},
		{"flat high z enters short", 3.0, false, ShortSpread},
		{"flat low z enters long", -3.0, false, LongSpread},
		{"flat at threshold holds", 2.0, false, Hold},
		{"open reverted exits", 0.2, true, Exit},
		{"open high z holds", 3.0, true, Hold},
		{"open negative high z holds", -3.0, true, Hold},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			gen, err := NewGenerator(validSignalConfig())
			if err != nil {
				t.Fatalf("NewGenerator returned error: %v", err)
			}

			got, _ := gen.Evaluate(stepResult(tc.residual, 1.0, 1.0), tc.inPosition)
			if got != tc.want {
				t.Errorf("got %v, want %v", got, tc.want)
			}
		})
	}
}

func TestEvaluate_NoPyramiding(t *testing.T) {
	gen, err := NewGenerator(validSignalConfig())
	if err != nil {
		t.Fatalf("NewGenerator returned error: %v", err)
	}

	// 持仓期间的任何 z 值都不允许再次进场。
	for _, residual := range []float64{5, -5, 2.1, -2.1, 100} {
		got, _ := gen.Evaluate(stepResult(residual, 1.0, 1.0), true)
		if got == LongSpread || got == ShortSpread {
			t.Errorf("residual %f produced entry signal %v while in position", residual, got)
		}
	}
}

func TestEvaluate_HedgeRatioGate(t *testing.T) {
	gen, err := NewGenerator(validSignalConfig())
	if err != nil {
		t.Fatalf("NewGenerator returned error: %v", err)
	}

	for _, hedge := range []float64{-1.0, 0, 0.01} {
		got, _ := gen.Evaluate(stepResult(5.0, 1.0, hedge), false)
		if got != Hold {
			t.Errorf("hedge ratio %f should block entry, got %v", hedge, got)
		}
	}

	// 出场不受对冲比率限制。
	got, _ := gen.Evaluate(stepResult(0.1, 1.0, -1.0), true)
	if got != Exit {
		t.Errorf("expected Exit despite negative hedge ratio, got %v", got)
	}
}

func TestEvaluate_ZeroVarianceHolds(t *testing.T) {
	gen, err := NewGenerator(validSignalConfig())
	if err != nil {
		t.Fatalf("NewGenerator returned error: %v", err)
	}

	got, z := gen.Evaluate(stepResult(10.0, 0, 1.0), false)
	if got != Hold || z != 0 {
		t.Errorf("zero variance must hold without z-score, got %v z=%f", got, z)
	}
}

func TestEvaluate_RollingModeWaitsForWindow(t *testing.T) {
	cfg := validSignalConfig()
	cfg.ZScoreMode = config.ZScoreRolling
	cfg.RollingWindow = 5
	cfg.EntryThreshold = 1.5
	cfg.ExitThreshold = 0.25

	gen, err := NewGenerator(cfg)
	if err != nil {
		t.Fatalf("NewGenerator returned error: %v", err)
	}

	// 窗口未满前不出信号。
	for i := 0; i < 4; i++ {
		got, _ := gen.Evaluate(stepResult(float64(i), 1.0, 1.0), false)
		if got != Hold {
			t.Fatalf("expected Hold before window fills, got %v", got)
		}
	}

	// 窗口随后被一个离群残差击穿，应产生进场信号。
	got, z := gen.Evaluate(stepResult(100.0, 1.0, 1.0), false)
	if got != ShortSpread {
		t.Errorf("expected ShortSpread on outlier residual, got %v (z=%f)", got, z)
	}
}
