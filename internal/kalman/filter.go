// Package kalman 实现动态线性回归的递归贝叶斯估计。
// 模型为 A ≈ α + β·B，状态向量 [α, β] 服从高斯分布，
// 过程噪声使 β 随时间缓慢漂移，从而得到动态对冲比率。
package kalman

import (
	"fmt"
	"math"

	talib "github.com/markcheno/go-talib"
	"gonum.org/v1/gonum/mat"

	"github.com/licongshen12/Kalman-Filter-Based-Trading/internal/config"
)

const (
	stateDim = 2

	// varianceFloor 为预测方差下限，防止除零或负方差向下游传播。
	varianceFloor = 1e-12

	// psdTolerance 为协方差正半定检查的数值容差。
	psdTolerance = 1e-9
)

// StepResult 为单步滤波输出。
// Predicted、Residual 与 Variance 均基于更新前的预测状态，
// 更新后的状态只通过 Intercept 与 HedgeRatio 暴露。
type StepResult struct {
	Step       int
	Predicted  float64
	Residual   float64
	Variance   float64
	Intercept  float64
	HedgeRatio float64
}

// Filter 维护对冲比率的高斯置信状态，单线程使用。
type Filter struct {
	cfg config.FilterConfig

	state *mat.VecDense
	cov   *mat.SymDense

	processNoise *mat.SymDense
	obsNoise     float64

	residuals []float64
	step      int
}

// New 构造滤波器，非法配置在任何 Step 执行前被拒绝。
func New(cfg config.FilterConfig) (*Filter, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("kalman: %w", err)
	}

	f := &Filter{cfg: cfg}
	f.reset()
	return f, nil
}

// reset 将状态恢复为先验，滚动窗口模式下周期性调用。
func (f *Filter) reset() {
	f.state = mat.NewVecDense(stateDim, []float64{f.cfg.PriorIntercept, f.cfg.PriorHedgeRatio})
	f.cov = mat.NewSymDense(stateDim, []float64{
		f.cfg.PriorVariance, 0,
		0, f.cfg.PriorVariance,
	})

	// Vw = delta/(1-delta) * I，延续原始参数化方式。
	q := f.cfg.ProcessNoise / (1 - f.cfg.ProcessNoise)
	f.processNoise = mat.NewSymDense(stateDim, []float64{
		q, 0,
		0, q,
	})

	f.obsNoise = f.cfg.ObservationNoise
	f.residuals = f.residuals[:0]
	f.step = 0
}

// Step 消费一对观测价格并执行一次预测-更新循环。
// priceA 为交割合约价格，priceB 为永续合约价格。
// 协方差更新破坏正半定性时返回 *DivergenceError。
func (f *Filter) Step(priceA, priceB float64) (StepResult, error) {
	if f.cfg.ResetWindow > 0 && f.step > 0 && f.step%f.cfg.ResetWindow == 0 {
		f.reset()
	}

	f.step++
	h := mat.NewVecDense(stateDim, []float64{1, priceB})

	// 预测：状态转移为恒等，协方差加上过程噪声。
	f.cov.AddSym(f.cov, f.processNoise)

	predicted := mat.Dot(f.state, h)
	residual := priceA - predicted

	variance := mat.Inner(h, f.cov, h) + f.obsNoise
	if variance < varianceFloor {
		variance = varianceFloor
	}

	// 增益 K = P·h / S。
	gain := mat.NewVecDense(stateDim, nil)
	gain.MulVec(f.cov, h)
	gain.ScaleVec(1/variance, gain)

	f.state.AddScaledVec(f.state, residual, gain)

	if err := f.updateCovariance(gain, h); err != nil {
		return StepResult{}, err
	}

	f.recordResidual(residual)

	return StepResult{
		Step:       f.step,
		Predicted:  predicted,
		Residual:   residual,
		Variance:   variance,
		Intercept:  f.state.AtVec(0),
		HedgeRatio: f.state.AtVec(1),
	}, nil
}

// updateCovariance 以 Joseph 形式更新协方差并检查正半定性。
func (f *Filter) updateCovariance(gain, h *mat.VecDense) error {
	// A = I - K·hᵀ
	var kh mat.Dense
	kh.Outer(1, gain, h)
	a := identity(stateDim)
	a.Sub(a, &kh)

	// P' = A·P·Aᵀ + R·K·Kᵀ
	var apat mat.Dense
	apat.Product(a, f.cov, a.T())

	var kkt mat.Dense
	kkt.Outer(f.obsNoise, gain, gain)
	apat.Add(&apat, &kkt)

	// 对称化后写回，消除浮点不对称。
	for i := 0; i < stateDim; i++ {
		for j := i; j < stateDim; j++ {
			f.cov.SetSym(i, j, 0.5*(apat.At(i, j)+apat.At(j, i)))
		}
	}

	return f.checkPSD()
}

// checkPSD 校验协方差是否仍为正半定矩阵。
func (f *Filter) checkPSD() error {
	p00 := f.cov.At(0, 0)
	p11 := f.cov.At(1, 1)
	p01 := f.cov.At(0, 1)

	for _, v := range []float64{p00, p11, p01} {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return &DivergenceError{Step: f.step, Reason: "协方差出现 NaN/Inf"}
		}
	}
	if p00 < -psdTolerance || p11 < -psdTolerance {
		return &DivergenceError{Step: f.step, Reason: "协方差对角元为负"}
	}

	det := p00*p11 - p01*p01
	scale := math.Max(p00*p11, 1)
	if det < -psdTolerance*scale {
		return &DivergenceError{Step: f.step, Reason: "协方差行列式为负"}
	}

	return nil
}

// recordResidual 维护残差窗口并在自适应模式下重估观测噪声。
func (f *Filter) recordResidual(residual float64) {
	if f.cfg.AdaptiveWindow <= 0 {
		return
	}

	f.residuals = append(f.residuals, residual)
	if len(f.residuals) > f.cfg.AdaptiveWindow {
		f.residuals = f.residuals[len(f.residuals)-f.cfg.AdaptiveWindow:]
	}
	if len(f.residuals) < f.cfg.AdaptiveWindow {
		return
	}

	std := talib.StdDev(f.residuals, len(f.residuals), 1.0)
	latest := std[len(std)-1]
	if latest > 0 && !math.IsNaN(latest) {
		f.obsNoise = latest * latest
	}
}

// State 返回当前 [截距, 对冲比率] 估计。
func (f *Filter) State() (intercept, hedgeRatio float64) {
	return f.state.AtVec(0), f.state.AtVec(1)
}

// Covariance 返回协方差副本，便于检视与测试。
func (f *Filter) Covariance() *mat.SymDense {
	dst := mat.NewSymDense(stateDim, nil)
	dst.CopySym(f.cov)
	return dst
}

// StepCount 返回已消费的观测数量。
func (f *Filter) StepCount() int {
	return f.step
}

func identity(n int) *mat.Dense {
	m := mat.NewDense(n, n, nil)
	for i := 0; i < n; i++ {
		m.Set(i, i, 1)
	}
	return m
}
