package kalman

import (
	"errors"
	"fmt"
)

// ErrDiverged 标记滤波器数值发散，可用 errors.Is 识别。
var ErrDiverged = errors.New("滤波器发散")

// DivergenceError 携带发散发生的步数与原因。
// 协方差失去正半定性后状态不再可信，调用方必须停止推进该滤波器。
type DivergenceError struct {
	Step   int
	Reason string
}

func (e *DivergenceError) Error() string {
	return fmt.Sprintf("kalman: %v: 第%d步 %s", ErrDiverged, e.Step, e.Reason)
}

func (e *DivergenceError) Unwrap() error {
	return ErrDiverged
}
