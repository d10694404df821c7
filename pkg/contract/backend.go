package contract

import (
	"context"
	"strings"
)

// InitialState: 编码前逻辑比特的制备态。
type InitialState string

const (
	StateZero InitialState = "0"
	StateOne  InitialState = "1"
	StatePlus InitialState = "+"
)

// Experiment: 提交给执行后端的实验描述。
// InjectedErrorQubit 为 nil 表示不注入错误；否则 0 <= q < Code.NData。
type Experiment struct {
	Code               StabilizerCode
	InitialState       InitialState
	InjectedErrorQubit *int
}

// Backend: 量子执行后端（外部协作者）。
// 单次调用、同步返回；应尊重 ctx 取消。执行失败时返回错误，由驱动包装为 BackendError。
// 返回的 Counts 键必须符合 FormatOutcome 的布局。
type Backend interface {
	Submit(ctx context.Context, exp Experiment, shots int) (Counts, error)
}

// OutcomeSeparator: 结果串中综合征段与数据段的分隔符。
const OutcomeSeparator = " "

// FormatOutcome 生成 "<syndrome bits><space><final data bits>"。
// 综合征段：第 k 个字符为第 m-1-k 个稳定子的结果（寄存器显示序，末位稳定子在最左）；
// 数据段：第 i 个字符为数据比特 i。
func FormatOutcome(syndrome, data string) string {
	return syndrome + OutcomeSeparator + data
}

// SplitOutcome 拆分结果串。数据段恒取最后一个字段；仅当恰有两个字段时 ok=true。
func SplitOutcome(outcome string) (syndrome, data string, ok bool) {
	f := strings.Fields(outcome)
	switch len(f) {
	case 0:
		return "", "", false
	case 2:
		return f[0], f[1], true
	default:
		return "", f[len(f)-1], false
	}
}

// Scenario 返回实验对应的扫描场景（标签由注入比特决定）。
func (e Experiment) Scenario() Scenario {
	if e.InjectedErrorQubit == nil {
		return NoErrorScenario()
	}
	return ErrorScenario(*e.InjectedErrorQubit)
}
