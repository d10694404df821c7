package contract

import "fmt"

// PauliString: 稠密 Pauli 串，长度 = NData，字符 ∈ {I,X,Y,Z}；第 i 个字符作用于数据比特 i。
type PauliString string

// Label 返回稀疏写法（例如 "ZZI" → "Z0Z1"）；全 I 时返回 "I"。
func (p PauliString) Label() string {
	out := ""
	for i, r := range p {
		if r == 'I' {
			continue
		}
		out += fmt.Sprintf("%c%d", r, i)
	}
	if out == "" {
		return "I"
	}
	return out
}

// Correction: 译码结果。NoError 表示不做纠正；否则为需要翻转的数据比特下标。
type Correction int

// NoError: 不纠正（含“未知综合征”降级）。
const NoError Correction = -1

// IsNoError 报告是否为“不纠正”。
func (c Correction) IsNoError() bool { return c < 0 }

func (c Correction) String() string {
	if c.IsNoError() {
		return "no_error"
	}
	return fmt.Sprintf("qubit_%d", int(c))
}

// StabilizerCode: 稳定子码的静态描述。
// 约束：
// - NData >= 1，NLogical >= 1；
// - Stabilizers 每项长度 = NData；
// - SyndromeTable 的键长度 = len(Stabilizers)，值为 NoError 或 0..NData-1；
// - 构造后只读，调用方不得修改切片/映射。
type StabilizerCode struct {
	Name          string
	NData         int
	NLogical      int
	Stabilizers   []PauliString
	SyndromeTable map[string]Correction
}

// SyndromeLen 返回综合征比特数。
func (c StabilizerCode) SyndromeLen() int { return len(c.Stabilizers) }

// Logical: 由末态数据比特推断出的逻辑值。
type Logical string

const (
	Logical0      Logical = "0"
	Logical1      Logical = "1"
	Indeterminate Logical = "?"
)

// Scenario: 基准扫描中的一项。InjectedErrorQubit 为 nil 表示无错误对照组。
type Scenario struct {
	Label              string `json:"label"`
	InjectedErrorQubit *int   `json:"injected_error_qubit,omitempty"`
}

// Injected 返回注入的比特下标；对照组返回 ok=false。
func (s Scenario) Injected() (int, bool) {
	if s.InjectedErrorQubit == nil {
		return 0, false
	}
	return *s.InjectedErrorQubit, true
}

// NoErrorScenario 构造无错误对照组。
func NoErrorScenario() Scenario { return Scenario{Label: "no_error"} }

// ErrorScenario 构造在第 q 个数据比特注入比特翻转的场景。
func ErrorScenario(q int) Scenario {
	qq := q
	return Scenario{Label: fmt.Sprintf("error_qubit_%d", q), InjectedErrorQubit: &qq}
}

// Counts: 测量结果 → 次数。键布局见 FormatOutcome。
type Counts map[string]int

// Total 返回总次数（忽略非正计数）。
func (c Counts) Total() int {
	n := 0
	for _, v := range c {
		if v > 0 {
			n += v
		}
	}
	return n
}

// DecodeTally: 单个场景内综合征译码的统计（用于观测，不参与错误率计算）。
type DecodeTally struct {
	Shots int `json:"shots"`
	// Matched: 译码纠正与注入错误一致的次数（对照组为“译码为 NoError”的次数）。
	Matched int `json:"matched"`
	// Misses: 综合征不在表中、被降级为 NoError 的次数。
	Misses int `json:"misses"`
}

// Accuracy 返回 Matched/Shots；Shots 为 0 时返回 0。
func (t DecodeTally) Accuracy() float64 {
	if t.Shots <= 0 {
		return 0
	}
	return float64(t.Matched) / float64(t.Shots)
}

// ScenarioResult: 单个场景的结果；填充后不再修改。
type ScenarioResult struct {
	Scenario         Scenario    `json:"scenario"`
	Counts           Counts      `json:"counts"`
	LogicalErrorRate float64     `json:"logical_error_rate"`
	Decode           DecodeTally `json:"decode"`
}

// CorrectionEvent: 一次纠错尝试的离散标记，按 Time 排序。
type CorrectionEvent struct {
	Time    float64 `json:"time"`
	Success bool    `json:"success"`
}

// ResultSeries: 供可视化渲染器消费的时间序列。
// 约束：len(Times) == len(Fidelities) == len(LogicalErrorProb)；Times 非递减。
type ResultSeries struct {
	Times            []float64         `json:"times"`
	Fidelities       []float64         `json:"fidelities"`
	LogicalErrorProb []float64         `json:"logical_error_prob"`
	CorrectionEvents []CorrectionEvent `json:"correction_events"`
}

// RunID: 一次基准运行的标识（通常为 UUID）。
type RunID string
