package mock

import (
	"context"
	"fmt"
	"strings"

	"qecbench/internal/stabilizer"
	"qecbench/pkg/contract"
)

// Options: 调试后端配置（均可选）。
type Options struct {
	// Counts: 按场景标签（no_error / error_qubit_<q>）返回的固定计数，原样返回不缩放。
	Counts map[string]contract.Counts `json:"counts,omitempty"`
	// Device: 仅用于限流分组，不参与执行。
	Device string `json:"device,omitempty"`
}

// Backend 是无噪声的确定性后端：
// 未配置计数的场景返回理想结果：注入比特对应的综合征 + 纠正后的码字，全部 shots 落在同一结果串。
type Backend struct {
	counts map[string]contract.Counts
}

// New 构造 Backend。
func New(opts *Options) *Backend {
	b := &Backend{counts: map[string]contract.Counts{}}
	if opts != nil {
		for label, c := range opts.Counts {
			cp := make(contract.Counts, len(c))
			for k, v := range c {
				cp[k] = v
			}
			b.counts[strings.TrimSpace(label)] = cp
		}
	}
	return b
}

// Submit 实现 contract.Backend。
func (b *Backend) Submit(ctx context.Context, exp contract.Experiment, shots int) (contract.Counts, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if shots < 1 {
		return nil, fmt.Errorf("mock: %w: shots %d", contract.ErrInvalidInput, shots)
	}
	label := exp.Scenario().Label
	if c, ok := b.counts[label]; ok {
		out := make(contract.Counts, len(c))
		for k, v := range c {
			out[k] = v
		}
		return out, nil
	}
	return contract.Counts{Ideal(exp): shots}, nil
}

// Ideal 返回无噪声执行的结果串。
func Ideal(exp contract.Experiment) string {
	code := exp.Code
	syn := strings.Repeat("0", code.SyndromeLen())
	if q, ok := exp.Scenario().Injected(); ok && q >= 0 && q < code.NData {
		syn = stabilizer.SingleErrorSyndrome(code.Stabilizers, code.NData, q)
	}
	v := contract.Logical0
	if exp.InitialState == contract.StateOne {
		v = contract.Logical1
	}
	return contract.FormatOutcome(syn, stabilizer.Codeword(code, v))
}

var _ contract.Backend = (*Backend)(nil)
