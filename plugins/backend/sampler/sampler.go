package sampler

import (
	"context"
	"fmt"
	"math/rand/v2"

	"qecbench/internal/decoder"
	"qecbench/internal/stabilizer"
	"qecbench/pkg/contract"
)

// Options: 本地采样后端配置。
type Options struct {
	// Seed: 随机种子；同一种子与实验得到相同计数。
	Seed uint64 `json:"seed,omitempty"`
	// FlipProb: 每个数据比特在注入之后独立翻转的概率（默认 0，即仅单比特确定性注入）。
	FlipProb float64 `json:"flip_prob,omitempty"`
	// Device: 仅用于限流分组。
	Device string `json:"device,omitempty"`
}

// Backend 在计算基上经典地模拟比特翻转码的一次纠错周期：
// 编码 → 注入 → 可选独立翻转 → 奇偶校验测量 → 查表前馈纠正 → 末端测量。
// 结果串布局为 "<syndrome> <data>"。
type Backend struct {
	seed uint64
	p    float64
}

// New 构造 Backend；FlipProb 超出 [0,1] 返回 ConfigurationError。
func New(opts *Options) (*Backend, error) {
	var o Options
	if opts != nil {
		o = *opts
	}
	if o.FlipProb < 0 || o.FlipProb > 1 || o.FlipProb != o.FlipProb {
		return nil, contract.Configf("flip_prob", "must be within [0,1], got %v", o.FlipProb)
	}
	return &Backend{seed: o.Seed, p: o.FlipProb}, nil
}

// stream 区分不同实验的随机流，使结果与提交顺序无关。
func stream(exp contract.Experiment) uint64 {
	s := uint64(0)
	if exp.InjectedErrorQubit != nil {
		s = uint64(*exp.InjectedErrorQubit) + 1
	}
	if exp.InitialState != "" {
		s = s<<8 | uint64(exp.InitialState[0])
	}
	return s
}

// Submit 实现 contract.Backend。
func (b *Backend) Submit(ctx context.Context, exp contract.Experiment, shots int) (contract.Counts, error) {
	code := exp.Code
	if shots < 1 {
		return nil, fmt.Errorf("sampler: %w: shots %d", contract.ErrInvalidInput, shots)
	}
	if code.NData < 1 || len(code.Stabilizers) == 0 {
		return nil, fmt.Errorf("sampler: %w: empty code", contract.ErrInvalidInput)
	}
	inj := -1
	if q, ok := exp.Scenario().Injected(); ok {
		if q < 0 || q >= code.NData {
			return nil, fmt.Errorf("sampler: %w: injected qubit %d", contract.ErrInvalidInput, q)
		}
		inj = q
	}
	var prep func(*rand.Rand) contract.Logical
	switch exp.InitialState {
	case contract.StateZero, "":
		prep = func(*rand.Rand) contract.Logical { return contract.Logical0 }
	case contract.StateOne:
		prep = func(*rand.Rand) contract.Logical { return contract.Logical1 }
	case contract.StatePlus:
		// Z 基末端测量下 |+_L> 等概率坍缩到两个码字
		prep = func(r *rand.Rand) contract.Logical {
			if r.IntN(2) == 0 {
				return contract.Logical0
			}
			return contract.Logical1
		}
	default:
		return nil, fmt.Errorf("sampler: %w: initial state %q", contract.ErrInvalidInput, exp.InitialState)
	}

	rng := rand.New(rand.NewPCG(b.seed, stream(exp)))
	dec := decoder.New(code)
	words := map[contract.Logical]string{
		contract.Logical0: stabilizer.Codeword(code, contract.Logical0),
		contract.Logical1: stabilizer.Codeword(code, contract.Logical1),
	}
	counts := contract.Counts{}
	flipped := make([]bool, code.NData)
	data := make([]byte, code.NData)
	for s := 0; s < shots; s++ {
		if s&1023 == 0 {
			if err := ctx.Err(); err != nil {
				return nil, err
			}
		}
		copy(data, words[prep(rng)])
		for i := range flipped {
			flipped[i] = i == inj
			if b.p > 0 && rng.Float64() < b.p {
				flipped[i] = !flipped[i]
			}
			if flipped[i] {
				data[i] ^= 1
			}
		}
		syn := stabilizer.Syndrome(code.Stabilizers, flipped)
		c, _ := dec.Decode(syn)
		final := decoder.Apply(string(data), c)
		counts[contract.FormatOutcome(syn, final)]++
	}
	return counts, nil
}

var _ contract.Backend = (*Backend)(nil)
