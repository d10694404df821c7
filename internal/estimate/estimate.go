package estimate

import (
	"sort"

	"qecbench/internal/classify"
	"qecbench/internal/decoder"
	"qecbench/pkg/contract"
)

// Tally: 逻辑错误统计（整数累加，与 Counts 遍历顺序无关）。
type Tally struct {
	Shots         int
	Errors        int
	Indeterminate int
	// Malformed: 不符合 "<syndrome> <data>" 布局的结果串（仍按最后一段分类）。
	Malformed int
}

// Rate 返回 Errors/Shots；Shots 为 0 时返回 0（“无数据”不视为失败）。
func (t Tally) Rate() float64 {
	if t.Shots <= 0 {
		return 0
	}
	return float64(t.Errors) / float64(t.Shots)
}

// Estimator 绑定码描述的分类器与译码器。只读，可并发使用。
type Estimator struct {
	cls classify.Classifier
	dec *decoder.Decoder
}

// New 构造 Estimator。
func New(code contract.StabilizerCode) *Estimator {
	return &Estimator{cls: classify.New(code), dec: decoder.New(code)}
}

// Estimate 返回逻辑错误率：分类结果 != expected 或为 Indeterminate 的次数 / 总次数。
func (e *Estimator) Estimate(counts contract.Counts, expected contract.Logical) float64 {
	return e.Tally(counts, expected).Rate()
}

// Tally 统计 counts；非正计数忽略。
func (e *Estimator) Tally(counts contract.Counts, expected contract.Logical) Tally {
	var t Tally
	for outcome, n := range counts {
		if n <= 0 {
			continue
		}
		t.Shots += n
		_, data, ok := contract.SplitOutcome(outcome)
		if !ok {
			t.Malformed += n
		}
		got := e.cls.Classify(data)
		if got == contract.Indeterminate {
			t.Indeterminate += n
			t.Errors += n
			continue
		}
		if got != expected {
			t.Errors += n
		}
	}
	return t
}

// Decode 对每个结果的综合征段译码，统计与注入错误一致的次数与表外综合征。
// injected 为 nil 时，“一致”指译码为 NoError。返回的 missed 为去重后按字典序排列的表外综合征。
func (e *Estimator) Decode(counts contract.Counts, injected *int) (contract.DecodeTally, []string) {
	want := contract.NoError
	if injected != nil {
		want = contract.Correction(*injected)
	}
	var t contract.DecodeTally
	seen := map[string]struct{}{}
	for outcome, n := range counts {
		if n <= 0 {
			continue
		}
		t.Shots += n
		syn, _, _ := contract.SplitOutcome(outcome)
		c, miss := e.dec.Decode(syn)
		if miss {
			t.Misses += n
			seen[syn] = struct{}{}
			continue
		}
		if c == want {
			t.Matched += n
		}
	}
	missed := make([]string, 0, len(seen))
	for s := range seen {
		missed = append(missed, s)
	}
	sort.Strings(missed)
	return t, missed
}
