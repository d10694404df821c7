package series

import (
	"fmt"
	"math"

	"qecbench/pkg/contract"
)

// Build 将扫描结果转换为 ResultSeries（纯函数，不回查后端）。
// - times[i] = i*timeStep，fidelities[i] = 1-rate，logical_error_prob[i] = rate；
// - 每个场景一个 CorrectionEvent，success = rate < threshold。
// timeStep 须为非负有限值，threshold 须在 [0,1]。
func Build(results []contract.ScenarioResult, timeStep, threshold float64) (contract.ResultSeries, error) {
	if math.IsNaN(timeStep) || math.IsInf(timeStep, 0) || timeStep < 0 {
		return contract.ResultSeries{}, fmt.Errorf("%w: time step %v", contract.ErrInvalidInput, timeStep)
	}
	if math.IsNaN(threshold) || threshold < 0 || threshold > 1 {
		return contract.ResultSeries{}, fmt.Errorf("%w: threshold %v outside [0,1]", contract.ErrInvalidInput, threshold)
	}
	n := len(results)
	s := contract.ResultSeries{
		Times:            make([]float64, n),
		Fidelities:       make([]float64, n),
		LogicalErrorProb: make([]float64, n),
		CorrectionEvents: make([]contract.CorrectionEvent, n),
	}
	for i, r := range results {
		rate := r.LogicalErrorRate
		if math.IsNaN(rate) || rate < 0 || rate > 1 {
			return contract.ResultSeries{}, fmt.Errorf("%w: scenario %s rate %v outside [0,1]",
				contract.ErrInvariantViolation, r.Scenario.Label, rate)
		}
		t := float64(i) * timeStep
		s.Times[i] = t
		s.Fidelities[i] = 1 - rate
		s.LogicalErrorProb[i] = rate
		s.CorrectionEvents[i] = contract.CorrectionEvent{Time: t, Success: rate < threshold}
	}
	return s, nil
}

// Summary: 运行总览。
type Summary struct {
	NoErrorRate       float64 `json:"no_error_rate"`
	MeanCorrectedRate float64 `json:"mean_corrected_rate"`
	Improvement       float64 `json:"improvement"`
	Scenarios         int     `json:"scenarios"`
}

// Summarize 计算无错误场景错误率、注入场景平均错误率与改善比例
// improvement = 1 - mean/max(noError, 0.001)。无注入场景时 mean 为 0。
func Summarize(results []contract.ScenarioResult) Summary {
	var sum Summary
	sum.Scenarios = len(results)
	var total float64
	injected := 0
	for _, r := range results {
		if _, ok := r.Scenario.Injected(); ok {
			total += r.LogicalErrorRate
			injected++
			continue
		}
		sum.NoErrorRate = r.LogicalErrorRate
	}
	if injected > 0 {
		sum.MeanCorrectedRate = total / float64(injected)
	}
	sum.Improvement = 1 - sum.MeanCorrectedRate/math.Max(sum.NoErrorRate, 0.001)
	return sum
}
