package bench

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"qecbench/internal/diag"
	"qecbench/internal/estimate"
	"qecbench/internal/rate"
	"qecbench/internal/series"
	"qecbench/pkg/contract"
)

// - 单点并发：仅此层管理并发；后端、译码、分类、估计均为同步组件。
// - 顺序稳定：结果按规范场景序落位（无错误对照在前，其后按比特下标升序），与完成顺序无关。
// - 首错取消：任一场景失败即取消其余在途场景；返回场景序最小的非取消错误，不返回部分结果。
// - 不重试：重试属于后端协作者的契约。

// Components 聚合运行所需的协作者。
type Components struct {
	Backend   contract.Backend
	Renderers []contract.Renderer
	// Archive 可选；为 nil 时不归档
	Archive contract.Archive
}

// Close 释放持有外部资源的协作者（实现 io.Closer 的后端/渲染器与归档）。
func (c Components) Close() error {
	var errs []error
	if cl, ok := c.Backend.(io.Closer); ok {
		errs = append(errs, cl.Close())
	}
	for _, r := range c.Renderers {
		if cl, ok := r.(io.Closer); ok {
			errs = append(errs, cl.Close())
		}
	}
	if c.Archive != nil {
		errs = append(errs, c.Archive.Close())
	}
	return errors.Join(errs...)
}

// Settings 运行期配置（最小必要）。
type Settings struct {
	Shots       int
	Concurrency int
	// 序列构建参数
	TimeStep  float64
	Threshold float64
	// 限流闸门（可选）：若非空，则在每次提交前调用 Gate.Wait
	Gate    rate.Gate
	GateKey rate.LimitKey
	// 仅用于日志与归档
	BackendName string
	RunID       contract.RunID
}

// Report 一次完整运行的产出。
type Report struct {
	RunID   contract.RunID
	Results []contract.ScenarioResult
	Series  contract.ResultSeries
	Summary series.Summary
}

// Scenarios 返回规范扫描：无错误对照 + 每个数据比特一个单比特翻转场景。
func Scenarios(code contract.StabilizerCode) []contract.Scenario {
	out := make([]contract.Scenario, 0, code.NData+1)
	out = append(out, contract.NoErrorScenario())
	for q := 0; q < code.NData; q++ {
		out = append(out, contract.ErrorScenario(q))
	}
	return out
}

// Canonical 返回按规范序排列的副本；越界注入比特返回 ConfigurationError。
func Canonical(code contract.StabilizerCode, scenarios []contract.Scenario) ([]contract.Scenario, error) {
	out := make([]contract.Scenario, len(scenarios))
	copy(out, scenarios)
	for _, sc := range out {
		if q, ok := sc.Injected(); ok && (q < 0 || q >= code.NData) {
			return nil, contract.Configf("scenario", "%s: injected qubit %d outside [0,%d)", sc.Label, q, code.NData)
		}
	}
	key := func(sc contract.Scenario) int {
		if q, ok := sc.Injected(); ok {
			return q
		}
		return -1
	}
	sort.SliceStable(out, func(i, j int) bool { return key(out[i]) < key(out[j]) })
	return out, nil
}

// Run 扫描给定场景：逐场景提交后端 → 估计逻辑错误率 → 统计译码一致性。
// 期望逻辑值恒为 '0'（制备态 |0_L>）。失败时返回 nil 结果。
func Run(ctx context.Context, comp Components, code contract.StabilizerCode, scenarios []contract.Scenario, set Settings, logger *diag.Logger) ([]contract.ScenarioResult, error) {
	if err := sanity(comp, set); err != nil {
		return nil, fmt.Errorf("sanity: %w", err)
	}
	ordered, err := Canonical(code, scenarios)
	if err != nil {
		return nil, err
	}

	est := estimate.New(code)
	results := make([]contract.ScenarioResult, len(ordered))

	if t := diag.GetTerminal(); t != nil {
		t.SweepStart(code.Name, len(ordered))
	}
	sweepStart := time.Now()
	ok := false
	defer func() {
		if t := diag.GetTerminal(); t != nil {
			t.SweepFinish(ok, time.Since(sweepStart))
		}
	}()

	var stimer *diag.Timer
	if logger != nil {
		stimer = logger.StartWithKV("bench", "sweep", code.Name, "", map[string]string{
			"scenarios":   fmt.Sprintf("%d", len(ordered)),
			"shots":       fmt.Sprintf("%d", set.Shots),
			"concurrency": fmt.Sprintf("%d", set.Concurrency),
		})
	}

	one := func(ctx context.Context, i int) error {
		r, err := runScenario(ctx, comp, code, est, ordered[i], set, logger)
		if t := diag.GetTerminal(); t != nil {
			t.ScenarioDone(ordered[i].Label, r.LogicalErrorRate, err)
		}
		if err != nil {
			return err
		}
		results[i] = r
		return nil
	}

	if set.Concurrency <= 1 {
		// 串行：遇错即停，不再提交后续场景
		for i := range ordered {
			if err := ctx.Err(); err != nil {
				return nil, err
			}
			if err := one(ctx, i); err != nil {
				return nil, err
			}
		}
	} else if err := runParallel(ctx, len(ordered), set.Concurrency, one); err != nil {
		return nil, err
	}

	if stimer != nil {
		stimer.Finish("sweep", int64(len(results)))
	}
	diag.IncOp("bench", "finish", "success")
	ok = true
	return results, nil
}

// runParallel 以有界并发执行 n 个任务；首错取消其余任务。
// 返回下标最小的非取消错误（若全为取消则返回下标最小者）。
func runParallel(ctx context.Context, n, limit int, fn func(context.Context, int) error) error {
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(limit)
	errs := make([]error, n)
	for i := 0; i < n; i++ {
		if gctx.Err() != nil {
			break
		}
		g.Go(func() error {
			if gctx.Err() != nil {
				return nil
			}
			if err := fn(gctx, i); err != nil {
				errs[i] = err
				return err
			}
			return nil
		})
	}
	_ = g.Wait()
	var first error
	for _, err := range errs {
		if err == nil {
			continue
		}
		if !isCancel(err) {
			return err
		}
		if first == nil {
			first = err
		}
	}
	if first != nil {
		return first
	}
	return ctx.Err()
}

func isCancel(err error) bool {
	return errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded)
}

// admit 申请一次提交额度：先非阻塞尝试，不足时记录剩余额度后阻塞等待。
func admit(ctx context.Context, set Settings, codeName, scenario string, logger *diag.Logger) error {
	ask := rate.Ask{Key: set.GateKey, Requests: 1}
	if set.Gate.Try(ask) {
		return nil
	}
	if logger != nil {
		kv := map[string]string{"key": string(set.GateKey), "requests": "1"}
		if s, ok := set.Gate.(rate.Snapshoter); ok {
			kv["avail"] = fmt.Sprintf("%d", s.Snapshot(set.GateKey))
		}
		logger.DebugStart("gate", "throttled", codeName, scenario, kv)
	}
	if err := set.Gate.Wait(ctx, ask); err != nil {
		if isCancel(err) {
			return err
		}
		report(logger, "gate", "wait failed", err, codeName, scenario, nil)
		return fmt.Errorf("gate wait: %w", err)
	}
	return nil
}

func runScenario(ctx context.Context, comp Components, code contract.StabilizerCode, est *estimate.Estimator, sc contract.Scenario, set Settings, logger *diag.Logger) (contract.ScenarioResult, error) {
	if set.Gate != nil {
		if err := admit(ctx, set, code.Name, sc.Label, logger); err != nil {
			return contract.ScenarioResult{}, err
		}
	}

	var btimer *diag.Timer
	if logger != nil {
		btimer = logger.StartWith("backend", "submit", code.Name, sc.Label)
	}
	exp := contract.Experiment{Code: code, InitialState: contract.StateZero, InjectedErrorQubit: sc.InjectedErrorQubit}
	counts, err := comp.Backend.Submit(ctx, exp, set.Shots)
	if err != nil {
		var be *contract.BackendError
		if !errors.As(err, &be) {
			err = &contract.BackendError{Scenario: sc.Label, Err: err}
		}
		report(logger, "backend", "submit failed", err, code.Name, sc.Label, map[string]string{"err": truncate(err.Error(), 200)})
		return contract.ScenarioResult{}, err
	}
	if btimer != nil {
		btimer.Finish("submit", int64(counts.Total()))
	}
	diag.IncOp("backend", "finish", "success")

	tally := est.Tally(counts, contract.Logical0)
	dec, missed := est.Decode(counts, sc.InjectedErrorQubit)
	if dec.Misses > 0 {
		diag.AddDecodeMiss(code.Name, dec.Misses)
		if logger != nil {
			logger.WarnWith("estimator", "decode_miss", "syndrome outside table", code.Name, sc.Label, map[string]string{
				"misses":    fmt.Sprintf("%d", dec.Misses),
				"syndromes": strings.Join(missed, ","),
			})
		}
	}
	if tally.Malformed > 0 && logger != nil {
		logger.WarnWith("estimator", "malformed", "outcome layout mismatch", code.Name, sc.Label, map[string]string{
			"count": fmt.Sprintf("%d", tally.Malformed),
		})
	}
	r := contract.ScenarioResult{
		Scenario:         sc,
		Counts:           counts,
		LogicalErrorRate: tally.Rate(),
		Decode:           dec,
	}
	diag.SetLogicalErrorRate(code.Name, sc.Label, r.LogicalErrorRate)
	return r, nil
}

// Execute 完整运行：规范扫描 → 序列构建 → 渲染 → 归档（可选）。
// 扫描失败时不产生序列、不渲染、不归档。
func Execute(ctx context.Context, comp Components, code contract.StabilizerCode, set Settings, logger *diag.Logger) (Report, error) {
	runID := set.RunID
	if runID == "" {
		runID = contract.RunID(uuid.NewString())
	}
	started := time.Now().UTC()
	results, err := Run(ctx, comp, code, Scenarios(code), set, logger)
	if err != nil {
		return Report{}, err
	}
	s, err := series.Build(results, set.TimeStep, set.Threshold)
	if err != nil {
		report(logger, "series", "build failed", err, code.Name, "", nil)
		return Report{}, fmt.Errorf("series build: %w", err)
	}
	rep := Report{RunID: runID, Results: results, Series: s, Summary: series.Summarize(results)}

	for _, r := range comp.Renderers {
		var rtimer *diag.Timer
		if logger != nil {
			rtimer = logger.StartWith("renderer", "render", code.Name, "")
		}
		if err := r.Render(ctx, runID, s); err != nil {
			report(logger, "renderer", "render failed", err, code.Name, "", nil)
			return Report{}, fmt.Errorf("renderer render: %w", err)
		}
		if rtimer != nil {
			rtimer.Finish("render", int64(len(s.Times)))
		}
		diag.IncOp("renderer", "finish", "success")
	}

	if comp.Archive != nil {
		var atimer *diag.Timer
		if logger != nil {
			atimer = logger.StartWith("archive", "store", code.Name, "")
		}
		rec := contract.RunRecord{
			RunID:     runID,
			CodeName:  code.Name,
			Backend:   set.BackendName,
			Shots:     set.Shots,
			StartedAt: started,
			Results:   results,
			Series:    s,
		}
		if err := comp.Archive.Store(ctx, rec); err != nil {
			report(logger, "archive", "store failed", err, code.Name, "", nil)
			return Report{}, fmt.Errorf("archive store: %w", err)
		}
		if atimer != nil {
			atimer.Finish("store", int64(len(results)))
		}
		diag.IncOp("archive", "finish", "success")
	}
	return rep, nil
}

// report 记录错误日志与指标。
func report(logger *diag.Logger, comp, msg string, err error, codeName, scenario string, kv map[string]string) {
	code := diag.Classify(err)
	if logger != nil {
		logger.ErrorWithKV(comp, string(code), msg, nil, codeName, scenario, kv)
	}
	diag.IncOp(comp, "error", "error")
	if code != diag.CodeUnknown {
		diag.IncError(comp, string(code))
	}
}

func sanity(comp Components, set Settings) error {
	if comp.Backend == nil {
		return contract.Configf("backend", "missing backend")
	}
	if set.Shots < 1 {
		return contract.Configf("shots", "must be >= 1, got %d", set.Shots)
	}
	for i, r := range comp.Renderers {
		if r == nil {
			return contract.Configf("renderers", "renderer %d is nil", i)
		}
	}
	return nil
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}
