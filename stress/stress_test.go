package stress

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"path/filepath"
	"sort"
	"testing"
	"time"

	"qecbench/internal/bench"
	cfgpkg "qecbench/internal/config"
)

// baseConfig 构造可运行的最小配置：本地 sampler + JSON 渲染。
func baseConfig(outDir string, distance, conc int) cfgpkg.Config {
	cfg := cfgpkg.DefaultTemplateConfig()
	cfg.Code = cfgpkg.Code{Family: "repetition", Distance: distance}
	cfg.Shots = 2000
	cfg.Concurrency = conc
	cfg.Logging.Level = "error"
	cfg.Backend = "sampler"
	cfg.Backends = map[string]cfgpkg.BackendDef{
		"sampler": {Client: "sampler", Options: json.RawMessage(`{"seed":7,"flip_prob":0.01}`)},
	}
	cfg.RendererOptions["json"] = json.RawMessage(fmt.Sprintf(`{"output_dir":%q}`, outDir))
	return cfg
}

// runBench 执行一次完整运行，返回注入场景的平均逻辑错误率。
func runBench(cfg cfgpkg.Config) (float64, error) {
	comp, set, code, err := cfgpkg.Assemble(cfg)
	if err != nil {
		return 0, err
	}
	defer comp.Close()
	rep, err := bench.Execute(context.Background(), comp, code, set, nil)
	if err != nil {
		return 0, err
	}
	return rep.Summary.MeanCorrectedRate, nil
}

// percentile 返回升序样本的 q 分位（向上取整下标）。
func percentile(sorted []time.Duration, q float64) time.Duration {
	idx := int(math.Ceil(float64(len(sorted))*q)) - 1
	if idx < 0 {
		idx = 0
	}
	return sorted[idx]
}

// TestStress 在不同并发度下运行扫描并记录延迟统计。
// 固定种子：各并发度的错误率必须一致（结果与提交顺序无关）。
func TestStress(t *testing.T) {
	if testing.Short() {
		t.Skip("short mode")
	}
	rates := map[int]float64{}
	for _, conc := range []int{1, 4, 16, 64} {
		t.Run(fmt.Sprintf("concurrency_%d", conc), func(t *testing.T) {
			const runs = 5
			latencies := make([]time.Duration, 0, runs)
			for i := 0; i < runs; i++ {
				cfg := baseConfig(filepath.Join(t.TempDir(), "out"), 15, conc)
				start := time.Now()
				mean, err := runBench(cfg)
				dur := time.Since(start)
				if err != nil {
					t.Errorf("run %d: %v", i, err)
					continue
				}
				rates[conc] = mean
				latencies = append(latencies, dur)
			}
			if len(latencies) == 0 {
				t.Fatalf("全部运行失败")
			}
			sort.Slice(latencies, func(i, j int) bool { return latencies[i] < latencies[j] })
			var total time.Duration
			for _, d := range latencies {
				total += d
			}
			avg := total / time.Duration(len(latencies))
			t.Logf("并发%d 成功率%.2f 平均%v 95%%延迟%v 平均错误率%.4f",
				conc, float64(len(latencies))/float64(runs), avg, percentile(latencies, 0.95), rates[conc])
		})
	}
	for conc, r := range rates {
		if r != rates[1] {
			t.Fatalf("并发%d 错误率 %v 与串行 %v 不一致", conc, r, rates[1])
		}
	}
}
