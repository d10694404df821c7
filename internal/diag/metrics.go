package diag

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// 指标（独立 Registry，避免污染默认注册表）：
// - qecbench_op_total{comp,stage,result}
// - qecbench_error_total{comp,code}
// - qecbench_op_duration_ms{comp,stage}
// - qecbench_decode_miss_total{code}
// - qecbench_logical_error_rate{code,scenario}
var (
	registry = prometheus.NewRegistry()

	opTotal = promauto.With(registry).NewCounterVec(prometheus.CounterOpts{
		Name: "qecbench_op_total",
		Help: "Operations by component, stage and result",
	}, []string{"comp", "stage", "result"})

	errorTotal = promauto.With(registry).NewCounterVec(prometheus.CounterOpts{
		Name: "qecbench_error_total",
		Help: "Errors by component and classified code",
	}, []string{"comp", "code"})

	opDuration = promauto.With(registry).NewHistogramVec(prometheus.HistogramOpts{
		Name:    "qecbench_op_duration_ms",
		Help:    "Stage duration in milliseconds",
		Buckets: []float64{1, 5, 10, 50, 100, 500, 1000, 5000},
	}, []string{"comp", "stage"})

	decodeMissTotal = promauto.With(registry).NewCounterVec(prometheus.CounterOpts{
		Name: "qecbench_decode_miss_total",
		Help: "Shots whose syndrome was outside the decoding table",
	}, []string{"code"})

	logicalErrorRate = promauto.With(registry).NewGaugeVec(prometheus.GaugeOpts{
		Name: "qecbench_logical_error_rate",
		Help: "Logical error rate of the last completed sweep per scenario",
	}, []string{"code", "scenario"})
)

// Registry 返回指标注册表（供导出或测试读取）。
func Registry() *prometheus.Registry { return registry }

// IncOp 累加操作计数（result=success|error）。
func IncOp(comp, stage, result string) {
	opTotal.WithLabelValues(comp, stage, result).Inc()
}

// IncError 按分类累加错误计数。
func IncError(comp, code string) {
	errorTotal.WithLabelValues(comp, code).Inc()
}

// ObserveDuration 记录阶段耗时（毫秒）。
func ObserveDuration(comp, stage string, durMS int64) {
	opDuration.WithLabelValues(comp, stage).Observe(float64(durMS))
}

// AddDecodeMiss 累加表外综合征次数。
func AddDecodeMiss(code string, n int) {
	if n <= 0 {
		return
	}
	decodeMissTotal.WithLabelValues(code).Add(float64(n))
}

// SetLogicalErrorRate 记录场景的逻辑错误率。
func SetLogicalErrorRate(code, scenario string, v float64) {
	logicalErrorRate.WithLabelValues(code, scenario).Set(v)
}

// WriteTextfile 以 Prometheus 文本格式导出全部指标。
func WriteTextfile(path string) error {
	return prometheus.WriteToTextfile(path, registry)
}
