package jsonfile

import (
	"bytes"
	"context"
	"encoding/json"
	"strings"

	"qecbench/pkg/contract"
	wfs "qecbench/plugins/writer/filesystem"
)

// Options: JSON 序列渲染器配置。
type Options struct {
	// OutputDir: 输出根目录（必需）；序列写入 <OutputDir>/<run_id>/<Name>。
	OutputDir string `json:"output_dir"`
	// Name: 文件名，默认 series.json。
	Name string `json:"name,omitempty"`
	// Indent: 是否缩进输出。
	Indent bool `json:"indent,omitempty"`
}

// Renderer 将 ResultSeries 以 JSON 写出，字段形状即 times/fidelities/logical_error_prob/correction_events，
// 供外部图表工具绘制双面板时间图。
type Renderer struct {
	w      contract.RunWriter
	name   string
	indent bool
}

// New 构造 Renderer，底层使用按运行分目录的文件系统 RunWriter。
func New(opts *Options) (*Renderer, error) {
	if opts == nil {
		opts = &Options{}
	}
	if strings.ContainsAny(opts.Name, `/\`) {
		return nil, contract.Configf("name", "must be a bare file name, got %q", opts.Name)
	}
	w, err := wfs.New(&wfs.Options{OutputDir: opts.OutputDir})
	if err != nil {
		return nil, err
	}
	return NewWithWriter(w, opts), nil
}

// NewWithWriter 使用给定 RunWriter 构造（测试或自定义落盘）。
func NewWithWriter(w contract.RunWriter, opts *Options) *Renderer {
	name := "series.json"
	indent := false
	if opts != nil {
		if n := strings.TrimSpace(opts.Name); n != "" {
			name = n
		}
		indent = opts.Indent
	}
	return &Renderer{w: w, name: name, indent: indent}
}

// Render 实现 contract.Renderer。
func (r *Renderer) Render(ctx context.Context, run contract.RunID, s contract.ResultSeries) error {
	if len(s.Times) != len(s.Fidelities) || len(s.Times) != len(s.LogicalErrorProb) {
		return contract.ErrInvariantViolation
	}
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if r.indent {
		enc.SetIndent("", "  ")
	}
	if err := enc.Encode(normalize(s)); err != nil {
		return err
	}
	return r.w.WriteRun(ctx, run, r.name, &buf)
}

// normalize: nil 切片输出为 []，保持字段形状稳定。
func normalize(s contract.ResultSeries) contract.ResultSeries {
	if s.Times == nil {
		s.Times = []float64{}
	}
	if s.Fidelities == nil {
		s.Fidelities = []float64{}
	}
	if s.LogicalErrorProb == nil {
		s.LogicalErrorProb = []float64{}
	}
	if s.CorrectionEvents == nil {
		s.CorrectionEvents = []contract.CorrectionEvent{}
	}
	return s
}

var _ contract.Renderer = (*Renderer)(nil)
