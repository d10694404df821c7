package influx

import (
	"context"
	"os"
	"strconv"
	"strings"
	"time"

	influxdb2 "github.com/influxdata/influxdb-client-go/v2"
	"github.com/influxdata/influxdb-client-go/v2/api/write"

	"qecbench/pkg/contract"
)

// Options: InfluxDB 序列导出配置。
type Options struct {
	URL string `json:"url"`
	// Token 与 TokenEnv 二选一；TokenEnv 指向保存 token 的环境变量名。
	Token    string `json:"token,omitempty"`
	TokenEnv string `json:"token_env,omitempty"`
	Org      string `json:"org"`
	Bucket   string `json:"bucket"`
	// Measurement 默认 qec_series。
	Measurement string `json:"measurement,omitempty"`
	// Tags: 附加到每个点的静态标签（例如 code、host）。
	Tags map[string]string `json:"tags,omitempty"`
}

// pointWriter: WriteAPIBlocking 的最小子集。
type pointWriter interface {
	WritePoint(ctx context.Context, point ...*write.Point) error
}

// Renderer 将 ResultSeries 写为 InfluxDB 点：每个时间步一个点，
// 字段 fidelity / logical_error_prob / correction_success，标签 run_id 与静态标签。
// 点时间 = 渲染基准时刻 + times[i] 秒。
type Renderer struct {
	client      influxdb2.Client
	w           pointWriter
	measurement string
	tags        map[string]string
	now         func() time.Time
}

// New 建立客户端与阻塞写 API。
func New(opts *Options) (*Renderer, error) {
	if opts == nil {
		return nil, contract.Configf("renderer.influx", "missing options")
	}
	if strings.TrimSpace(opts.URL) == "" {
		return nil, contract.Configf("renderer.influx.url", "required")
	}
	if strings.TrimSpace(opts.Org) == "" || strings.TrimSpace(opts.Bucket) == "" {
		return nil, contract.Configf("renderer.influx", "org and bucket are required")
	}
	token := opts.Token
	if token == "" && opts.TokenEnv != "" {
		token = os.Getenv(opts.TokenEnv)
	}
	if token == "" {
		return nil, contract.Configf("renderer.influx.token", "missing token (token or token_env)")
	}
	client := influxdb2.NewClient(opts.URL, token)
	r := newRenderer(client.WriteAPIBlocking(opts.Org, opts.Bucket), opts)
	r.client = client
	return r, nil
}

func newRenderer(w pointWriter, opts *Options) *Renderer {
	m := "qec_series"
	tags := map[string]string{}
	if opts != nil {
		if s := strings.TrimSpace(opts.Measurement); s != "" {
			m = s
		}
		for k, v := range opts.Tags {
			tags[k] = v
		}
	}
	return &Renderer{w: w, measurement: m, tags: tags, now: time.Now}
}

// Points 构造写入点（纯函数）。
func Points(measurement string, tags map[string]string, run contract.RunID, s contract.ResultSeries, base time.Time) []*write.Point {
	n := len(s.Times)
	pts := make([]*write.Point, 0, n)
	for i := 0; i < n; i++ {
		p := influxdb2.NewPointWithMeasurement(measurement).AddTag("run_id", string(run))
		for k, v := range tags {
			p.AddTag(k, v)
		}
		p.AddTag("step", strconv.Itoa(i))
		if i < len(s.Fidelities) {
			p.AddField("fidelity", s.Fidelities[i])
		}
		if i < len(s.LogicalErrorProb) {
			p.AddField("logical_error_prob", s.LogicalErrorProb[i])
		}
		if i < len(s.CorrectionEvents) {
			p.AddField("correction_success", s.CorrectionEvents[i].Success)
		}
		p.SetTime(base.Add(time.Duration(s.Times[i] * float64(time.Second))))
		pts = append(pts, p)
	}
	return pts
}

// Render 实现 contract.Renderer。
func (r *Renderer) Render(ctx context.Context, run contract.RunID, s contract.ResultSeries) error {
	if len(s.Times) != len(s.Fidelities) || len(s.Times) != len(s.LogicalErrorProb) {
		return contract.ErrInvariantViolation
	}
	if len(s.Times) == 0 {
		return nil
	}
	return r.w.WritePoint(ctx, Points(r.measurement, r.tags, run, s, r.now().UTC())...)
}

// Close 释放客户端连接。
func (r *Renderer) Close() error {
	if r.client != nil {
		r.client.Close()
	}
	return nil
}

var _ contract.Renderer = (*Renderer)(nil)
