package remote

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"time"

	"qecbench/pkg/contract"
)

// Options: 远程执行服务的最小配置。
type Options struct {
	BaseURL        string `json:"base_url"`        // 例如 https://qpu.example.org
	EndpointPath   string `json:"endpoint_path"`   // 默认 /v1/jobs；可为完整 URL（以 http 开头）
	APIKeyEnv      string `json:"api_key_env"`     // 默认 QECBENCH_REMOTE_API_KEY
	APIKey         string `json:"api_key"`         // 明文传入（不推荐，按需用于测试）
	TimeoutSeconds int    `json:"timeout_seconds"` // client 级超时（秒），默认 60
	// Device: 目标设备名，随请求发送；同时用于限流分组。
	Device             string            `json:"device"`
	DisableDefaultAuth bool              `json:"disable_default_auth"`
	ExtraHeaders       map[string]string `json:"extra_headers"`
}

func (o *Options) defaults() {
	if o.EndpointPath == "" {
		o.EndpointPath = "/v1/jobs"
	}
	if o.APIKeyEnv == "" {
		o.APIKeyEnv = "QECBENCH_REMOTE_API_KEY"
	}
	if o.TimeoutSeconds <= 0 {
		o.TimeoutSeconds = 60
	}
}

// Backend 以 HTTP JSON 提交实验，同步等待计数结果。
type Backend struct {
	url         string
	apiKey      string
	device      string
	extraH      map[string]string
	disableAuth bool
	do          func(*http.Request) (*http.Response, error)
}

// New 构造 Backend；缺少 base_url（且 endpoint_path 非完整 URL）返回 ConfigurationError。
func New(opts *Options) (*Backend, error) {
	var o Options
	if opts != nil {
		o = *opts
	}
	o.defaults()
	fullURL := o.EndpointPath
	if !(strings.HasPrefix(fullURL, "http://") || strings.HasPrefix(fullURL, "https://")) {
		if strings.TrimSpace(o.BaseURL) == "" {
			return nil, contract.Configf("base_url", "required")
		}
		// 确保恰好一个斜杠
		fullURL = strings.TrimRight(o.BaseURL, "/") + "/" + strings.TrimLeft(o.EndpointPath, "/")
	}
	key := o.APIKey
	if key == "" {
		key = os.Getenv(o.APIKeyEnv)
	}
	hc := &http.Client{Timeout: time.Duration(o.TimeoutSeconds) * time.Second}
	return &Backend{
		url:         fullURL,
		apiKey:      key,
		device:      o.Device,
		extraH:      o.ExtraHeaders,
		disableAuth: o.DisableDefaultAuth,
		do:          hc.Do,
	}, nil
}

type jobCode struct {
	Name        string   `json:"name"`
	NData       int      `json:"n_data"`
	Stabilizers []string `json:"stabilizers"`
}

type jobReq struct {
	Device             string  `json:"device,omitempty"`
	Code               jobCode `json:"code"`
	InitialState       string  `json:"initial_state"`
	InjectedErrorQubit *int    `json:"injected_error_qubit,omitempty"`
	Shots              int     `json:"shots"`
	// Layout 声明期望的结果串布局，服务端按此格式返回计数键。
	Layout string `json:"layout"`
}

type jobResp struct {
	Counts map[string]int `json:"counts"`
	Error  string         `json:"error,omitempty"`
}

// upstreamError 实现 net.Error，用于将上游 5xx/408 映射为网络类错误。
type upstreamError struct {
	status int
	msg    string
}

func (e upstreamError) Error() string   { return fmt.Sprintf("remote upstream %d: %s", e.status, e.msg) }
func (e upstreamError) Timeout() bool   { return e.status == http.StatusRequestTimeout }
func (e upstreamError) Temporary() bool { return e.status/100 == 5 }

func encode(exp contract.Experiment, device string, shots int) ([]byte, error) {
	req := jobReq{
		Device:             device,
		Code:               jobCode{Name: exp.Code.Name, NData: exp.Code.NData},
		InitialState:       string(exp.InitialState),
		InjectedErrorQubit: exp.InjectedErrorQubit,
		Shots:              shots,
		Layout:             "syndrome_msb data_q0_first",
	}
	if req.InitialState == "" {
		req.InitialState = string(contract.StateZero)
	}
	for _, p := range exp.Code.Stabilizers {
		req.Code.Stabilizers = append(req.Code.Stabilizers, string(p))
	}
	return json.Marshal(&req)
}

// Submit 实现 contract.Backend。
func (b *Backend) Submit(ctx context.Context, exp contract.Experiment, shots int) (contract.Counts, error) {
	if shots < 1 {
		return nil, fmt.Errorf("remote: %w: shots %d", contract.ErrInvalidInput, shots)
	}
	body, err := encode(exp, b.device, shots)
	if err != nil {
		return nil, fmt.Errorf("encode: %v: %w", err, contract.ErrInvalidInput)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, b.url, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("new request: %v: %w", err, contract.ErrInvalidInput)
	}
	if !b.disableAuth && b.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+b.apiKey)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	for k, v := range b.extraH {
		if k == "" {
			continue
		}
		req.Header.Set(k, v)
	}

	resp, err := b.do(req)
	if err != nil {
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
		}
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusTooManyRequests {
		return nil, fmt.Errorf("remote: %w", contract.ErrRateLimited)
	}
	if resp.StatusCode/100 != 2 {
		// 读取少量响应体辅助定位
		slurp, _ := io.ReadAll(io.LimitReader(resp.Body, 4<<10))
		msg := strings.TrimSpace(string(slurp))
		if resp.StatusCode == http.StatusRequestTimeout || resp.StatusCode/100 == 5 {
			return nil, upstreamError{status: resp.StatusCode, msg: msg}
		}
		return nil, fmt.Errorf("remote upstream %d: %s: %w", resp.StatusCode, msg, contract.ErrBackend)
	}
	var jr jobResp
	if err := json.NewDecoder(resp.Body).Decode(&jr); err != nil {
		return nil, fmt.Errorf("remote: decode: %v: %w", err, contract.ErrBackend)
	}
	if jr.Error != "" {
		return nil, fmt.Errorf("remote: job failed: %s: %w", jr.Error, contract.ErrBackend)
	}
	return checkCounts(jr.Counts, exp.Code)
}

// checkCounts 校验计数：非负，且键符合 "<syndrome> <data>" 布局与码的比特数。
func checkCounts(in map[string]int, code contract.StabilizerCode) (contract.Counts, error) {
	out := make(contract.Counts, len(in))
	for k, v := range in {
		if v < 0 {
			return nil, fmt.Errorf("remote: negative count for %q: %w", k, contract.ErrBackend)
		}
		syn, data, ok := contract.SplitOutcome(k)
		if !ok || len(syn) != code.SyndromeLen() || len(data) != code.NData {
			return nil, fmt.Errorf("remote: outcome %q does not match layout: %w", k, contract.ErrBackend)
		}
		out[k] = v
	}
	return out, nil
}

var _ contract.Backend = (*Backend)(nil)
