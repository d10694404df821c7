package flaky

import (
	"context"
	"fmt"
	"os"
	"sync/atomic"

	"qecbench/pkg/contract"
	"qecbench/plugins/backend/mock"
)

// Options 定义可选项。
type Options struct {
	// FailOn: 第几次提交失败（从 1 计），默认 2。
	FailOn int `json:"fail_on,omitempty"`
	// RateLimited: 失败时返回 ErrRateLimited 而非 ErrBackend。
	RateLimited bool `json:"rate_limited,omitempty"`
	// LogPath: 调试用日志文件，记录每次提交结果（可选）。
	LogPath string `json:"log_path,omitempty"`
	Device  string `json:"device,omitempty"`
}

// Backend 是带状态的后端实现：
// 第 FailOn 次 Submit 返回错误；其余提交委托给无噪声 mock。
type Backend struct {
	failOn  int32
	rateLim bool
	logPath string
	inner   *mock.Backend
	count   atomic.Int32
}

// New 构造 Backend。
func New(opts *Options) *Backend {
	var o Options
	if opts != nil {
		o = *opts
	}
	if o.FailOn <= 0 {
		o.FailOn = 2
	}
	return &Backend{failOn: int32(o.FailOn), rateLim: o.RateLimited, logPath: o.LogPath, inner: mock.New(nil)}
}

func (b *Backend) log(s string) {
	if b.logPath == "" {
		return
	}
	// 追加写入，忽略错误。
	_ = appendFile(b.logPath, s+"\n")
}

func appendFile(path, s string) error {
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_APPEND, 0o644)
	if err != nil {
		return err
	}
	defer f.Close()
	_, err = f.WriteString(s)
	return err
}

// Calls 返回已收到的提交次数。
func (b *Backend) Calls() int { return int(b.count.Load()) }

// Submit 实现 contract.Backend。
func (b *Backend) Submit(ctx context.Context, exp contract.Experiment, shots int) (contract.Counts, error) {
	n := b.count.Add(1)
	label := exp.Scenario().Label
	if n == b.failOn {
		if b.rateLim {
			b.log("rate_limited " + label)
			return nil, fmt.Errorf("flaky: submission %d: %w", n, contract.ErrRateLimited)
		}
		b.log("fail " + label)
		return nil, fmt.Errorf("flaky: submission %d: %w", n, contract.ErrBackend)
	}
	b.log("ok " + label)
	return b.inner.Submit(ctx, exp, shots)
}

var _ contract.Backend = (*Backend)(nil)
