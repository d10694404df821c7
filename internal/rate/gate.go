package rate

import (
	"context"
	"fmt"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"qecbench/pkg/contract"
)

// LimitKey: 限流分组键（例如 backend 名称 + 设备）。
type LimitKey string

// Limits: 每分组的限额配置。RPM 为 0 表示不限流。
type Limits struct {
	RPM   int // submissions per minute
	Burst int // 突发容量；<=0 时取 RPM
}

// Ask: 一次放行申请。
type Ask struct {
	Key      LimitKey
	Requests int // 必须 >=1
}

// Gate: 限流闸门（并发安全）。
type Gate interface {
	// Wait: 阻塞直到额度可用或 ctx 取消；超过突发容量的申请快速失败。
	// 等待注定越过 ctx 截止时间时返回包装 context.DeadlineExceeded 的错误。
	Wait(ctx context.Context, a Ask) error
	// Try: 非阻塞尝试；不足时返回 false。
	Try(a Ask) bool
}

// Snapshoter: 可选诊断接口。
type Snapshoter interface {
	Snapshot(key LimitKey) (avail int)
}

// NewGate: 从静态配置构造闸门；clk 为空则使用 time.Now（仅影响 Try/Snapshot）。
func NewGate(m map[LimitKey]Limits, clk func() time.Time) Gate {
	if clk == nil {
		clk = time.Now
	}
	g := &gate{clk: clk, m: make(map[LimitKey]*rate.Limiter, len(m))}
	now := clk()
	for k, lim := range m {
		g.m[k] = newLimiter(lim, now)
	}
	return g
}

type gate struct {
	clk func() time.Time
	mu  sync.Mutex
	m   map[LimitKey]*rate.Limiter
}

func newLimiter(lim Limits, now time.Time) *rate.Limiter {
	if lim.RPM <= 0 {
		return rate.NewLimiter(rate.Inf, 0)
	}
	burst := lim.Burst
	if burst <= 0 {
		burst = lim.RPM
	}
	l := rate.NewLimiter(rate.Limit(float64(lim.RPM)/60.0), burst)
	// 以构造时刻为起点，初始桶满
	l.SetLimitAt(now, l.Limit())
	return l
}

func (g *gate) get(key LimitKey) *rate.Limiter {
	g.mu.Lock()
	defer g.mu.Unlock()
	l := g.m[key]
	if l == nil {
		// 未配置的 key 视为不限额
		l = rate.NewLimiter(rate.Inf, 0)
		g.m[key] = l
	}
	return l
}

func (g *gate) Try(a Ask) bool {
	if a.Requests <= 0 {
		return false
	}
	return g.get(a.Key).AllowN(g.clk(), a.Requests)
}

func (g *gate) Wait(ctx context.Context, a Ask) error {
	if a.Requests <= 0 {
		return contract.ErrInvalidInput
	}
	l := g.get(a.Key)
	if l.Limit() != rate.Inf && a.Requests > l.Burst() {
		return contract.ErrInvalidInput
	}
	if err := l.WaitN(ctx, a.Requests); err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		// WaitN 预判越过截止时间时提前失败，此刻 ctx 尚未到期
		if _, ok := ctx.Deadline(); ok {
			return fmt.Errorf("%w: %v", context.DeadlineExceeded, err)
		}
		return err
	}
	return nil
}

// Snapshot: 返回当前可用额度的向下取整估值（仅诊断）；不限流时返回 -1。
func (g *gate) Snapshot(key LimitKey) int {
	l := g.get(key)
	if l.Limit() == rate.Inf {
		return -1
	}
	n := l.TokensAt(g.clk())
	if n < 0 {
		return 0
	}
	return int(n)
}

var _ Gate = (*gate)(nil)
var _ Snapshoter = (*gate)(nil)
