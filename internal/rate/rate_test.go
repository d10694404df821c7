package rate

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"qecbench/pkg/contract"
)

// 超过 RPM 突发容量后拒绝
func TestGateTryLimit(t *testing.T) {
	now := time.Unix(0, 0)
	clk := func() time.Time { return now }
	g := NewGate(map[LimitKey]Limits{"k": {RPM: 1}}, clk)
	require.True(t, g.Try(Ask{Key: "k", Requests: 1}), "首次应通过")
	assert.False(t, g.Try(Ask{Key: "k", Requests: 1}), "应因 RPM 拒绝")

	// 60s 后补满一个额度
	now = now.Add(60 * time.Second)
	assert.True(t, g.Try(Ask{Key: "k", Requests: 1}))
	assert.False(t, g.Try(Ask{Key: "k", Requests: 0}))
}

func TestGateBurst(t *testing.T) {
	now := time.Unix(0, 0)
	clk := func() time.Time { return now }
	g := NewGate(map[LimitKey]Limits{"k": {RPM: 60, Burst: 2}}, clk)
	assert.True(t, g.Try(Ask{Key: "k", Requests: 2}))
	assert.False(t, g.Try(Ask{Key: "k", Requests: 1}))
	now = now.Add(time.Second)
	assert.True(t, g.Try(Ask{Key: "k", Requests: 1}))

	s, ok := g.(Snapshoter)
	require.True(t, ok)
	assert.Equal(t, 0, s.Snapshot("k"))
	assert.Equal(t, -1, s.Snapshot("other"))
}

// 取消上下文
func TestGateWaitCancel(t *testing.T) {
	g := NewGate(map[LimitKey]Limits{"k": {RPM: 1}}, nil)
	require.NoError(t, g.Wait(context.Background(), Ask{Key: "k", Requests: 1}))
	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(50 * time.Millisecond)
		cancel()
	}()
	err := g.Wait(ctx, Ask{Key: "k", Requests: 1})
	assert.ErrorIs(t, err, context.Canceled)
}

// 额度在截止时间前无法恢复：立即失败，并可按超时识别
func TestGateWaitDeadline(t *testing.T) {
	g := NewGate(map[LimitKey]Limits{"k": {RPM: 1, Burst: 1}}, nil)
	require.True(t, g.Try(Ask{Key: "k", Requests: 1}))
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	start := time.Now()
	err := g.Wait(ctx, Ask{Key: "k", Requests: 1})
	assert.Less(t, time.Since(start), time.Second, "应预判失败而非阻塞到截止")
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.NoError(t, ctx.Err())
}

func TestGateWaitInvalid(t *testing.T) {
	g := NewGate(map[LimitKey]Limits{"k": {RPM: 10, Burst: 1}}, nil)
	assert.True(t, errors.Is(g.Wait(context.Background(), Ask{Key: "k", Requests: 0}), contract.ErrInvalidInput))
	assert.True(t, errors.Is(g.Wait(context.Background(), Ask{Key: "k", Requests: 2}), contract.ErrInvalidInput))
	// 未配置的 key 不限流
	for i := 0; i < 100; i++ {
		require.NoError(t, g.Wait(context.Background(), Ask{Key: "free", Requests: 5}))
	}
}

func TestDeriveKey(t *testing.T) {
	assert.Equal(t, LimitKey("sampler"), DeriveKey("sampler", nil))
	assert.Equal(t, LimitKey("mock"), DeriveKey("mock", json.RawMessage(`{"shots":1}`)))
	raw, _ := json.Marshal(map[string]any{"device": "lab-a"})
	k1 := DeriveKey("sampler", raw)
	k2 := DeriveKey("sampler", raw)
	assert.Equal(t, k1, k2)
	assert.Contains(t, string(k1), "sampler:")
	assert.NotContains(t, string(k1), "lab-a")
	raw2, _ := json.Marshal(map[string]any{"device": "lab-b"})
	assert.NotEqual(t, k1, DeriveKey("sampler", raw2))
}
