package diag

import (
	"fmt"
	"io"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/mattn/go-isatty"
)

// Terminal: 终端信息提示（非日志）。
// - 输出到提供的 io.Writer（默认建议 stderr）。
// - TTY: 单行 \r 覆盖；非 TTY: 关键节点分行打印。
// - 并发安全；写失败后进入禁用态为 no-op。
type Terminal struct {
	w       io.Writer
	enabled bool
	isTTY   bool

	// 运行期最小状态
	concurrency int
	backend     string
	runStart    time.Time

	// 当前扫描
	codeName  string
	total     int
	done      int
	errCount  int
	scenarios int

	// 输出控制
	lastLen   int
	lastFlush time.Time

	mu sync.Mutex
}

// 进程级终端（可选，全局设置后供 bench 旁路调用）。
var (
	termMu sync.RWMutex
	term   *Terminal
)

// SetTerminal 设置全局终端指针（nil 可清除）。
func SetTerminal(t *Terminal) { termMu.Lock(); term = t; termMu.Unlock() }

// GetTerminal 返回全局终端（可能为 nil）。
func GetTerminal() *Terminal { termMu.RLock(); defer termMu.RUnlock(); return term }

// NewTerminal 构造终端提示器。
// enabled=false 时总是 no-op。
func NewTerminal(w io.Writer, enabled bool) *Terminal {
	if w == nil {
		w = os.Stderr
	}
	t := &Terminal{w: w, enabled: enabled}
	// CI 环境视为非 TTY
	if os.Getenv("CI") != "" {
		t.isTTY = false
	} else if f, ok := w.(*os.File); ok {
		t.isTTY = isatty.IsTerminal(f.Fd()) || isatty.IsCygwinTerminal(f.Fd())
	}
	return t
}

// RunStart: 记录运行上下文（并发、后端）。
func (t *Terminal) RunStart(concurrency int, backend string) {
	if t == nil {
		return
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	if !t.enabled {
		return
	}
	t.concurrency = concurrency
	t.backend = backend
	t.runStart = time.Now()
	t.println(fmt.Sprintf("[run] 并发=%d | backend=%s", concurrency, safe(backend)))
}

// SweepStart: 标记当前码与计划场景数。
func (t *Terminal) SweepStart(codeName string, total int) {
	if t == nil {
		return
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	if !t.enabled {
		return
	}
	t.codeName = shorten(codeName, 48)
	t.total = total
	t.done = 0
	t.errCount = 0
	if !t.isTTY {
		t.println(fmt.Sprintf("[sweep] %s | 计划场景=%d", t.codeName, total))
	}
}

// ScenarioDone: 单个场景完成；非 TTY 打印结果行，TTY 节流刷新进度（≥100ms）。
func (t *Terminal) ScenarioDone(label string, rate float64, err error) {
	if t == nil {
		return
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	if !t.enabled {
		return
	}
	t.done++
	if err != nil {
		t.errCount++
	}
	if !t.isTTY {
		if err != nil {
			t.println(fmt.Sprintf("[scenario] %s | 失败", safe(label)))
		} else {
			t.println(fmt.Sprintf("[scenario] %s | 逻辑错误率 %.3f", safe(label), rate))
		}
		return
	}
	now := time.Now()
	if now.Sub(t.lastFlush) < 100*time.Millisecond {
		return
	}
	t.lastFlush = now
	line := fmt.Sprintf("[sweep] %s | 进度 %d/%d | 错误 %d | 并发 %d | 用时 %s",
		t.codeName, t.done, t.total, t.errCount, t.concurrency, formatSince(t.runStart))
	t.printInline(line)
}

// SweepFinish: 完成当前扫描（立即刷新并换行）。
func (t *Terminal) SweepFinish(ok bool, dur time.Duration) {
	if t == nil {
		return
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	if !t.enabled {
		return
	}
	t.scenarios += t.done
	status := "done"
	if !ok {
		status = "fail"
	}
	if t.isTTY && t.lastLen > 0 {
		t.printInline("")
	}
	t.println(fmt.Sprintf("[%s] %s | 场景 %d/%d | 总用时 %s",
		status, t.codeName, t.done, t.total, formatDur(dur)))
}

// RunFinish: 结束总览。
func (t *Terminal) RunFinish(ok bool, dur time.Duration) {
	if t == nil {
		return
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	if !t.enabled {
		return
	}
	tag := "ok"
	if !ok {
		tag = "fail"
	}
	t.println(fmt.Sprintf("[%s] 全部完成 | 场景 %d | 总用时 %s", tag, t.scenarios, formatDur(dur)))
}

// 内部输出工具
func (t *Terminal) println(s string) {
	if t == nil || !t.enabled {
		return
	}
	if _, err := io.WriteString(t.w, s+"\n"); err != nil {
		// 写失败即禁用
		t.enabled = false
	}
	t.lastLen = 0
}

func (t *Terminal) printInline(s string) {
	if t == nil || !t.enabled {
		return
	}
	// 若新行比旧短，填充空格覆盖
	pad := 0
	if l := visLen(s); t.lastLen > l {
		pad = t.lastLen - l
	}
	var b strings.Builder
	b.WriteByte('\r')
	b.WriteString(s)
	if pad > 0 {
		b.WriteString(strings.Repeat(" ", pad))
	}
	if _, err := io.WriteString(t.w, b.String()); err != nil {
		t.enabled = false
		return
	}
	t.lastLen = visLen(s)
}

// shorten: 按可见宽度截断（尾部省略号）。
func shorten(s string, max int) string {
	if max <= 0 {
		return ""
	}
	s = safe(strings.TrimSpace(s))
	if visLen(s) <= max {
		return s
	}
	cut := max - 1
	if cut < 1 {
		cut = 1
	}
	rs := []rune(s)
	return string(rs[:cut]) + "…"
}

func visLen(s string) int { return len([]rune(s)) }

func safe(s string) string {
	// 避免换行等控制字符污染终端
	s = strings.ReplaceAll(s, "\n", " ")
	s = strings.ReplaceAll(s, "\r", " ")
	return s
}

func formatSince(t0 time.Time) string { return formatDur(time.Since(t0)) }

func formatDur(d time.Duration) string {
	if d < time.Second {
		ms := d.Milliseconds()
		if ms <= 0 {
			ms = 0
		}
		return fmt.Sprintf("%dms", ms)
	}
	// 秒，保留 1 位小数
	s := float64(d.Milliseconds()) / 1000.0
	return fmt.Sprintf("%.1fs", s)
}
