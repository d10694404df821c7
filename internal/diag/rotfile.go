package diag

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"
)

// SinkOptions: 轮转日志落盘参数。
type SinkOptions struct {
	Dir string
	// Prefix: 文件名前缀，默认 qecbench（当前文件 <prefix>-current.txt）。
	Prefix string
	// MaxBytes: 单文件上限，默认 10 MiB。
	MaxBytes int64
	// MaxBackups: 保留的历史文件数；0 表示不清理。
	MaxBackups int
}

// LogSink 按大小轮转的日志文件，实现 zapcore.WriteSyncer。
// 超限时当前文件改名为 <prefix>-<UTC 时间戳>.txt，并按 MaxBackups 清理最旧的历史文件。
type LogSink struct {
	opt  SinkOptions
	mu   sync.Mutex
	f    *os.File
	size int64
}

func NewLogSink(opt SinkOptions) *LogSink {
	if opt.Prefix == "" {
		opt.Prefix = "qecbench"
	}
	if opt.MaxBytes <= 0 {
		opt.MaxBytes = 10 << 20
	}
	return &LogSink{opt: opt}
}

func (s *LogSink) current() string {
	return filepath.Join(s.opt.Dir, s.opt.Prefix+"-current.txt")
}

// Write 写入一个完整事件（zap 每次 Write 恰为一行）。事件不跨文件拆分。
func (s *LogSink) Write(p []byte) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.open(); err != nil {
		return 0, err
	}
	if s.size > 0 && s.size+int64(len(p)) > s.opt.MaxBytes {
		if err := s.roll(); err != nil {
			return 0, err
		}
	}
	n, err := s.f.Write(p)
	s.size += int64(n)
	return n, err
}

// Sync 刷盘。
func (s *LogSink) Sync() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.f == nil {
		return nil
	}
	return s.f.Sync()
}

// Close 关闭句柄；之后的 Write 会重新打开当前文件。
func (s *LogSink) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.f == nil {
		return nil
	}
	err := s.f.Close()
	s.f = nil
	return err
}

func (s *LogSink) open() error {
	if s.f != nil {
		return nil
	}
	if err := os.MkdirAll(s.opt.Dir, 0o755); err != nil {
		return err
	}
	f, err := os.OpenFile(s.current(), os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return err
	}
	s.f, s.size = f, 0
	if st, err := f.Stat(); err == nil {
		s.size = st.Size()
	}
	return nil
}

func (s *LogSink) roll() error {
	if s.f != nil {
		_ = s.f.Close()
		s.f = nil
	}
	// 纳秒精度，同秒多次轮转不冲突
	ts := time.Now().UTC().Format("20060102-150405.000000000")
	dst := filepath.Join(s.opt.Dir, fmt.Sprintf("%s-%s.txt", s.opt.Prefix, ts))
	if err := os.Rename(s.current(), dst); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("rotate log: %w", err)
	}
	if err := s.prune(); err != nil {
		return err
	}
	return s.open()
}

// prune 删除超出 MaxBackups 的最旧历史文件（时间戳命名，字典序即时间序）。
func (s *LogSink) prune() error {
	if s.opt.MaxBackups <= 0 {
		return nil
	}
	backups, err := s.backups()
	if err != nil {
		return err
	}
	for len(backups) > s.opt.MaxBackups {
		if err := os.Remove(backups[0]); err != nil && !os.IsNotExist(err) {
			return fmt.Errorf("prune log: %w", err)
		}
		backups = backups[1:]
	}
	return nil
}

// backups 返回历史文件路径（升序）。
func (s *LogSink) backups() ([]string, error) {
	ents, err := os.ReadDir(s.opt.Dir)
	if err != nil {
		return nil, err
	}
	cur := filepath.Base(s.current())
	var out []string
	for _, e := range ents {
		n := e.Name()
		if e.IsDir() || n == cur || !strings.HasPrefix(n, s.opt.Prefix+"-") || !strings.HasSuffix(n, ".txt") {
			continue
		}
		out = append(out, filepath.Join(s.opt.Dir, n))
	}
	sort.Strings(out)
	return out, nil
}
