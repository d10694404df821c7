package diag

import (
	"os"
	"strings"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// parseLevel: debug|info|warn|error，未知值回落 info。
func parseLevel(s string) zapcore.Level {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "debug":
		return zapcore.DebugLevel
	case "warn":
		return zapcore.WarnLevel
	case "error":
		return zapcore.ErrorLevel
	default:
		return zapcore.InfoLevel
	}
}

// Logger: 结构化事件日志器（zap JSON，单行一事件）。
// 事件字段：level ts corr_id comp stage(start|finish|error|warn) code dur_ms count code_name scenario msg kv
type Logger struct {
	z    *zap.Logger
	sink *LogSink
}

// NewLoggerAt 以配置的 level 初始化，日志写入 dir（10MiB 轮转，保留 20 个历史文件）；dir 为空时写 stderr。
func NewLoggerAt(dir, corrID, level string) *Logger {
	var ws zapcore.WriteSyncer
	var sink *LogSink
	if strings.TrimSpace(dir) == "" {
		ws = zapcore.Lock(os.Stderr)
	} else {
		sink = NewLogSink(SinkOptions{Dir: dir, MaxBackups: 20})
		ws = zapcore.AddSync(sink)
	}
	core := zapcore.NewCore(zapcore.NewJSONEncoder(encoderConfig()), ws, parseLevel(level))
	l := NewLoggerWithCore(core, corrID)
	l.sink = sink
	return l
}

// NewLoggerWithCore 允许注入自定义 core（测试使用 zaptest/observer）。
func NewLoggerWithCore(core zapcore.Core, corrID string) *Logger {
	z := zap.New(core, zap.ErrorOutput(zapcore.Lock(os.Stderr))).With(zap.String("corr_id", corrID))
	return &Logger{z: z}
}

func encoderConfig() zapcore.EncoderConfig {
	return zapcore.EncoderConfig{
		TimeKey:        "ts",
		LevelKey:       "level",
		MessageKey:     "msg",
		LineEnding:     zapcore.DefaultLineEnding,
		EncodeLevel:    zapcore.LowercaseLevelEncoder,
		EncodeTime:     func(t time.Time, enc zapcore.PrimitiveArrayEncoder) { enc.AppendString(t.UTC().Format(time.RFC3339)) },
		EncodeDuration: zapcore.MillisDurationEncoder,
	}
}

// Close 刷新缓冲并关闭文件 sink。
func (l *Logger) Close() error {
	if l == nil {
		return nil
	}
	_ = l.z.Sync()
	if l.sink != nil {
		return l.sink.Close()
	}
	return nil
}

// event: 组装标准字段；空值省略。
func event(comp, stage, code, codeName, scenario string, dur, count int64, kv map[string]string) []zap.Field {
	fs := make([]zap.Field, 0, 8)
	fs = append(fs, zap.String("comp", comp), zap.String("stage", stage))
	if code != "" {
		fs = append(fs, zap.String("code", code))
	}
	if dur > 0 {
		fs = append(fs, zap.Int64("dur_ms", dur))
	}
	if count > 0 {
		fs = append(fs, zap.Int64("count", count))
	}
	if codeName != "" {
		fs = append(fs, zap.String("code_name", codeName))
	}
	if scenario != "" {
		fs = append(fs, zap.String("scenario", scenario))
	}
	if len(kv) > 0 {
		fs = append(fs, zap.Any("kv", kv))
	}
	return fs
}

// StartWith 记录带 code_name/scenario 的 start；返回计时器用于 Finish。
func (l *Logger) StartWith(comp, msg, codeName, scenario string) *Timer {
	l.z.Info(msg, event(comp, "start", "", codeName, scenario, 0, 0, nil)...)
	return &Timer{l: l, comp: comp, codeName: codeName, scenario: scenario, t0: time.Now()}
}

// StartWithKV 记录带 code_name/scenario 与键值的 start。
func (l *Logger) StartWithKV(comp, msg, codeName, scenario string, kv map[string]string) *Timer {
	l.z.Info(msg, event(comp, "start", "", codeName, scenario, 0, 0, kv)...)
	return &Timer{l: l, comp: comp, codeName: codeName, scenario: scenario, t0: time.Now()}
}

// Error 记录 error 事件。
func (l *Logger) Error(comp, code, msg string, durSince *time.Time) {
	l.z.Error(msg, event(comp, "error", code, "", "", since(durSince), 0, nil)...)
}

// ErrorWith 支持 code_name/scenario。
func (l *Logger) ErrorWith(comp, code, msg string, durSince *time.Time, codeName, scenario string) {
	l.z.Error(msg, event(comp, "error", code, codeName, scenario, since(durSince), 0, nil)...)
}

// ErrorWithKV 支持附带键值对（例如后端错误片段）。
func (l *Logger) ErrorWithKV(comp, code, msg string, durSince *time.Time, codeName, scenario string, kv map[string]string) {
	l.z.Error(msg, event(comp, "error", code, codeName, scenario, since(durSince), 0, kv)...)
}

// WarnWith 记录 warn 事件（例如译码 miss）。
func (l *Logger) WarnWith(comp, code, msg, codeName, scenario string, kv map[string]string) {
	l.z.Warn(msg, event(comp, "warn", code, codeName, scenario, 0, 0, kv)...)
}

// InfoFinish 在已有起点的情况下记录 finish。
func (l *Logger) InfoFinish(comp, msg string, start time.Time, count int64) {
	l.z.Info(msg, event(comp, "finish", "", "", "", time.Since(start).Milliseconds(), count, nil)...)
}

// DebugStart 输出调试级别的 start 类事件（仅在 level=debug 时生效）。
func (l *Logger) DebugStart(comp, msg, codeName, scenario string, kv map[string]string) {
	l.z.Debug(msg, event(comp, "start", "", codeName, scenario, 0, 0, kv)...)
}

func since(t *time.Time) int64 {
	if t == nil {
		return 0
	}
	return time.Since(*t).Milliseconds()
}

// Timer 用于 start→finish 计时。
type Timer struct {
	l        *Logger
	comp     string
	codeName string
	scenario string
	t0       time.Time
}

// Finish 记录 finish；可选 count。同时上报耗时直方图。
func (t *Timer) Finish(msg string, count int64) {
	if t == nil || t.l == nil {
		return
	}
	dur := time.Since(t.t0).Milliseconds()
	t.l.z.Info(msg, event(t.comp, "finish", "", t.codeName, t.scenario, dur, count, nil)...)
	ObserveDuration(t.comp, msg, dur)
}
