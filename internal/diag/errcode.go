package diag

import (
	"context"
	"errors"
	"net"
	"os"
	"time"

	"qecbench/pkg/contract"
)

// Code 是最小错误分类代码。
// 用于日志/指标汇总与 CLI 退出码映射。
type Code string

const (
	CodeUnknown   Code = "unknown"
	CodeNetwork   Code = "network"
	CodeConfig    Code = "config"
	CodeBackend   Code = "backend"
	CodeInvariant Code = "invariant"
	CodeRateLimit Code = "rate_limit"
	CodeCancel    Code = "cancel"
	CodeIO        Code = "io"
)

// Classify 将错误归为最小分类。
// 仅依赖哨兵错误与标准库错误类型，不做字符串匹配。
func Classify(err error) Code {
	if err == nil {
		return CodeUnknown
	}
	// 取消/超时优先
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return CodeCancel
	}
	if errors.Is(err, contract.ErrRateLimited) {
		return CodeRateLimit
	}
	if errors.Is(err, contract.ErrBackend) {
		return CodeBackend
	}
	if errors.Is(err, contract.ErrConfiguration) {
		return CodeConfig
	}
	if errors.Is(err, contract.ErrInvariantViolation) ||
		errors.Is(err, contract.ErrInvalidInput) ||
		errors.Is(err, contract.ErrPathInvalid) {
		return CodeInvariant
	}
	var perr *os.PathError
	if errors.As(err, &perr) {
		return CodeIO
	}
	var nerr net.Error
	if errors.As(err, &nerr) {
		return CodeNetwork
	}
	return CodeUnknown
}

// NowUTC 返回 RFC3339 UTC 时间字符串。
func NowUTC() string { return time.Now().UTC().Format(time.RFC3339) }
