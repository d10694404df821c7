package contract

import (
	"errors"
	"fmt"
)

// 最小错误分类（用于上层策略判定与 diag.Classify）。
var (
	// ErrConfiguration: 码描述或运行配置不合法（比特数不匹配、综合征表与推导不一致等）。
	ErrConfiguration = errors.New("configuration error")
	// ErrBackend: 执行后端失败；扫描整体中止。
	ErrBackend = errors.New("backend error")
	// ErrRateLimited: 后端限流/配额不足。
	ErrRateLimited = errors.New("rate limited")
	// ErrInvalidInput: 纯函数入参越界（例如负的时间步长）。
	ErrInvalidInput = errors.New("invalid input")
	// ErrPathInvalid: 运行标识或工件名不是合法的单个路径段。
	ErrPathInvalid = errors.New("path invalid")
	// ErrInvariantViolation: 领域不变量违例（通用哨兵）。
	ErrInvariantViolation = errors.New("invariant violation")
)

// ConfigurationError 携带出错字段，errors.Is(err, ErrConfiguration) 为真。
type ConfigurationError struct {
	Field  string
	Reason string
}

func (e *ConfigurationError) Error() string {
	if e.Field == "" {
		return "configuration error: " + e.Reason
	}
	return fmt.Sprintf("configuration error: %s: %s", e.Field, e.Reason)
}

func (e *ConfigurationError) Is(target error) bool { return target == ErrConfiguration }

// Configf 构造 ConfigurationError。
func Configf(field, format string, a ...any) error {
	return &ConfigurationError{Field: field, Reason: fmt.Sprintf(format, a...)}
}

// BackendError 包装后端原始错误（原样透传，可 Unwrap），errors.Is(err, ErrBackend) 为真。
type BackendError struct {
	Scenario string
	Err      error
}

func (e *BackendError) Error() string {
	return fmt.Sprintf("backend error: scenario %s: %v", e.Scenario, e.Err)
}

func (e *BackendError) Unwrap() error { return e.Err }

func (e *BackendError) Is(target error) bool { return target == ErrBackend }
