package contract

import (
	"context"
	"io"
)

// RunWriter: 将一次运行的渲染产物以流式方式持久化，按 <run>/<name> 组织。
// 约束：
//  1. 同一 (run, name) 单写者；
//  2. 流式写入，按字节透传，不读取/修改内容；
//  3. ctx 取消需尽快返回；
//  4. run 与 name 均为单个路径段，否则返回 ErrPathInvalid。
type RunWriter interface {
	WriteRun(ctx context.Context, run RunID, name string, r io.Reader) error
}
