package contract

import (
	"context"
	"time"
)

// Renderer: 可视化渲染器（外部协作者），消费已计算好的 ResultSeries。
// 约束：不回查后端；失败直接上抛。
type Renderer interface {
	Render(ctx context.Context, run RunID, s ResultSeries) error
}

// RunRecord: 一次完整扫描的归档记录（仅在扫描成功后生成）。
type RunRecord struct {
	RunID     RunID
	CodeName  string
	Backend   string
	Shots     int
	StartedAt time.Time
	Results   []ScenarioResult
	Series    ResultSeries
}

// Archive: 运行记录的持久化（可选组件）。
type Archive interface {
	Store(ctx context.Context, rec RunRecord) error
	Close() error
}
