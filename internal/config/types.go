package config

import (
	"encoding/json"
)

// Config: 运行期只读配置（一次解析，运行期不变）。
// JSON/YAML 使用 snake_case；未知字段在解析期失败。
type Config struct {
	// Code: 被测码（码族 + 距离，或 YAML 码文件）。
	Code  Code `json:"code"`
	Shots int  `json:"shots" validate:"gte=1"`
	// Concurrency: 场景并发度；1 表示串行（遇错即停）。
	Concurrency int `json:"concurrency" validate:"gte=1,lte=256"`
	// TimeStep/Threshold: 序列构建参数；0 合法，nil 表示未设置（Merge 时不覆盖）。
	TimeStep  *float64 `json:"time_step,omitempty" validate:"required,gte=0"`
	Threshold *float64 `json:"threshold,omitempty" validate:"required,gte=0,lte=1"`
	Logging   Logging  `json:"logging"`

	// Backend: 选用的后端定义名（Backends 的键）。
	Backend  string                `json:"backend"`
	Backends map[string]BackendDef `json:"backends" validate:"dive"`

	// Renderers: 渲染器实现名（registry.Renderer 的键），按序执行。
	Renderers       []string                   `json:"renderers"`
	RendererOptions map[string]json.RawMessage `json:"renderer_options"`

	// Archive: 可选归档；Name 为空则不归档。
	Archive Archive `json:"archive"`
}

// Code: 码选择；File 非空时优先于 Family/Distance。
type Code struct {
	Family   string `json:"family"`
	Distance int    `json:"distance" validate:"gte=0"`
	File     string `json:"file"`
}

// Logging: 日志等级与目录；目录为空时使用默认 logs/。
type Logging struct {
	Level string `json:"level" validate:"omitempty,oneof=debug info warn error"`
	Dir   string `json:"dir"`
}

// BackendDef: 命名后端定义（实现名 + options + 限额）。
type BackendDef struct {
	Client  string          `json:"client" validate:"required"`
	Options json.RawMessage `json:"options"`
	Limits  Limits          `json:"limits"`
}

// Limits: 提交限流配置（仅承载；执行位于 rate.Gate）。
type Limits struct {
	RPM   int `json:"rpm" validate:"gte=0"`
	Burst int `json:"burst" validate:"gte=0"`
}

// Archive: 归档实现名与原样 JSON Options。
type Archive struct {
	Name    string          `json:"name"`
	Options json.RawMessage `json:"options"`
}
