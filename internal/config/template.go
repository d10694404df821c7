package config

import "encoding/json"

// DefaultTemplateConfig 返回一个“可运行”的默认配置模板：
// - 默认后端为本地 sampler（离线、确定性）；另给出 mock/flaky 定义便于联调；
// - JSON 渲染器输出到 ./out，influx 与 sqlite 的键齐全但默认不启用；
// - 选项给出安全中性默认值。
func DefaultTemplateConfig() Config {
	d := Defaults()
	return Config{
		Code:        Code{Family: "three_qubit", Distance: 3},
		Shots:       d.Shots,
		Concurrency: 4,
		TimeStep:    d.TimeStep,
		Threshold:   d.Threshold,
		Logging:     Logging{Level: "info", Dir: "logs"},
		Backend:     "sampler",
		Backends: map[string]BackendDef{
			"sampler": {
				Client:  "sampler",
				Options: json.RawMessage(`{"seed": 1, "flip_prob": 0, "device": ""}`),
				Limits:  Limits{RPM: 0, Burst: 0},
			},
			"mock": {
				Client:  "mock",
				Options: json.RawMessage(`{"counts": {}, "device": ""}`),
			},
			"flaky": {
				Client:  "flaky",
				Options: json.RawMessage(`{"fail_on": 2, "rate_limited": false, "log_path": "", "device": ""}`),
				Limits:  Limits{RPM: 60, Burst: 1},
			},
			"remote": {
				Client: "remote",
				Options: json.RawMessage(`{
  "base_url": "http://localhost:8080",
  "endpoint_path": "/v1/jobs",
  "api_key_env": "QECBENCH_REMOTE_API_KEY",
  "timeout_seconds": 60,
  "device": ""
}`),
				Limits: Limits{RPM: 30, Burst: 2},
			},
		},
		Renderers: []string{"json"},
		RendererOptions: map[string]json.RawMessage{
			"json": json.RawMessage(`{"output_dir": "out", "name": "series.json", "indent": true}`),
			"influx": json.RawMessage(`{
  "url": "http://localhost:8086",
  "token_env": "INFLUX_TOKEN",
  "org": "",
  "bucket": "qec",
  "measurement": "qec_series",
  "tags": {}
}`),
		},
		Archive: Archive{
			// 设置 name 为 "sqlite" 以启用归档
			Name:    "",
			Options: json.RawMessage(`{"path": "out/runs.db"}`),
		},
	}
}
