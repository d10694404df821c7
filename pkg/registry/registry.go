package registry

import (
	"bytes"
	"encoding/json"

	"qecbench/pkg/contract"
	sqlarc "qecbench/plugins/archive/sqlite"
	flaky "qecbench/plugins/backend/flaky"
	mock "qecbench/plugins/backend/mock"
	remote "qecbench/plugins/backend/remote"
	sampler "qecbench/plugins/backend/sampler"
	influx "qecbench/plugins/renderer/influx"
	jsonfile "qecbench/plugins/renderer/jsonfile"
)

// strictUnmarshal: 使用 DisallowUnknownFields 严格解码，拒绝未知字段。
func strictUnmarshal(raw json.RawMessage, v any) error {
	if len(raw) == 0 {
		// 保持零值（默认选项）
		return nil
	}
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.DisallowUnknownFields()
	return dec.Decode(v)
}

// NewBackend 工厂签名：接收原样 JSON Options。
type NewBackend func(raw json.RawMessage) (contract.Backend, error)

// NewRenderer 工厂签名：接收原样 JSON Options。
type NewRenderer func(raw json.RawMessage) (contract.Renderer, error)

// NewArchive 工厂签名：接收原样 JSON Options。
type NewArchive func(raw json.RawMessage) (contract.Archive, error)

// Backend 工厂注册表（显式、零反射）。
var Backend = map[string]NewBackend{
	// sampler: 本地经典蒙特卡洛采样
	"sampler": func(raw json.RawMessage) (contract.Backend, error) {
		var opts sampler.Options
		if err := strictUnmarshal(raw, &opts); err != nil {
			return nil, err
		}
		v, err := sampler.New(&opts)
		if err != nil {
			return nil, err
		}
		return v, nil
	},
	// mock: 理想结果或按场景固定计数
	"mock": func(raw json.RawMessage) (contract.Backend, error) {
		var opts mock.Options
		if err := strictUnmarshal(raw, &opts); err != nil {
			return nil, err
		}
		return mock.New(&opts), nil
	},
	// flaky: 第 N 次提交失败（联调错误路径）
	"flaky": func(raw json.RawMessage) (contract.Backend, error) {
		var opts flaky.Options
		if err := strictUnmarshal(raw, &opts); err != nil {
			return nil, err
		}
		return flaky.New(&opts), nil
	},
	// remote: HTTP JSON 远程执行服务
	"remote": func(raw json.RawMessage) (contract.Backend, error) {
		var opts remote.Options
		if err := strictUnmarshal(raw, &opts); err != nil {
			return nil, err
		}
		v, err := remote.New(&opts)
		if err != nil {
			return nil, err
		}
		return v, nil
	},
}

// Renderer 工厂注册表。
var Renderer = map[string]NewRenderer{
	// json: <output_dir>/<run_id>/series.json
	"json": func(raw json.RawMessage) (contract.Renderer, error) {
		var opts jsonfile.Options
		if err := strictUnmarshal(raw, &opts); err != nil {
			return nil, err
		}
		v, err := jsonfile.New(&opts)
		if err != nil {
			return nil, err
		}
		return v, nil
	},
	// influx: 每个时间步一个 InfluxDB 点
	"influx": func(raw json.RawMessage) (contract.Renderer, error) {
		var opts influx.Options
		if err := strictUnmarshal(raw, &opts); err != nil {
			return nil, err
		}
		v, err := influx.New(&opts)
		if err != nil {
			return nil, err
		}
		return v, nil
	},
}

// Archive 工厂注册表。
var Archive = map[string]NewArchive{
	"sqlite": func(raw json.RawMessage) (contract.Archive, error) {
		var opts sqlarc.Options
		if err := strictUnmarshal(raw, &opts); err != nil {
			return nil, err
		}
		v, err := sqlarc.Open(&opts)
		if err != nil {
			return nil, err
		}
		return v, nil
	},
}
