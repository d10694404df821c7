package config

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"reflect"
	"strconv"
	"strings"

	"github.com/go-viper/mapstructure/v2"
	"github.com/spf13/viper"

	"qecbench/pkg/contract"
)

// EnvPrefix: 环境变量覆盖前缀。
const EnvPrefix = "QECBENCH_"

// keyDelim: viper 键分隔符。后端 options 的键可能含 '.'，不能沿用默认分隔符。
const keyDelim = "::"

// Defaults 返回带有安全默认值的 Config 雏形。
func Defaults() Config {
	return Config{
		Code:        Code{Family: "three_qubit"},
		Shots:       1000,
		Concurrency: 1,
		TimeStep:    Float(1),
		Threshold:   Float(0.1),
		Logging:     Logging{Level: "info", Dir: "logs"},
		Backend:     "sampler",
		Backends: map[string]BackendDef{
			"sampler": {Client: "sampler"},
		},
		Renderers: []string{"json"},
		RendererOptions: map[string]json.RawMessage{
			"json": json.RawMessage(`{"output_dir":"out"}`),
		},
	}
}

// Float 返回 v 的副本指针（TimeStep/Threshold 字面量）。
func Float(v float64) *float64 { return &v }

func newViper() *viper.Viper {
	return viper.NewWithOptions(viper.KeyDelimiter(keyDelim))
}

var rawMessageType = reflect.TypeOf(json.RawMessage(nil))

// rawJSONHook: options 子树（映射或 JSON 字符串）原样转为 json.RawMessage，
// 严格解码留给 registry 工厂。
func rawJSONHook(_ reflect.Type, to reflect.Type, data any) (any, error) {
	if to != rawMessageType {
		return data, nil
	}
	if s, ok := data.(string); ok {
		if !json.Valid([]byte(s)) {
			return nil, fmt.Errorf("invalid json %q", s)
		}
		return json.RawMessage(s), nil
	}
	b, err := json.Marshal(data)
	if err != nil {
		return nil, err
	}
	return json.RawMessage(b), nil
}

// decode 以 JSON 标签严格解码（未知键报错）；字符串经弱类型转换为数值/列表。
func decode(v *viper.Viper, out *Config) error {
	err := v.UnmarshalExact(out, func(dc *mapstructure.DecoderConfig) {
		dc.TagName = "json"
		dc.WeaklyTypedInput = true
		dc.DecodeHook = mapstructure.ComposeDecodeHookFunc(
			mapstructure.DecodeHookFuncType(rawJSONHook),
			mapstructure.StringToSliceHookFunc(","),
		)
	})
	if err != nil {
		return err
	}
	out.Renderers = trimList(out.Renderers)
	return nil
}

// checkExplicit: 显式给出的 shots/concurrency 不得为 0（0 在 Merge 中表示未设置）。
func checkExplicit(v *viper.Viper, cfg Config) error {
	if v.IsSet("shots") && cfg.Shots == 0 {
		return contract.Configf("shots", "must be >= 1, got 0")
	}
	if v.IsSet("concurrency") && cfg.Concurrency == 0 {
		return contract.Configf("concurrency", "must be >= 1, got 0")
	}
	return nil
}

func configType(path string) string {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		return "yaml"
	default:
		return "json"
	}
}

// LoadFile 从文件路径或原始字节解析 Config（严格拒绝未知字段）。
// 扩展名为 .yaml/.yml 时按 YAML 解析，其余按 JSON；未出现的键保持零值/nil。
func LoadFile(path string, raw []byte) (Config, error) {
	v := newViper()
	v.SetConfigType(configType(path))
	switch {
	case len(raw) > 0:
		if err := v.ReadConfig(bytes.NewReader(raw)); err != nil {
			return Config{}, err
		}
	case path != "":
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, err
		}
	default:
		return Config{}, errors.New("no config source provided")
	}
	var cfg Config
	if err := decode(v, &cfg); err != nil {
		return Config{}, err
	}
	if err := checkExplicit(v, cfg); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Merge 按优先级合并（后者覆盖前者）。
// 仅标量/字符串/原样 JSON 为“替换”；不做深度合并。
func Merge(base, over Config) Config {
	out := base
	// 码：File 与 Family 互斥，任一出现即整体替换
	if over.Code.File != "" || over.Code.Family != "" {
		out.Code = over.Code
	} else if over.Code.Distance != 0 {
		out.Code.Distance = over.Code.Distance
	}
	if over.Shots != 0 {
		out.Shots = over.Shots
	}
	if over.Concurrency != 0 {
		out.Concurrency = over.Concurrency
	}
	// 0 步长/0 阈值合法：以是否出现判定，负值原样保留交给 Validate
	if over.TimeStep != nil {
		out.TimeStep = Float(*over.TimeStep)
	}
	if over.Threshold != nil {
		out.Threshold = Float(*over.Threshold)
	}
	if lv := strings.TrimSpace(over.Logging.Level); lv != "" {
		out.Logging.Level = lv
	}
	if d := strings.TrimSpace(over.Logging.Dir); d != "" {
		out.Logging.Dir = d
	}
	if b := strings.TrimSpace(over.Backend); b != "" {
		out.Backend = b
	}

	// Backends：按键合并，空字段不覆盖（ENV 可只调整限额）
	if len(over.Backends) > 0 {
		m := make(map[string]BackendDef, len(out.Backends)+len(over.Backends))
		for k, v := range out.Backends {
			m[k] = v
		}
		for k, v := range over.Backends {
			d := m[k]
			if v.Client != "" {
				d.Client = v.Client
			}
			if len(v.Options) > 0 {
				d.Options = cloneRaw(v.Options)
			}
			if v.Limits.RPM != 0 {
				d.Limits.RPM = v.Limits.RPM
			}
			if v.Limits.Burst != 0 {
				d.Limits.Burst = v.Limits.Burst
			}
			m[k] = d
		}
		out.Backends = m
	}

	if over.Renderers != nil {
		out.Renderers = cloneStrings(over.Renderers)
	}
	if len(over.RendererOptions) > 0 {
		m := make(map[string]json.RawMessage, len(out.RendererOptions)+len(over.RendererOptions))
		for k, v := range out.RendererOptions {
			m[k] = v
		}
		for k, v := range over.RendererOptions {
			m[k] = cloneRaw(v)
		}
		out.RendererOptions = m
	}

	if strings.TrimSpace(over.Archive.Name) != "" {
		out.Archive.Name = strings.TrimSpace(over.Archive.Name)
	}
	if len(over.Archive.Options) > 0 {
		out.Archive.Options = cloneRaw(over.Archive.Options)
	}
	return out
}

// envAliases: 与 viper 推导名（键中 "::" 换为 "_"）不同的环境变量名。
var envAliases = map[string]string{
	"logging::level":   "LOG_LEVEL",
	"logging::dir":     "LOG_DIR",
	"archive::name":    "ARCHIVE",
	"archive::options": "ARCHIVE_OPTIONS_JSON",
}

// envKeys: 可由环境变量覆盖的标量键。
var envKeys = []string{
	"code::family", "code::distance", "code::file",
	"shots", "concurrency", "time_step", "threshold",
	"logging::level", "logging::dir",
	"backend", "renderers",
	"archive::name", "archive::options",
}

// EnvOverlay 从进程环境构建一个 Config 覆盖。空值视为未设置。
// 标量键：CODE_FAMILY, CODE_DISTANCE, CODE_FILE, SHOTS, CONCURRENCY, TIME_STEP, THRESHOLD,
// LOG_LEVEL, LOG_DIR, BACKEND, RENDERERS（逗号分隔）, ARCHIVE, ARCHIVE_OPTIONS_JSON；
// 命名键：BACKENDS__<name>__{CLIENT,OPTIONS_JSON,LIMITS_RPM,LIMITS_BURST} 与
// RENDERER__<name>__OPTIONS_JSON。
func EnvOverlay() (Config, error) {
	v := newViper()
	v.SetEnvPrefix(strings.TrimSuffix(EnvPrefix, "_"))
	v.SetEnvKeyReplacer(strings.NewReplacer(keyDelim, "_"))
	v.AutomaticEnv()
	for _, k := range envKeys {
		var err error
		if alias, ok := envAliases[k]; ok {
			err = v.BindEnv(k, EnvPrefix+alias)
		} else {
			err = v.BindEnv(k)
		}
		if err != nil {
			return Config{}, err
		}
	}
	var over Config
	if err := decode(v, &over); err != nil {
		return Config{}, fmt.Errorf("%s*: %w", EnvPrefix, err)
	}
	if err := checkExplicit(v, over); err != nil {
		return Config{}, err
	}
	if err := overlayNamed(os.Environ(), &over); err != nil {
		return Config{}, err
	}
	return over, nil
}

// overlayNamed 解析名字位于变量名中间的键（viper 无法枚举动态映射键）。
func overlayNamed(environ []string, over *Config) error {
	backends := map[string]BackendDef{}
	ropts := map[string]json.RawMessage{}
	for _, kv := range environ {
		k, val, ok := strings.Cut(kv, "=")
		if !ok || !strings.HasPrefix(k, EnvPrefix) || strings.TrimSpace(val) == "" {
			continue
		}
		nk := k[len(EnvPrefix):]
		name, field, ok := splitNamed(nk)
		if !ok {
			continue
		}
		switch {
		case strings.HasPrefix(nk, "BACKENDS__"):
			d := backends[name]
			switch field {
			case "CLIENT":
				d.Client = strings.TrimSpace(val)
			case "OPTIONS_JSON":
				if !json.Valid([]byte(val)) {
					return contract.Configf("backends."+name+".options", "%s: invalid json", k)
				}
				d.Options = json.RawMessage(val)
			case "LIMITS_RPM", "LIMITS_BURST":
				n, err := strconv.Atoi(strings.TrimSpace(val))
				if err != nil {
					return contract.Configf("backends."+name+".limits", "%s: %v", k, err)
				}
				if field == "LIMITS_RPM" {
					d.Limits.RPM = n
				} else {
					d.Limits.Burst = n
				}
			default:
				continue
			}
			backends[name] = d
		case strings.HasPrefix(nk, "RENDERER__") && field == "OPTIONS_JSON":
			if !json.Valid([]byte(val)) {
				return contract.Configf("renderer_options."+name, "%s: invalid json", k)
			}
			ropts[name] = json.RawMessage(val)
		}
	}
	if len(backends) > 0 {
		over.Backends = backends
	}
	if len(ropts) > 0 {
		over.RendererOptions = ropts
	}
	return nil
}

// splitNamed: "BACKENDS__<name>__FIELD" → (name, FIELD)。
func splitNamed(nk string) (string, string, bool) {
	parts := strings.Split(nk, "__")
	if len(parts) < 3 {
		return "", "", false
	}
	name := strings.TrimSpace(parts[1])
	if name == "" {
		return "", "", false
	}
	return name, strings.Join(parts[2:], "__"), true
}

func cloneStrings(in []string) []string {
	if in == nil {
		return nil
	}
	out := make([]string, len(in))
	copy(out, in)
	return out
}

func cloneRaw(in json.RawMessage) json.RawMessage {
	if len(in) == 0 {
		return nil
	}
	out := make([]byte, len(in))
	copy(out, in)
	return out
}

// trimList 去除空白项；nil 保持 nil（未设置），空列表保持非 nil（显式清空）。
func trimList(in []string) []string {
	if in == nil {
		return nil
	}
	out := make([]string, 0, len(in))
	for _, p := range in {
		if t := strings.TrimSpace(p); t != "" {
			out = append(out, t)
		}
	}
	return out
}
