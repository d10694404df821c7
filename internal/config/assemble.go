package config

import (
	"errors"
	"fmt"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"

	"qecbench/internal/bench"
	"qecbench/internal/rate"
	"qecbench/internal/stabilizer"
	"qecbench/pkg/contract"
	"qecbench/pkg/registry"
)

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New()
	// 报错字段使用 JSON 名，与配置文件一致
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name := strings.SplitN(f.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})
	return v
}

// Validate 对最小必要边界做静态校验：结构标签 + 跨字段/注册表检查。
// 失败均为 ConfigurationError。
func Validate(cfg Config) error {
	if err := validate.Struct(cfg); err != nil {
		var ves validator.ValidationErrors
		if errors.As(err, &ves) && len(ves) > 0 {
			fe := ves[0]
			field := strings.TrimPrefix(fe.Namespace(), "Config.")
			if fe.Param() != "" {
				return contract.Configf(field, "must satisfy %s=%s, got %v", fe.Tag(), fe.Param(), fe.Value())
			}
			return contract.Configf(field, "must satisfy %s", fe.Tag())
		}
		return contract.Configf("config", "%v", err)
	}
	if strings.TrimSpace(cfg.Code.File) == "" && strings.TrimSpace(cfg.Code.Family) == "" {
		return contract.Configf("code", "family or file required")
	}
	if cfg.Backend == "" {
		return contract.Configf("backend", "not set")
	}
	def, ok := cfg.Backends[cfg.Backend]
	if !ok {
		return contract.Configf("backend", "backend %q not defined in backends", cfg.Backend)
	}
	if registry.Backend[def.Client] == nil {
		return contract.Configf("backends."+cfg.Backend+".client", "backend client %q not registered", def.Client)
	}
	seen := map[string]bool{}
	for _, name := range cfg.Renderers {
		if registry.Renderer[name] == nil {
			return contract.Configf("renderers", "renderer %q not registered", name)
		}
		if seen[name] {
			return contract.Configf("renderers", "renderer %q listed twice", name)
		}
		seen[name] = true
	}
	if cfg.Archive.Name != "" && registry.Archive[cfg.Archive.Name] == nil {
		return contract.Configf("archive.name", "archive %q not registered", cfg.Archive.Name)
	}
	return nil
}

// ResolveCode 按配置构造被测码：File 优先，否则按码族与距离。
func ResolveCode(c Code) (contract.StabilizerCode, error) {
	if f := strings.TrimSpace(c.File); f != "" {
		code, err := stabilizer.LoadFile(f)
		if err != nil && !errors.Is(err, contract.ErrConfiguration) {
			return contract.StabilizerCode{}, contract.Configf("code.file", "%v", err)
		}
		return code, err
	}
	return stabilizer.ForFamily(c.Family, c.Distance)
}

// Assemble 构造 Components、Settings 与被测码。
// 严格 Options 解析在 registry（工厂）层进行；此处只传 raw JSON。
// 失败时已构造的协作者会被释放。
func Assemble(cfg Config) (bench.Components, bench.Settings, contract.StabilizerCode, error) {
	if err := Validate(cfg); err != nil {
		return bench.Components{}, bench.Settings{}, contract.StabilizerCode{}, err
	}
	code, err := ResolveCode(cfg.Code)
	if err != nil {
		return bench.Components{}, bench.Settings{}, contract.StabilizerCode{}, err
	}

	def := cfg.Backends[cfg.Backend]
	var comp bench.Components
	fail := func(field string, err error) (bench.Components, bench.Settings, contract.StabilizerCode, error) {
		_ = comp.Close()
		if !errors.Is(err, contract.ErrConfiguration) {
			err = fmt.Errorf("%w: %s: %v", contract.ErrConfiguration, field, err)
		}
		return bench.Components{}, bench.Settings{}, contract.StabilizerCode{}, err
	}

	b, err := registry.Backend[def.Client](def.Options)
	if err != nil {
		return fail("backends."+cfg.Backend, err)
	}
	comp.Backend = b
	for _, name := range cfg.Renderers {
		r, err := registry.Renderer[name](cfg.RendererOptions[name])
		if err != nil {
			return fail("renderer_options."+name, err)
		}
		comp.Renderers = append(comp.Renderers, r)
	}
	if cfg.Archive.Name != "" {
		a, err := registry.Archive[cfg.Archive.Name](cfg.Archive.Options)
		if err != nil {
			return fail("archive", err)
		}
		comp.Archive = a
	}

	// 限流 Gate（按后端限额构造；分组键由 options 中的 device 派生）
	key := rate.DeriveKey(cfg.Backend, def.Options)
	var gate rate.Gate
	if def.Limits.RPM > 0 {
		gate = rate.NewGate(map[rate.LimitKey]rate.Limits{
			key: {RPM: def.Limits.RPM, Burst: def.Limits.Burst},
		}, nil)
	}

	set := bench.Settings{
		Shots:       cfg.Shots,
		Concurrency: cfg.Concurrency,
		TimeStep:    *cfg.TimeStep,
		Threshold:   *cfg.Threshold,
		Gate:        gate,
		GateKey:     key,
		BackendName: cfg.Backend,
	}
	return comp, set, code, nil
}
