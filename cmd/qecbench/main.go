package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"qecbench/internal/bench"
	cfgpkg "qecbench/internal/config"
	"qecbench/internal/diag"
	"qecbench/internal/stabilizer"
	"qecbench/pkg/contract"
	"qecbench/pkg/registry"
)

var benchExecute = bench.Execute

// 退出码：0 成功；1 运行期错误；3 配置/装配错误。
const (
	exitOK      = 0
	exitRuntime = 1
	exitConfig  = 3
)

// exitError 携带退出码；由 run 统一映射。
type exitError struct {
	code int
	err  error
}

func (e *exitError) Error() string { return e.err.Error() }
func (e *exitError) Unwrap() error { return e.err }

func configErr(err error) error  { return &exitError{code: exitConfig, err: err} }
func runtimeErr(err error) error { return &exitError{code: exitRuntime, err: err} }

func main() {
	os.Exit(run(os.Args[1:], os.Stdout, os.Stderr))
}

func run(args []string, stdout, stderr io.Writer) int {
	root := newRootCmd(stdout, stderr)
	root.SetArgs(args)
	err := root.Execute()
	if err == nil {
		return exitOK
	}
	var ee *exitError
	if errors.As(err, &ee) {
		if !errors.Is(ee.err, context.Canceled) {
			fmt.Fprintf(stderr, "错误: %v\n", ee.err)
		}
		return ee.code
	}
	// cobra 自身的参数/旗标错误
	fmt.Fprintf(stderr, "错误: %v\n", err)
	return exitConfig
}

// globalFlags: 根命令持久旗标。
type globalFlags struct {
	config   string
	logLevel string
}

func newRootCmd(stdout, stderr io.Writer) *cobra.Command {
	g := &globalFlags{}
	root := &cobra.Command{
		Use:           "qecbench",
		Short:         "比特翻转码译码与基准测试",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.SetOut(stdout)
	root.SetErr(stderr)
	root.PersistentFlags().StringVar(&g.config, "config", "", "配置文件（JSON 或 YAML）；缺省依次尝试 QECBENCH_CONFIG_FILE、./qecbench.yaml、./config.json")
	root.PersistentFlags().StringVar(&g.logLevel, "log-level", "", "日志等级 debug|info|warn|error（覆盖配置）")

	root.AddCommand(newRunCmd(g), newCodesCmd(), newShowCmd(g), newInitConfigCmd())
	return root
}

// runFlags: run 子命令旗标；未显式设置的旗标不覆盖配置。
type runFlags struct {
	backend     string
	shots       int
	concurrency int
	threshold   float64
	timeStep    float64
	code        string
	codeFile    string
	distance    int
	metricsFile string
	runID       string
	status      bool
}

func newRunCmd(g *globalFlags) *cobra.Command {
	f := &runFlags{}
	cmd := &cobra.Command{
		Use:   "run",
		Short: "执行一次完整扫描：无错误对照 + 每个数据比特的单比特翻转",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runBench(cmd, g, f)
		},
	}
	fl := cmd.Flags()
	fl.StringVar(&f.backend, "backend", "", "后端定义名（backends 的键）")
	fl.IntVar(&f.shots, "shots", 0, "每个场景的采样次数")
	fl.IntVar(&f.concurrency, "concurrency", 0, "场景并发度；1 为串行")
	fl.Float64Var(&f.threshold, "threshold", 0, "纠错成功阈值（逻辑错误率低于该值视为成功）")
	fl.Float64Var(&f.timeStep, "time-step", 0, "序列时间步长")
	fl.StringVar(&f.code, "code", "", "码族（three_qubit|bit_flip_3|repetition）")
	fl.StringVar(&f.codeFile, "code-file", "", "YAML 码描述文件（优先于 --code）")
	fl.IntVar(&f.distance, "distance", 0, "码距（repetition）")
	fl.StringVar(&f.metricsFile, "metrics-file", "", "运行结束后以 Prometheus 文本格式导出指标")
	fl.StringVar(&f.runID, "run-id", "", "运行标识；缺省生成 UUID")
	fl.BoolVar(&f.status, "status", true, "终端状态提示（stderr）。TTY 动态刷新；非 TTY 打点输出")
	return cmd
}

// loadConfig 按优先级合成最终配置：默认 < 文件 < ENV(.env) < CLI。
func loadConfig(g *globalFlags, over cfgpkg.Config) (cfgpkg.Config, error) {
	// 在任何 ENV 读取前加载 .env（不覆盖已有 ENV）
	if _, err := os.Stat(".env"); err == nil {
		if err := godotenv.Load(".env"); err != nil {
			return cfgpkg.Config{}, fmt.Errorf(".env: %w", err)
		}
	}
	path := g.config
	if path == "" {
		path = os.Getenv(cfgpkg.EnvPrefix + "CONFIG_FILE")
	}
	if path == "" {
		for _, p := range []string{"qecbench.yaml", "config.json"} {
			if _, err := os.Stat(p); err == nil {
				path = p
				break
			}
		}
	}
	cfg := cfgpkg.Defaults()
	if path != "" {
		file, err := cfgpkg.LoadFile(path, nil)
		if err != nil {
			return cfgpkg.Config{}, fmt.Errorf("%w: %s: %v", contract.ErrConfiguration, path, err)
		}
		cfg = cfgpkg.Merge(cfg, file)
	}
	env, err := cfgpkg.EnvOverlay()
	if err != nil {
		return cfgpkg.Config{}, fmt.Errorf("%w: %v", contract.ErrConfiguration, err)
	}
	cfg = cfgpkg.Merge(cfg, env)
	if lv := strings.TrimSpace(g.logLevel); lv != "" {
		over.Logging.Level = lv
	}
	cfg = cfgpkg.Merge(cfg, over)
	if err := cfgpkg.Validate(cfg); err != nil {
		return cfg, err
	}
	return cfg, nil
}

// cliOverlay 将显式设置的 run 旗标转为 Config 覆盖。
// Merge 视 0 计数为未设置，因此显式的 0/负计数在此直接拒绝；步长与阈值原样交给 Validate。
func cliOverlay(cmd *cobra.Command, f *runFlags) (cfgpkg.Config, error) {
	var over cfgpkg.Config
	fl := cmd.Flags()
	if fl.Changed("backend") {
		over.Backend = f.backend
	}
	if fl.Changed("shots") {
		if f.shots < 1 {
			return over, contract.Configf("shots", "must be >= 1, got %d", f.shots)
		}
		over.Shots = f.shots
	}
	if fl.Changed("concurrency") {
		if f.concurrency < 1 {
			return over, contract.Configf("concurrency", "must be >= 1, got %d", f.concurrency)
		}
		over.Concurrency = f.concurrency
	}
	if fl.Changed("threshold") {
		over.Threshold = cfgpkg.Float(f.threshold)
	}
	if fl.Changed("time-step") {
		over.TimeStep = cfgpkg.Float(f.timeStep)
	}
	switch {
	case fl.Changed("code-file"):
		over.Code = cfgpkg.Code{File: f.codeFile}
	case fl.Changed("code"):
		over.Code = cfgpkg.Code{Family: f.code, Distance: f.distance}
	case fl.Changed("distance"):
		over.Code.Distance = f.distance
	}
	return over, nil
}

func newLogger(cfg cfgpkg.Config, corrID string) *diag.Logger {
	return diag.NewLoggerAt(cfg.Logging.Dir, corrID, cfg.Logging.Level)
}

func runBench(cmd *cobra.Command, g *globalFlags, f *runFlags) error {
	start := time.Now()
	corrID := uuid.NewString()
	stdout, stderr := cmd.OutOrStdout(), cmd.ErrOrStderr()

	over, err := cliOverlay(cmd, f)
	if err != nil {
		return configErr(err)
	}
	cfg, err := loadConfig(g, over)
	if err != nil {
		if cfg.Backend != "" {
			dumpConfig(stderr, cfg)
		}
		return configErr(err)
	}
	logger := newLogger(cfg, corrID)
	defer logger.Close()

	comp, set, code, err := cfgpkg.Assemble(cfg)
	if err != nil {
		logger.Error("config", string(diag.Classify(err)), "assemble failed", &start)
		return configErr(err)
	}
	logger.InfoFinish("config", "assemble", start, int64(len(comp.Renderers)))
	defer func() {
		if err := comp.Close(); err != nil {
			logger.Error("config", string(diag.Classify(err)), "release failed", nil)
		}
	}()
	set.RunID = contract.RunID(strings.TrimSpace(f.runID))

	logger.DebugStart("config", "effective", code.Name, "", map[string]string{
		"backend":     cfg.Backend,
		"client":      cfg.Backends[cfg.Backend].Client,
		"shots":       fmt.Sprintf("%d", cfg.Shots),
		"concurrency": fmt.Sprintf("%d", cfg.Concurrency),
		"threshold":   fmt.Sprintf("%g", set.Threshold),
		"time_step":   fmt.Sprintf("%g", set.TimeStep),
		"renderers":   strings.Join(cfg.Renderers, ","),
		"archive":     cfg.Archive.Name,
		"rate_key":    string(set.GateKey),
	})

	// 终端信息提示（非日志）
	term := diag.NewTerminal(stderr, f.status)
	diag.SetTerminal(term)
	defer diag.SetTerminal(nil)
	term.RunStart(cfg.Concurrency, cfg.Backend)

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt)
	defer stop()

	t := logger.StartWith("cli", "run", code.Name, "")
	rep, err := benchExecute(ctx, comp, code, set, logger)
	if f.metricsFile != "" {
		defer writeMetrics(logger, f.metricsFile)
	}
	if err != nil {
		c := diag.Classify(err)
		logger.ErrorWith("cli", string(c), "first error", &start, code.Name, "")
		diag.IncOp("cli", "error", "error")
		if c != diag.CodeUnknown {
			diag.IncError("cli", string(c))
		}
		term.RunFinish(false, time.Since(start))
		if c == diag.CodeConfig {
			return configErr(err)
		}
		return runtimeErr(err)
	}
	t.Finish("run", int64(len(rep.Results)))
	diag.IncOp("cli", "finish", "success")
	diag.ObserveDuration("cli", "finish", time.Since(start).Milliseconds())
	term.RunFinish(true, time.Since(start))

	printReport(stdout, code, rep)
	return nil
}

func writeMetrics(logger *diag.Logger, path string) {
	if dir := filepath.Dir(path); dir != "." {
		_ = os.MkdirAll(dir, 0o755)
	}
	if err := diag.WriteTextfile(path); err != nil {
		logger.Error("metrics", string(diag.Classify(err)), "write textfile failed", nil)
	}
}

// printReport 输出逐场景结果与运行摘要（stdout）。
func printReport(w io.Writer, code contract.StabilizerCode, rep bench.Report) {
	fmt.Fprintf(w, "run_id: %s\n", rep.RunID)
	fmt.Fprintf(w, "code: %s (data=%d logical=%d)\n", code.Name, code.NData, code.NLogical)
	fmt.Fprintf(w, "%-16s %10s %10s %8s %8s\n", "scenario", "logical_err", "decode_acc", "misses", "shots")
	for _, r := range rep.Results {
		fmt.Fprintf(w, "%-16s %10.4f %10.4f %8d %8d\n",
			r.Scenario.Label, r.LogicalErrorRate, r.Decode.Accuracy(), r.Decode.Misses, r.Counts.Total())
	}
	s := rep.Summary
	fmt.Fprintf(w, "no_error_rate: %.3f\n", s.NoErrorRate)
	fmt.Fprintf(w, "mean_corrected_rate: %.3f\n", s.MeanCorrectedRate)
	fmt.Fprintf(w, "improvement: %.1f%%\n", s.Improvement*100)
}

func dumpConfig(w io.Writer, c cfgpkg.Config) {
	b, err := json.MarshalIndent(c, "", "  ")
	if err != nil {
		return
	}
	fmt.Fprintf(w, "有效配置:\n%s\n", b)
}

func newCodesCmd() *cobra.Command {
	var distance int
	cmd := &cobra.Command{
		Use:   "codes [family...]",
		Short: "列出码族及其稳定子与推导出的综合征表",
		RunE: func(cmd *cobra.Command, args []string) error {
			fams := args
			if len(fams) == 0 {
				fams = []string{stabilizer.FamilyThreeQubit, stabilizer.FamilyRepetition}
			}
			w := cmd.OutOrStdout()
			for i, fam := range fams {
				code, err := stabilizer.ForFamily(fam, distance)
				if err != nil {
					return configErr(err)
				}
				y, err := stabilizer.Describe(code).YAML()
				if err != nil {
					return runtimeErr(err)
				}
				if i > 0 {
					fmt.Fprintln(w, "---")
				}
				fmt.Fprintf(w, "# family: %s\n%s", fam, y)
			}
			if len(args) == 0 {
				fmt.Fprintf(w, "# 可用码族: %s\n", strings.Join(stabilizer.Families(), ", "))
			}
			return nil
		},
	}
	cmd.Flags().IntVar(&distance, "distance", 0, "码距（0 为码族默认）")
	return cmd
}

// runLoader: 可按运行标识读取归档的实现（sqlite）。
type runLoader interface {
	Load(ctx context.Context, run contract.RunID) (contract.RunRecord, error)
}

func newShowCmd(g *globalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "show <run_id>",
		Short: "从归档读取一次运行并以 JSON 输出",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(g, cfgpkg.Config{})
			if err != nil {
				return configErr(err)
			}
			if cfg.Archive.Name == "" {
				return configErr(contract.Configf("archive.name", "no archive configured"))
			}
			a, err := registry.Archive[cfg.Archive.Name](cfg.Archive.Options)
			if err != nil {
				return configErr(err)
			}
			defer a.Close()
			l, ok := a.(runLoader)
			if !ok {
				return configErr(contract.Configf("archive.name", "archive %q cannot load runs", cfg.Archive.Name))
			}
			rec, err := l.Load(cmd.Context(), contract.RunID(args[0]))
			if err != nil {
				return runtimeErr(err)
			}
			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			if err := enc.Encode(rec); err != nil {
				return runtimeErr(err)
			}
			return nil
		},
	}
}

func newInitConfigCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "init-config [dir]",
		Short: "在目录中生成默认 config.json 与 .env 模板（已存在则跳过，不覆盖）",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			dir := "."
			if len(args) == 1 && strings.TrimSpace(args[0]) != "" {
				dir = strings.TrimSpace(args[0])
			}
			if err := os.MkdirAll(dir, 0o755); err != nil {
				return configErr(err)
			}
			if err := writeConfig(filepath.Join(dir, "config.json"), cfgpkg.DefaultTemplateConfig()); err != nil {
				return configErr(err)
			}
			if err := writeDotEnv(filepath.Join(dir, ".env")); err != nil {
				fmt.Fprintf(cmd.ErrOrStderr(), "提示：.env 生成失败（已跳过）：%v\n", err)
			}
			return nil
		},
	}
}

// writeConfig 写出配置模板；目标已存在时返回错误（不覆盖）。
func writeConfig(path string, c cfgpkg.Config) error {
	b, err := json.MarshalIndent(c, "", "  ")
	if err != nil {
		return err
	}
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o644)
	if err != nil {
		return err
	}
	defer f.Close()
	if _, err := f.Write(append(b, '\n')); err != nil {
		return err
	}
	return nil
}

// writeDotEnv 生成 .env 模板（若文件已存在则跳过）。
func writeDotEnv(path string) error {
	p := cfgpkg.EnvPrefix
	env := map[string]string{
		p + "CONFIG_FILE":                     "",
		p + "CODE_FAMILY":                     "",
		p + "CODE_DISTANCE":                   "",
		p + "CODE_FILE":                       "",
		p + "SHOTS":                           "",
		p + "CONCURRENCY":                     "",
		p + "TIME_STEP":                       "",
		p + "THRESHOLD":                       "",
		p + "LOG_LEVEL":                       "",
		p + "LOG_DIR":                         "",
		p + "BACKEND":                         "",
		p + "RENDERERS":                       "",
		p + "ARCHIVE":                         "",
		p + "ARCHIVE_OPTIONS_JSON":            "",
		p + "BACKENDS__sampler__CLIENT":       "",
		p + "BACKENDS__sampler__OPTIONS_JSON": "",
		p + "BACKENDS__sampler__LIMITS_RPM":   "",
		p + "BACKENDS__sampler__LIMITS_BURST": "",
		p + "RENDERER__influx__OPTIONS_JSON":  "",
		p + "REMOTE_API_KEY":                  "",
		"INFLUX_TOKEN":                        "",
	}
	if _, err := os.Stat(path); err == nil {
		return nil
	} else if !os.IsNotExist(err) {
		return err
	}
	s, err := godotenv.Marshal(env)
	if err != nil {
		return err
	}
	head := "# qecbench .env 模板（由 init-config 生成）\n# 优先级：CLI > ENV(.env) > 配置文件；空值表示未设置。\n"
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o644)
	if err != nil {
		if os.IsExist(err) {
			return nil
		}
		return err
	}
	defer f.Close()
	_, err = f.WriteString(head + s + "\n")
	return err
}
