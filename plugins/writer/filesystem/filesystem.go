package filesystem

import (
	"bufio"
	"context"
	"io"
	"os"
	"path/filepath"
	"strings"

	"qecbench/pkg/contract"
)

// Options: 运行产物目录配置。
type Options struct {
	// OutputDir: 输出根目录（必需）；每次运行占用 <OutputDir>/<run_id>/。
	OutputDir string `json:"output_dir"`
	// PermFile/PermDir: 可选权限；为 0 表示使用默认。
	PermFile os.FileMode `json:"perm_file,omitempty"`
	PermDir  os.FileMode `json:"perm_dir,omitempty"`
}

// FS: 按运行分目录的产物存储。文件总是经同目录临时文件整体替换，读者不会看到半截序列。
type FS struct {
	root  string
	permF os.FileMode
	permD os.FileMode
}

// New 创建文件系统 RunWriter。
func New(opts *Options) (*FS, error) {
	if opts == nil || strings.TrimSpace(opts.OutputDir) == "" {
		return nil, contract.Configf("output_dir", "required")
	}
	pf := opts.PermFile
	if pf == 0 {
		pf = 0o644
	}
	pd := opts.PermDir
	if pd == 0 {
		pd = 0o755
	}
	return &FS{root: opts.OutputDir, permF: pf, permD: pd}, nil
}

var _ contract.RunWriter = (*FS)(nil)

// RunDir 返回运行 run 的产物目录。
func (w *FS) RunDir(run contract.RunID) (string, error) {
	if !segment(string(run)) {
		return "", contract.ErrPathInvalid
	}
	return filepath.Join(w.root, string(run)), nil
}

// WriteRun 将 r 的全部字节写入 <root>/<run>/<name>，替换已有文件。
func (w *FS) WriteRun(ctx context.Context, run contract.RunID, name string, r io.Reader) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	dir, err := w.RunDir(run)
	if err != nil {
		return err
	}
	if !segment(name) {
		return contract.ErrPathInvalid
	}
	if err := os.MkdirAll(dir, w.permD); err != nil {
		return err
	}
	return w.replace(ctx, filepath.Join(dir, name), r)
}

// segment: 非空、非 . / ..，且不含任一平台的分隔符或卷名。
func segment(s string) bool {
	if s == "" || s == "." || s == ".." || strings.ContainsAny(s, `/\`) {
		return false
	}
	return filepath.VolumeName(s) == ""
}

func (w *FS) replace(ctx context.Context, dest string, r io.Reader) error {
	dir := filepath.Dir(dest)
	tmp, err := os.CreateTemp(dir, ".tmp-*")
	if err != nil {
		return err
	}
	tmpPath := tmp.Name()
	_ = os.Chmod(tmpPath, w.permF)

	fail := func(err error) error {
		_ = tmp.Close()
		_ = os.Remove(tmpPath)
		return err
	}
	bw := bufio.NewWriter(tmp)
	if _, err := io.Copy(bw, &ctxReader{ctx: ctx, r: r}); err != nil {
		return fail(err)
	}
	if err := bw.Flush(); err != nil {
		return fail(err)
	}
	if err := tmp.Sync(); err != nil {
		return fail(err)
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmpPath)
		return err
	}
	// Windows 下 os.Rename 同样以 MOVEFILE_REPLACE_EXISTING 覆盖目标
	if err := os.Rename(tmpPath, dest); err != nil {
		_ = os.Remove(tmpPath)
		return err
	}
	_ = syncDir(dir)
	return nil
}

// ctxReader: 每次 Read 前检查 ctx。
type ctxReader struct {
	ctx context.Context
	r   io.Reader
}

func (cr *ctxReader) Read(p []byte) (int, error) {
	if err := cr.ctx.Err(); err != nil {
		return 0, err
	}
	return cr.r.Read(p)
}
