package filesystem

import (
	"bytes"
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"qecbench/pkg/contract"
)

func noTmp(t *testing.T, dir string) {
	t.Helper()
	entries, _ := os.ReadDir(dir)
	for _, e := range entries {
		assert.False(t, strings.HasPrefix(e.Name(), ".tmp-"), "tmp file not cleaned: %s", e.Name())
	}
}

// 写入 <run>/<name>
func TestWriteRun(t *testing.T) {
	dir := t.TempDir()
	w, err := New(&Options{OutputDir: dir})
	require.NoError(t, err)
	require.NoError(t, w.WriteRun(context.Background(), "run-1", "series.json", bytes.NewBufferString("data")))
	b, err := os.ReadFile(filepath.Join(dir, "run-1", "series.json"))
	require.NoError(t, err)
	assert.Equal(t, "data", string(b))
	noTmp(t, filepath.Join(dir, "run-1"))

	rd, err := w.RunDir("run-1")
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(dir, "run-1"), rd)
}

// 同一运行重复渲染时整体替换
func TestWriteRunReplaceExisting(t *testing.T) {
	dir := t.TempDir()
	w, err := New(&Options{OutputDir: dir, PermFile: 0o600})
	require.NoError(t, err)
	ctx := context.Background()
	require.NoError(t, w.WriteRun(ctx, "r", "out.json", bytes.NewBufferString("v1")))
	require.NoError(t, w.WriteRun(ctx, "r", "out.json", bytes.NewBufferString("v2")))
	b, err := os.ReadFile(filepath.Join(dir, "r", "out.json"))
	require.NoError(t, err)
	assert.Equal(t, "v2", string(b))
	noTmp(t, filepath.Join(dir, "r"))
}

// 运行标识与文件名都必须是单个路径段
func TestWriteRunPathInvalid(t *testing.T) {
	dir := t.TempDir()
	w, err := New(&Options{OutputDir: dir})
	require.NoError(t, err)
	cases := []struct {
		run  contract.RunID
		name string
	}{
		{"", "a.json"},
		{"..", "a.json"},
		{".", "a.json"},
		{"../up", "a.json"},
		{`run\sub`, "a.json"},
		{"/abs", "a.json"},
		{"run", ""},
		{"run", ".."},
		{"run", "sub/a.json"},
		{"run", `..\a.json`},
	}
	for _, tc := range cases {
		err := w.WriteRun(context.Background(), tc.run, tc.name, strings.NewReader("x"))
		assert.True(t, errors.Is(err, contract.ErrPathInvalid), "%q/%q: %v", tc.run, tc.name, err)
	}
	entries, _ := os.ReadDir(dir)
	assert.Empty(t, entries, "非法标识不得产生任何目录")
}

func TestWriteRunCtxCancel(t *testing.T) {
	w, err := New(&Options{OutputDir: t.TempDir()})
	require.NoError(t, err)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.ErrorIs(t, w.WriteRun(ctx, "r", "a.json", strings.NewReader("data")), context.Canceled)
}

func TestNewInvalid(t *testing.T) {
	_, err := New(nil)
	assert.True(t, errors.Is(err, contract.ErrConfiguration))
	_, err = New(&Options{OutputDir: "  "})
	assert.True(t, errors.Is(err, contract.ErrConfiguration))
}

type errReader struct{}

func (errReader) Read(p []byte) (int, error) { return 0, errors.New("boom") }

// 拷贝失败不残留临时文件，也不留下目标文件
func TestWriteRunCopyError(t *testing.T) {
	dir := t.TempDir()
	w, err := New(&Options{OutputDir: dir})
	require.NoError(t, err)
	require.Error(t, w.WriteRun(context.Background(), "r", "a.json", errReader{}))
	entries, _ := os.ReadDir(filepath.Join(dir, "r"))
	assert.Empty(t, entries)
}

func TestCtxReaderCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	r := &ctxReader{ctx: ctx, r: strings.NewReader("data")}
	cancel()
	_, err := r.Read(make([]byte, 1))
	assert.ErrorIs(t, err, context.Canceled)
}
