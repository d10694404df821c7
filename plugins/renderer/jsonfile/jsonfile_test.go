package jsonfile

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"qecbench/pkg/contract"
)

func TestRenderWritesSeries(t *testing.T) {
	dir := t.TempDir()
	r, err := New(&Options{OutputDir: dir, Indent: true})
	require.NoError(t, err)
	s := contract.ResultSeries{
		Times:            []float64{0, 1},
		Fidelities:       []float64{1, 0.75},
		LogicalErrorProb: []float64{0, 0.25},
		CorrectionEvents: []contract.CorrectionEvent{{Time: 0, Success: true}, {Time: 1, Success: false}},
	}
	require.NoError(t, r.Render(context.Background(), "run-7", s))

	b, err := os.ReadFile(filepath.Join(dir, "run-7", "series.json"))
	require.NoError(t, err)
	var got contract.ResultSeries
	require.NoError(t, json.Unmarshal(b, &got))
	assert.Equal(t, s, got)

	var raw map[string]any
	require.NoError(t, json.Unmarshal(b, &raw))
	assert.Contains(t, raw, "logical_error_prob")
	assert.Contains(t, raw, "correction_events")
}

func TestRenderEmptyKeepsShape(t *testing.T) {
	dir := t.TempDir()
	r, err := New(&Options{OutputDir: dir, Name: "out.json"})
	require.NoError(t, err)
	require.NoError(t, r.Render(context.Background(), "r", contract.ResultSeries{}))
	b, err := os.ReadFile(filepath.Join(dir, "r", "out.json"))
	require.NoError(t, err)
	assert.JSONEq(t, `{"times":[],"fidelities":[],"logical_error_prob":[],"correction_events":[]}`, string(b))
}

func TestRenderRejectsMisaligned(t *testing.T) {
	r, err := New(&Options{OutputDir: t.TempDir()})
	require.NoError(t, err)
	err = r.Render(context.Background(), "r", contract.ResultSeries{Times: []float64{0}})
	assert.True(t, errors.Is(err, contract.ErrInvariantViolation))
}

func TestNewRequiresDir(t *testing.T) {
	_, err := New(nil)
	assert.True(t, errors.Is(err, contract.ErrConfiguration))
	_, err = New(&Options{OutputDir: t.TempDir(), Name: "sub/series.json"})
	assert.True(t, errors.Is(err, contract.ErrConfiguration))
}

// 非法运行标识不得写到输出根目录之外
func TestRenderRejectsEscapingRun(t *testing.T) {
	dir := t.TempDir()
	r, err := New(&Options{OutputDir: filepath.Join(dir, "out")})
	require.NoError(t, err)
	err = r.Render(context.Background(), "../escape", contract.ResultSeries{})
	assert.True(t, errors.Is(err, contract.ErrPathInvalid))
	_, statErr := os.Stat(filepath.Join(dir, "escape"))
	assert.True(t, os.IsNotExist(statErr))
}

type memWriter struct {
	run  contract.RunID
	name string
	body string
}

func (m *memWriter) WriteRun(_ context.Context, run contract.RunID, name string, r io.Reader) error {
	b, err := io.ReadAll(r)
	m.run, m.name, m.body = run, name, string(b)
	return err
}

func TestRenderWithWriter(t *testing.T) {
	m := &memWriter{}
	r := NewWithWriter(m, &Options{Name: " custom.json "})
	require.NoError(t, r.Render(context.Background(), "r-2", contract.ResultSeries{Times: []float64{0}, Fidelities: []float64{1}, LogicalErrorProb: []float64{0}}))
	assert.Equal(t, contract.RunID("r-2"), m.run)
	assert.Equal(t, "custom.json", m.name)
	assert.JSONEq(t, `{"times":[0],"fidelities":[1],"logical_error_prob":[0],"correction_events":[]}`, m.body)
}
