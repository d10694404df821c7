package influx

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/influxdata/influxdb-client-go/v2/api/write"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"qecbench/pkg/contract"
)

type mockWriteAPI struct {
	points []*write.Point
	err    error
}

func (m *mockWriteAPI) WritePoint(ctx context.Context, point ...*write.Point) error {
	if m.err != nil {
		return m.err
	}
	m.points = append(m.points, point...)
	return nil
}

func fields(p *write.Point) map[string]any {
	out := map[string]any{}
	for _, f := range p.FieldList() {
		out[f.Key] = f.Value
	}
	return out
}

func tags(p *write.Point) map[string]string {
	out := map[string]string{}
	for _, t := range p.TagList() {
		out[t.Key] = t.Value
	}
	return out
}

func TestRenderWritesOnePointPerStep(t *testing.T) {
	m := &mockWriteAPI{}
	r := newRenderer(m, &Options{Tags: map[string]string{"code": "rep3"}})
	base := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	r.now = func() time.Time { return base }
	s := contract.ResultSeries{
		Times:            []float64{0, 0.5},
		Fidelities:       []float64{1, 0.75},
		LogicalErrorProb: []float64{0, 0.25},
		CorrectionEvents: []contract.CorrectionEvent{{Time: 0, Success: true}, {Time: 0.5, Success: false}},
	}
	require.NoError(t, r.Render(context.Background(), "run-1", s))
	require.Len(t, m.points, 2)

	p := m.points[1]
	assert.Equal(t, "qec_series", p.Name())
	assert.Equal(t, base.Add(500*time.Millisecond), p.Time())
	assert.Equal(t, map[string]string{"run_id": "run-1", "code": "rep3", "step": "1"}, tags(p))
	f := fields(p)
	assert.Equal(t, 0.75, f["fidelity"])
	assert.Equal(t, 0.25, f["logical_error_prob"])
	assert.Equal(t, false, f["correction_success"])
}

func TestRenderEmptyAndErrors(t *testing.T) {
	m := &mockWriteAPI{}
	r := newRenderer(m, nil)
	require.NoError(t, r.Render(context.Background(), "r", contract.ResultSeries{}))
	assert.Empty(t, m.points)

	err := r.Render(context.Background(), "r", contract.ResultSeries{Times: []float64{0}})
	assert.True(t, errors.Is(err, contract.ErrInvariantViolation))

	m.err = errors.New("unreachable")
	err = r.Render(context.Background(), "r", contract.ResultSeries{Times: []float64{0}, Fidelities: []float64{1}, LogicalErrorProb: []float64{0}})
	assert.Error(t, err)
	assert.NoError(t, r.Close())
}

func TestNewValidation(t *testing.T) {
	_, err := New(nil)
	assert.True(t, errors.Is(err, contract.ErrConfiguration))
	_, err = New(&Options{URL: "http://localhost:8086", Org: "o"})
	assert.True(t, errors.Is(err, contract.ErrConfiguration))
	_, err = New(&Options{URL: "http://localhost:8086", Org: "o", Bucket: "b", TokenEnv: "QECBENCH_TEST_NO_SUCH_TOKEN"})
	assert.True(t, errors.Is(err, contract.ErrConfiguration))

	t.Setenv("QECBENCH_TEST_INFLUX_TOKEN", "tok")
	r, err := New(&Options{URL: "http://localhost:8086", Org: "o", Bucket: "b", TokenEnv: "QECBENCH_TEST_INFLUX_TOKEN", Measurement: "m"})
	require.NoError(t, err)
	assert.Equal(t, "m", r.measurement)
	assert.NoError(t, r.Close())
}
