package sampler

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"qecbench/internal/estimate"
	"qecbench/internal/stabilizer"
	"qecbench/pkg/contract"
)

func qp(q int) *int { return &q }

// 单比特注入、无附加噪声：综合征准确，纠正后恢复码字
func TestDeterministicInjection(t *testing.T) {
	b, err := New(nil)
	require.NoError(t, err)
	code := stabilizer.ThreeQubit()
	for q, syn := range []string{"01", "11", "10"} {
		c, err := b.Submit(context.Background(), contract.Experiment{Code: code, InitialState: contract.StateZero, InjectedErrorQubit: qp(q)}, 50)
		require.NoError(t, err)
		assert.Equal(t, contract.Counts{syn + " 000": 50}, c)
	}
	c, err := b.Submit(context.Background(), contract.Experiment{Code: code, InitialState: contract.StateOne, InjectedErrorQubit: qp(2)}, 5)
	require.NoError(t, err)
	assert.Equal(t, contract.Counts{"10 111": 5}, c)
}

func TestPlusStateSplitsCodewords(t *testing.T) {
	b, err := New(&Options{Seed: 7})
	require.NoError(t, err)
	c, err := b.Submit(context.Background(), contract.Experiment{Code: stabilizer.ThreeQubit(), InitialState: contract.StatePlus}, 2000)
	require.NoError(t, err)
	assert.Len(t, c, 2)
	assert.Equal(t, 2000, c.Total())
	assert.InDelta(t, 1000, c["00 000"], 150)
	assert.InDelta(t, 1000, c["00 111"], 150)
}

// 同种子可复现；独立翻转概率导致非零逻辑错误率
func TestNoisyReproducible(t *testing.T) {
	code, err := stabilizer.Repetition(5)
	require.NoError(t, err)
	exp := contract.Experiment{Code: code, InitialState: contract.StateZero, InjectedErrorQubit: qp(1)}
	b1, err := New(&Options{Seed: 42, FlipProb: 0.1})
	require.NoError(t, err)
	b2, _ := New(&Options{Seed: 42, FlipProb: 0.1})
	c1, err := b1.Submit(context.Background(), exp, 3000)
	require.NoError(t, err)
	c2, err := b2.Submit(context.Background(), exp, 3000)
	require.NoError(t, err)
	assert.Equal(t, c1, c2)
	assert.Equal(t, 3000, c1.Total())

	rate := estimate.New(code).Estimate(c1, contract.Logical0)
	assert.Greater(t, rate, 0.0)
	assert.Less(t, rate, 0.5)
}

func TestInvalidInputs(t *testing.T) {
	_, err := New(&Options{FlipProb: 1.5})
	assert.True(t, errors.Is(err, contract.ErrConfiguration))

	b, _ := New(nil)
	code := stabilizer.ThreeQubit()
	_, err = b.Submit(context.Background(), contract.Experiment{Code: code}, 0)
	assert.True(t, errors.Is(err, contract.ErrInvalidInput))
	_, err = b.Submit(context.Background(), contract.Experiment{Code: code, InjectedErrorQubit: qp(3)}, 1)
	assert.True(t, errors.Is(err, contract.ErrInvalidInput))
	_, err = b.Submit(context.Background(), contract.Experiment{Code: code, InitialState: "x"}, 1)
	assert.True(t, errors.Is(err, contract.ErrInvalidInput))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = b.Submit(ctx, contract.Experiment{Code: code}, 10)
	assert.ErrorIs(t, err, context.Canceled)
}
