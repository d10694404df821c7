package mock

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"qecbench/internal/stabilizer"
	"qecbench/pkg/contract"
)

func exp(q *int) contract.Experiment {
	return contract.Experiment{Code: stabilizer.ThreeQubit(), InitialState: contract.StateZero, InjectedErrorQubit: q}
}

func TestIdealCounts(t *testing.T) {
	b := New(nil)
	c, err := b.Submit(context.Background(), exp(nil), 100)
	require.NoError(t, err)
	assert.Equal(t, contract.Counts{"00 000": 100}, c)

	for q, syn := range []string{"01", "11", "10"} {
		c, err := b.Submit(context.Background(), exp(&q), 7)
		require.NoError(t, err)
		assert.Equal(t, contract.Counts{syn + " 000": 7}, c)
	}

	one := exp(nil)
	one.InitialState = contract.StateOne
	assert.Equal(t, "00 111", Ideal(one))
}

// 固定计数按场景标签返回副本
func TestFixedCounts(t *testing.T) {
	b := New(&Options{Counts: map[string]contract.Counts{
		"no_error":      {"00 111": 1000},
		"error_qubit_0": {"01 000": 1000},
	}})
	c, err := b.Submit(context.Background(), exp(nil), 1)
	require.NoError(t, err)
	assert.Equal(t, contract.Counts{"00 111": 1000}, c)
	c["00 111"] = 0

	again, err := b.Submit(context.Background(), exp(nil), 1)
	require.NoError(t, err)
	assert.Equal(t, 1000, again["00 111"])
}

func TestSubmitErrors(t *testing.T) {
	b := New(nil)
	_, err := b.Submit(context.Background(), exp(nil), 0)
	assert.True(t, errors.Is(err, contract.ErrInvalidInput))
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = b.Submit(ctx, exp(nil), 1)
	assert.ErrorIs(t, err, context.Canceled)
}
