package flaky

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"qecbench/internal/stabilizer"
	"qecbench/pkg/contract"
)

func TestFailsOnSecondByDefault(t *testing.T) {
	logPath := filepath.Join(t.TempDir(), "flaky.log")
	b := New(&Options{LogPath: logPath})
	exp := contract.Experiment{Code: stabilizer.ThreeQubit(), InitialState: contract.StateZero}

	c, err := b.Submit(context.Background(), exp, 10)
	require.NoError(t, err)
	assert.Equal(t, contract.Counts{"00 000": 10}, c)

	_, err = b.Submit(context.Background(), exp, 10)
	assert.True(t, errors.Is(err, contract.ErrBackend))

	_, err = b.Submit(context.Background(), exp, 10)
	require.NoError(t, err)
	assert.Equal(t, 3, b.Calls())

	raw, err := os.ReadFile(logPath)
	require.NoError(t, err)
	assert.Equal(t, []string{"ok no_error", "fail no_error", "ok no_error"}, strings.Split(strings.TrimSpace(string(raw)), "\n"))
}

func TestRateLimited(t *testing.T) {
	b := New(&Options{FailOn: 1, RateLimited: true})
	_, err := b.Submit(context.Background(), contract.Experiment{Code: stabilizer.ThreeQubit()}, 1)
	assert.True(t, errors.Is(err, contract.ErrRateLimited))
	assert.False(t, errors.Is(err, contract.ErrBackend))
}
