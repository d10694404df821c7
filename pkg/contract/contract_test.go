package contract

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPauliLabel(t *testing.T) {
	assert.Equal(t, "Z0Z1", PauliString("ZZI").Label())
	assert.Equal(t, "Z1Z2", PauliString("IZZ").Label())
	assert.Equal(t, "I", PauliString("III").Label())
}

func TestScenarioHelpers(t *testing.T) {
	s := NoErrorScenario()
	_, ok := s.Injected()
	assert.False(t, ok)
	assert.Equal(t, "no_error", s.Label)

	e := ErrorScenario(2)
	q, ok := e.Injected()
	require.True(t, ok)
	assert.Equal(t, 2, q)
	assert.Equal(t, "error_qubit_2", e.Label)
}

func TestCountsTotal(t *testing.T) {
	assert.Equal(t, 0, Counts{}.Total())
	assert.Equal(t, 7, Counts{"00 000": 5, "01 000": 2, "11 000": -3}.Total())
}

func TestSplitOutcome(t *testing.T) {
	syn, data, ok := SplitOutcome(FormatOutcome("01", "100"))
	require.True(t, ok)
	assert.Equal(t, "01", syn)
	assert.Equal(t, "100", data)

	_, data, ok = SplitOutcome("000")
	assert.False(t, ok)
	assert.Equal(t, "000", data)

	_, _, ok = SplitOutcome("   ")
	assert.False(t, ok)
}

func TestErrorTaxonomy(t *testing.T) {
	cause := errors.New("device offline")
	var err error = &BackendError{Scenario: "error_qubit_0", Err: cause}
	err = fmt.Errorf("bench: %w", err)
	assert.ErrorIs(t, err, ErrBackend)
	assert.ErrorIs(t, err, cause)
	var be *BackendError
	require.ErrorAs(t, err, &be)
	assert.Equal(t, cause, errors.Unwrap(be))

	cerr := Configf("n_data", "must be >= %d", 1)
	assert.ErrorIs(t, cerr, ErrConfiguration)
	assert.Contains(t, cerr.Error(), "n_data")
}

func TestDecodeTallyAccuracy(t *testing.T) {
	assert.Equal(t, 0.0, DecodeTally{}.Accuracy())
	assert.InDelta(t, 0.75, DecodeTally{Shots: 4, Matched: 3}.Accuracy(), 1e-12)
	assert.Equal(t, "no_error", NoError.String())
	assert.Equal(t, "qubit_1", Correction(1).String())
}
