package decoder

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"qecbench/internal/stabilizer"
	"qecbench/pkg/contract"
)

func TestDecodeThreeQubit(t *testing.T) {
	d := New(stabilizer.ThreeQubit())
	cases := map[string]contract.Correction{
		"00": contract.NoError,
		"01": 0,
		"11": 1,
		"10": 2,
	}
	for syn, want := range cases {
		got, miss := d.Decode(syn)
		assert.False(t, miss, syn)
		assert.Equal(t, want, got, syn)
	}
}

// 表外综合征：降级为 NoError 并标记 miss，不 panic
func TestDecodeMiss(t *testing.T) {
	d := New(stabilizer.ThreeQubit())
	for _, syn := range []string{"", "0", "111", "2x"} {
		got, miss := d.Decode(syn)
		assert.True(t, miss, syn)
		assert.Equal(t, contract.NoError, got, syn)
	}
}

// 构造后修改原表不影响译码器
func TestDecoderCopiesTable(t *testing.T) {
	code := stabilizer.ThreeQubit()
	d := New(code)
	code.SyndromeTable["01"] = 2
	got, _ := d.Decode("01")
	assert.Equal(t, contract.Correction(0), got)
}

func TestApply(t *testing.T) {
	assert.Equal(t, "000", Apply("100", 0))
	assert.Equal(t, "010", Apply("000", 1))
	assert.Equal(t, "101", Apply("101", contract.NoError))
	assert.Equal(t, "101", Apply("101", 7))
}
