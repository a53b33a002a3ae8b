package wire

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNormalizeValue(t *testing.T) {
	tests := []struct {
		name string
		in   any
		want any
	}{
		{"nil", nil, nil},
		{"uint64", uint64(7), int64(7)},
		{"huge uint64", uint64(math.MaxUint64), float64(math.MaxUint64)},
		{"float32", float32(0.5), 0.5},
		{"int slice", []int{1, 2}, []int64{1, 2}},
		{"any ints", []any{uint64(1), int64(-2)}, []int64{1, -2}},
		{"any mixed numbers", []any{uint64(1), 2.5}, []float64{1, 2.5}},
		{"any strings", []any{"Q1", "Q2"}, []string{"Q1", "Q2"}},
		{"empty any", []any{}, []float64{}},
		{"matrix", [][]float64{{1, 0}, {0, 1}}, []float64{1, 0, 0, 1}},
		{"nested any", []any{[]any{1.0, 2.0}, []any{3.0, 4.0}}, []float64{1, 2, 3, 4}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, NormalizeValue(tt.in))
		})
	}
}

func TestNormalizeValueUnsupported(t *testing.T) {
	in := []any{"a", map[string]any{"k": 1}}
	assert.Equal(t, in, NormalizeValue(in))
}

func TestIsTruthy(t *testing.T) {
	tests := []struct {
		name string
		in   any
		want bool
	}{
		{"nil", nil, false},
		{"zero float", 0.0, false},
		{"zero int", int64(0), false},
		{"negative", -0.1, true},
		{"nan", math.NaN(), true},
		{"empty string", "", false},
		{"string", "Q1", true},
		{"false", false, false},
		{"true", true, true},
		{"empty array", []float64{}, false},
		{"array of zeros", []float64{0}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, IsTruthy(tt.in))
		})
	}
}

func TestToFloat64Slice(t *testing.T) {
	got, ok := ToFloat64Slice([]int64{1, 2})
	assert.True(t, ok)
	assert.Equal(t, []float64{1, 2}, got)

	got, ok = ToFloat64Slice(3.0)
	assert.True(t, ok)
	assert.Equal(t, []float64{3}, got)

	_, ok = ToFloat64Slice("x")
	assert.False(t, ok)
}

func TestParseValue(t *testing.T) {
	assert.Equal(t, 1.5, ParseValue("1.5", false))
	assert.Equal(t, int64(3), ParseValue("3", true))
	assert.Equal(t, 3.0, ParseValue("3", false))
	assert.Equal(t, []float64{1, 2, 3}, ParseValue("1, 2, 3", false))
	assert.Equal(t, []string{"a", "b"}, ParseValue("a b", false))
	assert.Equal(t, true, ParseValue("T", false))
	assert.Equal(t, "QUAD", ParseValue("QUAD", false))
}

func TestFormatValue(t *testing.T) {
	assert.Equal(t, "<none>", FormatValue(nil))
	assert.Equal(t, "1.25", FormatValue(1.25))
	assert.Equal(t, "[1 2]", FormatValue([]float64{1, 2}))
	assert.Equal(t, `"Q1"`, FormatValue("Q1"))
	assert.Equal(t, "7", FormatValue(uint64(7)))
}
