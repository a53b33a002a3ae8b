package variables

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestInputVariableSet(t *testing.T) {
	tests := []struct {
		name    string
		v       *InputVariable
		value   any
		want    any
		wantErr error
	}{
		{"ScalarInt", NewScalar("A", 0, -10, 10), 3, 3.0, nil},
		{"ScalarOutOfRange", NewScalar("A", 0, -10, 10), 11.0, nil, ErrOutOfRange},
		{"ScalarFromString", NewScalar("A", 0, -10, 10), "x", nil, ErrTypeMismatch},
		{"ScalarUnbounded", NewUnboundedScalar("A", 0), 1e300, 1e300, nil},
		{"ArrayFromList", NewArray("B", nil), []any{1, 2.5}, []float64{1, 2.5}, nil},
		{"ArrayFromScalar", NewArray("B", nil), 4.0, []float64{4}, nil},
		{"String", NewString("C", ""), "on", "on", nil},
		{"StringFromNumber", NewString("C", ""), 1.0, nil, ErrTypeMismatch},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.v.Set(tt.value)
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
				assert.Nil(t, tt.v.Value)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, tt.v.Current())
		})
	}
}

func TestInputVariableCurrentFallsBackToDefault(t *testing.T) {
	v := NewScalar("A", 2, 0, 5)
	assert.Equal(t, 2.0, v.Current())
	require.NoError(t, v.Set(4.0))
	assert.Equal(t, 4.0, v.Current())
}

func TestValidate(t *testing.T) {
	bad := []*InputVariable{
		{Name: "", Type: TypeScalar},
		{Name: "A", Type: "matrix"},
		{Name: "A", Type: TypeScalar, Range: []float64{1}},
		{Name: "A", Type: TypeScalar, Range: []float64{2, 1}},
		{Name: "A", Type: TypeScalar, Default: 5, Range: []float64{0, 1}},
	}
	for _, v := range bad {
		assert.Error(t, v.Validate(), "%+v", v)
	}

	set := &Set{Inputs: []*InputVariable{NewScalar("A", 0, 0, 1), NewScalar("A", 0, 0, 1)}}
	assert.ErrorIs(t, set.Validate(), ErrInvalidVariable)

	set = &Set{Outputs: []*OutputVariable{{Name: "x", Type: TypeArray, ValueType: "complex"}}}
	assert.ErrorIs(t, set.Validate(), ErrInvalidVariable)
}

func TestFromPVData(t *testing.T) {
	pvdata := map[string]any{
		"KLYS:LI21:11:ENLD":   230.5,
		"KLYS:LI21:11:SWRD":   int64(0),
		"QUAD:LI21:201:BCTRL": nil,
		"WAVEFORM":            []any{1.0, 2.0},
		"STATUS":              "OK",
	}
	names := []string{"KLYS:LI21:11:ENLD", "KLYS:LI21:11:SWRD", "QUAD:LI21:201:BCTRL", "MISSING", "WAVEFORM", "STATUS", "KLYS:LI21:11:ENLD"}

	inputs, unsupported := FromPVData(pvdata, names)
	require.Len(t, inputs, 5)
	assert.Equal(t, []string{"STATUS"}, unsupported)

	assert.Equal(t, "KLYS:LI21:11:ENLD", inputs[0].Name)
	assert.Equal(t, TypeScalar, inputs[0].Type)
	assert.Equal(t, 230.5, inputs[0].Default)
	low, high := inputs[0].Bounds()
	assert.True(t, math.IsInf(low, -1))
	assert.True(t, math.IsInf(high, 1))

	assert.Equal(t, 0.0, inputs[2].Default, "nil becomes 0")
	assert.Equal(t, 0.0, inputs[3].Default, "missing becomes 0")
	assert.Equal(t, TypeArray, inputs[4].Type)
	assert.Equal(t, []float64{1, 2}, inputs[4].Default)
}

func TestApplyDefaults(t *testing.T) {
	set := &Set{Inputs: []*InputVariable{
		NewUnboundedScalar("A", 0),
		NewScalar("B", 0, 0, 1),
		NewArray("C", []float64{0}),
	}}

	applied, unknown, err := set.ApplyDefaults(map[string]any{
		"A": 1.5,
		"B": 7.0,
		"C": []any{1.0, 2.0},
		"Z": 3.0,
	})
	assert.Equal(t, 2, applied)
	assert.Equal(t, []string{"Z"}, unknown)
	assert.ErrorIs(t, err, ErrOutOfRange)

	a, _ := set.Input("A")
	assert.Equal(t, 1.5, a.Default)
	b, _ := set.Input("B")
	assert.Equal(t, 0.0, b.Default)
	c, _ := set.Input("C")
	assert.Equal(t, []float64{1, 2}, c.Default)
}
