package variables

import (
	"bytes"
	"math"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testSet() *Set {
	return &Set{
		Inputs: []*InputVariable{
			NewUnboundedScalar("QUAD:LI21:201:BCTRL", -2.5),
			NewScalar("KLYS:LI21:11:ENLD", 230, 0, 300),
			NewArray("WAVEFORM", []float64{1, 2, 3}),
			NewString("MODE", "design"),
		},
		Outputs: []*OutputVariable{
			NewStringArrayOutput("ele.name"),
			NewArrayOutput("ele.a.beta"),
			NewArrayOutput("ele.s"),
		},
	}
}

func TestSaveLoad(t *testing.T) {
	path := filepath.Join(t.TempDir(), "sub", "model_variables.yml")
	require.NoError(t, Save(path, testSet()))

	got, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, []string{"KLYS:LI21:11:ENLD", "MODE", "QUAD:LI21:201:BCTRL", "WAVEFORM"}, got.InputNames())
	assert.Equal(t, []string{"ele.name", "ele.a.beta", "ele.s"}, got.OutputNames())

	q, ok := got.Input("QUAD:LI21:201:BCTRL")
	require.True(t, ok)
	assert.Equal(t, -2.5, q.Default)
	low, high := q.Bounds()
	assert.True(t, math.IsInf(low, -1))
	assert.True(t, math.IsInf(high, 1))

	k, _ := got.Input("KLYS:LI21:11:ENLD")
	assert.Equal(t, 230.0, k.Default)
	assert.Equal(t, []float64{0, 300}, k.Range)

	w, _ := got.Input("WAVEFORM")
	assert.Equal(t, []float64{1, 2, 3}, w.Default)

	name, _ := got.Output("ele.name")
	assert.True(t, name.IsString())
	beta, _ := got.Output("ele.a.beta")
	assert.False(t, beta.IsString())
}

func TestEncodeDeterministic(t *testing.T) {
	var a, b bytes.Buffer
	require.NoError(t, Encode(&a, testSet()))

	reversed := testSet()
	for i, j := 0, len(reversed.Inputs)-1; i < j; i, j = i+1, j-1 {
		reversed.Inputs[i], reversed.Inputs[j] = reversed.Inputs[j], reversed.Inputs[i]
	}
	require.NoError(t, Encode(&b, reversed))
	assert.Equal(t, a.String(), b.String())
}

func TestDecodeErrors(t *testing.T) {
	tests := []struct {
		name string
		doc  string
	}{
		{"UnknownField", "version: 1\ninput_variables:\n  - name: A\n    type: scalar\n    colour: red\n"},
		{"NewerVersion", "version: 9\n"},
		{"BadDefault", "version: 1\ninput_variables:\n  - name: A\n    type: scalar\n    default: abc\n"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Decode(strings.NewReader(tt.doc))
			assert.Error(t, err)
		})
	}
}

func TestPVData(t *testing.T) {
	path := filepath.Join(t.TempDir(), "PVDATA.json")
	require.NoError(t, SavePVData(path, map[string]any{
		"B": []float64{1, 2},
		"A": 3.5,
		"C": nil,
	}))

	raw, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Less(t, strings.Index(string(raw), `"A"`), strings.Index(string(raw), `"B"`))

	got, err := LoadPVData(path)
	require.NoError(t, err)
	assert.Equal(t, 3.5, got["A"])
	assert.Equal(t, []float64{1, 2}, got["B"])
	assert.Contains(t, got, "C")
	assert.Nil(t, got["C"])
}
