package main

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"path/filepath"
	"testing"
	"time"

	"github.com/slaclab/acclive/pkg/variables"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

type mockRestorer struct {
	mock.Mock
}

func (m *mockRestorer) Restore(ctx context.Context, pvs []string, at time.Time) (map[string]any, error) {
	args := m.Called(ctx, pvs, at)
	values, _ := args.Get(0).(map[string]any)
	return values, args.Error(1)
}

func discard() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func writeVariables(t *testing.T) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "model_variables.yaml")
	set := &variables.Set{
		Inputs: []*variables.InputVariable{
			variables.NewUnboundedScalar("KLYS:LI21:11:ENLD", 0),
			variables.NewScalar("QUAD:LI21:201:BCTRL", 0, -10, 10),
			variables.NewArray("BPMS:WF", []float64{0}),
		},
		Outputs: []*variables.OutputVariable{variables.NewArrayOutput("ele.s")},
	}
	require.NoError(t, variables.Save(path, set))
	return path
}

func TestUpdateDefaults(t *testing.T) {
	varPath := writeVariables(t)
	pvdataPath := filepath.Join(t.TempDir(), "pvdata.json")
	at, err := time.Parse(time.RFC3339Nano, DefaultAt)
	require.NoError(t, err)

	r := &mockRestorer{}
	r.On("Restore", mock.Anything, []string{"BPMS:WF", "KLYS:LI21:11:ENLD", "QUAD:LI21:201:BCTRL"}, mock.MatchedBy(at.Equal)).
		Return(map[string]any{
			"KLYS:LI21:11:ENLD":   233.5,
			"QUAD:LI21:201:BCTRL": 99.0,
			"BPMS:WF":             []float64{1, 2, 3},
			"EXTRA:PV":            1.0,
		}, nil).Once()

	err = updateDefaults(context.Background(), r, options{at: DefaultAt, variableFile: varPath, pvdataPath: pvdataPath}, discard())
	require.NoError(t, err)
	r.AssertExpectations(t)

	pvdata, err := variables.LoadPVData(pvdataPath)
	require.NoError(t, err)
	assert.Equal(t, 233.5, pvdata["KLYS:LI21:11:ENLD"])
	assert.Equal(t, []float64{1, 2, 3}, pvdata["BPMS:WF"])

	set, err := variables.Load(varPath)
	require.NoError(t, err)
	klys, _ := set.Input("KLYS:LI21:11:ENLD")
	assert.Equal(t, 233.5, klys.Default)
	wf, _ := set.Input("BPMS:WF")
	assert.Equal(t, []float64{1, 2, 3}, wf.Default)
	quad, _ := set.Input("QUAD:LI21:201:BCTRL")
	assert.Equal(t, 0.0, quad.Default, "out of range values are not applied")
}

func TestUpdateDefaultsErrors(t *testing.T) {
	varPath := writeVariables(t)

	err := updateDefaults(context.Background(), &mockRestorer{}, options{at: "yesterday", variableFile: varPath}, discard())
	assert.ErrorContains(t, err, "invalid --at")

	r := &mockRestorer{}
	r.On("Restore", mock.Anything, mock.Anything, mock.Anything).Return(nil, errors.New("archiver down"))
	err = updateDefaults(context.Background(), r, options{at: DefaultAt, variableFile: varPath, pvdataPath: filepath.Join(t.TempDir(), "p.json")}, discard())
	assert.ErrorContains(t, err, "archiver down")
}
