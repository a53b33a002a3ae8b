package model

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"github.com/slaclab/acclive/pkg/datamap"
	"github.com/slaclab/acclive/pkg/tao"
	"github.com/slaclab/acclive/pkg/variables"
	"github.com/slaclab/acclive/pkg/wire"
)

// OutputKeys are the lat_list attributes published as outputs.
var OutputKeys = []string{
	"ele.name",
	"ele.ix_ele",
	"ele.ix_branch",
	"ele.a.beta",
	"ele.a.alpha",
	"ele.a.eta",
	"ele.a.etap",
	"ele.a.gamma",
	"ele.a.phi",
	"ele.b.beta",
	"ele.b.alpha",
	"ele.b.eta",
	"ele.b.etap",
	"ele.b.gamma",
	"ele.b.phi",
	"ele.x.eta",
	"ele.x.etap",
	"ele.y.eta",
	"ele.y.etap",
	"ele.s",
	"ele.l",
	"ele.e_tot",
	"ele.p0c",
	"ele.mat6",
	"ele.vec0",
}

var (
	initCommands = tao.Lines(`
		set global lattice_calc_on = F
		set lattice model=design ! Reset the lattice
		set ele quad::* field_master = T
	`)
	finalCommands = tao.Lines(`
		set global lattice_calc_on = T
	`)
)

// Model is an accelerator model backed by a tao.Engine. Evaluations are
// serialized.
type Model struct {
	engine tao.Engine
	dms    []*datamap.DataMap
	logger *slog.Logger

	mu      sync.Mutex
	inputs  *variables.Set
	outputs map[string]any
}

// New builds a model. Input variables are derived from the datamaps' PV
// lists with defaults from pvdata; the lattice is initialized with the
// commands for pvdata.
func New(ctx context.Context, engine tao.Engine, dms []*datamap.DataMap, pvdata map[string]any, logger *slog.Logger) (*Model, error) {
	if logger == nil {
		logger = slog.Default()
	}
	m := &Model{engine: engine, dms: dms, logger: logger}

	inputs, unsupported := variables.FromPVData(pvdata, datamap.PVList(dms))
	for _, name := range unsupported {
		logger.Warn("pv value not usable as model input", "pv", name, "value", wire.FormatValue(pvdata[name]))
	}

	outputs := make([]*variables.OutputVariable, 0, len(OutputKeys))
	for _, key := range OutputKeys {
		if key == "ele.name" {
			outputs = append(outputs, variables.NewStringArrayOutput(key))
		} else {
			outputs = append(outputs, variables.NewArrayOutput(key))
		}
	}
	m.inputs = &variables.Set{Inputs: inputs, Outputs: outputs}

	out, err := m.Run(ctx, datamap.Commands(dms, pvdata))
	if err != nil {
		return nil, err
	}
	m.outputs = out
	return m, nil
}

// Variables returns a copy of the input and output definitions with
// current values.
func (m *Model) Variables() *variables.Set {
	m.mu.Lock()
	defer m.mu.Unlock()

	set := &variables.Set{}
	for _, in := range m.inputs.Inputs {
		c := *in
		set.Inputs = append(set.Inputs, &c)
	}
	for _, o := range m.inputs.Outputs {
		c := *o
		c.Value = m.outputs[o.Name]
		set.Outputs = append(set.Outputs, &c)
	}
	return set
}

// Run resets the lattice to design, applies cmds and reads every output
// key. Lines produced for untranslatable values are dropped. Failing
// setting commands are logged and skipped; a failing lattice calculation
// fails the run, since the engine still holds the previous optics.
func (m *Model) Run(ctx context.Context, cmds []string) (map[string]any, error) {
	all := make([]string, 0, len(initCommands)+len(cmds))
	all = append(all, initCommands...)
	for _, c := range cmds {
		if !strings.HasPrefix(c, datamap.BadValuePrefix) {
			all = append(all, c)
		}
	}

	failed, err := tao.Run(ctx, m.engine, all, m.logger)
	if err != nil {
		return nil, err
	}
	if failed > 0 {
		m.logger.Debug("model run finished with failed commands", "failed", failed, "commands", len(all))
	}
	for _, c := range finalCommands {
		if _, err := m.engine.Cmd(ctx, c); err != nil {
			return nil, fmt.Errorf("%s: %w", c, err)
		}
	}
	return ReadOutputs(ctx, m.engine)
}

// ReadOutputs reads every output key for all elements. ele.mat6 is
// reshaped to n x 6 x 6 and ele.vec0 to n x 6.
func ReadOutputs(ctx context.Context, engine tao.Engine) (map[string]any, error) {
	out := make(map[string]any, len(OutputKeys))
	for _, key := range OutputKeys {
		if key == "ele.name" {
			names, err := engine.LatListString(ctx, "*", key)
			if err != nil {
				return nil, fmt.Errorf("lat_list %s: %w", key, err)
			}
			out[key] = names
			continue
		}
		vals, err := engine.LatListReal(ctx, "*", key)
		if err != nil {
			return nil, fmt.Errorf("lat_list %s: %w", key, err)
		}
		switch key {
		case "ele.mat6":
			mats, err := reshape3(vals, 6, 6)
			if err != nil {
				return nil, fmt.Errorf("%s: %w", key, err)
			}
			out[key] = mats
		case "ele.vec0":
			vecs, err := reshape2(vals, 6)
			if err != nil {
				return nil, fmt.Errorf("%s: %w", key, err)
			}
			out[key] = vecs
		default:
			out[key] = vals
		}
	}
	return out, nil
}

func reshape2(vals []float64, cols int) ([][]float64, error) {
	if len(vals)%cols != 0 {
		return nil, fmt.Errorf("%d values do not split into rows of %d", len(vals), cols)
	}
	out := make([][]float64, 0, len(vals)/cols)
	for i := 0; i < len(vals); i += cols {
		out = append(out, append([]float64(nil), vals[i:i+cols]...))
	}
	return out, nil
}

func reshape3(vals []float64, rows, cols int) ([][][]float64, error) {
	size := rows * cols
	if len(vals)%size != 0 {
		return nil, fmt.Errorf("%d values do not split into %dx%d matrices", len(vals), rows, cols)
	}
	out := make([][][]float64, 0, len(vals)/size)
	for i := 0; i < len(vals); i += size {
		m, _ := reshape2(vals[i:i+size], cols)
		out = append(out, m)
	}
	return out, nil
}

// Evaluate merges inputs into the model state, runs the lattice with the
// commands for the full state and returns the outputs with values.
// Inputs that fail validation are rejected before anything runs.
func (m *Model) Evaluate(ctx context.Context, inputs []*variables.InputVariable) ([]*variables.OutputVariable, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, in := range inputs {
		cur, ok := m.inputs.Input(in.Name)
		if !ok {
			return nil, fmt.Errorf("%w: unknown input %s", variables.ErrInvalidVariable, in.Name)
		}
		check := *cur
		if err := check.Set(in.Current()); err != nil {
			return nil, err
		}
	}
	for _, in := range inputs {
		cur, _ := m.inputs.Input(in.Name)
		_ = cur.Set(in.Current())
	}

	out, err := m.Run(ctx, datamap.Commands(m.dms, m.pvdata()))
	if err != nil {
		return nil, err
	}
	m.outputs = out

	result := make([]*variables.OutputVariable, 0, len(m.inputs.Outputs))
	for _, o := range m.inputs.Outputs {
		c := *o
		c.Value = out[o.Name]
		result = append(result, &c)
	}
	return result, nil
}

// EvaluateValues is Evaluate for a name to value map.
func (m *Model) EvaluateValues(ctx context.Context, values map[string]any) ([]*variables.OutputVariable, error) {
	inputs := make([]*variables.InputVariable, 0, len(values))
	for name, v := range values {
		inputs = append(inputs, &variables.InputVariable{Name: name, Value: v})
	}
	return m.Evaluate(ctx, inputs)
}

func (m *Model) pvdata() map[string]any {
	data := make(map[string]any, len(m.inputs.Inputs))
	for _, in := range m.inputs.Inputs {
		data[in.Name] = in.Current()
	}
	return data
}

// KlystronNames lists the klystron overlays of the engine's lattice.
func KlystronNames(ctx context.Context, engine tao.Engine) ([]string, error) {
	return engine.LatListString(ctx, "overlay::K*", "ele.name", "-no_slaves")
}

// SelectDataMaps picks the named datamaps and drops klystron stations the
// lattice does not have.
func SelectDataMaps(ctx context.Context, engine tao.Engine, all []*datamap.DataMap, names []string) ([]*datamap.DataMap, error) {
	klystrons, err := KlystronNames(ctx, engine)
	if err != nil {
		if !errors.Is(err, tao.ErrNoMatch) {
			return nil, err
		}
		klystrons = []string{}
	}
	return datamap.Select(all, names, datamap.SelectOptions{Klystrons: klystrons})
}
