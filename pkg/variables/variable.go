package variables

import (
	"errors"
	"fmt"
	"math"
	"sort"

	"github.com/slaclab/acclive/pkg/wire"
)

var (
	// ErrInvalidVariable is returned for malformed variable definitions.
	ErrInvalidVariable = errors.New("invalid variable")

	// ErrOutOfRange is returned when a scalar value falls outside its range.
	ErrOutOfRange = errors.New("value out of range")

	// ErrTypeMismatch is returned when a value does not fit the variable type.
	ErrTypeMismatch = errors.New("type mismatch")
)

// Type is the shape of a variable value.
type Type string

const (
	TypeScalar Type = "scalar"
	TypeArray  Type = "array"
	TypeString Type = "string"
)

// ValueType is the element type of an output variable.
type ValueType string

const (
	ValueNumeric ValueType = "numeric"
	ValueString  ValueType = "string"
)

// InputVariable is a model input with a default value. Scalars carry a
// valid range.
type InputVariable struct {
	Name    string    `yaml:"name"`
	Type    Type      `yaml:"type"`
	Default any       `yaml:"default,flow"`
	Range   []float64 `yaml:"range,flow,omitempty"`

	// Value is the current value. Nil means the default applies.
	Value any `yaml:"-"`
}

// NewScalar returns a scalar input with the given range.
func NewScalar(name string, def, low, high float64) *InputVariable {
	return &InputVariable{Name: name, Type: TypeScalar, Default: def, Range: []float64{low, high}}
}

// NewUnboundedScalar returns a scalar input with an infinite range.
func NewUnboundedScalar(name string, def float64) *InputVariable {
	return NewScalar(name, def, math.Inf(-1), math.Inf(1))
}

// NewArray returns an array input.
func NewArray(name string, def []float64) *InputVariable {
	return &InputVariable{Name: name, Type: TypeArray, Default: append([]float64{}, def...)}
}

// NewString returns a string-valued input.
func NewString(name, def string) *InputVariable {
	return &InputVariable{Name: name, Type: TypeString, Default: def}
}

// Current returns the value, or the default when no value is set.
func (v *InputVariable) Current() any {
	if v.Value != nil {
		return v.Value
	}
	return v.Default
}

// Bounds returns the scalar range, infinite when none is declared.
func (v *InputVariable) Bounds() (low, high float64) {
	if len(v.Range) == 2 {
		return v.Range[0], v.Range[1]
	}
	return math.Inf(-1), math.Inf(1)
}

// Set validates value against the variable type and range and stores it.
func (v *InputVariable) Set(value any) error {
	c, err := v.coerce(value)
	if err != nil {
		return err
	}
	v.Value = c
	return nil
}

// Validate checks the definition and its default value.
func (v *InputVariable) Validate() error {
	if v.Name == "" {
		return fmt.Errorf("%w: empty name", ErrInvalidVariable)
	}
	switch v.Type {
	case TypeScalar:
		if len(v.Range) != 0 && len(v.Range) != 2 {
			return fmt.Errorf("%w: %s: range needs two bounds", ErrInvalidVariable, v.Name)
		}
		if low, high := v.Bounds(); low > high {
			return fmt.Errorf("%w: %s: range [%g, %g]", ErrInvalidVariable, v.Name, low, high)
		}
	case TypeArray, TypeString:
	default:
		return fmt.Errorf("%w: %s: unknown type %q", ErrInvalidVariable, v.Name, v.Type)
	}
	if v.Default == nil {
		return nil
	}
	def, err := v.coerce(v.Default)
	if err != nil {
		return fmt.Errorf("%s default: %w", v.Name, err)
	}
	v.Default = def
	return nil
}

func (v *InputVariable) coerce(value any) (any, error) {
	value = wire.NormalizeValue(value)
	switch v.Type {
	case TypeScalar:
		f, ok := wire.ToFloat64(value)
		if !ok {
			return nil, fmt.Errorf("%w: %s wants a number, got %T", ErrTypeMismatch, v.Name, value)
		}
		if low, high := v.Bounds(); f < low || f > high {
			return nil, fmt.Errorf("%w: %s = %g not in [%g, %g]", ErrOutOfRange, v.Name, f, low, high)
		}
		return f, nil
	case TypeArray:
		arr, ok := wire.ToFloat64Slice(value)
		if !ok {
			return nil, fmt.Errorf("%w: %s wants a numeric array, got %T", ErrTypeMismatch, v.Name, value)
		}
		return arr, nil
	case TypeString:
		s, ok := value.(string)
		if !ok {
			return nil, fmt.Errorf("%w: %s wants a string, got %T", ErrTypeMismatch, v.Name, value)
		}
		return s, nil
	default:
		return nil, fmt.Errorf("%w: %s: unknown type %q", ErrInvalidVariable, v.Name, v.Type)
	}
}

// OutputVariable is a model output. Output values are arrays with one
// entry per lattice element.
type OutputVariable struct {
	Name      string    `yaml:"name"`
	Type      Type      `yaml:"type"`
	ValueType ValueType `yaml:"value_type,omitempty"`

	Value any `yaml:"-"`
}

// NewArrayOutput returns a numeric array output.
func NewArrayOutput(name string) *OutputVariable {
	return &OutputVariable{Name: name, Type: TypeArray, ValueType: ValueNumeric}
}

// NewStringArrayOutput returns a string-valued array output.
func NewStringArrayOutput(name string) *OutputVariable {
	return &OutputVariable{Name: name, Type: TypeArray, ValueType: ValueString}
}

// IsString reports whether the output carries strings.
func (v *OutputVariable) IsString() bool {
	return v.ValueType == ValueString || v.Type == TypeString
}

// Validate checks the definition.
func (v *OutputVariable) Validate() error {
	if v.Name == "" {
		return fmt.Errorf("%w: empty output name", ErrInvalidVariable)
	}
	switch v.Type {
	case TypeScalar, TypeArray, TypeString:
	default:
		return fmt.Errorf("%w: %s: unknown type %q", ErrInvalidVariable, v.Name, v.Type)
	}
	switch v.ValueType {
	case "", ValueNumeric, ValueString:
	default:
		return fmt.Errorf("%w: %s: unknown value_type %q", ErrInvalidVariable, v.Name, v.ValueType)
	}
	return nil
}

// Set is an ordered collection of input and output variables.
type Set struct {
	Inputs  []*InputVariable
	Outputs []*OutputVariable
}

// Input looks up an input variable by name.
func (s *Set) Input(name string) (*InputVariable, bool) {
	for _, v := range s.Inputs {
		if v.Name == name {
			return v, true
		}
	}
	return nil, false
}

// Output looks up an output variable by name.
func (s *Set) Output(name string) (*OutputVariable, bool) {
	for _, v := range s.Outputs {
		if v.Name == name {
			return v, true
		}
	}
	return nil, false
}

// InputNames returns the input names in order.
func (s *Set) InputNames() []string {
	names := make([]string, len(s.Inputs))
	for i, v := range s.Inputs {
		names[i] = v.Name
	}
	return names
}

// OutputNames returns the output names in order.
func (s *Set) OutputNames() []string {
	names := make([]string, len(s.Outputs))
	for i, v := range s.Outputs {
		names[i] = v.Name
	}
	return names
}

// Validate checks every variable and rejects duplicate names.
func (s *Set) Validate() error {
	seen := make(map[string]bool, len(s.Inputs)+len(s.Outputs))
	for _, v := range s.Inputs {
		if err := v.Validate(); err != nil {
			return err
		}
		if seen[v.Name] {
			return fmt.Errorf("%w: duplicate input %s", ErrInvalidVariable, v.Name)
		}
		seen[v.Name] = true
	}
	outs := make(map[string]bool, len(s.Outputs))
	for _, v := range s.Outputs {
		if err := v.Validate(); err != nil {
			return err
		}
		if outs[v.Name] {
			return fmt.Errorf("%w: duplicate output %s", ErrInvalidVariable, v.Name)
		}
		outs[v.Name] = true
	}
	return nil
}

// SortInputs orders the inputs by name.
func (s *Set) SortInputs() {
	sort.Slice(s.Inputs, func(i, j int) bool { return s.Inputs[i].Name < s.Inputs[j].Name })
}

// FromPVData builds inputs for names from a PV data snapshot. Numbers and
// missing or nil values become unbounded scalars (nil defaults to 0),
// numeric lists become arrays. Names whose values have another shape are
// returned as unsupported. Duplicate names are built once.
func FromPVData(pvdata map[string]any, names []string) (inputs []*InputVariable, unsupported []string) {
	seen := make(map[string]bool, len(names))
	for _, name := range names {
		if seen[name] {
			continue
		}
		seen[name] = true

		switch x := wire.NormalizeValue(pvdata[name]).(type) {
		case nil:
			inputs = append(inputs, NewUnboundedScalar(name, 0))
		case int64, float64, bool:
			f, _ := wire.ToFloat64(x)
			inputs = append(inputs, NewUnboundedScalar(name, f))
		case []float64, []int64:
			arr, _ := wire.ToFloat64Slice(x)
			inputs = append(inputs, NewArray(name, arr))
		default:
			unsupported = append(unsupported, name)
		}
	}
	return inputs, unsupported
}

// ApplyDefaults replaces the defaults of the inputs named in values and
// returns how many were applied and the names with no matching input.
// Values that do not fit an input's type are reported as errors; the
// remaining values are still applied.
func (s *Set) ApplyDefaults(values map[string]any) (applied int, unknown []string, err error) {
	names := make([]string, 0, len(values))
	for name := range values {
		names = append(names, name)
	}
	sort.Strings(names)

	var errs []error
	for _, name := range names {
		in, ok := s.Input(name)
		if !ok {
			unknown = append(unknown, name)
			continue
		}
		value := values[name]
		if value == nil {
			continue
		}
		c, cerr := in.coerce(value)
		if cerr != nil {
			errs = append(errs, cerr)
			continue
		}
		in.Default = c
		applied++
	}
	return applied, unknown, errors.Join(errs...)
}
