package pvdb

import (
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/slaclab/acclive/pkg/wire"
)

// Errors returned by the database.
var (
	ErrNotFound     = errors.New("record not found")
	ErrExists       = errors.New("record already exists")
	ErrReadOnly     = errors.New("record is read-only")
	ErrTypeMismatch = errors.New("value type does not match record")
	ErrOutOfRange   = errors.New("value out of range")
	ErrInvalidName  = errors.New("invalid record name")
)

// Kind is the value kind of a record.
type Kind uint8

const (
	KindScalar Kind = iota
	KindArray
	KindString
	KindStringArray
)

// String returns the kind name used in Info responses.
func (k Kind) String() string {
	switch k {
	case KindScalar:
		return "scalar"
	case KindArray:
		return "array"
	case KindString:
		return "string"
	case KindStringArray:
		return "string-array"
	default:
		return fmt.Sprintf("kind(%d)", k)
	}
}

// Range is an inclusive numeric range for scalar records.
type Range struct {
	Low  float64
	High float64
}

// Contains reports whether v lies in the range. Infinite bounds are open.
func (r Range) Contains(v float64) bool {
	return v >= r.Low && v <= r.High
}

// Record describes one served PV.
type Record struct {
	Name        string
	Kind        Kind
	Value       any
	Range       *Range
	ReadOnly    bool
	Description string
	Timestamp   time.Time
	Severity    wire.Severity

	// MaxCount bounds array length; zero means unbounded.
	MaxCount int
}

// Scalar returns a writable scalar record with the given range.
func Scalar(name string, value, low, high float64) Record {
	return Record{Name: name, Kind: KindScalar, Value: value, Range: &Range{Low: low, High: high}}
}

// Array returns a writable float array record.
func Array(name string, value []float64) Record {
	return Record{Name: name, Kind: KindArray, Value: value}
}

// String returns a writable string record.
func String(name, value string) Record {
	return Record{Name: name, Kind: KindString, Value: value}
}

// StringArray returns a writable string array record.
func StringArray(name string, value []string) Record {
	return Record{Name: name, Kind: KindStringArray, Value: value}
}

// Info describes the record for an Info response.
func (r *Record) Info() wire.InfoPayload {
	info := wire.InfoPayload{
		Kind:        r.Kind.String(),
		ReadOnly:    r.ReadOnly,
		Count:       r.count(),
		Description: r.Description,
	}
	if r.Range != nil {
		low, high := r.Range.Low, r.Range.High
		info.Low = &low
		info.High = &high
	}
	return info
}

func (r *Record) count() int {
	switch v := r.Value.(type) {
	case []float64:
		return len(v)
	case []string:
		return len(v)
	case nil:
		return 0
	default:
		return 1
	}
}

func (r *Record) validate() error {
	if r.Name == "" || strings.ContainsAny(r.Name, " \t\n") {
		return fmt.Errorf("%w: %q", ErrInvalidName, r.Name)
	}
	if r.Kind > KindStringArray {
		return fmt.Errorf("%s: %w", r.Name, ErrTypeMismatch)
	}
	if r.Value == nil {
		return nil
	}
	v, err := coerce(r.Kind, r.Value)
	if err != nil {
		return fmt.Errorf("%s: %w", r.Name, err)
	}
	r.Value = v
	return nil
}

// check coerces value to the record's kind and enforces range and length.
func (r *Record) check(value any) (any, error) {
	v, err := coerce(r.Kind, value)
	if err != nil {
		return nil, err
	}
	switch x := v.(type) {
	case float64:
		if r.Range != nil && !math.IsNaN(x) && !r.Range.Contains(x) {
			return nil, fmt.Errorf("%w: %g not in [%g, %g]", ErrOutOfRange, x, r.Range.Low, r.Range.High)
		}
	case []float64:
		if r.MaxCount > 0 && len(x) > r.MaxCount {
			return nil, fmt.Errorf("%w: %d elements, max %d", ErrOutOfRange, len(x), r.MaxCount)
		}
	case []string:
		if r.MaxCount > 0 && len(x) > r.MaxCount {
			return nil, fmt.Errorf("%w: %d elements, max %d", ErrOutOfRange, len(x), r.MaxCount)
		}
	}
	return v, nil
}

// coerce converts a normalized wire value into the canonical Go type of
// kind: float64, []float64, string or []string. The result never aliases
// the input slice.
func coerce(kind Kind, value any) (any, error) {
	value = wire.NormalizeValue(value)

	switch kind {
	case KindScalar:
		switch v := value.(type) {
		case float64:
			return v, nil
		case int64:
			return float64(v), nil
		case bool:
			if v {
				return 1.0, nil
			}
			return 0.0, nil
		case []float64:
			if len(v) == 1 {
				return v[0], nil
			}
		case []int64:
			if len(v) == 1 {
				return float64(v[0]), nil
			}
		case string:
			if f, err := strconv.ParseFloat(strings.TrimSpace(v), 64); err == nil {
				return f, nil
			}
		}

	case KindArray:
		switch v := value.(type) {
		case []float64:
			return append([]float64{}, v...), nil
		case []int64, float64, int64:
			if f, ok := wire.ToFloat64Slice(v); ok {
				return f, nil
			}
		}

	case KindString:
		switch v := value.(type) {
		case string:
			return v, nil
		case float64:
			return strconv.FormatFloat(v, 'g', -1, 64), nil
		case int64:
			return strconv.FormatInt(v, 10), nil
		case []string:
			if len(v) == 1 {
				return v[0], nil
			}
		}

	case KindStringArray:
		switch v := value.(type) {
		case []string:
			return append([]string{}, v...), nil
		case string:
			return []string{v}, nil
		}
	}

	return nil, fmt.Errorf("%w: %T for %s record", ErrTypeMismatch, value, kind)
}

// cloneValue copies slice values so callers cannot alias stored state.
func cloneValue(v any) any {
	switch x := v.(type) {
	case []float64:
		return append([]float64{}, x...)
	case []string:
		return append([]string{}, x...)
	default:
		return v
	}
}

// StatusFor maps a database error onto a wire status.
func StatusFor(err error) wire.Status {
	switch {
	case err == nil:
		return wire.StatusSuccess
	case errors.Is(err, ErrNotFound):
		return wire.StatusNotFound
	case errors.Is(err, ErrReadOnly):
		return wire.StatusReadOnly
	case errors.Is(err, ErrTypeMismatch):
		return wire.StatusTypeMismatch
	case errors.Is(err, ErrOutOfRange):
		return wire.StatusOutOfRange
	default:
		return wire.StatusInvalidRequest
	}
}
