package wire

import (
	"fmt"
	"math"
	"strconv"
	"strings"
)

// NormalizeValue coerces v into one of the PV value shapes: nil, bool,
// int64, float64, string, []float64, []int64 or []string.
//
// Nested numeric arrays are flattened row-major. Values that cannot be
// expressed are returned unchanged.
func NormalizeValue(v any) any {
	switch x := v.(type) {
	case nil:
		return nil
	case bool, int64, float64, string:
		return x
	case int:
		return int64(x)
	case int8:
		return int64(x)
	case int16:
		return int64(x)
	case int32:
		return int64(x)
	case uint:
		return uintValue(uint64(x))
	case uint8:
		return int64(x)
	case uint16:
		return int64(x)
	case uint32:
		return int64(x)
	case uint64:
		return uintValue(x)
	case float32:
		return float64(x)
	case []float64:
		return append([]float64{}, x...)
	case []float32:
		out := make([]float64, len(x))
		for i, f := range x {
			out[i] = float64(f)
		}
		return out
	case []int64:
		return append([]int64{}, x...)
	case []int:
		out := make([]int64, len(x))
		for i, n := range x {
			out[i] = int64(n)
		}
		return out
	case []string:
		return append([]string{}, x...)
	case [][]float64:
		var out []float64
		for _, row := range x {
			out = append(out, row...)
		}
		if out == nil {
			out = []float64{}
		}
		return out
	case [][][]float64:
		out := []float64{}
		for _, m := range x {
			for _, row := range m {
				out = append(out, row...)
			}
		}
		return out
	case []any:
		return normalizeSlice(x)
	default:
		return v
	}
}

func uintValue(u uint64) any {
	if u > math.MaxInt64 {
		return float64(u)
	}
	return int64(u)
}

// normalizeSlice picks the narrowest array shape able to hold every
// element of a decoded CBOR array.
func normalizeSlice(items []any) any {
	if len(items) == 0 {
		return []float64{}
	}

	allStrings, allInts, allNumbers := true, true, true
	flat := make([]any, 0, len(items))
	for _, item := range items {
		n := NormalizeValue(item)
		switch y := n.(type) {
		case string:
			allInts, allNumbers = false, false
		case int64:
			allStrings = false
		case float64:
			allStrings, allInts = false, false
		case []float64:
			allStrings, allInts = false, false
			for _, f := range y {
				flat = append(flat, f)
			}
			continue
		case []int64:
			allStrings = false
			for _, i := range y {
				flat = append(flat, i)
			}
			continue
		default:
			return items
		}
		flat = append(flat, n)
	}

	switch {
	case allStrings:
		out := make([]string, len(flat))
		for i, s := range flat {
			out[i] = s.(string)
		}
		return out
	case allInts:
		out := make([]int64, len(flat))
		for i, n := range flat {
			out[i] = n.(int64)
		}
		return out
	case allNumbers:
		out := make([]float64, len(flat))
		for i, n := range flat {
			f, _ := ToFloat64(n)
			out[i] = f
		}
		return out
	default:
		return items
	}
}

// IsAbsent reports whether v carries no data.
func IsAbsent(v any) bool {
	return v == nil
}

// IsTruthy reports whether v counts as a value worth propagating: false,
// zero, the empty string and empty arrays are falsy.
func IsTruthy(v any) bool {
	switch x := NormalizeValue(v).(type) {
	case nil:
		return false
	case bool:
		return x
	case int64:
		return x != 0
	case float64:
		return x != 0
	case string:
		return x != ""
	case []float64:
		return len(x) > 0
	case []int64:
		return len(x) > 0
	case []string:
		return len(x) > 0
	case []any:
		return len(x) > 0
	default:
		return true
	}
}

// ToFloat64 converts a numeric or boolean value to float64.
func ToFloat64(v any) (float64, bool) {
	switch x := NormalizeValue(v).(type) {
	case int64:
		return float64(x), true
	case float64:
		return x, true
	case bool:
		if x {
			return 1, true
		}
		return 0, true
	default:
		return 0, false
	}
}

// ToFloat64Slice converts a numeric array (or a single number) to []float64.
func ToFloat64Slice(v any) ([]float64, bool) {
	switch x := NormalizeValue(v).(type) {
	case []float64:
		return x, true
	case []int64:
		out := make([]float64, len(x))
		for i, n := range x {
			out[i] = float64(n)
		}
		return out, true
	case int64, float64:
		f, _ := ToFloat64(x)
		return []float64{f}, true
	default:
		return nil, false
	}
}

// ToStringSlice converts a string array (or a single string) to []string.
func ToStringSlice(v any) ([]string, bool) {
	switch x := NormalizeValue(v).(type) {
	case []string:
		return x, true
	case string:
		return []string{x}, true
	default:
		return nil, false
	}
}

// FormatValue renders a value for logs and command output.
func FormatValue(v any) string {
	switch x := NormalizeValue(v).(type) {
	case nil:
		return "<none>"
	case float64:
		return strconv.FormatFloat(x, 'g', -1, 64)
	case []float64:
		parts := make([]string, len(x))
		for i, f := range x {
			parts[i] = strconv.FormatFloat(f, 'g', -1, 64)
		}
		return "[" + strings.Join(parts, " ") + "]"
	case string:
		return strconv.Quote(x)
	default:
		return fmt.Sprint(x)
	}
}

// ParseValue parses command-line text into a PV value. Numbers become
// float64 (int64 when integral and asInt is set), space or comma separated
// lists become arrays, anything else stays a string.
func ParseValue(s string, asInt bool) any {
	s = strings.TrimSpace(s)
	fields := strings.FieldsFunc(s, func(r rune) bool { return r == ',' || r == ' ' })
	if len(fields) > 1 {
		nums := make([]float64, 0, len(fields))
		for _, f := range fields {
			n, err := strconv.ParseFloat(f, 64)
			if err != nil {
				return fields
			}
			nums = append(nums, n)
		}
		return nums
	}
	if asInt {
		if n, err := strconv.ParseInt(s, 10, 64); err == nil {
			return n
		}
	}
	if f, err := strconv.ParseFloat(s, 64); err == nil {
		return f
	}
	switch s {
	case "true", "True", "T":
		return true
	case "false", "False", "F":
		return false
	}
	return s
}
