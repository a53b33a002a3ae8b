package version

import (
	"errors"
	"testing"
)

func TestParseValid(t *testing.T) {
	tests := []struct {
		input string
		major uint16
		minor uint16
	}{
		{"1.0", 1, 0},
		{"1.1", 1, 1},
		{"2.0", 2, 0},
		{"10.23", 10, 23},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			v, err := Parse(tt.input)
			if err != nil {
				t.Fatalf("Parse(%q) returned error: %v", tt.input, err)
			}
			if v.Major != tt.major || v.Minor != tt.minor {
				t.Errorf("Parse(%q) = %v, want %d.%d", tt.input, v, tt.major, tt.minor)
			}
			if v.String() != tt.input {
				t.Errorf("String() = %q, want %q", v.String(), tt.input)
			}
		})
	}
}

func TestParseInvalid(t *testing.T) {
	for _, input := range []string{"", "1", "abc", "1.0.0", "1.x", "-1.0", ".1", "1."} {
		t.Run(input, func(t *testing.T) {
			if _, err := Parse(input); err == nil {
				t.Errorf("Parse(%q) should return error", input)
			}
		})
	}
}

func TestCompatible(t *testing.T) {
	v1 := ProtocolVersion{Major: 1, Minor: 0}
	if !v1.Compatible(ProtocolVersion{Major: 1, Minor: 7}) {
		t.Error("same major should be compatible")
	}
	if v1.Compatible(ProtocolVersion{Major: 2, Minor: 0}) {
		t.Error("different major should not be compatible")
	}
}

func TestCheck(t *testing.T) {
	if err := Check(""); err != nil {
		t.Errorf("empty version: %v", err)
	}
	if err := Check(Protocol); err != nil {
		t.Errorf("current version: %v", err)
	}
	if err := Check("1.9"); err != nil {
		t.Errorf("newer minor: %v", err)
	}
	if err := Check("2.0"); !errors.Is(err, ErrIncompatible) {
		t.Errorf("Check(2.0) = %v, want ErrIncompatible", err)
	}
	if err := Check("bogus"); err == nil || errors.Is(err, ErrIncompatible) {
		t.Errorf("Check(bogus) = %v, want parse error", err)
	}
}
