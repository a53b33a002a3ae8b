// Package version holds the PV network protocol version and the build
// version reported by the commands.
package version

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
)

// Protocol is the PV network protocol version spoken by this module.
const Protocol = "1.0"

// Build is the release version of the commands, set at link time with
// -ldflags "-X github.com/slaclab/acclive/pkg/version.Build=...".
var Build = "dev"

// ErrIncompatible is returned when a peer speaks another major version.
var ErrIncompatible = errors.New("incompatible protocol version")

// ProtocolVersion is a parsed "major.minor" protocol version.
type ProtocolVersion struct {
	Major uint16
	Minor uint16
}

// Parse parses a "major.minor" version string.
func Parse(s string) (ProtocolVersion, error) {
	major, minor, ok := strings.Cut(s, ".")
	if !ok || major == "" || minor == "" || strings.Contains(minor, ".") {
		return ProtocolVersion{}, fmt.Errorf("invalid version %q: expected major.minor", s)
	}

	majN, err := strconv.ParseUint(major, 10, 16)
	if err != nil {
		return ProtocolVersion{}, fmt.Errorf("invalid version %q: bad major component", s)
	}
	minN, err := strconv.ParseUint(minor, 10, 16)
	if err != nil {
		return ProtocolVersion{}, fmt.Errorf("invalid version %q: bad minor component", s)
	}
	return ProtocolVersion{Major: uint16(majN), Minor: uint16(minN)}, nil
}

// Current returns the parsed Protocol version.
func Current() ProtocolVersion {
	v, _ := Parse(Protocol)
	return v
}

// String returns the version as "major.minor".
func (v ProtocolVersion) String() string {
	return fmt.Sprintf("%d.%d", v.Major, v.Minor)
}

// Compatible reports whether other has the same major version.
func (v ProtocolVersion) Compatible(other ProtocolVersion) bool {
	return v.Major == other.Major
}

// Check parses a peer's advertised version and verifies it is compatible
// with Protocol. An empty string is taken as the current version.
func Check(peer string) error {
	if peer == "" {
		return nil
	}
	v, err := Parse(peer)
	if err != nil {
		return err
	}
	if !Current().Compatible(v) {
		return fmt.Errorf("%w: peer %s, local %s", ErrIncompatible, v, Protocol)
	}
	return nil
}

// String describes the build for --version output.
func String() string {
	return fmt.Sprintf("%s (protocol %s)", Build, Protocol)
}
