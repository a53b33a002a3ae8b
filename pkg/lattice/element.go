package lattice

import (
	"errors"
	"fmt"
	"sort"
	"strings"
)

var (
	// ErrInvalidLattice is returned for malformed beamline definitions.
	ErrInvalidLattice = errors.New("invalid lattice")

	// ErrBeamLost is returned when the energy falls below the rest mass.
	ErrBeamLost = errors.New("beam energy below rest mass")
)

// Physical constants in eV and m/s.
const (
	ElectronMass = 0.51099895000e6
	SpeedOfLight = 299792458.0
)

// Kind is an element type.
type Kind int

const (
	KindMarker Kind = iota
	KindDrift
	KindQuadrupole
	KindSBend
	KindLCavity
	KindMonitor
	KindOverlay
	KindBeginning
)

var kindNames = map[Kind]string{
	KindMarker:     "marker",
	KindDrift:      "drift",
	KindQuadrupole: "quadrupole",
	KindSBend:      "sbend",
	KindLCavity:    "lcavity",
	KindMonitor:    "monitor",
	KindOverlay:    "overlay",
	KindBeginning:  "beginning_ele",
}

func (k Kind) String() string {
	if s, ok := kindNames[k]; ok {
		return s
	}
	return fmt.Sprintf("kind(%d)", int(k))
}

// ParseKind parses an element type. Unique prefixes such as "quad" are
// accepted.
func ParseKind(s string) (Kind, error) {
	s = strings.ToLower(strings.TrimSpace(s))
	if s == "" {
		return 0, fmt.Errorf("%w: empty element type", ErrInvalidLattice)
	}
	var found []Kind
	for k, name := range kindNames {
		if k == KindBeginning {
			continue
		}
		if name == s {
			return k, nil
		}
		if strings.HasPrefix(name, s) {
			found = append(found, k)
		}
	}
	if len(found) == 1 {
		return found[0], nil
	}
	return 0, fmt.Errorf("%w: unknown element type %q", ErrInvalidLattice, s)
}

// Attribute names.
const (
	AttrL           = "l"
	AttrK1          = "k1"
	AttrB1Gradient  = "b1_gradient"
	AttrFieldMaster = "field_master"
	AttrAngle       = "angle"
	AttrVoltage     = "voltage"
	AttrPhi0        = "phi0"
	AttrENLD        = "ENLD_MeV"
	AttrPhaseDeg    = "phase_deg"
	AttrInUse       = "in_use"
)

var kindAttrs = map[Kind][]string{
	KindMarker:     nil,
	KindBeginning:  nil,
	KindDrift:      {AttrL},
	KindMonitor:    {AttrL},
	KindQuadrupole: {AttrL, AttrK1, AttrB1Gradient, AttrFieldMaster},
	KindSBend:      {AttrL, AttrAngle},
	KindLCavity:    {AttrL, AttrVoltage, AttrPhi0},
	KindOverlay:    {AttrENLD, AttrPhaseDeg, AttrInUse},
}

// canonicalAttr resolves a case-insensitive attribute name for kind.
func canonicalAttr(kind Kind, name string) (string, bool) {
	for _, a := range kindAttrs[kind] {
		if strings.EqualFold(a, name) {
			return a, true
		}
	}
	return "", false
}

// Element is one beamline element or overlay.
type Element struct {
	Name  string
	Kind  Kind
	Attrs map[string]float64

	// Slaves lists the lcavity elements driven by an overlay.
	Slaves []string
}

// Attr returns an attribute value, zero when unset.
func (e *Element) Attr(name string) float64 {
	return e.Attrs[name]
}

// Length returns the element length.
func (e *Element) Length() float64 {
	return e.Attrs[AttrL]
}

// Set assigns an attribute after checking it applies to the element kind.
func (e *Element) Set(attr string, value float64) error {
	name, ok := canonicalAttr(e.Kind, attr)
	if !ok {
		return fmt.Errorf("%w: %s has no attribute %q", ErrInvalidLattice, e.Name, attr)
	}
	if name == AttrL && value < 0 {
		return fmt.Errorf("%w: %s: negative length", ErrInvalidLattice, e.Name)
	}
	if e.Attrs == nil {
		e.Attrs = make(map[string]float64)
	}
	e.Attrs[name] = value
	return nil
}

func (e *Element) clone() *Element {
	c := &Element{Name: e.Name, Kind: e.Kind, Attrs: make(map[string]float64, len(e.Attrs))}
	for k, v := range e.Attrs {
		c.Attrs[k] = v
	}
	c.Slaves = append([]string(nil), e.Slaves...)
	return c
}

// attrNames returns the element's set attributes, sorted.
func (e *Element) attrNames() []string {
	names := make([]string, 0, len(e.Attrs))
	for k := range e.Attrs {
		names = append(names, k)
	}
	sort.Strings(names)
	return names
}
