package lattice

import (
	"fmt"
	"io"
	"os"

	"gopkg.in/yaml.v3"
)

// Beginning holds the initial conditions of a beamline.
type Beginning struct {
	ETot   float64 `yaml:"e_tot"`
	BetaA  float64 `yaml:"beta_a"`
	AlphaA float64 `yaml:"alpha_a"`
	BetaB  float64 `yaml:"beta_b"`
	AlphaB float64 `yaml:"alpha_b"`
	EtaX   float64 `yaml:"eta_x"`
	EtapX  float64 `yaml:"etap_x"`
	EtaY   float64 `yaml:"eta_y"`
	EtapY  float64 `yaml:"etap_y"`
}

// Beamline is a sequence of tracking elements plus overlays.
type Beamline struct {
	Name      string
	Beginning Beginning
	Elements  []*Element
	Overlays  []*Element
}

type elementDoc struct {
	Name   string         `yaml:"name"`
	Type   string         `yaml:"type"`
	Slaves []string       `yaml:"slaves,omitempty"`
	Attrs  map[string]any `yaml:",inline"`
}

type beamlineDoc struct {
	Name      string       `yaml:"name"`
	Beginning Beginning    `yaml:"beginning"`
	Elements  []elementDoc `yaml:"elements"`
	Overlays  []elementDoc `yaml:"overlays"`
}

// Load reads a beamline file.
func Load(path string) (*Beamline, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	bl, err := Decode(f)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return bl, nil
}

// Decode reads a beamline from YAML.
func Decode(r io.Reader) (*Beamline, error) {
	var doc beamlineDoc
	if err := yaml.NewDecoder(r).Decode(&doc); err != nil {
		return nil, err
	}

	bl := &Beamline{Name: doc.Name, Beginning: doc.Beginning}
	for _, d := range doc.Elements {
		e, err := d.element(false)
		if err != nil {
			return nil, err
		}
		bl.Elements = append(bl.Elements, e)
	}
	for _, d := range doc.Overlays {
		e, err := d.element(true)
		if err != nil {
			return nil, err
		}
		bl.Overlays = append(bl.Overlays, e)
	}
	if err := bl.Validate(); err != nil {
		return nil, err
	}
	return bl, nil
}

func (d elementDoc) element(overlay bool) (*Element, error) {
	if d.Name == "" {
		return nil, fmt.Errorf("%w: element without name", ErrInvalidLattice)
	}
	kind := KindOverlay
	if !overlay {
		var err error
		if kind, err = ParseKind(d.Type); err != nil {
			return nil, fmt.Errorf("%s: %w", d.Name, err)
		}
		if kind == KindOverlay {
			return nil, fmt.Errorf("%w: %s: overlays belong in the overlays list", ErrInvalidLattice, d.Name)
		}
		if len(d.Slaves) > 0 {
			return nil, fmt.Errorf("%w: %s: only overlays have slaves", ErrInvalidLattice, d.Name)
		}
	} else if d.Type != "" && d.Type != "overlay" && d.Type != "klystron" {
		return nil, fmt.Errorf("%w: %s: unknown overlay type %q", ErrInvalidLattice, d.Name, d.Type)
	}

	e := &Element{Name: d.Name, Kind: kind, Attrs: make(map[string]float64), Slaves: d.Slaves}
	if overlay {
		e.Attrs[AttrInUse] = 1
	}
	for name, raw := range d.Attrs {
		v, err := attrValue(raw)
		if err != nil {
			return nil, fmt.Errorf("%w: %s.%s: %v", ErrInvalidLattice, d.Name, name, err)
		}
		if err := e.Set(name, v); err != nil {
			return nil, err
		}
	}
	return e, nil
}

func attrValue(raw any) (float64, error) {
	switch v := raw.(type) {
	case int:
		return float64(v), nil
	case float64:
		return v, nil
	case bool:
		if v {
			return 1, nil
		}
		return 0, nil
	default:
		return 0, fmt.Errorf("not a number: %v", raw)
	}
}

// Validate checks names, slaves and initial conditions.
func (bl *Beamline) Validate() error {
	if bl.Beginning.ETot <= ElectronMass {
		return fmt.Errorf("%w: beginning e_tot %g eV not above rest mass", ErrInvalidLattice, bl.Beginning.ETot)
	}
	if bl.Beginning.BetaA <= 0 || bl.Beginning.BetaB <= 0 {
		return fmt.Errorf("%w: beginning beta_a and beta_b must be positive", ErrInvalidLattice)
	}

	byName := make(map[string]*Element, len(bl.Elements))
	for _, e := range bl.Elements {
		if e.Name == "BEGINNING" || e.Name == "END" {
			return fmt.Errorf("%w: %s is reserved", ErrInvalidLattice, e.Name)
		}
		if _, dup := byName[e.Name]; dup {
			return fmt.Errorf("%w: duplicate element %s", ErrInvalidLattice, e.Name)
		}
		byName[e.Name] = e
	}
	seen := make(map[string]bool, len(bl.Overlays))
	for _, o := range bl.Overlays {
		if _, dup := byName[o.Name]; dup || seen[o.Name] {
			return fmt.Errorf("%w: duplicate element %s", ErrInvalidLattice, o.Name)
		}
		seen[o.Name] = true
		if len(o.Slaves) == 0 {
			return fmt.Errorf("%w: overlay %s has no slaves", ErrInvalidLattice, o.Name)
		}
		for _, s := range o.Slaves {
			slave, ok := byName[s]
			if !ok {
				return fmt.Errorf("%w: overlay %s: unknown slave %s", ErrInvalidLattice, o.Name, s)
			}
			if slave.Kind != KindLCavity {
				return fmt.Errorf("%w: overlay %s: slave %s is not an lcavity", ErrInvalidLattice, o.Name, s)
			}
		}
	}
	return nil
}

// Clone returns a deep copy.
func (bl *Beamline) Clone() *Beamline {
	c := &Beamline{Name: bl.Name, Beginning: bl.Beginning}
	for _, e := range bl.Elements {
		c.Elements = append(c.Elements, e.clone())
	}
	for _, o := range bl.Overlays {
		c.Overlays = append(c.Overlays, o.clone())
	}
	return c
}

// Element finds a tracking element or overlay by name.
func (bl *Beamline) Element(name string) (*Element, bool) {
	for _, e := range bl.Elements {
		if e.Name == name {
			return e, true
		}
	}
	for _, o := range bl.Overlays {
		if o.Name == name {
			return o, true
		}
	}
	return nil, false
}

// applyOverlay pushes an overlay's settings onto its slaves. The station
// energy gain is split evenly; a station not in use contributes nothing.
func (bl *Beamline) applyOverlay(o *Element) {
	n := float64(len(o.Slaves))
	if n == 0 {
		return
	}
	_, hasEnld := o.Attrs[AttrENLD]
	_, hasPhase := o.Attrs[AttrPhaseDeg]
	for _, name := range o.Slaves {
		slave, ok := bl.Element(name)
		if !ok {
			continue
		}
		if hasEnld || o.Attr(AttrInUse) == 0 {
			v := 0.0
			if o.Attr(AttrInUse) != 0 {
				v = o.Attr(AttrENLD) * 1e6 / n
			}
			slave.Attrs[AttrVoltage] = v
		}
		if hasPhase {
			slave.Attrs[AttrPhi0] = o.Attr(AttrPhaseDeg) / 360
		}
	}
}
