package datamap

import (
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/slaclab/acclive/pkg/wire"
)

var (
	// ErrInvalidDataMap is returned for malformed datamap definitions.
	ErrInvalidDataMap = errors.New("invalid datamap")

	// ErrUnknownDataMap is returned by Select for names not in the file.
	ErrUnknownDataMap = errors.New("unknown datamap")
)

// DefaultTemplate is the command for a rule without a template.
const DefaultTemplate = "set ele {element} {attribute} = {value}"

// BadValuePrefix starts the comment line emitted for values that cannot
// be translated. Engines ignore comment lines.
const BadValuePrefix = "! Bad value"

// Rule translates one PV into one element attribute.
type Rule struct {
	PV        string   `yaml:"pv"`
	Element   string   `yaml:"element"`
	Attribute string   `yaml:"attribute"`
	Factor    *float64 `yaml:"factor,omitempty"`
	Offset    float64  `yaml:"offset,omitempty"`
	Template  string   `yaml:"template,omitempty"`
}

// Scale applies factor and offset to a PV value.
func (r *Rule) Scale(v float64) float64 {
	f := 1.0
	if r.Factor != nil {
		f = *r.Factor
	}
	return f*v + r.Offset
}

// Klystron maps one station's PVs onto its lattice overlay.
type Klystron struct {
	Element    string   `yaml:"element"`
	Enld       string   `yaml:"enld"`
	Phase      string   `yaml:"phase"`
	Accelerate string   `yaml:"accelerate,omitempty"`
	Faults     []string `yaml:"faults,omitempty"`
}

// PVs returns every PV the station reads.
func (k *Klystron) PVs() []string {
	pvs := []string{k.Enld, k.Phase}
	if k.Accelerate != "" {
		pvs = append(pvs, k.Accelerate)
	}
	return append(pvs, k.Faults...)
}

// DataMap is a named group of translations.
type DataMap struct {
	Name      string     `yaml:"name"`
	Template  string     `yaml:"template,omitempty"`
	Rules     []Rule     `yaml:"rules,omitempty"`
	Klystrons []Klystron `yaml:"klystrons,omitempty"`
}

// IsKlystron reports whether the datamap describes klystron stations.
func (d *DataMap) IsKlystron() bool {
	return len(d.Klystrons) > 0
}

// PVList returns the PVs the datamap reads, in definition order without
// duplicates.
func (d *DataMap) PVList() []string {
	var out []string
	seen := make(map[string]bool)
	add := func(pv string) {
		if pv != "" && !seen[pv] {
			seen[pv] = true
			out = append(out, pv)
		}
	}
	for _, r := range d.Rules {
		add(r.PV)
	}
	for i := range d.Klystrons {
		for _, pv := range d.Klystrons[i].PVs() {
			add(pv)
		}
	}
	return out
}

// Validate checks the definition.
func (d *DataMap) Validate() error {
	if d.Name == "" {
		return fmt.Errorf("%w: missing name", ErrInvalidDataMap)
	}
	if len(d.Rules) > 0 && len(d.Klystrons) > 0 {
		return fmt.Errorf("%w: %s: rules and klystrons are exclusive", ErrInvalidDataMap, d.Name)
	}
	for i, r := range d.Rules {
		if r.PV == "" || r.Element == "" {
			return fmt.Errorf("%w: %s: rule %d needs pv and element", ErrInvalidDataMap, d.Name, i)
		}
		if r.Attribute == "" && r.Template == "" && d.Template == "" {
			return fmt.Errorf("%w: %s: rule %d needs an attribute or template", ErrInvalidDataMap, d.Name, i)
		}
	}
	for i, k := range d.Klystrons {
		if k.Element == "" || k.Enld == "" || k.Phase == "" {
			return fmt.Errorf("%w: %s: klystron %d needs element, enld and phase", ErrInvalidDataMap, d.Name, i)
		}
	}
	return nil
}

// AsTao renders engine commands for pvdata. PVs whose value is missing or
// nil are skipped. Values that are not numeric produce a comment line
// starting with BadValuePrefix.
func (d *DataMap) AsTao(pvdata map[string]any) []string {
	var lines []string
	for i := range d.Rules {
		r := &d.Rules[i]
		raw, ok := pvdata[r.PV]
		if !ok || raw == nil {
			continue
		}
		v, ok := wire.ToFloat64(raw)
		if !ok {
			lines = append(lines, fmt.Sprintf("%s for %s: %s", BadValuePrefix, r.PV, wire.FormatValue(raw)))
			continue
		}
		tmpl := r.Template
		if tmpl == "" {
			tmpl = d.Template
		}
		if tmpl == "" {
			tmpl = DefaultTemplate
		}
		lines = append(lines, render(tmpl, r.Element, r.Attribute, r.PV, r.Scale(v)))
	}
	for i := range d.Klystrons {
		lines = append(lines, d.Klystrons[i].asTao(pvdata)...)
	}
	return lines
}

func (k *Klystron) asTao(pvdata map[string]any) []string {
	enldRaw, phaseRaw := pvdata[k.Enld], pvdata[k.Phase]
	if enldRaw == nil || phaseRaw == nil {
		return nil
	}
	enld, ok := wire.ToFloat64(enldRaw)
	if !ok {
		return []string{fmt.Sprintf("%s for %s: %s", BadValuePrefix, k.Enld, wire.FormatValue(enldRaw))}
	}
	phase, ok := wire.ToFloat64(phaseRaw)
	if !ok {
		return []string{fmt.Sprintf("%s for %s: %s", BadValuePrefix, k.Phase, wire.FormatValue(phaseRaw))}
	}

	if !k.inUse(pvdata) {
		return []string{fmt.Sprintf("set ele %s in_use = 0", k.Element)}
	}
	return []string{
		fmt.Sprintf("set ele %s ENLD_MeV = %s", k.Element, formatFloat(enld)),
		fmt.Sprintf("set ele %s phase_deg = %s", k.Element, formatFloat(phase)),
		fmt.Sprintf("set ele %s in_use = 1", k.Element),
	}
}

// inUse is false when the station is not accelerating or any fault PV is
// set. Missing status PVs count as accelerating and not faulted.
func (k *Klystron) inUse(pvdata map[string]any) bool {
	if k.Accelerate != "" {
		if v, ok := pvdata[k.Accelerate]; ok && v != nil && !wire.IsTruthy(v) {
			return false
		}
	}
	for _, pv := range k.Faults {
		if wire.IsTruthy(pvdata[pv]) {
			return false
		}
	}
	return true
}

func render(tmpl, element, attribute, pv string, value float64) string {
	return strings.NewReplacer(
		"{element}", element,
		"{attribute}", attribute,
		"{pv}", pv,
		"{value}", formatFloat(value),
	).Replace(tmpl)
}

func formatFloat(f float64) string {
	return strconv.FormatFloat(f, 'g', -1, 64)
}

// Commands renders the commands of every datamap in order.
func Commands(dms []*DataMap, pvdata map[string]any) []string {
	var lines []string
	for _, dm := range dms {
		lines = append(lines, dm.AsTao(pvdata)...)
	}
	return lines
}

// PVList returns the PVs read by dms, in order without duplicates.
func PVList(dms []*DataMap) []string {
	var out []string
	seen := make(map[string]bool)
	for _, dm := range dms {
		for _, pv := range dm.PVList() {
			if !seen[pv] {
				seen[pv] = true
				out = append(out, pv)
			}
		}
	}
	return out
}
