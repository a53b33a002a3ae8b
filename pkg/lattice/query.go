package lattice

import (
	"fmt"
	"strings"

	"github.com/slaclab/acclive/pkg/tao"
)

// row is one lat_list entry.
type row struct {
	index  int
	name   string
	kind   Kind
	el     *Element
	optics *Optics
}

// rows returns the entries matching pattern in index order. "*" and plain
// wildcards match tracking elements; overlays are reached by name or by
// the overlay:: key.
func (e *Engine) rows(pattern string) ([]row, error) {
	n := len(e.model.Elements)
	all := make([]row, 0, n+2+len(e.model.Overlays))
	all = append(all, row{index: 0, name: "BEGINNING", kind: KindBeginning, optics: &e.optics[0]})
	for i, el := range e.model.Elements {
		all = append(all, row{index: i + 1, name: el.Name, kind: el.Kind, el: el, optics: &e.optics[i+1]})
	}
	all = append(all, row{index: n + 1, name: "END", kind: KindMarker, optics: &e.optics[n+1]})
	for i, o := range e.model.Overlays {
		all = append(all, row{index: n + 2 + i, name: o.Name, kind: KindOverlay, el: o})
	}

	var out []row
	for _, p := range strings.Split(pattern, ",") {
		m, err := compilePattern(strings.TrimSpace(p))
		if err != nil {
			return nil, err
		}
		for _, r := range all {
			if m.matches(r.name, r.kind) {
				out = append(out, r)
			}
		}
	}
	if len(out) == 0 {
		return nil, fmt.Errorf("%w: %s", tao.ErrNoMatch, pattern)
	}
	return out, nil
}

// match returns the elements of bl matching pattern. Overlays are
// included when withOverlays is set.
func (bl *Beamline) match(pattern string, withOverlays bool) []*Element {
	var out []*Element
	for _, p := range strings.Split(pattern, ",") {
		m, err := compilePattern(strings.TrimSpace(p))
		if err != nil {
			continue
		}
		for _, el := range bl.Elements {
			if m.matches(el.Name, el.Kind) {
				out = append(out, el)
			}
		}
		if withOverlays {
			for _, o := range bl.Overlays {
				if m.matches(o.Name, o.Kind) {
					out = append(out, o)
				}
			}
		}
	}
	return out
}

type matcher struct {
	key    Kind
	hasKey bool
	glob   string
}

func compilePattern(p string) (matcher, error) {
	if p == "" {
		return matcher{}, fmt.Errorf("%w: empty element pattern", tao.ErrNoMatch)
	}
	m := matcher{glob: p}
	if i := strings.Index(p, "::"); i >= 0 {
		k, err := ParseKind(p[:i])
		if err != nil {
			return matcher{}, fmt.Errorf("%w: %v", tao.ErrNoMatch, err)
		}
		m.key, m.hasKey, m.glob = k, true, p[i+2:]
	}
	return m, nil
}

func (m matcher) matches(name string, kind Kind) bool {
	if m.hasKey {
		if kind != m.key {
			return false
		}
	} else if kind == KindOverlay && name != m.glob {
		return false
	}
	return glob(m.glob, name)
}

// glob matches name against a pattern where "*" matches any run of
// characters and "%" any single character.
func glob(pattern, name string) bool {
	for len(pattern) > 0 {
		switch pattern[0] {
		case '*':
			for len(pattern) > 0 && pattern[0] == '*' {
				pattern = pattern[1:]
			}
			if pattern == "" {
				return true
			}
			for i := 0; i <= len(name); i++ {
				if glob(pattern, name[i:]) {
					return true
				}
			}
			return false
		case '%':
			if name == "" {
				return false
			}
		default:
			if name == "" || pattern[0] != name[0] {
				return false
			}
		}
		pattern, name = pattern[1:], name[1:]
	}
	return name == ""
}

// real returns the numeric values of who for the row.
func (r row) real(who string) ([]float64, error) {
	key := strings.ToLower(who)
	switch key {
	case "ele.ix_ele":
		return []float64{float64(r.index)}, nil
	case "ele.ix_branch":
		return []float64{0}, nil
	}

	if r.optics == nil {
		if r.el != nil && strings.HasPrefix(key, "ele.") {
			if attr, ok := canonicalAttr(r.el.Kind, who[4:]); ok {
				return []float64{r.el.Attr(attr)}, nil
			}
		}
		return zeros(key)
	}

	o := r.optics
	switch key {
	case "ele.a.beta":
		return one(o.A.Beta), nil
	case "ele.a.alpha":
		return one(o.A.Alpha), nil
	case "ele.a.gamma":
		return one(o.A.Gamma), nil
	case "ele.a.phi":
		return one(o.A.Phi), nil
	case "ele.a.eta":
		return one(o.A.Eta), nil
	case "ele.a.etap":
		return one(o.A.Etap), nil
	case "ele.b.beta":
		return one(o.B.Beta), nil
	case "ele.b.alpha":
		return one(o.B.Alpha), nil
	case "ele.b.gamma":
		return one(o.B.Gamma), nil
	case "ele.b.phi":
		return one(o.B.Phi), nil
	case "ele.b.eta":
		return one(o.B.Eta), nil
	case "ele.b.etap":
		return one(o.B.Etap), nil
	case "ele.x.eta":
		return one(o.X.Eta), nil
	case "ele.x.etap":
		return one(o.X.Etap), nil
	case "ele.y.eta":
		return one(o.Y.Eta), nil
	case "ele.y.etap":
		return one(o.Y.Etap), nil
	case "ele.s":
		return one(o.S), nil
	case "ele.l":
		return one(o.L), nil
	case "ele.e_tot":
		return one(o.ETot), nil
	case "ele.p0c":
		return one(o.P0c), nil
	case "ele.mat6":
		return flatten(o.Mat6), nil
	case "ele.vec0":
		return append([]float64{}, o.Vec0[:]...), nil
	case "ele.k1":
		return one(o.K1), nil
	case "ele.b1_gradient":
		return one(o.B1Gradient), nil
	}

	if r.el != nil && strings.HasPrefix(key, "ele.") {
		if attr, ok := canonicalAttr(r.el.Kind, who[4:]); ok {
			return one(r.el.Attr(attr)), nil
		}
		if _, known := knownAttrs[key[4:]]; known {
			return one(0), nil
		}
	} else if _, known := knownAttrs[strings.TrimPrefix(key, "ele.")]; known {
		return one(0), nil
	}
	return nil, fmt.Errorf("%w: %s", tao.ErrUnknownAttribute, who)
}

// knownAttrs holds every element attribute name in lower case.
var knownAttrs = func() map[string]struct{} {
	m := make(map[string]struct{})
	for _, attrs := range kindAttrs {
		for _, a := range attrs {
			m[strings.ToLower(a)] = struct{}{}
		}
	}
	return m
}()

// zeros answers optics queries for rows without optics (overlays).
func zeros(key string) ([]float64, error) {
	switch key {
	case "ele.mat6":
		return make([]float64, 36), nil
	case "ele.vec0":
		return make([]float64, 6), nil
	}
	if strings.HasPrefix(key, "ele.a.") || strings.HasPrefix(key, "ele.b.") ||
		strings.HasPrefix(key, "ele.x.") || strings.HasPrefix(key, "ele.y.") {
		return one(0), nil
	}
	switch key {
	case "ele.s", "ele.l", "ele.e_tot", "ele.p0c", "ele.k1", "ele.b1_gradient":
		return one(0), nil
	}
	if _, known := knownAttrs[strings.TrimPrefix(key, "ele.")]; known {
		return one(0), nil
	}
	return nil, fmt.Errorf("%w: %s", tao.ErrUnknownAttribute, key)
}

func one(v float64) []float64 { return []float64{v} }
