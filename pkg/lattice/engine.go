package lattice

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"sync"

	"github.com/slaclab/acclive/pkg/tao"
)

// Engine runs Tao-style commands against a beamline. It is safe for
// concurrent use.
type Engine struct {
	mu     sync.Mutex
	design *Beamline
	model  *Beamline
	optics []Optics
	calcOn bool
	dirty  bool
	logger *slog.Logger
}

var _ tao.Engine = (*Engine)(nil)

// NewEngine returns an engine whose design and model lattices are copies
// of bl, with optics computed.
func NewEngine(bl *Beamline, logger *slog.Logger) (*Engine, error) {
	if logger == nil {
		logger = slog.Default()
	}
	e := &Engine{
		design: bl.Clone(),
		model:  bl.Clone(),
		calcOn: true,
		logger: logger,
	}
	for _, o := range e.model.Overlays {
		e.model.applyOverlay(o)
	}
	if err := e.recompute(); err != nil {
		return nil, err
	}
	return e, nil
}

// Open loads a beamline file and returns an engine for it.
func Open(path string, logger *slog.Logger) (*Engine, error) {
	bl, err := Load(path)
	if err != nil {
		return nil, err
	}
	return NewEngine(bl, logger)
}

// Cmd implements tao.Engine.
func (e *Engine) Cmd(ctx context.Context, command string) ([]string, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	line := tao.StripComment(command)
	if line == "" {
		return nil, nil
	}

	fields := strings.Fields(line)
	switch strings.ToLower(fields[0]) {
	case "place":
		return nil, nil
	case "set":
		if len(fields) < 2 {
			break
		}
		rest := strings.TrimSpace(line[len(fields[0]):])
		rest = strings.TrimSpace(rest[len(fields[1]):])
		e.mu.Lock()
		defer e.mu.Unlock()
		switch strings.ToLower(fields[1]) {
		case "global":
			return nil, e.setGlobal(rest)
		case "lattice":
			return nil, e.setLattice(rest)
		case "ele", "element":
			return nil, e.setElement(rest)
		}
	case "show":
		if len(fields) == 3 && strings.EqualFold(fields[1], "ele") {
			e.mu.Lock()
			defer e.mu.Unlock()
			return e.showElement(fields[2])
		}
	}
	return nil, fmt.Errorf("%w: %s", tao.ErrUnknownCommand, line)
}

// splitAssign splits "lhs = rhs".
func splitAssign(s string) (lhs, rhs string, ok bool) {
	i := strings.Index(s, "=")
	if i < 0 {
		return "", "", false
	}
	return strings.TrimSpace(s[:i]), strings.TrimSpace(s[i+1:]), true
}

func (e *Engine) setGlobal(rest string) error {
	name, value, ok := splitAssign(rest)
	if !ok {
		return fmt.Errorf("%w: set global %s", tao.ErrUnknownCommand, rest)
	}
	switch strings.ToLower(name) {
	case "lattice_calc_on":
		on, err := parseLogical(value)
		if err != nil {
			return err
		}
		e.calcOn = on
		if on && e.dirty {
			return e.recompute()
		}
		return nil
	case "plot_on":
		_, err := parseLogical(value)
		return err
	default:
		return fmt.Errorf("%w: global %s", tao.ErrUnknownCommand, name)
	}
}

func (e *Engine) setLattice(rest string) error {
	lhs, rhs, ok := splitAssign(rest)
	if !ok || !strings.EqualFold(lhs, "model") || !strings.EqualFold(rhs, "design") {
		return fmt.Errorf("%w: set lattice %s", tao.ErrUnknownCommand, rest)
	}
	e.model = e.design.Clone()
	for _, o := range e.model.Overlays {
		e.model.applyOverlay(o)
	}
	return e.changed()
}

// setElement handles "<pattern> <attr> = <value>".
func (e *Engine) setElement(rest string) error {
	lhs, rhs, ok := splitAssign(rest)
	if !ok {
		return fmt.Errorf("%w: set ele %s", tao.ErrUnknownCommand, rest)
	}
	parts := strings.Fields(lhs)
	if len(parts) != 2 {
		return fmt.Errorf("%w: set ele %s", tao.ErrUnknownCommand, rest)
	}
	pattern, attr := parts[0], parts[1]

	value, err := parseValue(rhs)
	if err != nil {
		return err
	}

	matched := e.model.match(pattern, true)
	if len(matched) == 0 {
		return fmt.Errorf("%w: %s", tao.ErrNoMatch, pattern)
	}
	for _, el := range matched {
		if el.Kind == KindQuadrupole && strings.EqualFold(attr, AttrFieldMaster) {
			if err := e.switchFieldMaster(el, value != 0); err != nil {
				return err
			}
			continue
		}
		if err := el.Set(attr, value); err != nil {
			return fmt.Errorf("%w: %v", tao.ErrUnknownAttribute, err)
		}
		if el.Kind == KindQuadrupole {
			// Setting a strength selects which one is master.
			switch {
			case strings.EqualFold(attr, AttrB1Gradient):
				el.Attrs[AttrFieldMaster] = 1
			case strings.EqualFold(attr, AttrK1):
				el.Attrs[AttrFieldMaster] = 0
			}
		}
		if el.Kind == KindOverlay {
			e.model.applyOverlay(el)
		}
	}
	return e.changed()
}

// switchFieldMaster changes which quadrupole strength is master while
// keeping the focusing unchanged: the new master is derived from the old
// one at the element's reference momentum.
func (e *Engine) switchFieldMaster(el *Element, on bool) error {
	if (el.Attr(AttrFieldMaster) != 0) == on {
		return nil
	}
	p0c, err := e.model.entranceMomentum(el)
	if err != nil {
		return fmt.Errorf("%s: %w", el.Name, err)
	}
	if on {
		el.Attrs[AttrB1Gradient] = el.Attr(AttrK1) * p0c / SpeedOfLight
		el.Attrs[AttrFieldMaster] = 1
	} else {
		el.Attrs[AttrK1] = el.Attr(AttrB1Gradient) * SpeedOfLight / p0c
		el.Attrs[AttrFieldMaster] = 0
	}
	return nil
}

func (e *Engine) showElement(name string) ([]string, error) {
	el, ok := e.model.Element(name)
	if !ok {
		return nil, fmt.Errorf("%w: %s", tao.ErrNoMatch, name)
	}
	lines := []string{fmt.Sprintf("Element: %s  Key: %s", el.Name, el.Kind)}
	for _, a := range el.attrNames() {
		lines = append(lines, fmt.Sprintf("  %-14s = %s", a, strconv.FormatFloat(el.Attrs[a], 'g', -1, 64)))
	}
	if len(el.Slaves) > 0 {
		lines = append(lines, "  slaves: "+strings.Join(el.Slaves, ", "))
	}
	return lines, nil
}

func (e *Engine) changed() error {
	e.dirty = true
	if e.calcOn {
		return e.recompute()
	}
	return nil
}

func (e *Engine) recompute() error {
	optics, err := Compute(e.model)
	if err != nil {
		e.logger.Warn("lattice calculation failed", "lattice", e.model.Name, "error", err)
		return err
	}
	e.optics = optics
	e.dirty = false
	return nil
}

func parseLogical(s string) (bool, error) {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case "T", "TRUE":
		return true, nil
	case "F", "FALSE":
		return false, nil
	}
	return false, fmt.Errorf("%w: not a logical: %q", tao.ErrUnknownCommand, s)
}

func parseValue(s string) (float64, error) {
	if b, err := parseLogical(s); err == nil {
		if b {
			return 1, nil
		}
		return 0, nil
	}
	v, err := strconv.ParseFloat(strings.TrimSpace(s), 64)
	if err != nil {
		return 0, fmt.Errorf("%w: bad value %q", tao.ErrUnknownCommand, s)
	}
	return v, nil
}

// LatListReal implements tao.Engine.
func (e *Engine) LatListReal(ctx context.Context, elements, who string, flags ...string) ([]float64, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if err := checkFlags(flags); err != nil {
		return nil, err
	}
	e.mu.Lock()
	defer e.mu.Unlock()

	rows, err := e.rows(elements)
	if err != nil {
		return nil, err
	}
	var out []float64
	for _, r := range rows {
		vals, err := r.real(who)
		if err != nil {
			return nil, err
		}
		out = append(out, vals...)
	}
	if out == nil {
		out = []float64{}
	}
	return out, nil
}

// LatListString implements tao.Engine.
func (e *Engine) LatListString(ctx context.Context, elements, who string, flags ...string) ([]string, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if err := checkFlags(flags); err != nil {
		return nil, err
	}
	e.mu.Lock()
	defer e.mu.Unlock()

	rows, err := e.rows(elements)
	if err != nil {
		return nil, err
	}
	out := make([]string, 0, len(rows))
	for _, r := range rows {
		switch strings.ToLower(who) {
		case "ele.name":
			out = append(out, r.name)
		case "ele.key":
			out = append(out, r.kind.String())
		default:
			return nil, fmt.Errorf("%w: %s is not a string attribute", tao.ErrUnknownAttribute, who)
		}
	}
	return out, nil
}

func checkFlags(flags []string) error {
	for _, f := range flags {
		for _, one := range strings.Fields(f) {
			switch one {
			case "-no_slaves", "-track_only", "-index_order", "-no_super_slaves":
			default:
				return fmt.Errorf("%w: unknown lat_list flag %s", tao.ErrUnknownCommand, one)
			}
		}
	}
	return nil
}
