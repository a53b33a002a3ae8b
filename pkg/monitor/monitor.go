package monitor

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"maps"
	"slices"
	"sync"
	"time"

	"github.com/slaclab/acclive/pkg/client"
	"github.com/slaclab/acclive/pkg/wire"
	"golang.org/x/sync/errgroup"
)

// Well-known output names.
const (
	KeyS     = "ele.s"
	KeyBetaA = "ele.a.beta"
	KeyBetaB = "ele.b.beta"
	KeyName  = "ele.name"
)

// DefaultTimeout bounds a single PV read.
const DefaultTimeout = 2 * time.Second

// ErrNoPVs is returned by New when nothing is to be polled.
var ErrNoPVs = errors.New("no pvs to poll")

// Getter reads one PV.
type Getter interface {
	Get(ctx context.Context) (any, error)
}

// Source hands out PV getters.
type Source interface {
	Getter(name string) Getter
}

// ClientSource adapts a client.Context.
type ClientSource struct {
	Context *client.Context
}

// Getter implements Source.
func (s ClientSource) Getter(name string) Getter { return s.Context.PV(name) }

// Config configures a TaoMonitor.
type Config struct {
	// Prefix of the model namespace.
	Prefix string

	// Outputs are the output variable names to poll.
	Outputs []string

	// Inputs are input variable names polled alongside the outputs.
	Inputs []string

	// Timeout bounds each PV read (default DefaultTimeout).
	Timeout time.Duration

	// Concurrency limits reads in flight (0 means unlimited).
	Concurrency int

	Logger *slog.Logger
}

// Snapshot is the result of one poll.
type Snapshot struct {
	Time   time.Time
	Values map[string]any
	Errors map[string]error
}

// Floats returns the named value as a float slice.
func (s *Snapshot) Floats(name string) ([]float64, bool) {
	v, ok := s.Values[name]
	if !ok {
		return nil, false
	}
	return wire.ToFloat64Slice(v)
}

// Twiss returns s, beta_a and beta_b trimmed to a common length.
func (s *Snapshot) Twiss() (pos, betaA, betaB []float64, ok bool) {
	pos, ok1 := s.Floats(KeyS)
	betaA, ok2 := s.Floats(KeyBetaA)
	betaB, ok3 := s.Floats(KeyBetaB)
	if !ok1 || !ok2 || !ok3 {
		return nil, nil, nil, false
	}
	n := min(len(pos), len(betaA), len(betaB))
	if n == 0 {
		return nil, nil, nil, false
	}
	return pos[:n], betaA[:n], betaB[:n], true
}

// Err joins the per-PV errors in name order.
func (s *Snapshot) Err() error {
	if len(s.Errors) == 0 {
		return nil
	}
	errs := make([]error, 0, len(s.Errors))
	for _, name := range slices.Sorted(maps.Keys(s.Errors)) {
		errs = append(errs, s.Errors[name])
	}
	return errors.Join(errs...)
}

type entry struct {
	name   string
	getter Getter
}

// TaoMonitor polls the model's PVs.
type TaoMonitor struct {
	config  Config
	logger  *slog.Logger
	entries []entry
}

// New creates getters for every configured PV. Duplicate names are
// polled once.
func New(src Source, config Config) (*TaoMonitor, error) {
	if config.Timeout <= 0 {
		config.Timeout = DefaultTimeout
	}
	if config.Logger == nil {
		config.Logger = slog.Default()
	}

	m := &TaoMonitor{config: config, logger: config.Logger}
	seen := make(map[string]bool)
	for _, names := range [][]string{config.Outputs, config.Inputs} {
		for _, name := range names {
			if seen[name] {
				continue
			}
			seen[name] = true
			m.entries = append(m.entries, entry{name: name, getter: src.Getter(config.Prefix + name)})
		}
	}
	if len(m.entries) == 0 {
		return nil, ErrNoPVs
	}
	return m, nil
}

// Names returns the polled variable names.
func (m *TaoMonitor) Names() []string {
	out := make([]string, len(m.entries))
	for i, e := range m.entries {
		out[i] = e.name
	}
	return out
}

// Poll reads every PV concurrently. Per-PV failures are recorded in the
// snapshot; the returned error is non-nil only when ctx ends.
func (m *TaoMonitor) Poll(ctx context.Context) (*Snapshot, error) {
	snap := &Snapshot{
		Values: make(map[string]any, len(m.entries)),
		Errors: make(map[string]error),
	}
	var mu sync.Mutex

	g, gctx := errgroup.WithContext(ctx)
	if m.config.Concurrency > 0 {
		g.SetLimit(m.config.Concurrency)
	}
	for _, e := range m.entries {
		g.Go(func() error {
			rctx, cancel := context.WithTimeout(gctx, m.config.Timeout)
			defer cancel()

			v, err := e.getter.Get(rctx)
			if ctx.Err() != nil {
				return ctx.Err()
			}

			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				snap.Errors[e.name] = fmt.Errorf("%s%s: %w", m.config.Prefix, e.name, err)
				return nil
			}
			snap.Values[e.name] = wire.NormalizeValue(v)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	snap.Time = time.Now()
	if len(snap.Errors) > 0 {
		m.logger.Debug("poll incomplete", "failed", len(snap.Errors), "read", len(snap.Values))
	}
	return snap, nil
}
