package bridge

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/slaclab/acclive/pkg/client"
	"github.com/slaclab/acclive/pkg/wire"
	"golang.org/x/time/rate"
)

// DefaultPrefix is the model PV prefix used when none is configured.
const DefaultPrefix = "test:"

var (
	// ErrNoInputs is returned by New without input names.
	ErrNoInputs = errors.New("no input variables")

	// ErrStarted is returned by Start on a started bridge.
	ErrStarted = errors.New("bridge already started")
)

// DispatchMode selects how writes are scheduled.
type DispatchMode int

const (
	// DispatchOrdered uses one writer per destination, latest value wins.
	DispatchOrdered DispatchMode = iota
	// DispatchSpawn starts one goroutine per notification.
	DispatchSpawn
)

func (m DispatchMode) String() string {
	switch m {
	case DispatchOrdered:
		return "ordered"
	case DispatchSpawn:
		return "spawn"
	default:
		return fmt.Sprintf("dispatch(%d)", int(m))
	}
}

// ParseDispatchMode parses "ordered" or "spawn".
func ParseDispatchMode(s string) (DispatchMode, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "ordered":
		return DispatchOrdered, nil
	case "spawn":
		return DispatchSpawn, nil
	}
	return 0, fmt.Errorf("unknown dispatch mode %q", s)
}

// Config configures a bridge.
type Config struct {
	// Prefix is prepended to machine names to form model names
	// (default DefaultPrefix).
	Prefix string

	// Mode selects write scheduling.
	Mode DispatchMode

	// MaxPutRate limits writes per second to each destination. Zero
	// disables the limit.
	MaxPutRate float64

	// Logger for operational logging (default slog.Default()).
	Logger *slog.Logger

	// Registerer receives the bridge's metrics (optional).
	Registerer prometheus.Registerer
}

// Mapping pairs a machine PV with its model PV.
type Mapping struct {
	Machine string
	Model   string
}

type link struct {
	Mapping
	dest    DestPV
	limiter *rate.Limiter
	mailbox chan any
}

// Bridge copies machine PV updates to model PVs.
type Bridge struct {
	config   Config
	logger   *slog.Logger
	counters *counters
	links    []*link

	mu      sync.Mutex
	ctx     context.Context
	cancel  context.CancelFunc
	writers sync.WaitGroup
	spawned sync.WaitGroup
}

// New connects every input: a monitored handle on the machine PV and an
// unmonitored handle on the model PV. Duplicate names are connected once.
func New(conn Connector, inputs []string, config Config) (*Bridge, error) {
	if len(inputs) == 0 {
		return nil, ErrNoInputs
	}
	if config.Prefix == "" {
		config.Prefix = DefaultPrefix
	}
	if config.Logger == nil {
		config.Logger = slog.Default()
	}

	b := &Bridge{
		config:   config,
		logger:   config.Logger,
		counters: newCounters(config.Registerer),
	}

	seen := make(map[string]bool, len(inputs))
	for _, name := range inputs {
		if seen[name] {
			continue
		}
		seen[name] = true

		l := &link{
			Mapping: Mapping{Machine: name, Model: config.Prefix + name},
			mailbox: make(chan any, 1),
		}
		if config.MaxPutRate > 0 {
			l.limiter = rate.NewLimiter(rate.Limit(config.MaxPutRate), 1)
		}
		l.dest = conn.Destination(l.Model)
		b.links = append(b.links, l)

		conn.Source(name).Monitor(func(u client.Update) {
			b.handle(l, u)
		})
	}

	b.logger.Info("bridge configured",
		"pvs", len(b.links),
		"prefix", config.Prefix,
		"dispatch", config.Mode.String(),
		"max_put_rate", config.MaxPutRate)
	return b, nil
}

// Mappings returns the machine to model name pairs.
func (b *Bridge) Mappings() []Mapping {
	out := make([]Mapping, len(b.links))
	for i, l := range b.links {
		out[i] = l.Mapping
	}
	return out
}

// Stats returns the outcome counts so far.
func (b *Bridge) Stats() Stats {
	return b.counters.snapshot()
}

// Start launches the per-destination writers.
func (b *Bridge) Start(ctx context.Context) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.ctx != nil {
		return ErrStarted
	}
	b.ctx, b.cancel = context.WithCancel(ctx)

	if b.config.Mode == DispatchOrdered {
		for _, l := range b.links {
			b.writers.Add(1)
			go b.writer(b.ctx, l)
		}
	}
	return nil
}

// Close stops the writers and waits for writes in progress to finish.
// Values still waiting in a mailbox are discarded.
func (b *Bridge) Close() {
	b.mu.Lock()
	cancel := b.cancel
	b.mu.Unlock()
	if cancel != nil {
		cancel()
	}
	b.writers.Wait()
	b.spawned.Wait()
}

// Serve starts the bridge, runs events until ctx ends and closes the
// bridge. A cancelled ctx is a clean exit.
func (b *Bridge) Serve(ctx context.Context, events EventLoop) error {
	if err := b.Start(ctx); err != nil {
		return err
	}
	defer b.Close()

	err := events.PendEvents(ctx)
	if ctx.Err() != nil {
		return nil
	}
	return err
}

// handle runs in the client's callback context and must not block.
func (b *Bridge) handle(l *link, u client.Update) {
	if u.Value == nil {
		b.counters.inc(ResultAbsent)
		return
	}

	b.mu.Lock()
	ctx := b.ctx
	b.mu.Unlock()
	if ctx == nil {
		ctx = context.Background()
	}

	switch b.config.Mode {
	case DispatchSpawn:
		b.spawned.Add(1)
		go func() {
			defer b.spawned.Done()
			b.write(ctx, l, u.Value)
		}()
	default:
		// Single producer: after the drain the send cannot block.
		select {
		case <-l.mailbox:
			b.counters.inc(ResultSuperseded)
		default:
		}
		l.mailbox <- u.Value
	}
}

func (b *Bridge) writer(ctx context.Context, l *link) {
	defer b.writers.Done()
	for {
		select {
		case <-ctx.Done():
			return
		case v := <-l.mailbox:
			b.write(ctx, l, v)
		}
	}
}

func (b *Bridge) write(ctx context.Context, l *link, value any) {
	if l.limiter != nil {
		if err := l.limiter.Wait(ctx); err != nil {
			b.counters.inc(ResultFailed)
			b.logger.Debug("write dropped waiting for rate limit", "pv", l.Model, "error", err)
			return
		}
	}

	if !l.dest.Connected() {
		b.counters.inc(ResultDisconnected)
		b.logger.Debug("skipping write, model pv not connected", "pv", l.Model)
		return
	}
	if !wire.IsTruthy(value) {
		b.counters.inc(ResultFalsy)
		b.logger.Debug("skipping falsy value", "pv", l.Model, "value", wire.FormatValue(value))
		return
	}
	if err := l.dest.Put(value); err != nil {
		b.counters.inc(ResultFailed)
		b.logger.Warn("write failed", "pv", l.Model, "error", err)
		return
	}
	b.counters.inc(ResultWritten)
	b.logger.Debug("wrote value", "pv", l.Model, "value", wire.FormatValue(value))
}
