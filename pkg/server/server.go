package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/slaclab/acclive/pkg/pvdb"
	"github.com/slaclab/acclive/pkg/pvserver"
	"github.com/slaclab/acclive/pkg/variables"
	"github.com/slaclab/acclive/pkg/wire"
)

// DefaultPrefix is the PV prefix of the model namespace. It matches
// bridge.DefaultPrefix so the two commands pair up with default flags.
const DefaultPrefix = "test:"

// ErrRunning is returned by Start on a started server.
var ErrRunning = errors.New("server already running")

// Evaluator computes outputs for changed inputs.
type Evaluator interface {
	Evaluate(ctx context.Context, inputs []*variables.InputVariable) ([]*variables.OutputVariable, error)
}

// Config configures a model server.
type Config struct {
	// Prefix is prepended to every variable name (default DefaultPrefix).
	Prefix string

	// Monitor enables evaluation on input writes.
	Monitor bool

	// PVServer configures the underlying PV server. Its Prefix defaults
	// to Prefix.
	PVServer pvserver.Config

	// OnEvaluated is called after each evaluation (optional).
	OnEvaluated func(outputs []*variables.OutputVariable, err error)

	// Logger for operational logging (default slog.Default()).
	Logger *slog.Logger

	// Registerer receives the server's metrics (optional).
	Registerer prometheus.Registerer
}

// Server serves a variable set and keeps outputs current.
type Server struct {
	config  Config
	eval    Evaluator
	vars    *variables.Set
	db      *pvdb.Database
	pvs     *pvserver.Server
	logger  *slog.Logger
	metrics *metrics

	mu      sync.Mutex
	pending map[string]any
	wake    chan struct{}
	cancel  context.CancelFunc
	done    chan struct{}
}

// New builds the PV database for vars. Output values already present in
// vars are published as initial values.
func New(eval Evaluator, vars *variables.Set, config Config) (*Server, error) {
	if config.Prefix == "" {
		config.Prefix = DefaultPrefix
	}
	if config.Logger == nil {
		config.Logger = slog.Default()
	}
	if config.PVServer.Prefix == "" {
		config.PVServer.Prefix = config.Prefix
	}
	if config.PVServer.Logger == nil {
		config.PVServer.Logger = config.Logger
	}
	if config.PVServer.Registerer == nil {
		config.PVServer.Registerer = config.Registerer
	}

	db := pvdb.New()
	for _, in := range vars.Inputs {
		if err := db.Add(inputRecord(config.Prefix, in)); err != nil {
			return nil, err
		}
	}
	for _, out := range vars.Outputs {
		if err := db.Add(outputRecord(config.Prefix, out)); err != nil {
			return nil, err
		}
	}

	s := &Server{
		config:  config,
		eval:    eval,
		vars:    vars,
		db:      db,
		logger:  config.Logger,
		metrics: newMetrics(config.Registerer),
		pending: make(map[string]any),
		wake:    make(chan struct{}, 1),
	}
	s.pvs = pvserver.New(db, config.PVServer)
	if config.Monitor {
		s.pvs.OnPutAny(s.onPut)
	}
	return s, nil
}

func inputRecord(prefix string, in *variables.InputVariable) pvdb.Record {
	name := prefix + in.Name
	var rec pvdb.Record
	switch in.Type {
	case variables.TypeArray:
		arr, _ := wire.ToFloat64Slice(in.Current())
		if arr == nil {
			arr = []float64{}
		}
		rec = pvdb.Array(name, arr)
	case variables.TypeString:
		s, _ := in.Current().(string)
		rec = pvdb.String(name, s)
	default:
		f, _ := wire.ToFloat64(in.Current())
		low, high := in.Bounds()
		rec = pvdb.Scalar(name, f, low, high)
	}
	rec.Description = "model input"
	return rec
}

func outputRecord(prefix string, out *variables.OutputVariable) pvdb.Record {
	name := prefix + out.Name
	var rec pvdb.Record
	if out.IsString() {
		strs, _ := wire.ToStringSlice(out.Value)
		if strs == nil {
			strs = []string{}
		}
		rec = pvdb.StringArray(name, strs)
	} else {
		arr, _ := wire.ToFloat64Slice(out.Value)
		if arr == nil {
			arr = []float64{}
		}
		rec = pvdb.Array(name, arr)
	}
	rec.ReadOnly = true
	rec.Description = "model output"
	return rec
}

// Database returns the served database.
func (s *Server) Database() *pvdb.Database { return s.db }

// PVServer returns the underlying PV server.
func (s *Server) PVServer() *pvserver.Server { return s.pvs }

// Start serves the database and, with Monitor enabled, starts the
// evaluation loop.
func (s *Server) Start(ctx context.Context) error {
	s.mu.Lock()
	if s.cancel != nil {
		s.mu.Unlock()
		return ErrRunning
	}
	ctx, cancel := context.WithCancel(ctx)
	s.cancel = cancel
	s.done = make(chan struct{})
	s.mu.Unlock()

	if err := s.pvs.Start(ctx); err != nil {
		cancel()
		return err
	}
	s.logger.Info("model server started",
		"addr", s.pvs.Addr().String(),
		"prefix", s.config.Prefix,
		"inputs", len(s.vars.Inputs),
		"outputs", len(s.vars.Outputs),
		"monitor", s.config.Monitor)

	if s.config.Monitor {
		go s.loop(ctx)
	} else {
		close(s.done)
	}
	return nil
}

// Stop stops evaluation and the PV server.
func (s *Server) Stop() error {
	s.mu.Lock()
	cancel, done := s.cancel, s.done
	s.mu.Unlock()
	if cancel == nil {
		return nil
	}
	cancel()
	<-done
	return s.pvs.Stop()
}

// Wait blocks until the server stops or ctx ends.
func (s *Server) Wait(ctx context.Context) error {
	s.mu.Lock()
	done := s.done
	s.mu.Unlock()
	if done == nil {
		return nil
	}
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// onPut runs on the connection's read goroutine and only records the
// write.
func (s *Server) onPut(name string, value any) {
	if len(name) < len(s.config.Prefix) || name[:len(s.config.Prefix)] != s.config.Prefix {
		return
	}
	input := name[len(s.config.Prefix):]
	if _, ok := s.vars.Input(input); !ok {
		return
	}

	s.mu.Lock()
	if _, ok := s.pending[input]; ok {
		s.metrics.coalesced.Inc()
	}
	s.pending[input] = value
	s.mu.Unlock()

	select {
	case s.wake <- struct{}{}:
	default:
	}
}

func (s *Server) loop(ctx context.Context) {
	defer close(s.done)
	for {
		select {
		case <-ctx.Done():
			return
		case <-s.wake:
		}

		s.mu.Lock()
		batch := s.pending
		s.pending = make(map[string]any)
		s.mu.Unlock()
		if len(batch) == 0 {
			continue
		}
		s.evaluate(ctx, batch)
	}
}

func (s *Server) evaluate(ctx context.Context, batch map[string]any) {
	names := make([]string, 0, len(batch))
	for name := range batch {
		names = append(names, name)
	}
	sort.Strings(names)

	inputs := make([]*variables.InputVariable, 0, len(names))
	for _, name := range names {
		def, _ := s.vars.Input(name)
		in := *def
		in.Value = batch[name]
		inputs = append(inputs, &in)
	}

	start := time.Now()
	outputs, err := s.eval.Evaluate(ctx, inputs)
	s.metrics.latency.Observe(time.Since(start).Seconds())
	if err != nil {
		s.metrics.evaluations.WithLabelValues("error").Inc()
		s.logger.Warn("model evaluation failed", "inputs", names, "error", err)
	} else {
		s.metrics.evaluations.WithLabelValues("ok").Inc()
		s.logger.Debug("model evaluated", "inputs", names, "duration", time.Since(start))
		s.publish(outputs)
	}

	if s.config.OnEvaluated != nil {
		s.config.OnEvaluated(outputs, err)
	}
}

// publish stores output values, notifying monitors.
func (s *Server) publish(outputs []*variables.OutputVariable) {
	for _, out := range outputs {
		name := s.config.Prefix + out.Name
		value := wire.NormalizeValue(out.Value)
		if _, err := s.db.Update(name, value, wire.SeverityNone); err != nil {
			s.logger.Warn("output not published", "pv", name, "error", fmt.Sprint(err))
		}
	}
}
