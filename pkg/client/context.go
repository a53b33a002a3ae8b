package client

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/slaclab/acclive/pkg/connection"
	"github.com/slaclab/acclive/pkg/discovery"
	"github.com/slaclab/acclive/pkg/nameserver"
	"github.com/slaclab/acclive/pkg/transport"
)

// Context is a client session: resolution, circuits and callback
// delivery. It is safe for concurrent use.
type Context struct {
	config   Config
	logger   *slog.Logger
	ns       *nameserver.Client
	resolver *discovery.Resolver
	browser  discovery.Browser

	ctx    context.Context
	cancel context.CancelFunc

	events      chan func()
	dispatching atomic.Bool

	mu       sync.Mutex
	closed   bool
	pvs      map[string]*PV
	circuits map[string]*circuit
	wg       sync.WaitGroup
}

// New creates a client context.
func New(config Config) (*Context, error) {
	config = config.withDefaults()

	ctx, cancel := context.WithCancel(context.Background())
	c := &Context{
		config:   config,
		logger:   config.Logger,
		ns:       nameserver.NewClient(transport.ClientConfig{Logger: config.ProtocolLogger}, config.SearchTimeout),
		ctx:      ctx,
		cancel:   cancel,
		events:   make(chan func(), config.EventQueueSize),
		pvs:      make(map[string]*PV),
		circuits: make(map[string]*circuit),
	}

	if !config.DisableMDNS {
		browser := config.Browser
		if browser == nil {
			b, err := discovery.NewMDNSBrowser(discovery.DefaultBrowserConfig())
			if err != nil {
				cancel()
				return nil, fmt.Errorf("failed to create mDNS browser: %w", err)
			}
			browser = b
		}
		c.browser = browser
		c.resolver = discovery.NewResolver()
		if err := c.resolver.Watch(ctx, browser); err != nil {
			c.logger.Warn("mDNS discovery unavailable", "error", err)
			c.resolver = nil
		}
	}
	return c, nil
}

// PV returns the handle for name, creating it and starting its connection
// on first use.
func (c *Context) PV(name string) *PV {
	c.mu.Lock()
	defer c.mu.Unlock()

	if pv, ok := c.pvs[name]; ok {
		return pv
	}
	pv := newPV(c, name)
	c.pvs[name] = pv
	if !c.closed {
		c.wg.Add(1)
		go func() {
			defer c.wg.Done()
			c.connectPV(pv)
		}()
	}
	return pv
}

// PVs returns the number of PV handles created.
func (c *Context) PVs() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.pvs)
}

// Poll delivers queued callbacks. When none are queued it waits up to
// timeout for one. It returns the number delivered.
func (c *Context) Poll(timeout time.Duration) int {
	n := c.drain()
	if n > 0 || timeout <= 0 {
		return n
	}

	t := time.NewTimer(timeout)
	defer t.Stop()
	select {
	case fn := <-c.events:
		c.run(fn)
		return 1 + c.drain()
	case <-t.C:
		return 0
	case <-c.ctx.Done():
		return 0
	}
}

// PendEvents delivers callbacks until ctx is done or the Context is
// closed.
func (c *Context) PendEvents(ctx context.Context) error {
	for {
		select {
		case fn := <-c.events:
			c.run(fn)
		case <-ctx.Done():
			return ctx.Err()
		case <-c.ctx.Done():
			return ErrClosed
		}
	}
}

func (c *Context) drain() int {
	n := 0
	for {
		select {
		case fn := <-c.events:
			c.run(fn)
			n++
		default:
			return n
		}
	}
}

func (c *Context) run(fn func()) {
	c.dispatching.Store(true)
	defer c.dispatching.Store(false)
	defer func() {
		if r := recover(); r != nil {
			c.logger.Error("callback panicked", "panic", r)
		}
	}()
	fn()
}

// enqueue schedules fn for delivery. It blocks while the queue is full.
func (c *Context) enqueue(fn func()) {
	select {
	case c.events <- fn:
	case <-c.ctx.Done():
	}
}

// InCallback reports whether callbacks are currently being delivered.
func (c *Context) InCallback() bool {
	return c.dispatching.Load()
}

// Close disconnects every circuit and stops resolution. Queued callbacks
// are discarded.
func (c *Context) Close() error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.closed = true
	circuits := make([]*circuit, 0, len(c.circuits))
	for _, ci := range c.circuits {
		circuits = append(circuits, ci)
	}
	c.mu.Unlock()

	c.cancel()
	if c.browser != nil && c.config.Browser == nil {
		c.browser.Stop()
	}
	for _, ci := range circuits {
		ci.close()
	}
	c.wg.Wait()
	return nil
}

// connectPV resolves pv's server, retrying with backoff, and attaches pv
// to the server's circuit.
func (c *Context) connectPV(pv *PV) {
	backoff := connection.NewBackoffWithConfig(c.config.Backoff)
	for {
		addr, err := c.Resolve(c.ctx, pv.name)
		if err == nil {
			ci, err := c.circuitFor(addr)
			if err != nil {
				return
			}
			ci.attach(pv)
			return
		}
		if c.ctx.Err() != nil {
			return
		}
		c.logger.Debug("pv not resolved, retrying", "pv", pv.name, "error", err)
		if backoff.Wait(c.ctx) != nil {
			return
		}
	}
}

// Resolve finds the server address for name: name servers first, then
// mDNS, then the static addresses.
func (c *Context) Resolve(ctx context.Context, name string) (string, error) {
	var errs []error

	if len(c.config.NameServers) > 0 {
		addr, err := c.ns.SearchAny(ctx, c.config.NameServers, name)
		if err == nil {
			return addr, nil
		}
		errs = append(errs, err)
	}

	if c.resolver != nil {
		wctx, cancel := context.WithTimeout(ctx, c.config.SearchTimeout)
		addr, err := c.resolver.ResolveWait(wctx, name)
		cancel()
		if err == nil {
			return addr, nil
		}
		errs = append(errs, err)
	}

	if len(c.config.StaticAddresses) > 0 {
		addr, err := c.ns.SearchAny(ctx, c.config.StaticAddresses, name)
		if err == nil {
			return addr, nil
		}
		errs = append(errs, err)
	}

	if len(errs) == 0 {
		return "", fmt.Errorf("%w: %s: no name servers, mDNS or static addresses configured", ErrNotResolved, name)
	}
	return "", fmt.Errorf("%w: %s: %w", ErrNotResolved, name, errors.Join(errs...))
}

func (c *Context) circuitFor(addr string) (*circuit, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return nil, ErrClosed
	}
	if ci, ok := c.circuits[addr]; ok {
		return ci, nil
	}
	ci := newCircuit(c, addr)
	c.circuits[addr] = ci
	ci.start()
	return ci, nil
}
