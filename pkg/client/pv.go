package client

import (
	"context"
	"sync"
	"time"

	"github.com/slaclab/acclive/pkg/wire"
)

// Update is a monitor event. Value is nil when the PV disconnected.
type Update struct {
	Name      string
	Value     any
	Timestamp time.Time
	Severity  wire.Severity
}

// MonitorFunc receives monitor updates.
type MonitorFunc func(Update)

// ConnectionFunc receives connection changes.
type ConnectionFunc func(name string, connected bool)

// PV is a handle on one named PV.
type PV struct {
	owner *Context
	name  string

	mu          sync.Mutex
	circuit     *circuit
	connected   bool
	connectedCh chan struct{}
	value       any
	timestamp   time.Time
	severity    wire.Severity
	subID       uint32
	monitors    []MonitorFunc
	connFuncs   []ConnectionFunc
}

func newPV(owner *Context, name string) *PV {
	return &PV{
		owner:       owner,
		name:        name,
		connectedCh: make(chan struct{}),
	}
}

// Name returns the PV name.
func (p *PV) Name() string { return p.name }

// Connected reports whether the PV's circuit is up.
func (p *PV) Connected() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.connected
}

// Value returns the last monitored value, or nil.
func (p *PV) Value() any {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.value
}

// Timestamp returns the timestamp of the last monitored value.
func (p *PV) Timestamp() time.Time {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.timestamp
}

// WaitConnected blocks until the PV is connected or ctx is done.
func (p *PV) WaitConnected(ctx context.Context) error {
	for {
		p.mu.Lock()
		connected, ch := p.connected, p.connectedCh
		p.mu.Unlock()
		if connected {
			return nil
		}
		select {
		case <-ch:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

// OnConnectionChange registers a connection callback. It is called through
// the event queue.
func (p *PV) OnConnectionChange(fn ConnectionFunc) {
	p.mu.Lock()
	p.connFuncs = append(p.connFuncs, fn)
	p.mu.Unlock()
}

// Monitor registers a callback for value changes and subscribes when the
// PV is connected. The subscription is re-established after reconnects.
func (p *PV) Monitor(fn MonitorFunc) {
	p.mu.Lock()
	p.monitors = append(p.monitors, fn)
	first := len(p.monitors) == 1
	ci, connected := p.circuit, p.connected
	p.mu.Unlock()

	if first && connected {
		go p.subscribe(ci)
	}
}

// Get reads the current value from the server.
func (p *PV) Get(ctx context.Context) (any, error) {
	v, err := p.GetValue(ctx)
	if err != nil {
		return nil, err
	}
	return v.Value, nil
}

// GetValue reads the current value with its timestamp and severity.
func (p *PV) GetValue(ctx context.Context) (*wire.ValuePayload, error) {
	resp, err := p.roundTrip(ctx, wire.OpGet, nil)
	if err != nil {
		return nil, err
	}
	var v wire.ValuePayload
	if err := resp.DecodePayload(&v); err != nil {
		return nil, err
	}
	return &v, nil
}

// Info reads the PV description from the server.
func (p *PV) Info(ctx context.Context) (*wire.InfoPayload, error) {
	resp, err := p.roundTrip(ctx, wire.OpInfo, nil)
	if err != nil {
		return nil, err
	}
	var info wire.InfoPayload
	if err := resp.DecodePayload(&info); err != nil {
		return nil, err
	}
	return &info, nil
}

// Put writes value without waiting for the server. It fails only when the
// PV is not connected or the frame cannot be sent.
func (p *PV) Put(value any) error {
	ci := p.currentCircuit()
	if ci == nil {
		return ErrNotConnected
	}
	_, err := ci.request(context.Background(), wire.OpPut, p.name, &wire.PutPayload{Value: value}, false, nil)
	return err
}

// PutWait writes value and waits for the server to store it. It is
// refused with ErrBlockingInCallback while callbacks are being delivered.
func (p *PV) PutWait(ctx context.Context, value any) error {
	if p.owner.InCallback() {
		return ErrBlockingInCallback
	}
	_, err := p.roundTrip(ctx, wire.OpPut, &wire.PutPayload{Value: value, Wait: true})
	return err
}

func (p *PV) roundTrip(ctx context.Context, op wire.Operation, payload any) (*wire.Response, error) {
	ci := p.currentCircuit()
	if ci == nil {
		return nil, ErrNotConnected
	}
	if _, ok := ctx.Deadline(); !ok {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, p.owner.config.RequestTimeout)
		defer cancel()
	}
	resp, err := ci.request(ctx, op, p.name, payload, true, nil)
	if err != nil {
		return nil, err
	}
	if err := statusError(p.name, op, resp); err != nil {
		return nil, err
	}
	return resp, nil
}

func (p *PV) currentCircuit() *circuit {
	p.mu.Lock()
	defer p.mu.Unlock()
	if !p.connected {
		return nil
	}
	return p.circuit
}

func (p *PV) setCircuit(ci *circuit) {
	p.mu.Lock()
	p.circuit = ci
	p.mu.Unlock()
}

// circuitUp marks the PV connected, notifies and subscribes.
func (p *PV) circuitUp(ci *circuit) {
	p.mu.Lock()
	if p.circuit != ci || p.connected || !ci.isUp() {
		p.mu.Unlock()
		return
	}
	p.connected = true
	close(p.connectedCh)
	wantMonitor := len(p.monitors) > 0
	p.mu.Unlock()

	p.notifyConnection(true)
	if wantMonitor {
		p.subscribe(ci)
	}
}

// circuitDown marks the PV disconnected and delivers an absent value to
// monitors.
func (p *PV) circuitDown(ci *circuit) {
	p.mu.Lock()
	if p.circuit != ci || !p.connected {
		p.mu.Unlock()
		return
	}
	p.connected = false
	p.connectedCh = make(chan struct{})
	p.subID = 0
	p.value = nil
	hasMonitors := len(p.monitors) > 0
	p.mu.Unlock()

	p.notifyConnection(false)
	if hasMonitors {
		p.deliver(Update{Name: p.name, Timestamp: time.Now()})
	}
}

func (p *PV) subscribe(ci *circuit) {
	ctx, cancel := context.WithTimeout(p.owner.ctx, p.owner.config.RequestTimeout)
	defer cancel()

	resp, err := ci.request(ctx, wire.OpMonitor, p.name, nil, true, func(resp *wire.Response) {
		if !resp.IsSuccess() {
			return
		}
		var m wire.MonitorResponsePayload
		if err := resp.DecodePayload(&m); err != nil {
			return
		}
		p.mu.Lock()
		p.subID = m.SubscriptionID
		p.mu.Unlock()
		ci.addSubscription(m.SubscriptionID, p)
		p.deliver(Update{
			Name:      p.name,
			Value:     m.Current.Value,
			Timestamp: m.Current.Timestamp,
			Severity:  m.Current.Severity,
		})
	})
	if err != nil {
		p.owner.logger.Debug("monitor failed", "pv", p.name, "error", err)
		return
	}
	if err := statusError(p.name, wire.OpMonitor, resp); err != nil {
		p.owner.logger.Warn("monitor rejected", "pv", p.name, "error", err)
	}
}

// deliver stores u and queues it for every monitor callback.
func (p *PV) deliver(u Update) {
	p.mu.Lock()
	p.value = u.Value
	p.timestamp = u.Timestamp
	p.severity = u.Severity
	monitors := append([]MonitorFunc(nil), p.monitors...)
	p.mu.Unlock()

	if len(monitors) == 0 {
		return
	}
	p.owner.enqueue(func() {
		for _, fn := range monitors {
			fn(u)
		}
	})
}

func (p *PV) notifyConnection(connected bool) {
	p.mu.Lock()
	funcs := append([]ConnectionFunc(nil), p.connFuncs...)
	p.mu.Unlock()

	if len(funcs) == 0 {
		return
	}
	p.owner.enqueue(func() {
		for _, fn := range funcs {
			fn(p.name, connected)
		}
	})
}
