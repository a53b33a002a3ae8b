package client

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/slaclab/acclive/pkg/connection"
	"github.com/slaclab/acclive/pkg/transport"
	"github.com/slaclab/acclive/pkg/wire"
)

// pendingRequest waits for one response. onResponse, when set, runs on
// the circuit's read goroutine before any later message is handled.
type pendingRequest struct {
	ch         chan *wire.Response
	onResponse func(*wire.Response)
}

// circuit is the connection to one PV server shared by all PVs it hosts.
type circuit struct {
	owner  *Context
	addr   string
	logger *slog.Logger
	mgr    *connection.Manager

	mu      sync.Mutex
	conn    *transport.Connection
	up      bool
	closed  bool
	nextID  uint32
	pending map[uint32]*pendingRequest
	subs    map[uint32]*PV
	pvs     map[*PV]struct{}
}

func newCircuit(owner *Context, addr string) *circuit {
	ci := &circuit{
		owner:   owner,
		addr:    addr,
		logger:  owner.logger.With("circuit", addr),
		pending: make(map[uint32]*pendingRequest),
		subs:    make(map[uint32]*PV),
		pvs:     make(map[*PV]struct{}),
	}
	ci.mgr = connection.NewManager(connection.ManagerConfig{
		Name:    addr,
		Backoff: owner.config.Backoff,
		Logger:  owner.logger,
		OnStateChange: func(old, next connection.State) {
			if next == connection.StateConnected {
				ci.onUp()
			}
		},
		OnReconnecting: func(attempt int, delay time.Duration) {
			ci.logger.Debug("circuit reconnecting", "attempt", attempt, "delay", delay)
		},
	}, ci.connect)
	return ci
}

func (ci *circuit) start() {
	ci.owner.wg.Add(1)
	go func() {
		defer ci.owner.wg.Done()
		if err := ci.mgr.Connect(ci.owner.ctx); err != nil {
			ci.logger.Debug("circuit connect failed, will retry", "error", err)
		}
	}()
}

// connect dials a fresh transport connection. It is the Manager's
// ConnectFunc.
func (ci *circuit) connect(ctx context.Context) error {
	cfg := transport.ConnectionConfig{
		KeepAlive:        ci.owner.config.KeepAlive,
		DisableKeepAlive: ci.owner.config.DisableKeepAlive,
		Logger:           ci.owner.config.ProtocolLogger,
	}
	h := &circuitHandler{ci: ci}
	conn := transport.NewConnection(cfg, h)
	h.conn = conn
	if err := conn.Connect(ctx, ci.addr); err != nil {
		return err
	}

	ci.mu.Lock()
	if ci.closed {
		ci.mu.Unlock()
		conn.ForceClose()
		return ErrClosed
	}
	ci.conn = conn
	ci.mu.Unlock()

	if conn.State() != transport.StateConnected {
		ci.lost(conn)
		return ErrNotConnected
	}
	return nil
}

// onUp runs when the Manager reports the circuit connected.
func (ci *circuit) onUp() {
	ci.mu.Lock()
	if ci.closed || ci.conn == nil {
		ci.mu.Unlock()
		return
	}
	ci.up = true
	pvs := make([]*PV, 0, len(ci.pvs))
	for pv := range ci.pvs {
		pvs = append(pvs, pv)
	}
	ci.mu.Unlock()

	ci.logger.Debug("circuit connected", "pvs", len(pvs))
	for _, pv := range pvs {
		go pv.circuitUp(ci)
	}
}

// lost handles the loss of conn. Events from superseded connections are
// ignored.
func (ci *circuit) lost(conn *transport.Connection) {
	ci.mu.Lock()
	if ci.conn != conn {
		ci.mu.Unlock()
		return
	}
	ci.conn = nil
	wasUp := ci.up
	ci.up = false
	pending := ci.pending
	ci.pending = make(map[uint32]*pendingRequest)
	ci.subs = make(map[uint32]*PV)
	pvs := make([]*PV, 0, len(ci.pvs))
	for pv := range ci.pvs {
		pvs = append(pvs, pv)
	}
	closed := ci.closed
	ci.mu.Unlock()

	for _, p := range pending {
		close(p.ch)
	}
	if wasUp {
		for _, pv := range pvs {
			pv.circuitDown(ci)
		}
	}
	if !closed {
		ci.logger.Info("circuit lost", "pvs", len(pvs))
		ci.mgr.NotifyConnectionLost()
	}
}

// attach adds pv to the circuit and connects it if the circuit is up.
func (ci *circuit) attach(pv *PV) {
	ci.mu.Lock()
	ci.pvs[pv] = struct{}{}
	up := ci.up
	ci.mu.Unlock()

	pv.setCircuit(ci)
	if up {
		pv.circuitUp(ci)
	}
}

func (ci *circuit) isUp() bool {
	ci.mu.Lock()
	defer ci.mu.Unlock()
	return ci.up
}

// request sends a request. With wait false it returns as soon as the frame
// is written. With wait true it returns the response, or an error when ctx
// ends or the circuit goes down first.
func (ci *circuit) request(ctx context.Context, op wire.Operation, name string, payload any, wait bool, onResponse func(*wire.Response)) (*wire.Response, error) {
	ci.mu.Lock()
	conn := ci.conn
	if !ci.up || conn == nil {
		ci.mu.Unlock()
		return nil, ErrNotConnected
	}
	ci.nextID++
	if ci.nextID == wire.NotificationMessageID {
		ci.nextID++
	}
	id := ci.nextID
	var p *pendingRequest
	if wait {
		p = &pendingRequest{ch: make(chan *wire.Response, 1), onResponse: onResponse}
		ci.pending[id] = p
	}
	ci.mu.Unlock()

	req, err := wire.NewRequest(id, op, name, payload)
	if err == nil {
		var data []byte
		if data, err = wire.EncodeRequest(req); err == nil {
			err = conn.Send(data)
		}
	}
	if err != nil {
		ci.forget(id)
		return nil, fmt.Errorf("%s %s: %w", op, name, err)
	}
	if !wait {
		return nil, nil
	}

	select {
	case resp, ok := <-p.ch:
		if !ok {
			return nil, ErrNotConnected
		}
		return resp, nil
	case <-ctx.Done():
		ci.forget(id)
		return nil, ctx.Err()
	}
}

func (ci *circuit) forget(id uint32) {
	ci.mu.Lock()
	delete(ci.pending, id)
	ci.mu.Unlock()
}

func (ci *circuit) addSubscription(id uint32, pv *PV) {
	ci.mu.Lock()
	ci.subs[id] = pv
	ci.mu.Unlock()
}

func (ci *circuit) handleMessage(data []byte) {
	typ, err := wire.PeekMessageType(data)
	if err != nil {
		ci.logger.Debug("undecodable frame", "error", err)
		return
	}

	switch typ {
	case wire.MessageTypeResponse:
		resp, err := wire.DecodeResponse(data)
		if err != nil {
			ci.logger.Debug("undecodable response", "error", err)
			return
		}
		ci.mu.Lock()
		p, ok := ci.pending[resp.MessageID]
		delete(ci.pending, resp.MessageID)
		ci.mu.Unlock()
		if !ok {
			return
		}
		if p.onResponse != nil {
			p.onResponse(resp)
		}
		p.ch <- resp

	case wire.MessageTypeNotification:
		notif, err := wire.DecodeNotification(data)
		if err != nil {
			ci.logger.Debug("undecodable notification", "error", err)
			return
		}
		ci.mu.Lock()
		pv := ci.subs[notif.SubscriptionID]
		ci.mu.Unlock()
		if pv == nil {
			return
		}
		pv.deliver(Update{
			Name:      notif.Name,
			Value:     notif.Value,
			Timestamp: notif.Timestamp,
			Severity:  notif.Severity,
		})
	}
}

func (ci *circuit) close() {
	ci.mu.Lock()
	ci.closed = true
	conn := ci.conn
	ci.mu.Unlock()

	ci.mgr.Close()
	if conn != nil {
		conn.Close()
	}
}

// circuitHandler binds transport events to the connection they came from.
type circuitHandler struct {
	ci   *circuit
	conn *transport.Connection
}

func (h *circuitHandler) OnMessage(msg []byte) { h.ci.handleMessage(msg) }

func (h *circuitHandler) OnStateChange(oldState, newState transport.ConnectionState) {
	if newState == transport.StateDisconnected && oldState != transport.StateConnecting {
		h.ci.lost(h.conn)
	}
}

func (h *circuitHandler) OnError(err error) {
	h.ci.logger.Debug("circuit error", "error", err)
}
