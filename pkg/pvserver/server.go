package pvserver

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"strconv"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/slaclab/acclive/pkg/discovery"
	"github.com/slaclab/acclive/pkg/log"
	"github.com/slaclab/acclive/pkg/nameserver"
	"github.com/slaclab/acclive/pkg/pvdb"
	"github.com/slaclab/acclive/pkg/transport"
	"github.com/slaclab/acclive/pkg/wire"
)

// DefaultQueueSize is the number of pending notifications kept per
// connection before the oldest is dropped.
const DefaultQueueSize = 256

// PutHook is called after a client write has been stored.
type PutHook func(name string, value any)

// Config configures a PV server.
type Config struct {
	// Address to listen on (default ":5064").
	Address string

	// Name identifies the server in mDNS and logs (default "pvserver").
	Name string

	// Prefix is the advertised common PV prefix.
	Prefix string

	// NameServers receive registrations of every record name.
	NameServers []string

	// RegisterAddress is the address registered with name servers.
	// Defaults to the listen address; an unspecified host is filled in
	// by the name server.
	RegisterAddress string

	// RegistrationTTL is the TTL of name server registrations (default 60s).
	RegistrationTTL time.Duration

	// Advertiser publishes the server over mDNS. Nil disables mDNS.
	Advertiser discovery.Advertiser

	// QueueSize bounds pending notifications per connection.
	QueueSize int

	// Logger for operational logging (default slog.Default()).
	Logger *slog.Logger

	// ProtocolLogger captures frames and messages (optional).
	ProtocolLogger log.Logger

	// Registerer receives the server's metrics (optional).
	Registerer prometheus.Registerer
}

// Server serves a database.
type Server struct {
	config    Config
	db        *pvdb.Database
	transport *transport.Server
	logger    *slog.Logger
	protocol  log.Logger
	metrics   *metrics

	mu       sync.RWMutex
	sessions map[*transport.ServerConn]*session
	hooks    map[string][]PutHook
	anyHooks []PutHook

	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// New creates a server for db.
func New(db *pvdb.Database, config Config) *Server {
	if config.Address == "" {
		config.Address = fmt.Sprintf(":%d", transport.DefaultPort)
	}
	if config.Name == "" {
		config.Name = "pvserver"
	}
	if config.QueueSize <= 0 {
		config.QueueSize = DefaultQueueSize
	}
	if config.Logger == nil {
		config.Logger = slog.Default()
	}

	s := &Server{
		config:   config,
		db:       db,
		logger:   config.Logger.With("server", config.Name),
		protocol: log.OrNoop(config.ProtocolLogger),
		metrics:  newMetrics(config.Registerer),
		sessions: make(map[*transport.ServerConn]*session),
		hooks:    make(map[string][]PutHook),
	}
	s.transport = transport.NewServer(transport.ServerConfig{
		Address:      config.Address,
		Logger:       config.ProtocolLogger,
		Role:         log.RoleServer,
		OnConnect:    s.handleConnect,
		OnDisconnect: s.handleDisconnect,
		OnMessage:    s.handleMessage,
		OnError: func(conn *transport.ServerConn, err error) {
			s.logger.Debug("connection error", "error", err)
		},
	})
	return s
}

// Database returns the served database.
func (s *Server) Database() *pvdb.Database { return s.db }

// OnPut registers a hook for client writes to name.
func (s *Server) OnPut(name string, hook PutHook) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.hooks[name] = append(s.hooks[name], hook)
}

// OnPutAny registers a hook for client writes to any record.
func (s *Server) OnPutAny(hook PutHook) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.anyHooks = append(s.anyHooks, hook)
}

// Start listens, then registers with name servers and advertises.
func (s *Server) Start(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	s.cancel = cancel

	if err := s.transport.Start(ctx); err != nil {
		cancel()
		return err
	}
	addr := s.transport.Addr().String()
	s.logger.Info("PV server listening", "address", addr, "records", s.db.Len())

	if len(s.config.NameServers) > 0 {
		regAddr := s.config.RegisterAddress
		if regAddr == "" {
			regAddr = addr
		}
		r := &nameserver.Registrar{
			Client:  nameserver.NewClient(transport.ClientConfig{Logger: s.config.ProtocolLogger}, 0),
			Servers: s.config.NameServers,
			Address: regAddr,
			TTL:     s.config.RegistrationTTL,
			Logger:  s.logger,
			Names:   s.db.Names,
		}
		s.wg.Add(1)
		go func() {
			defer s.wg.Done()
			r.Run(ctx)
		}()
	}

	if s.config.Advertiser != nil {
		if err := s.config.Advertiser.Advertise(ctx, s.serverInfo()); err != nil {
			s.logger.Warn("mDNS advertisement failed", "error", err)
		}
	}
	return nil
}

// Stop stops advertising, closes all connections and waits for
// background work.
func (s *Server) Stop() error {
	if s.config.Advertiser != nil {
		_ = s.config.Advertiser.Stop(s.config.Name)
	}
	if s.cancel != nil {
		s.cancel()
	}
	err := s.transport.Stop()
	s.wg.Wait()
	return err
}

// Addr returns the listen address.
func (s *Server) Addr() net.Addr { return s.transport.Addr() }

// ConnectionCount returns the number of open client connections.
func (s *Server) ConnectionCount() int { return s.transport.ConnectionCount() }

func (s *Server) serverInfo() *discovery.ServerInfo {
	port := 0
	if tcp, ok := s.transport.Addr().(*net.TCPAddr); ok {
		port = tcp.Port
	} else if _, p, err := net.SplitHostPort(s.transport.Addr().String()); err == nil {
		port, _ = strconv.Atoi(p)
	}
	return &discovery.ServerInfo{
		Name:    s.config.Name,
		Port:    uint16(port),
		Prefix:  s.config.Prefix,
		PVCount: s.db.Len(),
	}
}

func (s *Server) handleConnect(conn *transport.ServerConn) {
	sess := newSession(conn, s.config.QueueSize)

	s.mu.Lock()
	s.sessions[conn] = sess
	s.mu.Unlock()
	s.metrics.connections.Inc()

	go sess.sendLoop(func(err error) {
		s.logger.Debug("send failed, closing connection", "conn_id", conn.ConnID(), "error", err)
		conn.Close()
	})
}

func (s *Server) handleDisconnect(conn *transport.ServerConn) {
	s.mu.Lock()
	sess, ok := s.sessions[conn]
	delete(s.sessions, conn)
	s.mu.Unlock()
	if !ok {
		return
	}
	s.metrics.connections.Dec()
	s.metrics.monitors.Sub(float64(sess.close()))
}

func (s *Server) session(conn *transport.ServerConn) *session {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.sessions[conn]
}

func (s *Server) handleMessage(conn *transport.ServerConn, data []byte) {
	sess := s.session(conn)
	if sess == nil {
		return
	}

	req, err := wire.DecodeRequest(data)
	if err != nil {
		s.logger.Debug("undecodable request", "conn_id", conn.ConnID(), "error", err)
		return
	}

	resp := s.handleRequest(sess, req)
	status := wire.StatusSuccess
	if resp != nil {
		status = resp.Status
		s.enqueueResponse(sess, resp)
	}
	s.metrics.requests.WithLabelValues(req.Operation.String(), status.String()).Inc()
}

// handleRequest processes one request for a session. A nil response means
// nothing is sent back.
func (s *Server) handleRequest(sess *session, req *wire.Request) *wire.Response {
	if err := req.Validate(); err != nil {
		return wire.ErrorResponse(req.MessageID, wire.StatusInvalidRequest, err.Error())
	}

	switch req.Operation {
	case wire.OpGet:
		return s.handleGet(req)
	case wire.OpPut:
		return s.handlePut(req)
	case wire.OpMonitor:
		if req.Name == "" {
			return s.handleCancel(sess, req)
		}
		return s.handleMonitor(sess, req)
	case wire.OpInfo:
		return s.handleInfo(req)
	case wire.OpSearch:
		if !s.db.Has(req.Name) {
			return wire.ErrorResponse(req.MessageID, wire.StatusNotFound, req.Name)
		}
		return s.response(req.MessageID, &wire.SearchResponsePayload{Hosted: true})
	default:
		return wire.ErrorResponse(req.MessageID, wire.StatusUnsupported, req.Operation.String())
	}
}

func (s *Server) handleGet(req *wire.Request) *wire.Response {
	rec, ok := s.db.Lookup(req.Name)
	if !ok {
		return wire.ErrorResponse(req.MessageID, wire.StatusNotFound, req.Name)
	}
	return s.response(req.MessageID, &wire.ValuePayload{
		Value:     rec.Value,
		Timestamp: rec.Timestamp,
		Severity:  rec.Severity,
	})
}

func (s *Server) handlePut(req *wire.Request) *wire.Response {
	var p wire.PutPayload
	if err := req.DecodePayload(&p); err != nil {
		return wire.ErrorResponse(req.MessageID, wire.StatusInvalidRequest, err.Error())
	}

	stored, err := s.db.Put(req.Name, p.Value)
	if err != nil {
		s.metrics.puts.WithLabelValues("rejected").Inc()
		s.logger.Debug("put rejected", "pv", req.Name, "error", err)
		if !p.Wait {
			return nil
		}
		return wire.ErrorResponse(req.MessageID, pvdb.StatusFor(err), err.Error())
	}
	s.metrics.puts.WithLabelValues("stored").Inc()
	s.runHooks(req.Name, stored)

	if !p.Wait {
		return nil
	}
	rec, _ := s.db.Lookup(req.Name)
	return s.response(req.MessageID, &wire.ValuePayload{
		Value:     stored,
		Timestamp: rec.Timestamp,
		Severity:  rec.Severity,
	})
}

func (s *Server) runHooks(name string, value any) {
	s.mu.RLock()
	hooks := append([]PutHook(nil), s.hooks[name]...)
	hooks = append(hooks, s.anyHooks...)
	s.mu.RUnlock()

	for _, h := range hooks {
		h(name, value)
	}
}

func (s *Server) handleMonitor(sess *session, req *wire.Request) *wire.Response {
	if !s.db.Has(req.Name) {
		return wire.ErrorResponse(req.MessageID, wire.StatusNotFound, req.Name)
	}

	sub := sess.addSubscription(req.Name)
	cancel, err := s.db.Subscribe(req.Name, func(c pvdb.Change) {
		sub.mu.Lock()
		defer sub.mu.Unlock()
		if !sub.primed {
			sub.pending = &c
			return
		}
		s.enqueueNotification(sess, notification(sub.id, c))
	})
	if err != nil {
		sess.removeSubscription(sub.id)
		return wire.ErrorResponse(req.MessageID, pvdb.StatusFor(err), err.Error())
	}
	sub.cancel = cancel
	s.metrics.monitors.Inc()

	rec, _ := s.db.Lookup(req.Name)
	resp, err := wire.NewResponse(req.MessageID, wire.StatusSuccess, &wire.MonitorResponsePayload{
		SubscriptionID: sub.id,
		Current: wire.ValuePayload{
			Value:     rec.Value,
			Timestamp: rec.Timestamp,
			Severity:  rec.Severity,
		},
	})
	if err != nil {
		return wire.ErrorResponse(req.MessageID, wire.StatusInvalidRequest, err.Error())
	}

	// The priming response must precede any notification for this
	// subscription, so it is queued here with the subscription locked.
	sub.mu.Lock()
	s.enqueueResponse(sess, resp)
	sub.primed = true
	if p := sub.pending; p != nil && p.Timestamp.After(rec.Timestamp) {
		s.enqueueNotification(sess, notification(sub.id, *p))
	}
	sub.pending = nil
	sub.mu.Unlock()
	return nil
}

func (s *Server) handleCancel(sess *session, req *wire.Request) *wire.Response {
	var p wire.CancelPayload
	if err := req.DecodePayload(&p); err != nil {
		return wire.ErrorResponse(req.MessageID, wire.StatusInvalidRequest, err.Error())
	}
	sub := sess.removeSubscription(p.SubscriptionID)
	if sub == nil {
		return wire.ErrorResponse(req.MessageID, wire.StatusNotFound, "unknown subscription")
	}
	if sub.cancel != nil {
		sub.cancel()
		s.metrics.monitors.Dec()
	}
	return s.response(req.MessageID, nil)
}

func (s *Server) handleInfo(req *wire.Request) *wire.Response {
	rec, ok := s.db.Lookup(req.Name)
	if !ok {
		return wire.ErrorResponse(req.MessageID, wire.StatusNotFound, req.Name)
	}
	info := rec.Info()
	return s.response(req.MessageID, &info)
}

func (s *Server) response(id uint32, payload any) *wire.Response {
	resp, err := wire.NewResponse(id, wire.StatusSuccess, payload)
	if err != nil {
		return wire.ErrorResponse(id, wire.StatusInvalidRequest, err.Error())
	}
	return resp
}

func (s *Server) enqueueResponse(sess *session, resp *wire.Response) {
	data, err := wire.EncodeResponse(resp)
	if err != nil {
		s.logger.Warn("failed to encode response", "error", err)
		return
	}
	sess.queue.push(data, false)
}

func (s *Server) enqueueNotification(sess *session, notif *wire.Notification) {
	data, err := wire.EncodeNotification(notif)
	if err != nil {
		s.logger.Warn("failed to encode notification", "pv", notif.Name, "error", err)
		return
	}
	if n := sess.queue.push(data, true); n > 0 {
		s.metrics.dropped.Add(float64(n))
		s.logger.Debug("notifications dropped", "conn_id", sess.conn.ConnID(), "count", n)
	}
}
