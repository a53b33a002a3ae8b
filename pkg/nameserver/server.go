package nameserver

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"sync"
	"time"

	"github.com/slaclab/acclive/pkg/log"
	"github.com/slaclab/acclive/pkg/transport"
	"github.com/slaclab/acclive/pkg/wire"
)

// DefaultPort is the default name server port.
const DefaultPort = 5053

// Config configures a name server.
type Config struct {
	// Address to listen on (default ":5053").
	Address string

	// PVListPath is an optional static pvlist file, watched for changes.
	PVListPath string

	// ExpireInterval is how often expired registrations are purged
	// (default 10s).
	ExpireInterval time.Duration

	// Logger for operational logging (default slog.Default()).
	Logger *slog.Logger

	// ProtocolLogger captures frames and messages (optional).
	ProtocolLogger log.Logger
}

// Server answers Search and Register requests from a Directory.
type Server struct {
	config    Config
	directory *Directory
	transport *transport.Server
	logger    *slog.Logger

	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewServer creates a name server. The directory may be shared with the
// caller; nil creates a new one.
func NewServer(config Config, directory *Directory) *Server {
	if config.Address == "" {
		config.Address = fmt.Sprintf(":%d", DefaultPort)
	}
	if config.ExpireInterval == 0 {
		config.ExpireInterval = 10 * time.Second
	}
	if config.Logger == nil {
		config.Logger = slog.Default()
	}
	if directory == nil {
		directory = NewDirectory()
	}

	s := &Server{
		config:    config,
		directory: directory,
		logger:    config.Logger,
	}
	s.transport = transport.NewServer(transport.ServerConfig{
		Address:   config.Address,
		Logger:    config.ProtocolLogger,
		Role:      log.RoleNameServer,
		OnMessage: s.handleMessage,
		OnError: func(conn *transport.ServerConn, err error) {
			s.logger.Debug("connection error", "error", err)
		},
	})
	return s
}

// Directory returns the server's directory.
func (s *Server) Directory() *Directory { return s.directory }

// Start loads the pvlist, starts the file watcher and the listener.
func (s *Server) Start(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	s.cancel = cancel

	if s.config.PVListPath != "" {
		rules, err := LoadPVList(s.config.PVListPath)
		if err != nil {
			cancel()
			return fmt.Errorf("failed to load pvlist: %w", err)
		}
		s.directory.SetStatic(rules)
		s.logger.Info("pvlist loaded", "path", s.config.PVListPath, "rules", len(rules))

		if err := WatchPVList(ctx, s.config.PVListPath, s.logger, s.directory.SetStatic); err != nil {
			s.logger.Warn("pvlist hot reload disabled", "error", err)
		}
	}

	if err := s.transport.Start(ctx); err != nil {
		cancel()
		return err
	}

	s.wg.Add(1)
	go s.expireLoop(ctx)

	s.logger.Info("name server listening", "address", s.transport.Addr().String())
	return nil
}

// Stop stops the server.
func (s *Server) Stop() error {
	if s.cancel != nil {
		s.cancel()
	}
	err := s.transport.Stop()
	s.wg.Wait()
	return err
}

// Addr returns the listen address.
func (s *Server) Addr() net.Addr { return s.transport.Addr() }

func (s *Server) expireLoop(ctx context.Context) {
	defer s.wg.Done()

	ticker := time.NewTicker(s.config.ExpireInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if n := s.directory.Expire(); n > 0 {
				s.logger.Debug("registrations expired", "count", n)
			}
		}
	}
}

func (s *Server) handleMessage(conn *transport.ServerConn, data []byte) {
	req, err := wire.DecodeRequest(data)
	if err != nil {
		s.logger.Debug("undecodable request", "remote", conn.RemoteAddr().String(), "error", err)
		return
	}

	resp := s.HandleRequest(req, conn.RemoteAddr())
	out, err := wire.EncodeResponse(resp)
	if err != nil {
		s.logger.Warn("failed to encode response", "error", err)
		return
	}
	if err := conn.Send(out); err != nil {
		s.logger.Debug("failed to send response", "error", err)
	}
}

// HandleRequest answers one request. remote is used to fill in the host
// of registrations that only carry a port.
func (s *Server) HandleRequest(req *wire.Request, remote net.Addr) *wire.Response {
	if err := req.Validate(); err != nil {
		return wire.ErrorResponse(req.MessageID, wire.StatusInvalidRequest, err.Error())
	}

	switch req.Operation {
	case wire.OpSearch:
		addr, err := s.directory.Lookup(req.Name)
		if err != nil {
			return wire.ErrorResponse(req.MessageID, wire.StatusNotFound, req.Name)
		}
		return s.response(req.MessageID, &wire.SearchResponsePayload{Address: addr})

	case wire.OpRegister:
		var p wire.RegisterPayload
		if err := req.DecodePayload(&p); err != nil {
			return wire.ErrorResponse(req.MessageID, wire.StatusInvalidRequest, err.Error())
		}
		addr, err := registrationAddress(p.Address, remote)
		if err != nil {
			return wire.ErrorResponse(req.MessageID, wire.StatusInvalidRequest, err.Error())
		}
		ttl := time.Duration(p.TTLSeconds) * time.Second
		n := s.directory.Register(addr, p.Names, ttl)
		s.logger.Debug("registered", "address", addr, "names", n, "ttl", ttl)
		return s.response(req.MessageID, &wire.RegisterResponsePayload{Accepted: n})

	default:
		return wire.ErrorResponse(req.MessageID, wire.StatusUnsupported, req.Operation.String())
	}
}

func (s *Server) response(id uint32, payload any) *wire.Response {
	resp, err := wire.NewResponse(id, wire.StatusSuccess, payload)
	if err != nil {
		return wire.ErrorResponse(id, wire.StatusInvalidRequest, err.Error())
	}
	return resp
}

// registrationAddress substitutes the remote IP when the registered host
// is empty or unspecified.
func registrationAddress(addr string, remote net.Addr) (string, error) {
	host, port, err := net.SplitHostPort(addr)
	if err != nil {
		return "", fmt.Errorf("invalid address %q: %w", addr, err)
	}
	if host != "" {
		if ip := net.ParseIP(host); ip == nil || !ip.IsUnspecified() {
			return addr, nil
		}
	}
	if remote == nil {
		return "", fmt.Errorf("address %q has no host", addr)
	}
	remoteHost, _, err := net.SplitHostPort(remote.String())
	if err != nil {
		return "", err
	}
	return net.JoinHostPort(remoteHost, port), nil
}
