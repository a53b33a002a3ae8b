package nameserver

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/slaclab/acclive/pkg/transport"
	"github.com/slaclab/acclive/pkg/wire"
)

// ErrRejected is returned when a name server answers with an error status.
var ErrRejected = errors.New("request rejected")

// DefaultTimeout bounds one exchange with a name server.
const DefaultTimeout = 2 * time.Second

// Client performs one-shot Search and Register exchanges.
type Client struct {
	transport *transport.Client
	timeout   time.Duration
	nextID    atomic.Uint32
}

// NewClient creates a name server client. A zero timeout means
// DefaultTimeout.
func NewClient(config transport.ClientConfig, timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	if config.ConnectTimeout == 0 || config.ConnectTimeout > timeout {
		config.ConnectTimeout = timeout
	}
	return &Client{transport: transport.NewClient(config), timeout: timeout}
}

// Search asks one name server for the address hosting name. A PV server
// may be searched directly; when it hosts the name its own address is
// returned.
func (c *Client) Search(ctx context.Context, server, name string) (string, error) {
	resp, err := c.roundTrip(ctx, server, wire.OpSearch, name, nil)
	if err != nil {
		return "", err
	}
	if resp.Status == wire.StatusNotFound {
		return "", fmt.Errorf("%w: %s", ErrNotFound, name)
	}
	if !resp.IsSuccess() {
		return "", fmt.Errorf("%w: %s: %s", ErrRejected, resp.Status, resp.ErrorMessage())
	}
	var p wire.SearchResponsePayload
	if err := resp.DecodePayload(&p); err != nil {
		return "", err
	}
	switch {
	case p.Address != "":
		return p.Address, nil
	case p.Hosted:
		return server, nil
	default:
		return "", fmt.Errorf("%w: %s", ErrNotFound, name)
	}
}

// SearchAny asks each name server in turn and returns the first answer.
func (c *Client) SearchAny(ctx context.Context, servers []string, name string) (string, error) {
	var errs []error
	for _, server := range servers {
		addr, err := c.Search(ctx, server, name)
		if err == nil {
			return addr, nil
		}
		errs = append(errs, fmt.Errorf("%s: %w", server, err))
		if ctx.Err() != nil {
			break
		}
	}
	if len(errs) == 0 {
		return "", fmt.Errorf("%w: %s (no name servers)", ErrNotFound, name)
	}
	return "", errors.Join(errs...)
}

// Register announces names as hosted at address.
func (c *Client) Register(ctx context.Context, server, address string, names []string, ttl time.Duration) (int, error) {
	payload := &wire.RegisterPayload{
		Address:    address,
		Names:      names,
		TTLSeconds: uint32(ttl / time.Second),
	}
	resp, err := c.roundTrip(ctx, server, wire.OpRegister, "", payload)
	if err != nil {
		return 0, err
	}
	if !resp.IsSuccess() {
		return 0, fmt.Errorf("%w: %s: %s", ErrRejected, resp.Status, resp.ErrorMessage())
	}
	var p wire.RegisterResponsePayload
	if err := resp.DecodePayload(&p); err != nil {
		return 0, err
	}
	return p.Accepted, nil
}

func (c *Client) roundTrip(ctx context.Context, server string, op wire.Operation, name string, payload any) (*wire.Response, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	id := c.nextID.Add(1)
	if id == wire.NotificationMessageID {
		id = c.nextID.Add(1)
	}
	req, err := wire.NewRequest(id, op, name, payload)
	if err != nil {
		return nil, err
	}
	data, err := wire.EncodeRequest(req)
	if err != nil {
		return nil, err
	}

	conn, err := c.transport.Connect(ctx, server)
	if err != nil {
		return nil, err
	}
	defer conn.Close()

	if err := conn.Send(data); err != nil {
		return nil, err
	}

	deadline, _ := ctx.Deadline()
	for {
		remaining := time.Until(deadline)
		if remaining <= 0 {
			return nil, fmt.Errorf("%s %s: %w", op, server, context.DeadlineExceeded)
		}
		frame, err := conn.Receive(remaining)
		if err != nil {
			return nil, fmt.Errorf("%s %s: %w", op, server, err)
		}
		typ, err := wire.PeekMessageType(frame)
		if err != nil || typ != wire.MessageTypeResponse {
			continue
		}
		resp, err := wire.DecodeResponse(frame)
		if err != nil {
			return nil, err
		}
		if resp.MessageID == id {
			return resp, nil
		}
	}
}

// Registrar keeps a PV server's names registered with a set of name
// servers, refreshing at a third of the TTL.
type Registrar struct {
	Client  *Client
	Servers []string
	Address string
	TTL     time.Duration
	Logger  *slog.Logger

	// Names is called before every refresh.
	Names func() []string
}

// Run registers immediately and then periodically until ctx is done.
func (r *Registrar) Run(ctx context.Context) {
	ttl := r.TTL
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	logger := r.Logger
	if logger == nil {
		logger = slog.Default()
	}

	ticker := time.NewTicker(ttl / 3)
	defer ticker.Stop()

	for {
		r.registerAll(ctx, ttl, logger)
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

func (r *Registrar) registerAll(ctx context.Context, ttl time.Duration, logger *slog.Logger) {
	names := r.Names()
	for _, server := range r.Servers {
		n, err := r.Client.Register(ctx, server, r.Address, names, ttl)
		if err != nil {
			logger.Warn("name server registration failed", "nameserver", server, "error", err)
			continue
		}
		logger.Debug("registered with name server", "nameserver", server, "names", n)
	}
}
