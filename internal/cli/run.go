package cli

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/slaclab/acclive/pkg/log"
	"github.com/slaclab/acclive/pkg/transport"
)

// EnvServerPort overrides the default PV server port.
const EnvServerPort = "EPICS_CA_SERVER_PORT"

// SignalContext returns a context cancelled on SIGINT or SIGTERM.
func SignalContext(parent context.Context) (context.Context, context.CancelFunc) {
	return signal.NotifyContext(parent, os.Interrupt, syscall.SIGTERM)
}

// ListenAddress returns addr, or ":$EPICS_CA_SERVER_PORT", or the default
// PV server port.
func ListenAddress(addr string, getenv func(string) string) string {
	if addr != "" {
		return addr
	}
	if port := getenv(EnvServerPort); port != "" {
		if _, err := strconv.Atoi(port); err == nil {
			return net.JoinHostPort("", port)
		}
	}
	return net.JoinHostPort("", strconv.Itoa(transport.DefaultPort))
}

// NewRegistry returns a registry with the Go and process collectors.
func NewRegistry() *prometheus.Registry {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return reg
}

// ServeMetrics serves reg on addr at /metrics until ctx ends.
func ServeMetrics(ctx context.Context, addr string, reg *prometheus.Registry, logger *slog.Logger) error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{Registry: reg}))

	srv := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("metrics listener: %w", err)
	}
	logger.Info("serving metrics", "address", ln.Addr().String())

	errCh := make(chan error, 1)
	go func() { errCh <- srv.Serve(ln) }()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
		return nil
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	}
}

// ProtocolLogger opens a capture file when path is set and, when logger
// has debug enabled, also echoes protocol events to it. The result is nil
// when neither applies. The returned close function is never nil.
func ProtocolLogger(path string, logger *slog.Logger) (log.Logger, func() error, error) {
	var debug log.Logger
	if logger != nil && logger.Enabled(context.Background(), slog.LevelDebug) {
		debug = log.NewSlogAdapter(logger)
	}
	if path == "" {
		return debug, func() error { return nil }, nil
	}

	fl, err := log.NewFileLogger(path)
	if err != nil {
		return nil, nil, fmt.Errorf("protocol log: %w", err)
	}
	if debug == nil {
		return fl, fl.Close, nil
	}
	return log.NewMultiLogger(debug, fl), fl.Close, nil
}
