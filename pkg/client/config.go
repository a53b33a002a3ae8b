package client

import (
	"log/slog"
	"net"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/slaclab/acclive/pkg/connection"
	"github.com/slaclab/acclive/pkg/discovery"
	"github.com/slaclab/acclive/pkg/log"
	"github.com/slaclab/acclive/pkg/nameserver"
	"github.com/slaclab/acclive/pkg/transport"
)

// Environment variables read by ConfigFromEnv.
const (
	EnvNameServers    = "EPICS_CA_NAME_SERVERS"
	EnvAddrList       = "EPICS_CA_ADDR_LIST"
	EnvAutoAddrList   = "EPICS_CA_AUTO_ADDR_LIST"
	EnvNameServerPort = "CA_NAME_SERVER_PORT"
)

// Config configures a client Context.
type Config struct {
	// NameServers are searched first, in order.
	NameServers []string

	// DisableMDNS turns off mDNS discovery of PV servers.
	DisableMDNS bool

	// Browser is used for mDNS discovery; nil creates an MDNSBrowser.
	Browser discovery.Browser

	// StaticAddresses are PV servers searched directly when neither name
	// servers nor mDNS resolve a name.
	StaticAddresses []string

	// SearchTimeout bounds each resolution attempt (default 2s).
	SearchTimeout time.Duration

	// RequestTimeout bounds requests whose context has no deadline
	// (default 5s).
	RequestTimeout time.Duration

	// Backoff is used for circuit reconnects and resolution retries.
	Backoff connection.BackoffConfig

	// KeepAlive configures circuit ping/pong.
	KeepAlive        transport.KeepAliveConfig
	DisableKeepAlive bool

	// EventQueueSize bounds queued callbacks (default 8192).
	EventQueueSize int

	Logger         *slog.Logger
	ProtocolLogger log.Logger
}

// DefaultConfig returns a configuration with defaults filled in.
func DefaultConfig() Config {
	return Config{
		SearchTimeout:  2 * time.Second,
		RequestTimeout: 5 * time.Second,
		Backoff:        connection.BackoffConfig{Jitter: connection.JitterFactor},
		KeepAlive:      transport.DefaultKeepAliveConfig(),
		EventQueueSize: 8192,
	}
}

// ConfigFromEnv returns DefaultConfig with the network settings taken
// from the environment.
func ConfigFromEnv() Config {
	return configFromLookup(os.Getenv)
}

func configFromLookup(getenv func(string) string) Config {
	cfg := DefaultConfig()

	cfg.NameServers = splitAddresses(getenv(EnvNameServers), nameserver.DefaultPort)
	if len(cfg.NameServers) == 0 {
		if port := strings.TrimSpace(getenv(EnvNameServerPort)); port != "" {
			cfg.NameServers = []string{net.JoinHostPort("localhost", port)}
		}
	}
	cfg.StaticAddresses = splitAddresses(getenv(EnvAddrList), transport.DefaultPort)
	if strings.EqualFold(strings.TrimSpace(getenv(EnvAutoAddrList)), "NO") {
		cfg.DisableMDNS = true
	}
	return cfg
}

// splitAddresses parses a space or comma separated host[:port] list.
func splitAddresses(s string, defaultPort int) []string {
	fields := strings.FieldsFunc(s, func(r rune) bool { return r == ' ' || r == ',' || r == '\t' })
	out := make([]string, 0, len(fields))
	for _, f := range fields {
		if _, _, err := net.SplitHostPort(f); err != nil {
			f = net.JoinHostPort(f, strconv.Itoa(defaultPort))
		}
		out = append(out, f)
	}
	return out
}

func (c Config) withDefaults() Config {
	d := DefaultConfig()
	if c.SearchTimeout <= 0 {
		c.SearchTimeout = d.SearchTimeout
	}
	if c.RequestTimeout <= 0 {
		c.RequestTimeout = d.RequestTimeout
	}
	if c.EventQueueSize <= 0 {
		c.EventQueueSize = d.EventQueueSize
	}
	if c.KeepAlive == (transport.KeepAliveConfig{}) {
		c.KeepAlive = d.KeepAlive
	}
	if c.Logger == nil {
		c.Logger = slog.Default()
	}
	return c
}
