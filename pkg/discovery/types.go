package discovery

import (
	"errors"
	"fmt"
	"net"
	"strconv"
	"time"
)

// Service type constants for mDNS.
const (
	// ServiceTypePVServer is the service type advertised by PV servers.
	ServiceTypePVServer = "_pvnet._tcp"

	// Domain is the mDNS domain.
	Domain = "local"

	// DefaultPort is the default PV server port.
	DefaultPort = 5064
)

// TXT record keys.
const (
	TXTKeyPrefix  = "px" // Served PV prefix
	TXTKeyPVCount = "pc" // Number of PVs served
	TXTKeyServer  = "sv" // Server name
	TXTKeyVersion = "pv" // Protocol version
)

// Timing constants.
const (
	// BrowseTimeout is the default timeout for mDNS browsing.
	BrowseTimeout = 3 * time.Second

	// DefaultTTL is the DNS record TTL used by the advertiser.
	DefaultTTL = 120 * time.Second
)

// Limits.
const (
	// MaxInstanceNameLen is the DNS label limit.
	MaxInstanceNameLen = 63

	// MaxTXTValueLen bounds a single TXT key=value string.
	MaxTXTValueLen = 255
)

// Errors.
var (
	ErrNotFound            = errors.New("service not found")
	ErrMissingRequired     = errors.New("missing required field")
	ErrInvalidTXTRecord    = errors.New("invalid TXT record")
	ErrInstanceNameTooLong = errors.New("instance name too long")
	ErrNoServer            = errors.New("no server serves this PV")
	ErrStopped             = errors.New("browser stopped")
)

// ServerInfo is what a PV server advertises about itself.
type ServerInfo struct {
	// Name is the server name; used as the mDNS instance name.
	Name string

	// Port is the TCP port the PV server listens on.
	Port uint16

	// Prefix is the common prefix of the served PV names.
	Prefix string

	// PVCount is the number of PVs served.
	PVCount int

	// Version is the advertised protocol version. Empty means the
	// current version.
	Version string
}

// Validate checks the advertised info.
func (i *ServerInfo) Validate() error {
	if i.Name == "" {
		return fmt.Errorf("%w: %s", ErrMissingRequired, TXTKeyServer)
	}
	if err := ValidateInstanceName(i.Name); err != nil {
		return err
	}
	if len(TXTKeyPrefix)+1+len(i.Prefix) > MaxTXTValueLen {
		return ErrInvalidTXTRecord
	}
	return nil
}

// ServerService is a discovered PV server.
type ServerService struct {
	InstanceName string
	Host         string
	Port         uint16
	Addresses    []string

	Prefix  string
	PVCount int
	Server  string
}

// Address returns a dialable host:port for the service, preferring the
// first resolved IP address over the host name.
func (s *ServerService) Address() string {
	host := s.Host
	if len(s.Addresses) > 0 {
		host = s.Addresses[0]
	}
	return net.JoinHostPort(host, strconv.Itoa(int(s.Port)))
}
