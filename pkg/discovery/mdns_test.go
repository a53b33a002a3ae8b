package discovery

import (
	"context"
	"net"
	"testing"
	"time"

	"github.com/enbility/zeroconf/v3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newEntry(instance string, port int, txt []string, ips ...string) *zeroconf.ServiceEntry {
	e := &zeroconf.ServiceEntry{ServiceRecord: zeroconf.ServiceRecord{
		Instance: instance,
		Service:  ServiceTypePVServer,
		Domain:   Domain,
	}}
	e.HostName = instance + ".local."
	e.Port = port
	e.Text = txt
	for _, ip := range ips {
		parsed := net.ParseIP(ip)
		if parsed.To4() != nil {
			e.AddrIPv4 = append(e.AddrIPv4, parsed)
		} else {
			e.AddrIPv6 = append(e.AddrIPv6, parsed)
		}
	}
	return e
}

func recvService(t *testing.T, ch <-chan *ServerService) *ServerService {
	t.Helper()
	select {
	case svc := <-ch:
		return svc
	case <-time.After(time.Second):
		t.Fatal("timeout waiting for service")
		return nil
	}
}

func TestEntryToServer(t *testing.T) {
	entry := newEntry("bmad", 5070, []string{"sv=bmad", "px=BMAD:", "pc=3"}, "10.0.0.5", "fe80::1")

	svc := entryToServer(entry)
	require.NotNil(t, svc)
	assert.Equal(t, "bmad", svc.InstanceName)
	assert.Equal(t, uint16(5070), svc.Port)
	assert.Equal(t, "BMAD:", svc.Prefix)
	assert.Equal(t, 3, svc.PVCount)
	assert.Equal(t, []string{"10.0.0.5", "fe80::1"}, svc.Addresses)
	assert.Equal(t, "10.0.0.5:5070", svc.Address())
}

func TestEntryToServerIgnoresMalformedTXT(t *testing.T) {
	assert.Nil(t, entryToServer(newEntry("x", 1, []string{"px=A:"})))
	assert.Nil(t, entryToServer(newEntry("x", 1, []string{"sv=x", "pv=9.0"})))
}

func TestAggregateServersMergesByInstance(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	entries := make(chan *zeroconf.ServiceEntry)
	removed := make(chan *zeroconf.ServiceEntry)
	out := make(chan *ServerService)
	go aggregateServers(ctx, entries, removed, out)

	txt := []string{"sv=a", "px=A:"}
	go func() { entries <- newEntry("a", 5064, txt, "10.0.0.1") }()
	first := recvService(t, out)
	assert.Equal(t, "a", first.InstanceName)

	// Same instance on another interface: merged, not re-emitted.
	entries <- newEntry("a", 5064, txt, "10.0.1.1")
	go func() { entries <- newEntry("b", 5064, []string{"sv=b"}, "10.0.0.2") }()
	second := recvService(t, out)
	assert.Equal(t, "b", second.InstanceName)

	// Both sends above completed, so the merge for "a" has happened.
	close(entries)
	for range out {
	}
	assert.Equal(t, []string{"10.0.0.1", "10.0.1.1"}, first.Addresses)
}

func TestAggregateServersRemoval(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	entries := make(chan *zeroconf.ServiceEntry)
	removed := make(chan *zeroconf.ServiceEntry)
	out := make(chan *ServerService)
	go aggregateServers(ctx, entries, removed, out)

	txt := []string{"sv=a"}
	go func() { entries <- newEntry("a", 5064, txt, "10.0.0.1") }()
	recvService(t, out)

	removed <- newEntry("a", 5064, txt, "10.0.0.1")

	// Gone from the table, so the next entry is emitted again.
	go func() { entries <- newEntry("a", 5064, txt, "10.0.0.9") }()
	again := recvService(t, out)
	assert.Equal(t, []string{"10.0.0.9"}, again.Addresses)
}

func TestAggregateServersStopsOnCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	out := make(chan *ServerService)
	go aggregateServers(ctx, make(chan *zeroconf.ServiceEntry), make(chan *zeroconf.ServiceEntry), out)

	cancel()
	select {
	case _, ok := <-out:
		assert.False(t, ok)
	case <-time.After(time.Second):
		t.Fatal("output channel not closed after cancel")
	}
}

func TestMergeAddresses(t *testing.T) {
	got := mergeAddresses([]string{"a", "b"}, []string{"b", "c", "c"})
	assert.Equal(t, []string{"a", "b", "c"}, got)
}

func TestMDNSBrowserStop(t *testing.T) {
	b, err := NewMDNSBrowser(DefaultBrowserConfig())
	require.NoError(t, err)
	b.Stop()

	_, err = b.BrowseServers(context.Background())
	assert.ErrorIs(t, err, ErrStopped)
}

func TestMDNSAdvertiserUnknownServer(t *testing.T) {
	a, err := NewMDNSAdvertiser(DefaultAdvertiserConfig())
	require.NoError(t, err)

	assert.ErrorIs(t, a.Stop("nope"), ErrNotFound)
	assert.ErrorIs(t, a.Update(&ServerInfo{Name: "nope"}), ErrNotFound)
	assert.ErrorIs(t, a.Advertise(context.Background(), &ServerInfo{}), ErrMissingRequired)
}
