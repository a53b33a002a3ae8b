package client

import (
	"context"
	"math"
	"sync"
	"testing"
	"time"

	"github.com/slaclab/acclive/pkg/connection"
	"github.com/slaclab/acclive/pkg/discovery"
	"github.com/slaclab/acclive/pkg/nameserver"
	"github.com/slaclab/acclive/pkg/pvdb"
	"github.com/slaclab/acclive/pkg/pvserver"
	"github.com/slaclab/acclive/pkg/wire"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newDB(t *testing.T) *pvdb.Database {
	t.Helper()
	db := pvdb.New()
	require.NoError(t, db.Add(pvdb.Scalar("test:Q1:BCTRL", 1.0, -10, 10)))
	require.NoError(t, db.Add(pvdb.Scalar("KLYS:ENLD", 0, math.Inf(-1), math.Inf(1))))
	return db
}

func startPVServer(t *testing.T, db *pvdb.Database, addr string) *pvserver.Server {
	t.Helper()
	s := pvserver.New(db, pvserver.Config{Address: addr})
	require.NoError(t, s.Start(context.Background()))
	t.Cleanup(func() { s.Stop() })
	return s
}

func testConfig(static ...string) Config {
	cfg := DefaultConfig()
	cfg.DisableMDNS = true
	cfg.StaticAddresses = static
	cfg.SearchTimeout = 500 * time.Millisecond
	cfg.RequestTimeout = 2 * time.Second
	cfg.Backoff = connection.BackoffConfig{Initial: 10 * time.Millisecond, Max: 50 * time.Millisecond}
	return cfg
}

func newContext(t *testing.T, cfg Config) *Context {
	t.Helper()
	c, err := New(cfg)
	require.NoError(t, err)
	t.Cleanup(func() { c.Close() })
	return c
}

func waitConnected(t *testing.T, pv *PV) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	require.NoError(t, pv.WaitConnected(ctx), "pv %s never connected", pv.Name())
}

// pollUntil polls c until cond holds.
func pollUntil(t *testing.T, c *Context, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(3 * time.Second)
	for time.Now().Before(deadline) {
		c.Poll(10 * time.Millisecond)
		if cond() {
			return
		}
	}
	t.Fatal("condition not met while polling")
}

func TestResolveStatic(t *testing.T) {
	s := startPVServer(t, newDB(t), "127.0.0.1:0")
	c := newContext(t, testConfig(s.Addr().String()))

	addr, err := c.Resolve(context.Background(), "test:Q1:BCTRL")
	require.NoError(t, err)
	assert.Equal(t, s.Addr().String(), addr)

	_, err = c.Resolve(context.Background(), "missing")
	assert.ErrorIs(t, err, ErrNotResolved)
}

func TestResolveNameServer(t *testing.T) {
	s := startPVServer(t, newDB(t), "127.0.0.1:0")
	ns := nameserver.NewServer(nameserver.Config{Address: "127.0.0.1:0"}, nil)
	require.NoError(t, ns.Start(context.Background()))
	t.Cleanup(func() { ns.Stop() })
	ns.Directory().Register(s.Addr().String(), []string{"KLYS:ENLD"}, time.Minute)

	cfg := testConfig()
	cfg.NameServers = []string{ns.Addr().String()}
	c := newContext(t, cfg)

	addr, err := c.Resolve(context.Background(), "KLYS:ENLD")
	require.NoError(t, err)
	assert.Equal(t, s.Addr().String(), addr)
}

func TestResolveNothingConfigured(t *testing.T) {
	c := newContext(t, testConfig())
	_, err := c.Resolve(context.Background(), "X")
	assert.ErrorIs(t, err, ErrNotResolved)
}

type staticBrowser struct{ services []*discovery.ServerService }

func (b *staticBrowser) BrowseServers(ctx context.Context) (<-chan *discovery.ServerService, error) {
	ch := make(chan *discovery.ServerService, len(b.services))
	for _, s := range b.services {
		ch <- s
	}
	close(ch)
	return ch, nil
}

func (b *staticBrowser) Stop() {}

func TestResolveMDNS(t *testing.T) {
	cfg := testConfig()
	cfg.DisableMDNS = false
	cfg.Browser = &staticBrowser{services: []*discovery.ServerService{
		{InstanceName: "model", Prefix: "test:", Port: 6100, Addresses: []string{"127.0.0.1"}},
	}}
	c := newContext(t, cfg)

	addr, err := c.Resolve(context.Background(), "test:Q1:BCTRL")
	require.NoError(t, err)
	assert.Equal(t, "127.0.0.1:6100", addr)
}

func TestPVGetPutInfo(t *testing.T) {
	db := newDB(t)
	s := startPVServer(t, db, "127.0.0.1:0")
	c := newContext(t, testConfig(s.Addr().String()))

	pv := c.PV("test:Q1:BCTRL")
	assert.Same(t, pv, c.PV("test:Q1:BCTRL"))
	waitConnected(t, pv)

	ctx := context.Background()
	v, err := pv.Get(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1.0, v)

	require.NoError(t, pv.PutWait(ctx, 2.5))
	rec, _ := db.Lookup("test:Q1:BCTRL")
	assert.Equal(t, 2.5, rec.Value)

	err = pv.PutWait(ctx, 50.0)
	assert.True(t, IsStatus(err, wire.StatusOutOfRange), "got %v", err)

	require.NoError(t, pv.Put(-3.0))
	require.Eventually(t, func() bool {
		rec, _ := db.Lookup("test:Q1:BCTRL")
		return rec.Value == -3.0
	}, 2*time.Second, 5*time.Millisecond)

	info, err := pv.Info(ctx)
	require.NoError(t, err)
	assert.Equal(t, "scalar", info.Kind)
}

func TestPVNotConnected(t *testing.T) {
	c := newContext(t, testConfig())
	pv := c.PV("nowhere")

	assert.False(t, pv.Connected())
	assert.ErrorIs(t, pv.Put(1.0), ErrNotConnected)
	_, err := pv.Get(context.Background())
	assert.ErrorIs(t, err, ErrNotConnected)
	assert.Nil(t, pv.Value())
}

func TestPVMonitorDeliversThroughPoll(t *testing.T) {
	db := newDB(t)
	s := startPVServer(t, db, "127.0.0.1:0")
	c := newContext(t, testConfig(s.Addr().String()))

	var mu sync.Mutex
	var updates []Update
	var connEvents []bool

	pv := c.PV("KLYS:ENLD")
	pv.OnConnectionChange(func(name string, connected bool) {
		connEvents = append(connEvents, connected)
	})
	pv.Monitor(func(u Update) {
		mu.Lock()
		updates = append(updates, u)
		mu.Unlock()
	})
	waitConnected(t, pv)

	// Nothing is delivered until the caller polls.
	time.Sleep(50 * time.Millisecond)
	mu.Lock()
	assert.Empty(t, updates)
	mu.Unlock()

	pollUntil(t, c, func() bool { return len(updates) >= 1 })
	assert.Equal(t, 0.0, updates[0].Value, "priming value")
	assert.Equal(t, []bool{true}, connEvents)

	_, err := db.Update("KLYS:ENLD", 42.0, wire.SeverityMinor)
	require.NoError(t, err)

	pollUntil(t, c, func() bool { return len(updates) >= 2 })
	assert.Equal(t, "KLYS:ENLD", updates[1].Name)
	assert.Equal(t, 42.0, updates[1].Value)
	assert.Equal(t, wire.SeverityMinor, updates[1].Severity)
	assert.Equal(t, 42.0, pv.Value())
}

func TestPutWaitRefusedInCallback(t *testing.T) {
	db := newDB(t)
	s := startPVServer(t, db, "127.0.0.1:0")
	c := newContext(t, testConfig(s.Addr().String()))

	pv := c.PV("KLYS:ENLD")
	var callbackErr error
	var putErr error
	done := false
	pv.Monitor(func(u Update) {
		callbackErr = pv.PutWait(context.Background(), 1.0)
		putErr = pv.Put(1.0)
		done = true
	})
	waitConnected(t, pv)

	pollUntil(t, c, func() bool { return done })
	assert.ErrorIs(t, callbackErr, ErrBlockingInCallback)
	assert.NoError(t, putErr, "fire-and-forget puts are allowed in callbacks")
}

func TestPendEventsStopsOnCancel(t *testing.T) {
	c := newContext(t, testConfig())
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	assert.ErrorIs(t, c.PendEvents(ctx), context.DeadlineExceeded)

	c.Close()
	assert.ErrorIs(t, c.PendEvents(context.Background()), ErrClosed)
}

func TestCircuitReconnects(t *testing.T) {
	db := newDB(t)
	s := pvserver.New(db, pvserver.Config{Address: "127.0.0.1:0"})
	require.NoError(t, s.Start(context.Background()))
	addr := s.Addr().String()

	c := newContext(t, testConfig(addr))

	var updates []Update
	var connEvents []bool
	pv := c.PV("KLYS:ENLD")
	pv.OnConnectionChange(func(_ string, connected bool) { connEvents = append(connEvents, connected) })
	pv.Monitor(func(u Update) { updates = append(updates, u) })
	waitConnected(t, pv)
	pollUntil(t, c, func() bool { return len(updates) == 1 })

	require.NoError(t, s.Stop())

	// Disconnect: an absent value and a connection event.
	pollUntil(t, c, func() bool { return len(updates) == 2 && len(connEvents) == 2 })
	assert.Nil(t, updates[1].Value)
	assert.Equal(t, []bool{true, false}, connEvents)
	assert.False(t, pv.Connected())

	// Same address again: the circuit reconnects and the monitor resumes.
	_, err := db.Update("KLYS:ENLD", 7.0, wire.SeverityNone)
	require.NoError(t, err)
	s2 := startPVServer(t, db, addr)
	_ = s2

	pollUntil(t, c, func() bool { return len(updates) >= 3 })
	assert.Equal(t, 7.0, updates[2].Value)
	assert.Equal(t, []bool{true, false, true}, connEvents)
}
