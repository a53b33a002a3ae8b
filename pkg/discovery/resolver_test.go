package discovery

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func svc(instance, prefix, ip string, port uint16) *ServerService {
	return &ServerService{InstanceName: instance, Prefix: prefix, Port: port, Addresses: []string{ip}}
}

func TestResolverLongestPrefix(t *testing.T) {
	r := NewResolver()
	r.Add(svc("any", "", "10.0.0.1", 5064))
	r.Add(svc("bmad", "BMAD:", "10.0.0.2", 5064))
	r.Add(svc("bmad-out", "BMAD:OUT:", "10.0.0.3", 5064))

	tests := []struct {
		pv   string
		want string
	}{
		{"BMAD:OUT:ele.a.beta", "10.0.0.3:5064"},
		{"BMAD:QUAD:IN20:361:BACT", "10.0.0.2:5064"},
		{"KLYS:LI21:11:ENLD", "10.0.0.1:5064"},
	}
	for _, tt := range tests {
		t.Run(tt.pv, func(t *testing.T) {
			addr, err := r.Resolve(tt.pv)
			require.NoError(t, err)
			assert.Equal(t, tt.want, addr)
		})
	}
}

func TestResolverNoMatch(t *testing.T) {
	r := NewResolver()
	r.Add(svc("bmad", "BMAD:", "10.0.0.2", 5064))

	_, err := r.Resolve("test:X")
	assert.ErrorIs(t, err, ErrNoServer)

	r.Remove("bmad")
	assert.Empty(t, r.Servers())
}

func TestResolverTieBreaksByInstance(t *testing.T) {
	r := NewResolver()
	r.Add(svc("b", "P:", "10.0.0.2", 1))
	r.Add(svc("a", "P:", "10.0.0.1", 1))

	addr, err := r.Resolve("P:x")
	require.NoError(t, err)
	assert.Equal(t, "10.0.0.1:1", addr)
}

func TestResolverResolveWait(t *testing.T) {
	r := NewResolver()

	go func() {
		time.Sleep(20 * time.Millisecond)
		r.Add(svc("late", "L:", "127.0.0.1", 6000))
	}()

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	addr, err := r.ResolveWait(ctx, "L:1")
	require.NoError(t, err)
	assert.Equal(t, "127.0.0.1:6000", addr)
}

func TestResolverResolveWaitTimeout(t *testing.T) {
	r := NewResolver()
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	_, err := r.ResolveWait(ctx, "nothing")
	assert.ErrorIs(t, err, ErrNoServer)
}

type fakeBrowser struct {
	ch chan *ServerService
}

func (f *fakeBrowser) BrowseServers(ctx context.Context) (<-chan *ServerService, error) {
	return f.ch, nil
}

func (f *fakeBrowser) Stop() {}

func TestResolverWatch(t *testing.T) {
	r := NewResolver()
	b := &fakeBrowser{ch: make(chan *ServerService, 1)}
	require.NoError(t, r.Watch(context.Background(), b))

	b.ch <- svc("w", "W:", "10.1.1.1", 5064)
	close(b.ch)

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	addr, err := r.ResolveWait(ctx, "W:pv")
	require.NoError(t, err)
	assert.Equal(t, "10.1.1.1:5064", addr)
}
