package discovery

import (
	"context"
	"sort"
	"strings"
	"sync"
)

// Resolver maps PV names onto discovered PV servers by longest-prefix
// match of the advertised px record. A server advertising an empty prefix
// matches every name but loses to any non-empty matching prefix.
type Resolver struct {
	mu      sync.RWMutex
	servers map[string]*ServerService // keyed by instance name
	changed chan struct{}
}

// NewResolver creates an empty resolver.
func NewResolver() *Resolver {
	return &Resolver{
		servers: make(map[string]*ServerService),
		changed: make(chan struct{}),
	}
}

// Add records or replaces a discovered server.
func (r *Resolver) Add(svc *ServerService) {
	if svc == nil {
		return
	}
	r.mu.Lock()
	r.servers[svc.InstanceName] = svc
	close(r.changed)
	r.changed = make(chan struct{})
	r.mu.Unlock()
}

// Remove forgets a server by instance name.
func (r *Resolver) Remove(instance string) {
	r.mu.Lock()
	delete(r.servers, instance)
	r.mu.Unlock()
}

// Servers returns the known servers sorted by instance name.
func (r *Resolver) Servers() []*ServerService {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]*ServerService, 0, len(r.servers))
	for _, svc := range r.servers {
		out = append(out, svc)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].InstanceName < out[j].InstanceName })
	return out
}

// Resolve returns the address of the server whose prefix is the longest
// prefix of name. Ties are broken by instance name.
func (r *Resolver) Resolve(name string) (string, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	svc := r.match(name)
	if svc == nil {
		return "", ErrNoServer
	}
	return svc.Address(), nil
}

// ResolveWait is Resolve, but waits for new servers to be added until a
// match is found or ctx is done.
func (r *Resolver) ResolveWait(ctx context.Context, name string) (string, error) {
	for {
		r.mu.RLock()
		svc := r.match(name)
		changed := r.changed
		r.mu.RUnlock()

		if svc != nil {
			return svc.Address(), nil
		}

		select {
		case <-changed:
		case <-ctx.Done():
			return "", ErrNoServer
		}
	}
}

// Watch feeds the resolver from a browser until ctx is done.
func (r *Resolver) Watch(ctx context.Context, b Browser) error {
	services, err := b.BrowseServers(ctx)
	if err != nil {
		return err
	}
	go func() {
		for svc := range services {
			r.Add(svc)
		}
	}()
	return nil
}

func (r *Resolver) match(name string) *ServerService {
	var best *ServerService
	for _, svc := range r.servers {
		if !strings.HasPrefix(name, svc.Prefix) {
			continue
		}
		switch {
		case best == nil:
			best = svc
		case len(svc.Prefix) > len(best.Prefix):
			best = svc
		case len(svc.Prefix) == len(best.Prefix) && svc.InstanceName < best.InstanceName:
			best = svc
		}
	}
	return best
}
