package nameserver

import (
	"errors"
	"sort"
	"sync"
	"time"
)

// DefaultTTL is used for registrations that do not carry one.
const DefaultTTL = 60 * time.Second

// ErrNotFound is returned when no server is known for a PV.
var ErrNotFound = errors.New("pv not found")

type registration struct {
	address string
	expires time.Time
}

// Directory maps PV names to server addresses.
type Directory struct {
	mu      sync.RWMutex
	dynamic map[string]registration
	static  []Rule
	now     func() time.Time
}

// NewDirectory creates an empty directory.
func NewDirectory() *Directory {
	return &Directory{
		dynamic: make(map[string]registration),
		now:     time.Now,
	}
}

// Register records names as hosted at address until ttl expires. A zero
// ttl means DefaultTTL. It returns the number of names accepted.
func (d *Directory) Register(address string, names []string, ttl time.Duration) int {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	expires := d.now().Add(ttl)

	d.mu.Lock()
	defer d.mu.Unlock()

	accepted := 0
	for _, name := range names {
		if name == "" {
			continue
		}
		d.dynamic[name] = registration{address: address, expires: expires}
		accepted++
	}
	return accepted
}

// Unregister drops every dynamic name registered by address.
func (d *Directory) Unregister(address string) int {
	d.mu.Lock()
	defer d.mu.Unlock()

	n := 0
	for name, reg := range d.dynamic {
		if reg.address == address {
			delete(d.dynamic, name)
			n++
		}
	}
	return n
}

// SetStatic replaces the static rules.
func (d *Directory) SetStatic(rules []Rule) {
	d.mu.Lock()
	d.static = append([]Rule(nil), rules...)
	d.mu.Unlock()
}

// Lookup returns the address hosting name. Unexpired dynamic entries are
// checked first, then static rules in file order.
func (d *Directory) Lookup(name string) (string, error) {
	now := d.now()

	d.mu.RLock()
	defer d.mu.RUnlock()

	if reg, ok := d.dynamic[name]; ok && now.Before(reg.expires) {
		return reg.address, nil
	}
	for _, r := range d.static {
		if r.Match(name) {
			return r.Address, nil
		}
	}
	return "", ErrNotFound
}

// Expire removes dynamic entries whose TTL has run out and returns how
// many were removed.
func (d *Directory) Expire() int {
	now := d.now()

	d.mu.Lock()
	defer d.mu.Unlock()

	n := 0
	for name, reg := range d.dynamic {
		if !now.Before(reg.expires) {
			delete(d.dynamic, name)
			n++
		}
	}
	return n
}

// Names returns the dynamically registered names in sorted order.
func (d *Directory) Names() []string {
	d.mu.RLock()
	defer d.mu.RUnlock()

	names := make([]string, 0, len(d.dynamic))
	for name := range d.dynamic {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Len returns the number of dynamic and static entries.
func (d *Directory) Len() (dynamic, static int) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return len(d.dynamic), len(d.static)
}
