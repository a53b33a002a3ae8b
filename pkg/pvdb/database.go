package pvdb

import (
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/slaclab/acclive/pkg/wire"
)

// Change is one stored value change delivered to listeners.
type Change struct {
	Name      string
	Value     any
	Timestamp time.Time
	Severity  wire.Severity
}

// Listener receives stored changes. Listeners run on the writer's
// goroutine with the record's notify lock held and must not block.
type Listener func(Change)

type entry struct {
	// notifyMu serializes store+notify so listeners see changes in
	// storage order.
	notifyMu sync.Mutex

	mu        sync.RWMutex
	rec       Record
	listeners map[uint64]Listener
}

// Database is a thread-safe set of records.
type Database struct {
	mu      sync.RWMutex
	entries map[string]*entry
	nextID  uint64
	now     func() time.Time
}

// New creates an empty database.
func New() *Database {
	return &Database{
		entries: make(map[string]*entry),
		now:     time.Now,
	}
}

// Add inserts a record. A missing timestamp is set to now.
func (db *Database) Add(rec Record) error {
	if err := rec.validate(); err != nil {
		return err
	}
	if rec.Timestamp.IsZero() {
		rec.Timestamp = db.now()
	}
	rec.Value = cloneValue(rec.Value)

	db.mu.Lock()
	defer db.mu.Unlock()

	if _, exists := db.entries[rec.Name]; exists {
		return fmt.Errorf("%w: %s", ErrExists, rec.Name)
	}
	db.entries[rec.Name] = &entry{rec: rec, listeners: make(map[uint64]Listener)}
	return nil
}

// Remove deletes a record. Its listeners are dropped.
func (db *Database) Remove(name string) error {
	db.mu.Lock()
	defer db.mu.Unlock()

	if _, exists := db.entries[name]; !exists {
		return fmt.Errorf("%w: %s", ErrNotFound, name)
	}
	delete(db.entries, name)
	return nil
}

// Lookup returns a copy of the named record.
func (db *Database) Lookup(name string) (Record, bool) {
	e := db.entry(name)
	if e == nil {
		return Record{}, false
	}
	e.mu.RLock()
	defer e.mu.RUnlock()

	rec := e.rec
	rec.Value = cloneValue(rec.Value)
	if rec.Range != nil {
		r := *rec.Range
		rec.Range = &r
	}
	return rec, true
}

// Has reports whether the named record exists.
func (db *Database) Has(name string) bool {
	return db.entry(name) != nil
}

// Names returns all record names in sorted order.
func (db *Database) Names() []string {
	return db.List("")
}

// List returns the sorted names of records starting with prefix.
func (db *Database) List(prefix string) []string {
	db.mu.RLock()
	defer db.mu.RUnlock()

	names := make([]string, 0, len(db.entries))
	for name := range db.entries {
		if strings.HasPrefix(name, prefix) {
			names = append(names, name)
		}
	}
	sort.Strings(names)
	return names
}

// Len returns the number of records.
func (db *Database) Len() int {
	db.mu.RLock()
	defer db.mu.RUnlock()
	return len(db.entries)
}

// Put is a client write: it rejects read-only records, coerces the value
// to the record kind and checks its range before storing. It returns the
// stored value.
func (db *Database) Put(name string, value any) (any, error) {
	return db.store(name, value, wire.SeverityNone, true)
}

// Update is a server-side write. It skips the read-only check and sets
// the alarm severity.
func (db *Database) Update(name string, value any, severity wire.Severity) (any, error) {
	return db.store(name, value, severity, false)
}

func (db *Database) store(name string, value any, severity wire.Severity, client bool) (any, error) {
	e := db.entry(name)
	if e == nil {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, name)
	}

	e.notifyMu.Lock()
	defer e.notifyMu.Unlock()

	e.mu.Lock()
	if client && e.rec.ReadOnly {
		e.mu.Unlock()
		return nil, fmt.Errorf("%w: %s", ErrReadOnly, name)
	}
	v, err := e.rec.check(value)
	if err != nil {
		e.mu.Unlock()
		return nil, fmt.Errorf("%s: %w", name, err)
	}
	e.rec.Value = v
	e.rec.Timestamp = db.now()
	e.rec.Severity = severity

	change := Change{Name: name, Value: cloneValue(v), Timestamp: e.rec.Timestamp, Severity: severity}
	listeners := make([]Listener, 0, len(e.listeners))
	for _, l := range e.listeners {
		listeners = append(listeners, l)
	}
	e.mu.Unlock()

	for _, l := range listeners {
		l(change)
	}
	return cloneValue(v), nil
}

// Subscribe registers a listener on the named record. The returned
// function removes it.
func (db *Database) Subscribe(name string, l Listener) (func(), error) {
	e := db.entry(name)
	if e == nil {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, name)
	}

	db.mu.Lock()
	db.nextID++
	id := db.nextID
	db.mu.Unlock()

	e.mu.Lock()
	e.listeners[id] = l
	e.mu.Unlock()

	return func() {
		e.mu.Lock()
		delete(e.listeners, id)
		e.mu.Unlock()
	}, nil
}

// Listeners returns the number of listeners on the named record.
func (db *Database) Listeners(name string) int {
	e := db.entry(name)
	if e == nil {
		return 0
	}
	e.mu.RLock()
	defer e.mu.RUnlock()
	return len(e.listeners)
}

func (db *Database) entry(name string) *entry {
	db.mu.RLock()
	defer db.mu.RUnlock()
	return db.entries[name]
}
