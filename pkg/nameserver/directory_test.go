package nameserver

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDirectoryRegisterLookup(t *testing.T) {
	d := NewDirectory()
	now := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	d.now = func() time.Time { return now }

	n := d.Register("10.0.0.1:5064", []string{"BMAD:A", "BMAD:B", ""}, 30*time.Second)
	assert.Equal(t, 2, n)

	addr, err := d.Lookup("BMAD:A")
	require.NoError(t, err)
	assert.Equal(t, "10.0.0.1:5064", addr)

	_, err = d.Lookup("BMAD:C")
	assert.ErrorIs(t, err, ErrNotFound)

	// Past the TTL the entry is invisible even before Expire runs.
	now = now.Add(31 * time.Second)
	_, err = d.Lookup("BMAD:A")
	assert.ErrorIs(t, err, ErrNotFound)

	assert.Equal(t, 2, d.Expire())
	dyn, _ := d.Len()
	assert.Equal(t, 0, dyn)
}

func TestDirectoryRefreshExtendsTTL(t *testing.T) {
	d := NewDirectory()
	now := time.Unix(1000, 0)
	d.now = func() time.Time { return now }

	d.Register("a:1", []string{"X"}, 10*time.Second)
	now = now.Add(8 * time.Second)
	d.Register("a:1", []string{"X"}, 10*time.Second)
	now = now.Add(8 * time.Second)

	addr, err := d.Lookup("X")
	require.NoError(t, err)
	assert.Equal(t, "a:1", addr)
	assert.Equal(t, 0, d.Expire())
}

func TestDirectoryDefaultTTL(t *testing.T) {
	d := NewDirectory()
	now := time.Unix(0, 0)
	d.now = func() time.Time { return now }

	d.Register("a:1", []string{"X"}, 0)
	now = now.Add(DefaultTTL - time.Second)
	_, err := d.Lookup("X")
	assert.NoError(t, err)
}

func TestDirectoryDynamicWinsOverStatic(t *testing.T) {
	d := NewDirectory()
	rules, err := ParsePVList(strings.NewReader("BMAD:.* 10.0.0.9:5064\n"))
	require.NoError(t, err)
	d.SetStatic(rules)

	addr, err := d.Lookup("BMAD:X")
	require.NoError(t, err)
	assert.Equal(t, "10.0.0.9:5064", addr)

	d.Register("10.0.0.1:5064", []string{"BMAD:X"}, time.Minute)
	addr, err = d.Lookup("BMAD:X")
	require.NoError(t, err)
	assert.Equal(t, "10.0.0.1:5064", addr)

	assert.Equal(t, 1, d.Unregister("10.0.0.1:5064"))
	addr, _ = d.Lookup("BMAD:X")
	assert.Equal(t, "10.0.0.9:5064", addr)
}

func TestDirectoryNames(t *testing.T) {
	d := NewDirectory()
	d.Register("a:1", []string{"b", "a"}, time.Minute)
	assert.Equal(t, []string{"a", "b"}, d.Names())
}
