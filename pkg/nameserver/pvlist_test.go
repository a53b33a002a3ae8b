package nameserver

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParsePVList(t *testing.T) {
	input := `
# model server
BMAD:.*            10.0.0.2:5064
KLYS:LI21:11:ENLD  10.0.0.3:5064   # exact
QUAD:IN20:361:BACT 10.0.0.3:5064
`
	rules, err := ParsePVList(strings.NewReader(input))
	require.NoError(t, err)
	require.Len(t, rules, 3)

	assert.True(t, rules[0].Match("BMAD:ele.a.beta"))
	assert.False(t, rules[0].Match("XBMAD:ele"), "regex is anchored")
	assert.True(t, rules[1].Match("KLYS:LI21:11:ENLD"))
	assert.False(t, rules[1].Match("KLYS:LI21:11:ENLDX"))
	assert.Equal(t, "10.0.0.3:5064", rules[2].Address)
}

func TestParsePVListErrors(t *testing.T) {
	tests := []struct {
		name  string
		input string
	}{
		{"MissingAddress", "BMAD:X\n"},
		{"TooManyFields", "A b:1 c\n"},
		{"BadAddress", "A nohostport\n"},
		{"BadRegex", "A(.* h:1\n"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParsePVList(strings.NewReader(tt.input))
			assert.Error(t, err)
		})
	}
}

func TestWatchPVListReloads(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "pvlist")
	require.NoError(t, os.WriteFile(path, []byte("A 10.0.0.1:1\n"), 0o644))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	reloaded := make(chan []Rule, 4)
	require.NoError(t, WatchPVList(ctx, path, nil, func(r []Rule) { reloaded <- r }))

	require.NoError(t, os.WriteFile(path, []byte("A 10.0.0.1:1\nB 10.0.0.2:2\n"), 0o644))

	select {
	case rules := <-reloaded:
		require.Len(t, rules, 2)
		assert.Equal(t, "B", rules[1].Pattern)
	case <-time.After(3 * time.Second):
		t.Fatal("pvlist was not reloaded")
	}
}
