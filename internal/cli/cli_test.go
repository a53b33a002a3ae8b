package cli

import (
	"bytes"
	"context"
	"io"
	"log/slog"
	"net/http"
	"path/filepath"
	"regexp"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/slaclab/acclive/pkg/log"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseLevel(t *testing.T) {
	tests := []struct {
		in   string
		want slog.Level
	}{
		{"DEBUG", slog.LevelDebug},
		{"info", slog.LevelInfo},
		{"", slog.LevelInfo},
		{"WARNING", slog.LevelWarn},
		{"warn", slog.LevelWarn},
		{"ERROR", slog.LevelError},
		{"CRITICAL", LevelCritical},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseLevel(tt.in)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}

	_, err := ParseLevel("verbose")
	assert.ErrorContains(t, err, "CRITICAL")
}

func TestNewLoggerFormat(t *testing.T) {
	var buf bytes.Buffer
	logger := NewLogger(&buf, slog.LevelInfo)

	logger.Debug("hidden")
	logger.Info("Monitoring input PVs", "count", 3)
	logger.With("pv", "test:QUAD").WithGroup("put").Warn("skipping", "value", 0)
	logger.Log(context.Background(), LevelCritical, "giving up")

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	require.Len(t, lines, 3)
	assert.Regexp(t, regexp.MustCompile(`^\d{4}-\d{2}-\d{2} \d{2}:\d{2}:\d{2},\d{3} - INFO - Monitoring input PVs count=3$`), lines[0])
	assert.True(t, strings.HasSuffix(lines[1], " - WARNING - skipping pv=test:QUAD put.value=0"), lines[1])
	assert.Contains(t, lines[2], " - CRITICAL - giving up")
}

func TestListenAddress(t *testing.T) {
	env := map[string]string{}
	getenv := func(k string) string { return env[k] }

	assert.Equal(t, "127.0.0.1:1", ListenAddress("127.0.0.1:1", getenv))
	assert.Equal(t, ":5064", ListenAddress("", getenv))
	env[EnvServerPort] = "6064"
	assert.Equal(t, ":6064", ListenAddress("", getenv))
	env[EnvServerPort] = "bogus"
	assert.Equal(t, ":5064", ListenAddress("", getenv))
}

func TestServeMetrics(t *testing.T) {
	reg := NewRegistry()
	promauto.With(reg).NewCounter(prometheus.CounterOpts{Name: "acclive_test_total", Help: "test"}).Add(2)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		done <- ServeMetrics(ctx, "127.0.0.1:39123", reg, slog.New(slog.NewTextHandler(io.Discard, nil)))
	}()

	var body string
	require.Eventually(t, func() bool {
		resp, err := http.Get("http://127.0.0.1:39123/metrics")
		if err != nil {
			return false
		}
		defer resp.Body.Close()
		b, _ := io.ReadAll(resp.Body)
		body = string(b)
		return resp.StatusCode == http.StatusOK
	}, 2*time.Second, 20*time.Millisecond)
	assert.Contains(t, body, "acclive_test_total 2")

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(3 * time.Second):
		t.Fatal("ServeMetrics did not return")
	}
}

func TestProtocolLogger(t *testing.T) {
	info := NewLogger(io.Discard, slog.LevelInfo)
	l, closeFn, err := ProtocolLogger("", info)
	require.NoError(t, err)
	assert.Nil(t, l)
	assert.NoError(t, closeFn())

	l, closeFn, err = ProtocolLogger(filepath.Join(t.TempDir(), "x.pvlog"), info)
	require.NoError(t, err)
	assert.IsType(t, &log.FileLogger{}, l)
	assert.NoError(t, closeFn())

	_, _, err = ProtocolLogger(filepath.Join(t.TempDir(), "missing", "x.pvlog"), nil)
	assert.Error(t, err)
}

func TestProtocolLoggerDebugEcho(t *testing.T) {
	var buf bytes.Buffer
	debug := NewLogger(&buf, slog.LevelDebug)

	l, closeFn, err := ProtocolLogger("", debug)
	require.NoError(t, err)
	require.NotNil(t, l)
	l.Log(log.Event{ConnectionID: "c1", PVName: "BMAD:Q1:BCTRL"})
	assert.NoError(t, closeFn())
	assert.Contains(t, buf.String(), " - DEBUG - protocol")
	assert.Contains(t, buf.String(), "pv=BMAD:Q1:BCTRL")

	l, closeFn, err = ProtocolLogger(filepath.Join(t.TempDir(), "x.pvlog"), debug)
	require.NoError(t, err)
	multi, ok := l.(*log.MultiLogger)
	require.True(t, ok)
	assert.Equal(t, 2, multi.Len())
	assert.NoError(t, closeFn())
}
