package archiver

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestClient(t *testing.T, h http.HandlerFunc) *Client {
	t.Helper()
	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)
	return New(srv.URL+"/retrieval/data/getDataAtTime", slog.New(slog.NewTextHandler(io.Discard, nil)))
}

func TestRestore(t *testing.T) {
	at := time.Date(2021, 4, 21, 8, 10, 25, 0, time.FixedZone("PDT", -7*3600))

	var gotPVs []string
	var gotQuery string
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/retrieval/data/getDataAtTime", r.URL.Path)
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
		gotQuery = r.URL.Query().Get("at")
		require.NoError(t, json.NewDecoder(r.Body).Decode(&gotPVs))

		_, _ = io.WriteString(w, `{
			"QUAD:LI21:201:BCTRL": {"secs": 1619017825, "nanos": 5, "val": -4.5, "severity": 0, "status": 0},
			"KLYS:LI21:11:PHAS": {"secs": 1619017800, "nanos": 0, "val": [1, 2.5], "severity": 1, "status": 3}
		}`)
	})

	pvs := []string{"QUAD:LI21:201:BCTRL", "KLYS:LI21:11:PHAS", "NOT:ARCHIVED"}
	values, err := c.Restore(context.Background(), pvs, at)
	require.NoError(t, err)

	assert.Equal(t, pvs, gotPVs)
	assert.Equal(t, "2021-04-21T08:10:25.000000-07:00", gotQuery)
	assert.Equal(t, map[string]any{
		"QUAD:LI21:201:BCTRL": -4.5,
		"KLYS:LI21:11:PHAS":   []float64{1, 2.5},
	}, values)
}

func TestSamples(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = io.WriteString(w, `{"A": {"secs": 10, "nanos": 20, "val": "on", "severity": 2}}`)
	})

	samples, err := c.Samples(context.Background(), []string{"A"}, time.Now())
	require.NoError(t, err)
	require.Contains(t, samples, "A")
	assert.Equal(t, "on", samples["A"].Value)
	assert.Equal(t, 2, samples["A"].Severity)
	assert.Equal(t, time.Unix(10, 20), samples["A"].Time())
}

func TestRestoreErrors(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "no such endpoint", http.StatusNotFound)
	})
	_, err := c.Restore(context.Background(), []string{"A"}, time.Now())
	assert.ErrorIs(t, err, ErrBadResponse)
	assert.ErrorContains(t, err, "no such endpoint")

	_, err = c.Restore(context.Background(), nil, time.Now())
	assert.ErrorIs(t, err, ErrNoPVs)

	garbled := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = io.WriteString(w, "<html>")
	})
	_, err = garbled.Restore(context.Background(), []string{"A"}, time.Now())
	assert.ErrorIs(t, err, ErrBadResponse)
}

func TestDefaultURL(t *testing.T) {
	c := New("", nil)
	assert.Equal(t, DefaultURL, c.URL)
	assert.NotNil(t, c.HTTPClient)
}

func TestSetProxy(t *testing.T) {
	c := New("", nil)
	require.NoError(t, c.SetProxy("socks5h://localhost:8080"))

	transport := c.HTTPClient.Transport.(*http.Transport)
	req, _ := http.NewRequest(http.MethodPost, DefaultURL, nil)
	u, err := transport.Proxy(req)
	require.NoError(t, err)
	assert.Equal(t, "socks5h://localhost:8080", u.String())

	assert.Error(t, c.SetProxy("localhost"))
	require.NoError(t, c.SetProxy(""))
}
