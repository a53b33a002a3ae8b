// Package archiver restores PV values from an EPICS Archiver Appliance.
package archiver

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"time"

	"github.com/slaclab/acclive/pkg/wire"
)

// DefaultURL is the LCLS archiver's getDataAtTime endpoint.
const DefaultURL = "http://lcls-archapp.slac.stanford.edu/retrieval/data/getDataAtTime"

// DefaultTimeout bounds one restore request.
const DefaultTimeout = 30 * time.Second

// TimeLayout is the timestamp format the appliance expects.
const TimeLayout = "2006-01-02T15:04:05.000000-07:00"

var (
	// ErrNoPVs is returned by Restore without PV names.
	ErrNoPVs = errors.New("no pvs to restore")

	// ErrBadResponse wraps a non-200 or undecodable reply.
	ErrBadResponse = errors.New("bad archiver response")
)

// Sample is one archived value.
type Sample struct {
	Value    any   `json:"val"`
	Secs     int64 `json:"secs"`
	Nanos    int64 `json:"nanos"`
	Severity int   `json:"severity"`
	Status   int   `json:"status"`
}

// Time returns the sample timestamp.
func (s Sample) Time() time.Time {
	return time.Unix(s.Secs, s.Nanos)
}

// Client queries an archiver.
type Client struct {
	URL        string
	HTTPClient *http.Client
	Logger     *slog.Logger
}

// New returns a client for url (DefaultURL when empty). Requests go
// through the proxy named by HTTP_PROXY, HTTPS_PROXY or ALL_PROXY style
// environment variables.
func New(url string, logger *slog.Logger) *Client {
	if url == "" {
		url = DefaultURL
	}
	if logger == nil {
		logger = slog.Default()
	}
	transport := http.DefaultTransport.(*http.Transport).Clone()
	transport.Proxy = http.ProxyFromEnvironment
	return &Client{
		URL:        url,
		HTTPClient: &http.Client{Transport: transport, Timeout: DefaultTimeout},
		Logger:     logger,
	}
}

// SetProxy routes requests through the proxy at raw, for example
// "socks5h://localhost:8080". An empty raw restores the environment
// proxy settings.
func (c *Client) SetProxy(raw string) error {
	proxy := http.ProxyFromEnvironment
	if raw != "" {
		u, err := url.Parse(raw)
		if err != nil {
			return fmt.Errorf("proxy url: %w", err)
		}
		if u.Scheme == "" || u.Host == "" {
			return fmt.Errorf("proxy url %q: scheme and host required", raw)
		}
		proxy = http.ProxyURL(u)
	}

	transport, ok := c.HTTPClient.Transport.(*http.Transport)
	if !ok {
		return errors.New("proxy: client transport is not an *http.Transport")
	}
	transport = transport.Clone()
	transport.Proxy = proxy
	c.HTTPClient.Transport = transport
	return nil
}

// Samples returns the archived samples of pvs at the given time. PVs the
// archiver has no data for are absent from the result.
func (c *Client) Samples(ctx context.Context, pvs []string, at time.Time) (map[string]Sample, error) {
	if len(pvs) == 0 {
		return nil, ErrNoPVs
	}

	endpoint, err := url.Parse(c.URL)
	if err != nil {
		return nil, fmt.Errorf("archiver url: %w", err)
	}
	q := endpoint.Query()
	q.Set("at", at.Format(TimeLayout))
	q.Set("includeProxies", "true")
	endpoint.RawQuery = q.Encode()

	body, err := json.Marshal(pvs)
	if err != nil {
		return nil, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint.String(), bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")

	c.Logger.Debug("archiver request", "url", endpoint.String(), "pvs", len(pvs))
	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("archiver request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, fmt.Errorf("%w: %s: %s", ErrBadResponse, resp.Status, bytes.TrimSpace(msg))
	}

	var samples map[string]Sample
	if err := json.NewDecoder(resp.Body).Decode(&samples); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrBadResponse, err)
	}
	return samples, nil
}

// Restore returns the value of every archived PV at the given time.
// Numbers decode as float64 and numeric waveforms as []float64.
func (c *Client) Restore(ctx context.Context, pvs []string, at time.Time) (map[string]any, error) {
	samples, err := c.Samples(ctx, pvs, at)
	if err != nil {
		return nil, err
	}

	values := make(map[string]any, len(samples))
	for name, s := range samples {
		values[name] = normalize(s.Value)
	}
	if missing := len(pvs) - len(values); missing > 0 {
		c.Logger.Warn("archiver has no data for some pvs", "missing", missing, "at", at.Format(time.RFC3339))
	}
	return values, nil
}

func normalize(v any) any {
	list, ok := v.([]any)
	if !ok {
		return v
	}
	if f, ok := wire.ToFloat64Slice(list); ok {
		return f
	}
	if s, ok := wire.ToStringSlice(list); ok {
		return s
	}
	return list
}
