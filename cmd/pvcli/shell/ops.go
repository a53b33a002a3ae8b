package shell

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/slaclab/acclive/pkg/client"
	"github.com/slaclab/acclive/pkg/wire"
)

func connect(ctx context.Context, pvs *client.Context, name string, timeout time.Duration) (*client.PV, context.Context, context.CancelFunc, error) {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	pv := pvs.PV(name)
	if err := pv.WaitConnected(ctx); err != nil {
		cancel()
		return nil, nil, nil, fmt.Errorf("connect: %w", err)
	}
	return pv, ctx, cancel, nil
}

// Get connects to name and reads its value.
func Get(ctx context.Context, pvs *client.Context, name string, timeout time.Duration) (*wire.ValuePayload, error) {
	pv, ctx, cancel, err := connect(ctx, pvs, name, timeout)
	if err != nil {
		return nil, err
	}
	defer cancel()
	return pv.GetValue(ctx)
}

// Put connects to name and writes value, waiting for the server when wait
// is set.
func Put(ctx context.Context, pvs *client.Context, name string, value any, wait bool, timeout time.Duration) error {
	pv, ctx, cancel, err := connect(ctx, pvs, name, timeout)
	if err != nil {
		return err
	}
	defer cancel()
	if wait {
		return pv.PutWait(ctx, value)
	}
	return pv.Put(value)
}

// Info connects to name and reads its description.
func Info(ctx context.Context, pvs *client.Context, name string, timeout time.Duration) (*wire.InfoPayload, error) {
	pv, ctx, cancel, err := connect(ctx, pvs, name, timeout)
	if err != nil {
		return nil, err
	}
	defer cancel()
	return pv.Info(ctx)
}

// FormatGet renders a read result as "name value", with the severity when
// it is not NO_ALARM.
func FormatGet(name string, v *wire.ValuePayload) string {
	line := name + " " + wire.FormatValue(v.Value)
	if v.Severity != wire.SeverityNone {
		line += " [" + v.Severity.String() + "]"
	}
	return line
}

// FormatUpdate renders a monitor update with its timestamp.
func FormatUpdate(u client.Update) string {
	ts := u.Timestamp
	if ts.IsZero() {
		ts = time.Now()
	}
	if u.Value == nil {
		return fmt.Sprintf("%s %s <disconnected>", ts.Format("15:04:05.000"), u.Name)
	}
	line := fmt.Sprintf("%s %s %s", ts.Format("15:04:05.000"), u.Name, wire.FormatValue(u.Value))
	if u.Severity != wire.SeverityNone {
		line += " [" + u.Severity.String() + "]"
	}
	return line
}

// FormatInfo renders a PV description, one field per line.
func FormatInfo(name string, info *wire.InfoPayload) string {
	var b strings.Builder
	fmt.Fprintf(&b, "%s\n", name)
	fmt.Fprintf(&b, "  kind:   %s\n", info.Kind)
	access := "read/write"
	if info.ReadOnly {
		access = "read-only"
	}
	fmt.Fprintf(&b, "  access: %s\n", access)
	if info.Count > 0 {
		fmt.Fprintf(&b, "  count:  %d\n", info.Count)
	}
	if info.Low != nil && info.High != nil {
		fmt.Fprintf(&b, "  range:  [%g, %g]\n", *info.Low, *info.High)
	}
	if info.Description != "" {
		fmt.Fprintf(&b, "  desc:   %s\n", info.Description)
	}
	return b.String()
}
