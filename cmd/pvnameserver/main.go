// Command pvnameserver runs a PV name server.
//
// PV servers register the names they host; clients search for a name and
// are told which server hosts it. A pvlist file adds static
// pattern-to-address rules and is reloaded when it changes.
//
// Usage:
//
//	pvnameserver [--listen :5053] [--pvlist FILE]
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/slaclab/acclive/internal/cli"
	"github.com/slaclab/acclive/pkg/nameserver"
	"github.com/slaclab/acclive/pkg/version"
	"github.com/spf13/cobra"
)

type options struct {
	listen      string
	pvlist      string
	expire      time.Duration
	logLevel    string
	protocolLog string
}

func main() {
	var opts options

	cmd := &cobra.Command{
		Use:           "pvnameserver",
		Version:       version.String(),
		Short:         "run a PV name server",
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(cmd.Context(), opts)
		},
	}
	f := cmd.Flags()
	f.StringVar(&opts.listen, "listen", fmt.Sprintf(":%d", nameserver.DefaultPort), "listen address")
	f.StringVar(&opts.pvlist, "pvlist", "", "static pvlist file (watched for changes)")
	f.DurationVar(&opts.expire, "expire-interval", 10*time.Second, "how often expired registrations are purged")
	f.StringVar(&opts.logLevel, "log-level", "INFO", "log level (DEBUG, INFO, WARNING, ERROR, CRITICAL)")
	f.StringVar(&opts.protocolLog, "protocol-log", "", "capture protocol events to this .pvlog file")

	ctx, stop := cli.SignalContext(context.Background())
	defer stop()
	if err := cmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, opts options) error {
	level, err := cli.ParseLevel(opts.logLevel)
	if err != nil {
		return err
	}
	logger := cli.NewLogger(os.Stdout, level)
	slog.SetDefault(logger)

	protoLog, closeProtoLog, err := cli.ProtocolLogger(opts.protocolLog, logger)
	if err != nil {
		return err
	}
	defer closeProtoLog()

	srv := nameserver.NewServer(nameserver.Config{
		Address:        opts.listen,
		PVListPath:     opts.pvlist,
		ExpireInterval: opts.expire,
		Logger:         logger,
		ProtocolLogger: protoLog,
	}, nil)
	if err := srv.Start(ctx); err != nil {
		return err
	}

	<-ctx.Done()
	logger.Info("shutting down")
	dynamic, static := srv.Directory().Len()
	if err := srv.Stop(); err != nil {
		return err
	}
	logger.Info("name server stopped", "registered", dynamic, "rules", static)
	return nil
}
