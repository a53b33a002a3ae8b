// Command pvcli reads, writes and monitors PVs.
//
// Without a subcommand it starts an interactive shell. Name resolution
// follows the EPICS_CA_NAME_SERVERS and EPICS_CA_AUTO_ADDR_LIST
// environment variables.
//
// Usage:
//
//	pvcli                         interactive shell
//	pvcli get <pv>...
//	pvcli put [--wait] <pv> <value>
//	pvcli info <pv>
//	pvcli monitor [--count N] <pv>...
package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"sync/atomic"
	"time"

	"github.com/slaclab/acclive/cmd/pvcli/shell"
	"github.com/slaclab/acclive/internal/cli"
	"github.com/slaclab/acclive/pkg/client"
	"github.com/slaclab/acclive/pkg/version"
	"github.com/slaclab/acclive/pkg/wire"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"
)

type options struct {
	timeout     time.Duration
	asInt       bool
	logLevel    string
	noMDNS      bool
	servers     []string
	protocolLog string
}

func main() {
	var opts options

	root := &cobra.Command{
		Use:           "pvcli",
		Version:       version.String(),
		Short:         "read, write and monitor PVs",
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withContext(cmd.Context(), opts, func(ctx context.Context, pvs *client.Context) error {
				return runShell(ctx, pvs, opts)
			})
		},
	}
	pf := root.PersistentFlags()
	pf.DurationVar(&opts.timeout, "timeout", shell.DefaultTimeout, "connect and request timeout")
	pf.BoolVar(&opts.asInt, "int", false, "write integral numbers as integers")
	pf.StringVar(&opts.logLevel, "log-level", "WARNING", "log level (DEBUG, INFO, WARNING, ERROR, CRITICAL)")
	pf.BoolVar(&opts.noMDNS, "no-mdns", false, "disable mDNS server discovery")
	pf.StringSliceVar(&opts.servers, "server", nil, "PV server address to search directly (repeatable)")
	pf.StringVar(&opts.protocolLog, "protocol-log", "", "capture protocol events to this .pvlog file")

	root.AddCommand(getCmd(&opts), putCmd(&opts), infoCmd(&opts), monitorCmd(&opts))

	ctx, stop := cli.SignalContext(context.Background())
	defer stop()
	if err := root.ExecuteContext(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func getCmd(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "get <pv>...",
		Short: "read PV values",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withContext(cmd.Context(), *opts, func(ctx context.Context, pvs *client.Context) error {
				var errs []error
				for _, name := range args {
					v, err := shell.Get(ctx, pvs, name, opts.timeout)
					if err != nil {
						errs = append(errs, fmt.Errorf("%s: %w", name, err))
						continue
					}
					fmt.Fprintln(cmd.OutOrStdout(), shell.FormatGet(name, v))
				}
				return errors.Join(errs...)
			})
		},
	}
}

func putCmd(opts *options) *cobra.Command {
	var wait bool
	cmd := &cobra.Command{
		Use:   "put <pv> <value>...",
		Short: "write a PV value",
		Long:  "Write a PV value. Several values, or one comma separated value, write an array.",
		Args:  cobra.MinimumNArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			value := wire.ParseValue(strings.Join(args[1:], " "), opts.asInt)
			return withContext(cmd.Context(), *opts, func(ctx context.Context, pvs *client.Context) error {
				if err := shell.Put(ctx, pvs, args[0], value, wait, opts.timeout); err != nil {
					return fmt.Errorf("%s: %w", args[0], err)
				}
				fmt.Fprintf(cmd.OutOrStdout(), "%s <- %s\n", args[0], wire.FormatValue(value))
				return nil
			})
		},
	}
	cmd.Flags().BoolVarP(&wait, "wait", "w", true, "wait for the server to store the value")
	return cmd
}

func infoCmd(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "info <pv>",
		Short: "describe a PV",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withContext(cmd.Context(), *opts, func(ctx context.Context, pvs *client.Context) error {
				info, err := shell.Info(ctx, pvs, args[0], opts.timeout)
				if err != nil {
					return fmt.Errorf("%s: %w", args[0], err)
				}
				fmt.Fprint(cmd.OutOrStdout(), shell.FormatInfo(args[0], info))
				return nil
			})
		},
	}
}

func monitorCmd(opts *options) *cobra.Command {
	var count int
	cmd := &cobra.Command{
		Use:   "monitor <pv>...",
		Short: "print PV updates until interrupted",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withContext(cmd.Context(), *opts, func(ctx context.Context, pvs *client.Context) error {
				return monitor(ctx, pvs, args, count, cmd.OutOrStdout())
			})
		},
	}
	cmd.Flags().IntVarP(&count, "count", "n", 0, "exit after this many updates (0 runs until interrupted)")
	return cmd
}

func monitor(ctx context.Context, pvs *client.Context, names []string, count int, w io.Writer) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	var seen atomic.Int64
	for _, name := range names {
		pvs.PV(name).Monitor(func(u client.Update) {
			fmt.Fprintln(w, shell.FormatUpdate(u))
			if n := seen.Add(1); count > 0 && n >= int64(count) {
				cancel()
			}
		})
	}
	err := pvs.PendEvents(ctx)
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

func runShell(ctx context.Context, pvs *client.Context, opts options) error {
	sh := shell.New(pvs, os.Stdout)
	sh.SetTimeout(opts.timeout)
	sh.SetIntegers(opts.asInt)

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		err := pvs.PendEvents(gctx)
		if errors.Is(err, context.Canceled) {
			return nil
		}
		return err
	})
	g.Go(func() error {
		defer cancel()
		return sh.Run(gctx, cancel)
	})
	return g.Wait()
}

// withContext builds a client context from the environment and flags,
// runs fn and closes the context.
func withContext(ctx context.Context, opts options, fn func(context.Context, *client.Context) error) error {
	level, err := cli.ParseLevel(opts.logLevel)
	if err != nil {
		return err
	}
	logger := cli.NewLogger(os.Stderr, level)

	protoLog, closeProtoLog, err := cli.ProtocolLogger(opts.protocolLog, logger)
	if err != nil {
		return err
	}
	defer closeProtoLog()

	cfg := client.ConfigFromEnv()
	cfg.DisableMDNS = opts.noMDNS
	cfg.StaticAddresses = opts.servers
	cfg.RequestTimeout = opts.timeout
	cfg.Logger = logger
	cfg.ProtocolLogger = protoLog

	pvs, err := client.New(cfg)
	if err != nil {
		return err
	}
	defer pvs.Close()
	return fn(ctx, pvs)
}
