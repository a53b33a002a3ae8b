// Command start-bridge copies live machine PV values into the model's
// input PVs.
//
// Every input variable in the variable file is monitored on the machine
// and written to the PV of the same name under --model-pv-prefix. Absent,
// falsy and undeliverable updates are skipped and counted. The bridge
// runs until interrupted.
//
// Usage:
//
//	start-bridge [--variable-filename FILE] [--model-pv-prefix test:] [--log-level INFO]
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"github.com/slaclab/acclive/internal/cli"
	"github.com/slaclab/acclive/pkg/bridge"
	"github.com/slaclab/acclive/pkg/client"
	"github.com/slaclab/acclive/pkg/variables"
	"github.com/slaclab/acclive/pkg/version"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"
)

const defaultVariableFile = "./files/model_variables.yaml"

type options struct {
	variableFile string
	prefix       string
	logLevel     string
	dispatch     string
	metricsAddr  string
	maxPutRate   float64
	protocolLog  string
}

func main() {
	var opts options

	cmd := &cobra.Command{
		Use:           "start-bridge",
		Version:       version.String(),
		Short:         "bridge live machine PVs to the model",
		Long:          "Surrogate model bridge to the live machine.",
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(cmd.Context(), opts)
		},
	}
	f := cmd.Flags()
	f.StringVar(&opts.variableFile, "variable-filename", defaultVariableFile, "path to the model variable file")
	f.StringVar(&opts.prefix, "model-pv-prefix", bridge.DefaultPrefix, "PV prefix used by the model")
	f.StringVar(&opts.logLevel, "log-level", "INFO", "log level (DEBUG, INFO, WARNING, ERROR, CRITICAL)")
	f.StringVar(&opts.dispatch, "dispatch", "ordered", "write scheduling: ordered or spawn")
	f.StringVar(&opts.metricsAddr, "metrics-addr", "", "serve Prometheus metrics on this address")
	f.Float64Var(&opts.maxPutRate, "max-put-rate", 0, "maximum writes per second per model PV (0 = unlimited)")
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
	mode, err := bridge.ParseDispatchMode(opts.dispatch)
	if err != nil {
		return err
	}
	logger := cli.NewLogger(os.Stdout, level)
	slog.SetDefault(logger)

	logger.Info("Starting the Bridge to Live PVs")
	set, err := variables.Load(opts.variableFile)
	if err != nil {
		return err
	}

	protoLog, closeProtoLog, err := cli.ProtocolLogger(opts.protocolLog, logger)
	if err != nil {
		return err
	}
	defer closeProtoLog()

	ccfg := client.ConfigFromEnv()
	ccfg.Logger = logger
	ccfg.ProtocolLogger = protoLog
	pvs, err := client.New(ccfg)
	if err != nil {
		return err
	}
	defer pvs.Close()

	reg := cli.NewRegistry()
	b, err := bridge.New(bridge.ClientConnector{Context: pvs}, set.InputNames(), bridge.Config{
		Prefix:     opts.prefix,
		Mode:       mode,
		MaxPutRate: opts.maxPutRate,
		Logger:     logger,
		Registerer: reg,
	})
	if err != nil {
		return err
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return b.Serve(gctx, pvs) })
	if opts.metricsAddr != "" {
		g.Go(func() error { return cli.ServeMetrics(gctx, opts.metricsAddr, reg, logger) })
	}
	err = g.Wait()

	logger.Info("Finishing Bridge...")
	stats := b.Stats()
	logger.Info("Done!",
		"written", stats.Written,
		"absent", stats.Absent,
		"disconnected", stats.Disconnected,
		"falsy", stats.Falsy,
		"superseded", stats.Superseded,
		"failed", stats.Failed)
	return err
}
