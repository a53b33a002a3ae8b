// Command acc-monitor shows the live model in the terminal: beta_a and
// beta_b against s, and the current values of the model's scalar inputs.
//
// Usage:
//
//	acc-monitor [--prefix test:] [--variable-filename FILE] [--interval 1s]
package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/slaclab/acclive/internal/cli"
	"github.com/slaclab/acclive/pkg/client"
	"github.com/slaclab/acclive/pkg/dashboard"
	"github.com/slaclab/acclive/pkg/model"
	"github.com/slaclab/acclive/pkg/monitor"
	"github.com/slaclab/acclive/pkg/server"
	"github.com/slaclab/acclive/pkg/variables"
	"github.com/slaclab/acclive/pkg/version"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"
)

type options struct {
	prefix       string
	variableFile string
	interval     time.Duration
	inputs       []string
	logFile      string
	logLevel     string
}

func main() {
	var opts options

	cmd := &cobra.Command{
		Use:           "acc-monitor",
		Version:       version.String(),
		Short:         "terminal dashboard of the live model",
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(cmd.Context(), opts)
		},
	}
	f := cmd.Flags()
	f.StringVar(&opts.prefix, "prefix", server.DefaultPrefix, "PV prefix of the model namespace")
	f.StringVar(&opts.variableFile, "variable-filename", "", "model variable file (default: model outputs only)")
	f.DurationVar(&opts.interval, "interval", dashboard.DefaultInterval, "polling interval")
	f.StringSliceVar(&opts.inputs, "inputs", nil, "input variables shown in the table (default: every scalar input)")
	f.StringVar(&opts.logFile, "log-file", "", "write logs to this file (the terminal is used by the dashboard)")
	f.StringVar(&opts.logLevel, "log-level", "INFO", "log level (DEBUG, INFO, WARNING, ERROR, CRITICAL)")

	ctx, stop := cli.SignalContext(context.Background())
	defer stop()
	if err := cmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// selectVariables returns the outputs to poll and the inputs to tabulate.
func selectVariables(set *variables.Set, inputs []string) (outputs, tabulated []string) {
	outputs = model.OutputKeys
	if set == nil {
		return outputs, inputs
	}
	if len(set.Outputs) > 0 {
		outputs = set.OutputNames()
	}
	if len(inputs) > 0 {
		return outputs, inputs
	}
	for _, in := range set.Inputs {
		if in.Type == variables.TypeScalar {
			tabulated = append(tabulated, in.Name)
		}
	}
	return outputs, tabulated
}

func run(ctx context.Context, opts options) error {
	level, err := cli.ParseLevel(opts.logLevel)
	if err != nil {
		return err
	}
	var logOut io.Writer = io.Discard
	if opts.logFile != "" {
		f, err := os.OpenFile(opts.logFile, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
		if err != nil {
			return err
		}
		defer f.Close()
		logOut = f
	}
	logger := cli.NewLogger(logOut, level)

	var set *variables.Set
	if opts.variableFile != "" {
		if set, err = variables.Load(opts.variableFile); err != nil {
			return err
		}
	}
	outputs, inputs := selectVariables(set, opts.inputs)

	ccfg := client.ConfigFromEnv()
	ccfg.Logger = logger
	pvs, err := client.New(ccfg)
	if err != nil {
		return err
	}
	defer pvs.Close()

	mon, err := monitor.New(monitor.ClientSource{Context: pvs}, monitor.Config{
		Prefix:  opts.prefix,
		Outputs: outputs,
		Inputs:  inputs,
		Logger:  logger,
	})
	if err != nil {
		return err
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		// Gets need no callbacks, but the queue must keep draining.
		return ignoreCancel(pvs.PendEvents(gctx))
	})
	g.Go(func() error {
		defer func() { _ = pvs.Close() }()
		return dashboard.Run(gctx, mon, dashboard.Config{
			Title:    "Live model " + opts.prefix,
			Interval: opts.interval,
			Inputs:   inputs,
		})
	})
	return g.Wait()
}

func ignoreCancel(err error) error {
	if errors.Is(err, context.Canceled) || errors.Is(err, client.ErrClosed) {
		return nil
	}
	return err
}
