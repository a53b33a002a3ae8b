// Command start-server serves a live accelerator model over the PV
// network.
//
// Every input variable of the model is published as a writable PV and
// every output as a read-only PV under the prefix (default "test:", the prefix start-bridge writes to). With
// --monitor, writes to inputs re-evaluate the model and update the
// outputs.
//
// Usage:
//
//	start-server --config model.yaml [--prefix test:] [--listen :5064] [--monitor]
package main

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"

	"github.com/slaclab/acclive/internal/cli"
	"github.com/slaclab/acclive/pkg/client"
	"github.com/slaclab/acclive/pkg/datamap"
	"github.com/slaclab/acclive/pkg/discovery"
	"github.com/slaclab/acclive/pkg/lattice"
	"github.com/slaclab/acclive/pkg/model"
	"github.com/slaclab/acclive/pkg/pvserver"
	"github.com/slaclab/acclive/pkg/server"
	"github.com/slaclab/acclive/pkg/variables"
	"github.com/slaclab/acclive/pkg/version"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"
)

type options struct {
	configPath    string
	prefix        string
	listen        string
	monitor       bool
	noMDNS        bool
	logLevel      string
	metricsAddr   string
	saveVariables string
	protocolLog   string
}

func main() {
	var opts options

	cmd := &cobra.Command{
		Use:           "start-server",
		Version:       version.String(),
		Short:         "serve the live model over the PV network",
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(cmd.Context(), cmd, opts)
		},
	}
	f := cmd.Flags()
	f.StringVar(&opts.configPath, "config", "", "model configuration file (yaml)")
	f.StringVar(&opts.prefix, "prefix", server.DefaultPrefix, "PV prefix of the model namespace")
	f.StringVar(&opts.listen, "listen", "", "listen address (default :$EPICS_CA_SERVER_PORT or :5064)")
	f.BoolVar(&opts.monitor, "monitor", true, "re-evaluate the model when inputs are written")
	f.BoolVar(&opts.noMDNS, "no-mdns", false, "do not advertise over mDNS")
	f.StringVar(&opts.logLevel, "log-level", "INFO", "log level (DEBUG, INFO, WARNING, ERROR, CRITICAL)")
	f.StringVar(&opts.metricsAddr, "metrics-addr", "", "serve Prometheus metrics on this address")
	f.StringVar(&opts.saveVariables, "save-variables", "", "write the model's variable file and continue")
	f.StringVar(&opts.protocolLog, "protocol-log", "", "capture protocol events to this .pvlog file")
	_ = cmd.MarkFlagRequired("config")

	ctx, stop := cli.SignalContext(context.Background())
	defer stop()
	if err := cmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, cmd *cobra.Command, opts options) error {
	level, err := cli.ParseLevel(opts.logLevel)
	if err != nil {
		return err
	}
	logger := cli.NewLogger(os.Stdout, level)
	slog.SetDefault(logger)

	cfg, err := LoadConfig(opts.configPath)
	if err != nil {
		return err
	}
	if !cmd.Flags().Changed("prefix") && cfg.Prefix != "" {
		opts.prefix = cfg.Prefix
	}
	if opts.listen == "" {
		opts.listen = cfg.Listen
	}
	if !cmd.Flags().Changed("monitor") && cfg.Monitor != nil {
		opts.monitor = *cfg.Monitor
	}

	m, err := buildModel(ctx, cfg, logger)
	if err != nil {
		return err
	}
	vars := m.Variables()

	if opts.saveVariables != "" {
		if err := variables.Save(opts.saveVariables, vars); err != nil {
			return err
		}
		logger.Info("variables saved", "path", opts.saveVariables)
	}

	protoLog, closeProtoLog, err := cli.ProtocolLogger(opts.protocolLog, logger)
	if err != nil {
		return err
	}
	defer closeProtoLog()

	var advertiser discovery.Advertiser
	if !opts.noMDNS {
		a, err := discovery.NewMDNSAdvertiser(discovery.DefaultAdvertiserConfig())
		if err != nil {
			logger.Warn("mDNS advertising disabled", "error", err)
		} else {
			advertiser = a
		}
	}

	reg := cli.NewRegistry()
	srv, err := server.New(m, vars, server.Config{
		Prefix:  opts.prefix,
		Monitor: opts.monitor,
		PVServer: pvserver.Config{
			Address:        cli.ListenAddress(opts.listen, os.Getenv),
			Name:           cfg.Name,
			NameServers:    client.ConfigFromEnv().NameServers,
			Advertiser:     advertiser,
			ProtocolLogger: protoLog,
		},
		OnEvaluated: func(_ []*variables.OutputVariable, err error) {
			if err != nil {
				logger.Error("model evaluation failed", "error", err)
			}
		},
		Logger:     logger,
		Registerer: reg,
	})
	if err != nil {
		return err
	}

	g, gctx := errgroup.WithContext(ctx)
	if err := srv.Start(gctx); err != nil {
		return err
	}
	g.Go(func() error {
		<-gctx.Done()
		return srv.Stop()
	})
	if opts.metricsAddr != "" {
		g.Go(func() error { return cli.ServeMetrics(gctx, opts.metricsAddr, reg, logger) })
	}

	err = g.Wait()
	logger.Info("model server stopped")
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

func buildModel(ctx context.Context, cfg *Config, logger *slog.Logger) (*model.Model, error) {
	engine, err := lattice.Open(cfg.Lattice, logger)
	if err != nil {
		return nil, err
	}

	all, err := datamap.Load(cfg.DataMaps)
	if err != nil {
		return nil, err
	}
	dms, err := model.SelectDataMaps(ctx, engine, all, cfg.Select)
	if err != nil {
		return nil, err
	}

	pvdata := map[string]any{}
	if cfg.PVData != "" {
		pvdata, err = variables.LoadPVData(cfg.PVData)
		if errors.Is(err, fs.ErrNotExist) {
			logger.Warn("pvdata snapshot not found, inputs default to zero", "path", cfg.PVData)
			pvdata = map[string]any{}
		} else if err != nil {
			return nil, err
		}
	}

	logger.Info("building model", "lattice", cfg.Lattice, "datamaps", len(dms), "pvdata", len(pvdata))
	return model.New(ctx, engine, dms, pvdata, logger)
}
