// Command update-defaults refreshes the model's input defaults from the
// archiver.
//
// The value of every input variable at --at is fetched from the archiver,
// written to a JSON pvdata snapshot, and stored as the variable's default
// in the variable file.
//
// Usage:
//
//	update-defaults --variable-filename FILE [--at TIME] [--pvdata FILE] [--proxy socks5h://localhost:8080]
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/slaclab/acclive/internal/cli"
	"github.com/slaclab/acclive/pkg/archiver"
	"github.com/slaclab/acclive/pkg/variables"
	"github.com/slaclab/acclive/pkg/version"
	"github.com/spf13/cobra"
)

// DefaultAt is the reference machine snapshot time.
const DefaultAt = "2021-04-21T08:10:25.000000-07:00"

type options struct {
	archiverURL  string
	at           string
	variableFile string
	pvdataPath   string
	proxy        string
	logLevel     string
}

// Restorer fetches archived PV values.
type Restorer interface {
	Restore(ctx context.Context, pvs []string, at time.Time) (map[string]any, error)
}

func main() {
	var opts options

	cmd := &cobra.Command{
		Use:           "update-defaults",
		Version:       version.String(),
		Short:         "refresh input defaults from the archiver",
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(cmd.Context(), opts)
		},
	}
	f := cmd.Flags()
	f.StringVar(&opts.archiverURL, "archiver-url", archiver.DefaultURL, "archiver getDataAtTime endpoint")
	f.StringVar(&opts.at, "at", DefaultAt, "snapshot time (RFC3339)")
	f.StringVar(&opts.variableFile, "variable-filename", "", "model variable file to update")
	f.StringVar(&opts.pvdataPath, "pvdata", "", "pvdata snapshot to write (default data/PVDATA-<at>.json)")
	f.StringVar(&opts.proxy, "proxy", "", "proxy URL for archiver requests (default from environment)")
	f.StringVar(&opts.logLevel, "log-level", "INFO", "log level (DEBUG, INFO, WARNING, ERROR, CRITICAL)")
	_ = cmd.MarkFlagRequired("variable-filename")

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

	arch := archiver.New(opts.archiverURL, logger)
	if opts.proxy != "" {
		if err := arch.SetProxy(opts.proxy); err != nil {
			return err
		}
	}
	return updateDefaults(ctx, arch, opts, logger)
}

func updateDefaults(ctx context.Context, r Restorer, opts options, logger *slog.Logger) error {
	at, err := time.Parse(time.RFC3339Nano, opts.at)
	if err != nil {
		return fmt.Errorf("invalid --at: %w", err)
	}
	pvdataPath := opts.pvdataPath
	if pvdataPath == "" {
		pvdataPath = filepath.Join("data", "PVDATA-"+opts.at+".json")
	}

	set, err := variables.Load(opts.variableFile)
	if err != nil {
		return err
	}

	pvs := set.InputNames()
	logger.Info("restoring from archiver", "pvs", len(pvs), "at", opts.at)
	values, err := r.Restore(ctx, pvs, at)
	if err != nil {
		return err
	}

	if err := variables.SavePVData(pvdataPath, values); err != nil {
		return err
	}
	logger.Info("pvdata written", "path", pvdataPath, "values", len(values))

	applied, unknown, err := set.ApplyDefaults(values)
	if len(unknown) > 0 {
		logger.Warn("archiver returned values for unknown variables", "names", unknown)
	}
	if err != nil {
		logger.Warn("some defaults were not applied", "error", err)
	}

	if err := variables.Save(opts.variableFile, set); err != nil {
		return err
	}
	logger.Info("defaults updated", "path", opts.variableFile, "applied", applied, "missing", len(pvs)-applied)
	return nil
}
