// Command pvlog views and analyzes PV protocol capture files.
//
// Capture files are written by start-server, start-bridge, pvnameserver
// and pvcli when run with --protocol-log.
//
// Usage:
//
//	pvlog <command> [flags] <file.pvlog>
//
// Examples:
//
//	# View all events
//	pvlog view server.pvlog
//
//	# View outgoing wire messages for one PV subtree
//	pvlog view --layer wire --direction out --pv-prefix test:QUAD server.pvlog
//
//	# Export to CSV
//	pvlog export --format csv -o server.csv server.pvlog
//
//	# Keep one connection and save to a new file
//	pvlog filter --conn-id abc12345 -o filtered.pvlog server.pvlog
//
//	# Show statistics
//	pvlog stats server.pvlog
package main

import (
	"fmt"
	"os"

	"github.com/slaclab/acclive/cmd/pvlog/commands"
	"github.com/slaclab/acclive/pkg/version"
	"github.com/spf13/cobra"
)

func main() {
	root := &cobra.Command{
		Use:           "pvlog",
		Version:       version.String(),
		Short:         "PV protocol capture analyzer",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.AddCommand(viewCmd(), exportCmd(), filterCmd(), statsCmd())

	if err := root.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func viewCmd() *cobra.Command {
	var layer, direction, category, prefix string
	cmd := &cobra.Command{
		Use:   "view [flags] <file.pvlog>",
		Short: "view a capture in human-readable format",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			filter := commands.ViewFilter{PVPrefix: prefix}
			if layer != "" {
				l, err := commands.ParseLayer(layer)
				if err != nil {
					return err
				}
				filter.Layer = &l
			}
			if direction != "" {
				d, err := commands.ParseDirection(direction)
				if err != nil {
					return err
				}
				filter.Direction = &d
			}
			if category != "" {
				c, err := commands.ParseCategory(category)
				if err != nil {
					return err
				}
				filter.Category = &c
			}
			return commands.RunView(args[0], filter, cmd.OutOrStdout())
		},
	}
	f := cmd.Flags()
	f.StringVar(&layer, "layer", "", "filter by layer (transport, wire, service)")
	f.StringVar(&direction, "direction", "", "filter by direction (in, out)")
	f.StringVar(&category, "category", "", "filter by category (message, control, state, error)")
	f.StringVar(&prefix, "pv-prefix", "", "only events for PVs with this name prefix")
	return cmd
}

func exportCmd() *cobra.Command {
	var format, output string
	cmd := &cobra.Command{
		Use:   "export [flags] <file.pvlog>",
		Short: "export a capture to JSON lines or CSV",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return commands.RunExport(args[0], format, output, cmd.OutOrStdout())
		},
	}
	f := cmd.Flags()
	f.StringVar(&format, "format", "jsonl", "output format (jsonl, csv)")
	f.StringVarP(&output, "output", "o", "", "output file (default: stdout)")
	return cmd
}

func filterCmd() *cobra.Command {
	var opts commands.FilterOptions
	cmd := &cobra.Command{
		Use:   "filter [flags] <file.pvlog>",
		Short: "write the matching events to a new capture",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			n, err := commands.RunFilter(args[0], opts)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Filtered %d events to %s\n", n, opts.Output)
			return nil
		},
	}
	f := cmd.Flags()
	f.StringVarP(&opts.Output, "output", "o", "", "output file (required)")
	f.StringVar(&opts.ConnID, "conn-id", "", "filter by connection ID")
	f.StringVar(&opts.PVPrefix, "pv-prefix", "", "filter by PV name prefix")
	f.StringVar(&opts.Role, "role", "", "filter by role (client, server, nameserver)")
	f.StringVar(&opts.TimeStart, "time-start", "", "start time (RFC3339)")
	f.StringVar(&opts.TimeEnd, "time-end", "", "end time (RFC3339)")
	f.StringVar(&opts.Layer, "layer", "", "filter by layer (transport, wire, service)")
	f.StringVar(&opts.Direction, "direction", "", "filter by direction (in, out)")
	f.StringVar(&opts.Category, "category", "", "filter by category (message, control, state, error)")
	_ = cmd.MarkFlagRequired("output")
	return cmd
}

func statsCmd() *cobra.Command {
	var top int
	cmd := &cobra.Command{
		Use:   "stats [flags] <file.pvlog>",
		Short: "show statistics about a capture",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return commands.RunStats(args[0], cmd.OutOrStdout(), top)
		},
	}
	cmd.Flags().IntVar(&top, "top", 10, "number of busiest PVs to list")
	return cmd
}
