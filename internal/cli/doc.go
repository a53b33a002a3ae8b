// Package cli holds the plumbing shared by the acclive commands: log
// setup, signal handling, the metrics endpoint and protocol capture.
package cli
