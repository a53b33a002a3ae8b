// Package log captures protocol events of the PV network.
//
// Operational logging goes through log/slog. This package is the other
// half: a machine-readable trace of frames, decoded messages, connection
// state changes and errors, written by transports, PV servers and clients
// when a Logger is configured.
//
//	// console, at debug level
//	cfg.ProtocolLogger = log.NewSlogAdapter(slog.Default())
//
//	// capture file for later analysis with pvlog
//	fl, _ := log.NewFileLogger("bridge.pvlog")
//	cfg.ProtocolLogger = log.NewMultiLogger(log.NewSlogAdapter(slog.Default()), fl)
//
// Capture files are a plain stream of CBOR-encoded Events.
package log
