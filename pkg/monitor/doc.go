// Package monitor polls the model PV namespace.
//
// A TaoMonitor reads every output PV, and optionally a set of input PVs,
// concurrently with array gets and returns a Snapshot keyed by variable
// name (without the prefix). PVs that fail to read are reported in
// Snapshot.Errors and left out of Snapshot.Values.
package monitor
