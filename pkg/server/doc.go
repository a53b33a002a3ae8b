// Package server publishes a model's variables as PVs.
//
// Inputs are served as writable records named prefix+name, outputs as
// read-only arrays. With Monitor enabled, client writes to inputs
// trigger model evaluation. Evaluation runs on one goroutine; writes that
// arrive while a run is in progress are merged and evaluated together in
// the next run, the latest value per input winning.
package server
