// Package bridge copies live machine PVs into the model PV namespace.
//
// For every input variable the bridge monitors the machine PV of that
// name and writes each new value to the model PV prefix+name. Monitor
// callbacks only hand values off; network writes run elsewhere so a slow
// destination never holds up the client's event dispatcher.
//
// Two dispatch modes exist. DispatchOrdered (the default) gives each
// destination a single writer with a one-slot mailbox: a value that has
// not been written yet is replaced by a newer one, so the last value
// dispatched for a destination is the last one written. DispatchSpawn
// starts a goroutine per notification, with no ordering between writes.
//
// Updates are skipped, never retried, when the source value is absent,
// when the destination is not connected, or when the value is falsy
// (false, zero, empty). Every outcome is counted in Stats and in the
// acclive_bridge_updates_total counter.
package bridge
