// Package client is the PV network client.
//
// A Context owns name resolution, one circuit (TCP connection) per PV
// server, and an event queue. PV handles are created with Context.PV;
// each resolves its server in the background (name servers first, then
// mDNS, then the static address list) and attaches to the server's
// circuit. Circuits reconnect with exponential backoff; on reconnect every
// PV on the circuit reconnects and its monitor is re-established.
//
// Monitor and connection callbacks never run on network goroutines. They
// are queued and delivered, one at a time and in arrival order, by Poll or
// PendEvents on the caller's goroutine:
//
//	ctx, _ := client.New(client.ConfigFromEnv())
//	pv := ctx.PV("KLYS:LI21:11:ENLD")
//	pv.Monitor(func(u client.Update) { ... })
//	for {
//		ctx.Poll(100 * time.Millisecond)
//	}
//
// A disconnect is delivered to monitor callbacks as an Update with a nil
// Value. PutWait blocks until the server confirms the write and is refused
// while callbacks are being delivered.
package client
