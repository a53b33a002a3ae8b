// Package pvserver serves a pvdb.Database over the PV network.
//
// Each client connection gets a session with its own subscriptions and an
// outbound queue drained by a sender goroutine. Responses are never
// dropped; monitor notifications are, oldest first, once a session has
// more than QueueSize of them pending. Database writers therefore never
// wait on a slow client.
//
// Operations:
//
//	Get      current value, timestamp and severity
//	Put      client write through Database.Put, then OnPut hooks; the
//	         response is only sent when the client asked to wait
//	Monitor  subscribe; the response carries the priming value and later
//	         changes arrive as notifications. A Monitor without a name
//	         cancels the subscription named in its payload.
//	Info     record kind, range and flags
//	Search   answers Hosted for names in the database
//
// On Start the server registers its names with the configured name
// servers and advertises itself over mDNS.
package pvserver
