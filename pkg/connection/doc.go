// Package connection drives reconnection of PV client circuits.
//
// A lost circuit is redialled with exponential backoff: 1s, 2s, 4s ... up
// to 60s, each delay stretched by up to 25% random jitter so that a
// restarted server is not hit by every client at once. The delay resets
// after a successful connection.
package connection
