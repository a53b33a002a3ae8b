// Package discovery implements mDNS/DNS-SD discovery of PV servers.
//
// PV servers advertise a single service type, _pvnet._tcp. One instance is
// registered per server; the instance name is the server name.
//
// TXT records:
//
//	px  served PV prefix (e.g. "test:"), may be empty
//	pc  number of PVs served
//	sv  server name
//	pv  protocol version; servers with another major version are ignored
//
// A Browser aggregates entries by instance name so that a server seen on
// several interfaces appears once with all of its addresses. A Resolver
// maps PV names onto discovered servers by longest-prefix match of px.
package discovery
