// Package nameserver implements the PV directory service.
//
// PV servers Register the names they host together with their address and
// a TTL; the registration must be refreshed before the TTL runs out.
// Clients Search a name and get back the address of the hosting server.
//
// A static pvlist file complements dynamic registrations. Each line is
//
//	<name-or-regex> <host:port>
//
// with '#' starting a comment. A pattern containing regular expression
// metacharacters is matched against the whole PV name; anything else must
// match exactly. Dynamic registrations win over static entries. The file
// is reloaded when it changes on disk.
//
// The directory is served with the same transport and wire format as PV
// servers; only the Search and Register operations are answered.
package nameserver
