// Package pvdb holds the records served by a PV server.
//
// A Record has a kind (scalar, array, string, string array), a current
// value, an optional numeric range, a read-only flag, a timestamp and an
// alarm severity. The Database validates client writes (Put) against the
// record's kind, range and read-only flag, and lets the owning process
// write any record (Update). Every stored change is delivered to the
// record's listeners in the order it was stored.
package pvdb
