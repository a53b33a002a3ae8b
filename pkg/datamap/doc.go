// Package datamap translates machine PV values into lattice engine
// commands.
//
// A datamap file is a YAML list. Plain datamaps carry per-PV rules:
//
//   - name: quad
//     rules:
//   - pv: QUAD:LI21:201:BCTRL
//     element: Q21201
//     attribute: b1_gradient
//     factor: -0.1
//
// which render as "set ele Q21201 b1_gradient = <factor*value+offset>".
// A rule or datamap may override the command with a template using the
// placeholders {element}, {attribute}, {value} and {pv}.
//
// Klystron datamaps describe one station per entry:
//
//   - name: klystron
//     klystrons:
//   - element: K21_1
//     enld: KLYS:LI21:11:ENLD
//     phase: KLYS:LI21:11:PDES
//     accelerate: KLYS:LI21:11:BEAMCODE1_STAT
//     faults: [KLYS:LI21:11:SWRD]
package datamap
