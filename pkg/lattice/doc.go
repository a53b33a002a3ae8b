// Package lattice is a linear optics engine for straight beamlines.
//
// A beamline is loaded from YAML:
//
//	name: demo
//	beginning:
//	  e_tot: 135.0e6
//	  beta_a: 1.1
//	  alpha_a: -0.2
//	  beta_b: 1.3
//	  alpha_b: 0.1
//	elements:
//	  - {name: D1, type: drift, l: 1.0}
//	  - {name: Q1, type: quadrupole, l: 0.1, k1: 5.0}
//	  - {name: K21_1A, type: lcavity, l: 3.0, voltage: 5.0e7}
//	overlays:
//	  - {name: K21_1, slaves: [K21_1A]}
//
// Each element gets a 6x6 transfer matrix in (x, px, y, py, z, pz)
// coordinates; Twiss parameters and dispersion are propagated through
// the matrices for both planes. Overlays set ENLD_MeV, phase_deg and
// in_use on klystron stations and distribute them over their lcavity
// slaves.
//
// Engine drives a beamline with Tao-style commands and implements
// tao.Engine. Element 0 is BEGINNING and the last tracking element is
// END, as in Bmad; optics are reported at element exits.
package lattice
