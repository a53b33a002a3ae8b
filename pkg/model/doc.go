// Package model wraps a lattice engine as an accelerator model: machine
// PV values go in through datamaps, optics come out as per-element
// arrays keyed by lat_list attribute ("ele.a.beta", "ele.mat6", ...).
package model
