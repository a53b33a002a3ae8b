// Package tao defines the command interface of a lattice engine.
//
// Engines accept Tao-style command lines ("set ele Q1 k1 = 2.5",
// "set global lattice_calc_on = T") and answer lat_list queries for an
// element pattern and an attribute ("ele.a.beta").
package tao
