// Package variables holds the model's input and output variable
// definitions and the PV data snapshots they are built from.
//
// Variables are stored in a YAML file:
//
//	version: 1
//	input_variables:
//	  - name: KLYS:LI21:11:ENLD
//	    type: scalar
//	    default: 230.5
//	    range: [-.inf, .inf]
//	output_variables:
//	  - name: ele.a.beta
//	    type: array
//
// Input variables are written sorted by name, output variables in
// declaration order, so repeated saves of the same set are identical.
//
// PV data snapshots (name to value, as restored from the archiver) are
// plain JSON objects; see LoadPVData and SavePVData.
package variables
