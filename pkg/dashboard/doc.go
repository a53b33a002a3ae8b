// Package dashboard is a terminal view of the live model: beta_a and
// beta_b plotted against s, and a table of selected input values,
// refreshed by polling the model PVs.
package dashboard
