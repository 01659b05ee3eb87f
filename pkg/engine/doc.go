// Package engine defines the contract shared by every component of the
// rash execution engine: the stable error taxonomy, the module result, and
// the global execution parameters.
package engine
