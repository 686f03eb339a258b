// Package simulator defines the synthetic workloads a task can run and the
// registry the engine resolves them from.
package simulator
