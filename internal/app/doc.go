// Package app wires the tracker together. It owns the logger, the registry,
// the collector and the snapshot trigger of one process, and implements the
// serve, replay and emit run modes independently of the CLI.
package app
