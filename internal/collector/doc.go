// Package collector receives the lifecycle callbacks of the runtime
// integration and turns them into registry updates.
//
// A Collector is an explicit context object: every event source (the ingest
// server, the trace replayer, tests) holds its own instance, so several
// independent trackers can coexist in one process.
package collector
