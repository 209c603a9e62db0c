// Package ingest carries lifecycle events over socket.io.
//
// Server accepts connections from a runtime integration and hands every event
// to a Dispatcher. Emitter is the client side, used to stream a recorded
// trace into a running server. Every socket event is named after its
// event.Kind and carries one JSON-encoded event.Event.
package ingest
