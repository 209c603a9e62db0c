/*
Package snapshot decides when the ancestry graph is built and exported.

There are two paths, both ending in build-then-export:

  - Interrupt: a signal arrives while workers may still be registering
    entities and holding registry locks. Signal delivery only performs a
    non-blocking send on a buffered channel (signal.Notify, or Request).
    A dedicated worker goroutine started with Run receives the request,
    builds and exports on an ordinary goroutine, then exits the process
    with the signal number as status. No registry lock is ever taken from
    the delivery path.

  - Shutdown: called once the event source guarantees that no further
    events will arrive. It builds, exports, and releases every entity the
    registry owns. Shutdown runs at most once.

Live snapshots (Snapshot) build and export without exiting. Each build is
independent; exports are serialized so two builds never write the same file
at once. An interrupt that arrives after Shutdown has released the registry
exits without exporting, so it cannot replace the complete graph with an
empty one.
*/
package snapshot
