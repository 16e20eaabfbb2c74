// Package store persists solved runs in a SQLite database.
//
// Each run is one row in the runs table: its UUIDv7 run id, the content
// hash of its snapshot, a few summary columns for listing, and the
// canonical snapshot document itself.
//
// # Ordering
//
// Listings order by id ASC COLLATE BINARY. Run ids are UUIDv7, so this is
// creation order and stays stable across restarts.
//
// # Connection
//
// The file is opened in WAL mode with synchronous=NORMAL, so listing runs
// does not block a concurrent solve --db writing its result. Writers wait
// up to five seconds for the lock.
package store
