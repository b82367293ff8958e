// Package offload runs the column index in a separate goroutine and talks
// to it only through messages.
//
// The host side is a Proxy, which implements index.Writer and
// index.Snapshotter. Writes are posted to the worker's mailbox and never
// block. Snapshots are resolved asynchronously: each request carries an id
// from a monotonically increasing counter and only the reply to the newest
// request is accepted. Replies to earlier requests are dropped as stale.
//
// Snapshot returns the last accepted snapshot immediately and, when writes
// happened since, asks the worker for a fresh one in the background.
// SnapshotContext waits for a reply that reflects every write posted before
// the call.
package offload
