// Package kernel applies mutation actions to the row snapshot and keeps the
// derived structures (column index, version map, selector cache) in step.
//
// Two entry points share one transaction type:
//
//   - Engine queues actions from any goroutine and applies everything queued
//     before its scheduled flush as one Commit.
//   - Txn is the copy-on-write working snapshot a flush runs against. The
//     direct action gate uses it too, one Txn per call.
//
// Malformed paths are dropped per action. There is no fatal failure mode:
// once paths are validated every action is a total function of its input.
package kernel
