// Package sched provides the cooperative scheduling primitives the kernel
// runs on.
//
// A Loop owns three task queues that mirror the cadences a commit or a diff
// flush can be tied to:
//
//   - Post queues a macrotask (the immediate cadence)
//   - Defer queues a microtask, run before the next macrotask (deferred)
//   - RequestFrame queues a frame callback, run on the next frame tick
//
// All tasks run on one goroutine, so the kernel's derived structures see a
// single writer. Tests drive a Loop by hand with RunPending and Tick;
// servers call Run.
package sched
