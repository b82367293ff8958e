// Package harness runs YAML scenarios against a table store and checks the
// result.
//
// A scenario names initial rows, a list of gate operations and assertions
// on the final state. Each run uses a fresh store on a manually driven
// loop, a rewindable clock and sequential commit IDs, so the commit trace
// is byte-for-byte reproducible and can be compared with a golden file.
//
// Steps do not advance the loop on their own. Use a "tick" step to end the
// current turn (running deferred commits and diff delivery) and "frame" to
// fire frame-aligned work. Whatever is still pending after the last step is
// settled before assertions run.
package harness
