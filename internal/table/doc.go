// Package table assembles a complete store from its parts: rows, gate,
// column index (local or offloaded), version map, selector cache and diff
// bus, all driven by one cooperative loop.
//
// Subscriptions come in three tiers:
//   - commit tier: Subscribe receives every Commit with its rows
//   - compute tier: SubscribeCompute receives raw diff batches from the bus
//   - UI tier: Watch fires only when a column's version changed
//
// All row mutations go through the gate. Nothing else writes rows, index,
// versions or selectors.
package table
