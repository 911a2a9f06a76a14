// Package sqlite implements tracker persistence contracts for the event
// journal, snapshots, chat bindings, and turn telemetry.
//
// Why this package exists:
// - It is the concrete backend where the append-only journal and projection
//   checkpoints meet.
// - It owns migration and schema-compatibility behavior for chat history
//   durability.
//
// Only this package translates domain-shaped records into concrete SQL
// rows/transactions.
package sqlite
