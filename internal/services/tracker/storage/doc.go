// Package storage defines persistence interfaces for the narrative tracker.
//
// It covers chat bindings, event journaling, snapshots, and turn telemetry.
// Implementations (SQLite, in-memory) live in subpackages.
//
// Common error types:
//   - ErrNotFound: requested record is missing
package storage
