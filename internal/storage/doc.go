// Package storage is the persistence layer behind the pipeline's collaborators.
//
// It stores:
//   - Per-source content filters (mode, submode, word list)
//   - The muted-source list fed by the Mute trigger
//   - Audit entries for user-triggered actions
//
// Drivers: "memory" (default), "file" (JSON snapshot + JSONL audit) and "sqlite".
package storage
