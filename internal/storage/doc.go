// Package storage provides the event log persistence layer.
//
// It currently supports:
//   - sqlite: SQLite database file (production default)
//   - file:   dependency-free JSONL journal with periodic compaction
//   - memory: volatile store for tests and ephemeral runs
package storage
