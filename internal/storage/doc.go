// Package storage persists the engine's aggregates.
//
// Rows are stored as JSON documents with the columns the engine looks up by
// (idempotency keys, status flags) extracted alongside. The sqlite driver is
// canonical; the memory driver backs tests and throwaway runs.
package storage
