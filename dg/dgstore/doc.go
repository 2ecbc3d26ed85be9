// Package dgstore contains the store interfaces for the gdag/dg tree.
//
// Stores are the durable backup of an engine.
// Blocks are saved as they are accepted,
// and commits are saved before they are delivered to any consumer,
// so that a restarted engine can replay to the same state.
package dgstore

// Store combines every store the engine needs.
// A single implementation, such as the SQLite store, typically satisfies it.
type Store interface {
	BlockStore
	CommitStore
}
