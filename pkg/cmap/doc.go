// Package cmap provides a concurrent string-keyed map for rediskv.
//
// This package implements a sharded concurrent map backing the keyspace
// with the following features:
//
//   - Sharding: Configurable shard count for parallelism
//   - Fine-grained Locking: Per-shard RWMutex for minimal contention
//   - Conditional Reads: GetIf evicts rejected entries atomically
//   - Iteration: Safe iteration while holding read locks
//
// Usage:
//
//	m := cmap.New[Entry]()
//	m.Set("key", entry)
//	val, ok := m.Get("key")
//
// Thread Safety:
//
// All operations are thread-safe. Read operations (Get, Has) use RLock,
// write operations (Set, Delete, and GetIf on eviction) use Lock.
package cmap
