// Package storage is the generic key/value backend internal/entrykit's
// KVEntry wraps: Store is a plain Get/Put/Delete/List/Stats interface with
// one concrete implementation, MemoryStore. Each sharded entry owns its own
// Store instance, so what's stored here is one entry's field set, not a
// whole shard's data — NewKVFactory constructs a fresh Store per entry.
package storage
