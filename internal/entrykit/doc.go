// Package entrykit collects ready-to-use sharding.EntryHandler,
// sharding.IdExtractor and sharding.ShardResolver implementations for the
// common case of a keyed request/response protocol: every inbound message
// names the entry it belongs to, and entries are spread across a fixed
// number of shards by hashing that name.
//
// None of this is required by internal/region or internal/shard — both
// take IdExtractor/ShardResolver/EntryFactory as plain funcs, so an
// application is free to supply its own. entrykit exists so a node's
// cmd/ wiring doesn't have to hand-write hashing and hosting boilerplate
// for the two entry shapes most deployments need: a small mutable counter
// and a byte-value key/value record.
package entrykit
