// Package sharding defines the vocabulary shared by every other package in
// this module: the opaque identifiers, the wire-observable protocol messages
// exchanged between Region, Shard and Coordinator, and the small set of
// function types an application supplies to plug its own behavior into the
// system (IdExtractor, ShardResolver, EntryFactory).
//
// Nothing in this package does I/O or holds state; it exists so that
// internal/coordinator, internal/region and internal/shard can agree on a
// single definition of "what a message looks like" without importing each
// other.
package sharding
