// Package shard implements the Shard unit from spec.md §4.2: the
// per-(region,shardId) supervisor that owns a set of live Entries, routes
// application messages to them by EntryId, drives passivation, and
// participates in handoff when the coordinator reclaims the shard.
//
// A Shard is a single-threaded cooperative unit built on internal/actorkit:
// one goroutine ranging over one mailbox until it is closed. A Shard is always
// addressed through its owning Region's actorkit.Ref, never directly over
// the network — cross-process correspondence with the Coordinator is
// mediated entirely by the Region, the only unit that holds a transport
// address.
package shard
