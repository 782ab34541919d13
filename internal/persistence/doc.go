// Package persistence provides the Journal collaborator interface from
// spec.md §6 — append-only event logs keyed by a persistence id, with
// snapshot save and snapshot offers on recovery as part of the same
// interface — plus two implementations: an in-memory one for tests and the
// default non-remembering path, and a go.etcd.io/bbolt-backed one for
// durable deployments.
//
// The Coordinator's persistence id is its canonical singleton path; each
// Shard's is "/sharding/{typeName}Shard/{shardId}" (spec.md §6).
package persistence
