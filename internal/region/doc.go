// Package region implements the Shard Region from spec.md §4.4: the
// per-node, per-typeName collaborator that discovers the current
// Coordinator, registers with it, resolves application messages to shards
// (buffering while a home is unknown), hosts local Shards, and forwards
// everything else to whichever remote Region currently owns it.
//
// A Region is a single-threaded cooperative unit like internal/shard's
// Shard: one goroutine, one mailbox, drained by a select loop alongside a
// retry ticker and the cluster membership event stream — the same
// ticker-and-select shape as the teacher's health monitor, generalized to
// also drain an actorkit mailbox.
//
// Cross-process correspondence (with the Coordinator, and with sibling
// Regions) happens over internal/transport; in-process correspondence
// (with this node's local Shards) happens over internal/actorkit.
// internal/coordinator mixes the two the same way: Regions over transport,
// its Rebalance Workers over actorkit.
package region
