// Package coordinator implements the Shard Coordinator from spec.md §4.5:
// the cluster's event-sourced singleton that allocates each shard to a
// Region, tracks membership of Regions and proxy-only Regions, and drives
// rebalancing through a pool of short-lived Rebalance Workers (§4.6).
//
// The coordinator's persistent state is a pure fold over a small domain
// event log (ShardRegionRegistered, ShardHomeAllocated, ...), grounded on
// the same map-of-assignments bookkeeping the teacher's ShardRegistry used,
// generalized from a flat reassignable map into an append-only log a
// restarted coordinator replays to recover. Supervisor (§4.7) is
// the restart policy wrapped around it; oldest-member singleton placement
// (§4.8) lives one level up, in internal/registry.Guardian, which starts
// and stops a Supervisor as cluster membership changes.
package coordinator
