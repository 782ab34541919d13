// Package allocation implements the pluggable, pure shard-placement policy
// described in spec.md §4.1: where a newly seen shard should live, and which
// already-allocated shards (if any) should be rebalanced away from their
// current region. Nothing here touches a network, a clock, or persistent
// state — every decision is a function of its arguments, which is what lets
// the Coordinator call it synchronously from inside an event-sourced
// command handler.
package allocation
