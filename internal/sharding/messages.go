package sharding

// The structs below are the wire-observable messages named in spec.md §6.
// They travel both between nodes (over internal/transport, JSON-encoded)
// and within a node (between a Region and its local Shards, over
// internal/actorkit mailboxes) — the same Go type serves both paths, which
// is what lets a Region forward a message to a local Shard or a remote one
// without the caller needing to know which.

// Register is sent by a Region to the Coordinator it believes is current,
// asking to join as a full (entry-hosting) region.
type Register struct {
	Region RegionRef `json:"region"`
}

// RegisterProxy is Register's proxy-only counterpart (spec.md §4.8): the
// sender never hosts entries and is excluded from allocation.
type RegisterProxy struct {
	Region RegionRef `json:"region"`
}

// RegisterAck acknowledges Register/RegisterProxy. It is idempotent: a
// region may receive it more than once (e.g. after a retry) and must treat
// repeats as a no-op.
type RegisterAck struct {
	Coordinator RegionRef `json:"coordinator"`
}

// GetShardHome asks the Coordinator to resolve (and, if necessary,
// allocate) a home for Shard.
type GetShardHome struct {
	Shard ShardId `json:"shard"`
}

// ShardHome is the Coordinator's answer to GetShardHome.
type ShardHome struct {
	Shard  ShardId   `json:"shard"`
	Region RegionRef `json:"region"`
}

// HostShard instructs a Region to instantiate Shard locally.
type HostShard struct {
	Shard ShardId `json:"shard"`
}

// ShardStarted acknowledges HostShard once the Region has started (or
// already hosts) the local Shard and flushed its buffered messages to it.
type ShardStarted struct {
	Shard ShardId `json:"shard"`
}

// BeginHandOff is the first phase of a coordinator-driven rebalance: every
// known region is told to stop treating Shard as local/known so that
// messages start being buffered anew (spec.md §4.4).
type BeginHandOff struct {
	Shard ShardId `json:"shard"`
}

// BeginHandOffAck acknowledges BeginHandOff.
type BeginHandOffAck struct {
	Shard  ShardId   `json:"shard"`
	Region RegionRef `json:"region"`
}

// HandOff is the second phase: sent only to the region that actually hosts
// Shard, asking it to stop the Shard (and, transitively, its entries).
type HandOff struct {
	Shard ShardId `json:"shard"`
}

// ShardStopped confirms a Shard (and all its entries) has fully terminated,
// whether after a HandOff or because it had no entries to begin with.
type ShardStopped struct {
	Shard ShardId `json:"shard"`
}

// Passivate is sent by an entry to its owning Shard, asking to be stopped
// gracefully; StopMessage is forwarded to the entry as its final message
// (spec.md §4.2).
type Passivate struct {
	Entry       EntryId `json:"entry"`
	StopMessage Message `json:"stop_message,omitempty"`
}

// Terminated is synthesized locally by internal/actorkit's death watch (or,
// for remote peers, by internal/transport's health-based watcher) when a
// watched Ref or RegionRef stops being reachable. It is never sent over the
// wire; it is the local representation of the Transport collaborator's
// death-watch contract (spec.md §6).
type Terminated struct {
	Ref any
}
