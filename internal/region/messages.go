package region

import (
	"encoding/json"

	"github.com/dreamware/shardkit/internal/sharding"
)

// Forwarded is the wire-only envelope used when one Region forwards an
// application message to the Region it believes currently owns the shard
// (spec.md §4.4 step 3). The shard id travels explicitly rather than being
// re-derived by the receiving Region's ShardResolver, since by this point
// it has already been resolved once at the point of entry.
type Forwarded struct {
	Shard sharding.ShardId `json:"shard"`
	Body  json.RawMessage  `json:"body"`
}

// remoteMsg wraps anything that arrived over internal/transport before it
// is handed to the Region's own mailbox, tagging it with the RegionRef it
// actually came from (which may differ from what the message payload
// itself claims, e.g. a stale GetShardHome retry).
type remoteMsg struct {
	from sharding.RegionRef
	msg  sharding.Message
}

// remoteTerminated is synthesized by this Region's transport.Watcher when
// a polled peer (coordinator or sibling region) stops answering health
// checks — the cross-process analogue of actorkit's sharding.Terminated.
type remoteTerminated struct {
	ref sharding.RegionRef
}

// bufferedMsg is one application message waiting on shard-home resolution.
type bufferedMsg struct {
	msg    sharding.Message
	sender sharding.RegionRef
}
