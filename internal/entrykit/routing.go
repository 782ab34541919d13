package entrykit

import (
	"fmt"
	"hash/fnv"

	"github.com/dreamware/shardkit/internal/sharding"
)

// Keyed is satisfied by any application message that names the entry it is
// addressed to. CounterOp and KVOp (below) both implement it; a caller with
// its own message types can implement it too and still use NewIdExtractor
// and NewHashShardResolver.
type Keyed interface {
	EntryKey() sharding.EntryId
}

// NewIdExtractor returns an IdExtractor for any Keyed message: entries
// route by EntryKey(), and the payload handed onward to the entry is the
// message itself unchanged. Messages that don't implement Keyed, or whose
// EntryKey() is empty, are rejected (ok=false) per spec.md §9's "partial
// functions over messages".
func NewIdExtractor() sharding.IdExtractor {
	return func(msg sharding.Message) (sharding.EntryId, sharding.Message, bool) {
		k, ok := msg.(Keyed)
		if !ok {
			return "", nil, false
		}
		id := k.EntryKey()
		if id == "" {
			return "", nil, false
		}
		return id, msg, true
	}
}

// NewHashShardResolver returns a ShardResolver that spreads Keyed messages
// across numShards shards by FNV-1a hashing EntryKey(), producing shard ids
// "shard-0".."shard-{numShards-1}". The hash itself is the same one the
// coordinator's predecessor used for key routing, generalized here from a
// fixed node-count lookup into the ShardId space the Coordinator then
// allocates dynamically across regions.
func NewHashShardResolver(numShards int) sharding.ShardResolver {
	if numShards <= 0 {
		numShards = 1
	}
	return func(msg sharding.Message) sharding.ShardId {
		k, ok := msg.(Keyed)
		if !ok {
			return ""
		}
		id := k.EntryKey()
		if id == "" {
			return ""
		}
		h := fnv.New32a()
		_, _ = h.Write([]byte(id))
		return sharding.ShardId(fmt.Sprintf("shard-%d", int(h.Sum32())%numShards))
	}
}
