package coordinator

import "github.com/dreamware/shardkit/internal/sharding"

// shardAssignment is one (shard, region) pair in a snapshot's flattened
// Shards map — JSON object keys must be strings, and sharding.ShardId's
// underlying type isn't guaranteed to marshal as one, so the pair travels
// as a slice element instead.
type shardAssignment struct {
	Shard  sharding.ShardId   `json:"shard"`
	Region sharding.RegionRef `json:"region"`
}

// persistedState is the JSON-friendly projection of State that
// Coordinator.snapshot writes and Coordinator.recover folds back in. It
// exists because State's maps and sets don't round-trip through
// encoding/json directly (non-string map keys, struct{} values).
type persistedState struct {
	Shards            []shardAssignment   `json:"shards"`
	RegionOrder       []sharding.RegionRef `json:"region_order"`
	RegionProxies     []sharding.RegionRef `json:"region_proxies"`
	UnallocatedShards []sharding.ShardId   `json:"unallocated_shards"`
}

// snapshotFrom flattens s into its persisted representation.
func snapshotFrom(s *State) persistedState {
	p := persistedState{
		RegionOrder: append([]sharding.RegionRef(nil), s.RegionOrder...),
	}
	for shardID, region := range s.Shards {
		p.Shards = append(p.Shards, shardAssignment{Shard: shardID, Region: region})
	}
	for proxy := range s.RegionProxies {
		p.RegionProxies = append(p.RegionProxies, proxy)
	}
	for shardID := range s.UnallocatedShards {
		p.UnallocatedShards = append(p.UnallocatedShards, shardID)
	}
	return p
}

// into rebuilds dst from the snapshot. dst is assumed freshly constructed
// (NewState); into does not clear pre-existing entries.
func (p persistedState) into(dst *State) {
	dst.RegionOrder = append([]sharding.RegionRef(nil), p.RegionOrder...)
	for _, region := range p.RegionOrder {
		if _, ok := dst.Regions[region]; !ok {
			dst.Regions[region] = nil
		}
	}
	for _, a := range p.Shards {
		dst.Shards[a.Shard] = a.Region
		dst.Regions[a.Region] = append(dst.Regions[a.Region], a.Shard)
	}
	for _, proxy := range p.RegionProxies {
		dst.RegionProxies[proxy] = struct{}{}
	}
	for _, shardID := range p.UnallocatedShards {
		dst.UnallocatedShards[shardID] = struct{}{}
	}
}
