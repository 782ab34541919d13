package coordinator

import (
	"github.com/dreamware/shardkit/internal/allocation"
	"github.com/dreamware/shardkit/internal/sharding"
)

// EventKind tags one domain event in the coordinator's persistent log
// (spec.md §3). Kept as a string rather than an int so the journal's raw
// bytes stay human-readable during debugging.
type EventKind string

const (
	ShardRegionRegistered      EventKind = "ShardRegionRegistered"
	ShardRegionProxyRegistered EventKind = "ShardRegionProxyRegistered"
	ShardRegionTerminated      EventKind = "ShardRegionTerminated"
	ShardRegionProxyTerminated EventKind = "ShardRegionProxyTerminated"
	ShardHomeAllocated         EventKind = "ShardHomeAllocated"
	ShardHomeDeallocated       EventKind = "ShardHomeDeallocated"
)

// Event is one persisted coordinator domain event. Region and Shard are
// populated only for the kinds that use them; State.Apply ignores the
// fields a given Kind doesn't need.
type Event struct {
	Kind   EventKind          `json:"kind"`
	Region sharding.RegionRef `json:"region,omitempty"`
	Shard  sharding.ShardId   `json:"shard,omitempty"`
}

// State is the coordinator's persistent state (spec.md §3): which region
// hosts each shard, each region's allocation list (insertion-ordered, since
// allocation.Strategy's tie-breaking depends on it), the registered proxies,
// and the shards awaiting reallocation after their region's termination.
//
// Apply is State's only mutator; its other methods are read-only queries.
// State is a projection of the event log, replayed on recovery and rebuilt
// incrementally as new events are persisted.
type State struct {
	Shards            map[sharding.ShardId]sharding.RegionRef
	RegionOrder       []sharding.RegionRef
	Regions           map[sharding.RegionRef][]sharding.ShardId
	RegionProxies     map[sharding.RegionRef]struct{}
	UnallocatedShards map[sharding.ShardId]struct{}
}

// NewState returns an empty State, the starting point both for a brand new
// coordinator and for replay from the beginning of the log.
func NewState() *State {
	return &State{
		Shards:          make(map[sharding.ShardId]sharding.RegionRef),
		Regions:         make(map[sharding.RegionRef][]sharding.ShardId),
		RegionProxies:   make(map[sharding.RegionRef]struct{}),
		UnallocatedShards: make(map[sharding.ShardId]struct{}),
	}
}

// Apply folds one event into State, mutating it in place. It is the single
// place every state transition spec.md §3 names is expressed, so recovery
// (replay) and live command handling can never disagree about what an
// event means.
func (s *State) Apply(ev Event) {
	switch ev.Kind {
	case ShardRegionRegistered:
		if _, known := s.Regions[ev.Region]; known {
			return
		}
		s.RegionOrder = append(s.RegionOrder, ev.Region)
		s.Regions[ev.Region] = nil
	case ShardRegionProxyRegistered:
		s.RegionProxies[ev.Region] = struct{}{}
	case ShardRegionTerminated:
		for _, shardID := range s.Regions[ev.Region] {
			delete(s.Shards, shardID)
			s.UnallocatedShards[shardID] = struct{}{}
		}
		delete(s.Regions, ev.Region)
		s.RegionOrder = removeRegion(s.RegionOrder, ev.Region)
	case ShardRegionProxyTerminated:
		delete(s.RegionProxies, ev.Region)
	case ShardHomeAllocated:
		s.Shards[ev.Shard] = ev.Region
		s.Regions[ev.Region] = append(s.Regions[ev.Region], ev.Shard)
		delete(s.UnallocatedShards, ev.Shard)
	case ShardHomeDeallocated:
		if region, ok := s.Shards[ev.Shard]; ok {
			delete(s.Shards, ev.Shard)
			s.Regions[region] = removeShard(s.Regions[region], ev.Shard)
		}
	}
}

// Allocations projects State into the read-only view allocation.Strategy
// decides against.
func (s *State) Allocations() allocation.Allocations {
	order := append([]sharding.RegionRef(nil), s.RegionOrder...)
	byRegion := make(map[sharding.RegionRef][]sharding.ShardId, len(s.Regions))
	for region, shards := range s.Regions {
		byRegion[region] = append([]sharding.ShardId(nil), shards...)
	}
	return allocation.Allocations{Order: order, ShardsByRegion: byRegion}
}

// KnownRegion reports whether region has registered (as full or proxy) and
// not yet terminated.
func (s *State) KnownRegion(region sharding.RegionRef) bool {
	if _, ok := s.Regions[region]; ok {
		return true
	}
	_, ok := s.RegionProxies[region]
	return ok
}

func removeRegion(order []sharding.RegionRef, target sharding.RegionRef) []sharding.RegionRef {
	out := order[:0]
	for _, r := range order {
		if r != target {
			out = append(out, r)
		}
	}
	return out
}

func removeShard(shards []sharding.ShardId, target sharding.ShardId) []sharding.ShardId {
	out := shards[:0]
	for _, s := range shards {
		if s != target {
			out = append(out, s)
		}
	}
	return out
}
