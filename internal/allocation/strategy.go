package allocation

import (
	"errors"

	"github.com/dreamware/shardkit/internal/sharding"
)

// ErrNoRegions is returned by Allocate when there is nothing to allocate to.
var ErrNoRegions = errors.New("allocation: no regions registered")

// Allocations is the read-only view of coordinator state a Strategy
// decides against: which shards each region currently hosts, in the order
// those regions registered (spec.md §3 notes rebalance strategies depend on
// this insertion order for deterministic tie-breaking, since a Go map has
// none of its own).
type Allocations struct {
	// Order lists every known region exactly once, oldest registration first.
	Order []sharding.RegionRef
	// ShardsByRegion maps each region to the shards currently allocated to
	// it, in allocation order.
	ShardsByRegion map[sharding.RegionRef][]sharding.ShardId
}

// Len returns how many shards region currently hosts.
func (a Allocations) Len(region sharding.RegionRef) int {
	return len(a.ShardsByRegion[region])
}

// Strategy is the pluggable allocation/rebalance policy (spec.md §4.1). Both
// methods must be pure: no I/O, no reference to anything but their
// arguments.
type Strategy interface {
	// Allocate chooses the region a newly seen shard should be hosted on.
	// requester is the region that triggered the allocation (the default
	// strategy ignores it, but a custom one may prefer to keep shards close
	// to their first caller).
	Allocate(requester sharding.RegionRef, shard sharding.ShardId, current Allocations) (sharding.RegionRef, error)

	// Rebalance returns the set of shards that should be handed off right
	// now, given which shards are already mid-rebalance. An empty result is
	// valid and common — most ticks decide there is nothing to do.
	Rebalance(current Allocations, rebalanceInProgress map[sharding.ShardId]struct{}) []sharding.ShardId
}

// LeastShardStrategy is the default strategy (spec.md §4.1): allocate to
// the least-loaded region, and rebalance the single most-imbalanced shard
// once the gap between the busiest and quietest region reaches
// RebalanceThreshold, up to MaxSimultaneousRebalance shards in flight.
type LeastShardStrategy struct {
	// RebalanceThreshold is the minimum (most-loaded - least-loaded) shard
	// count gap that triggers a rebalance candidate.
	RebalanceThreshold int
	// MaxSimultaneousRebalance caps how many shards may be mid-handoff at
	// once; Rebalance returns nothing once this many are already in flight.
	MaxSimultaneousRebalance int
}

// NewLeastShardStrategy builds a LeastShardStrategy from the
// leastShard.rebalanceThreshold / leastShard.maxSimultaneousRebalance
// config values (spec.md §6).
func NewLeastShardStrategy(rebalanceThreshold, maxSimultaneousRebalance int) *LeastShardStrategy {
	return &LeastShardStrategy{
		RebalanceThreshold:       rebalanceThreshold,
		MaxSimultaneousRebalance: maxSimultaneousRebalance,
	}
}

// Allocate returns the region with the fewest allocated shards, breaking
// ties by earliest registration (current.Order).
func (s *LeastShardStrategy) Allocate(_ sharding.RegionRef, _ sharding.ShardId, current Allocations) (sharding.RegionRef, error) {
	if len(current.Order) == 0 {
		return "", ErrNoRegions
	}

	best := current.Order[0]
	bestLen := current.Len(best)
	for _, region := range current.Order[1:] {
		if l := current.Len(region); l < bestLen {
			best, bestLen = region, l
		}
	}
	return best, nil
}

// Rebalance implements spec.md §4.1's default policy: find the busiest
// region not already fully accounted for by in-flight rebalances and, if
// the gap to the quietest region is large enough, hand off its first
// (oldest-allocated) shard.
func (s *LeastShardStrategy) Rebalance(current Allocations, rebalanceInProgress map[sharding.ShardId]struct{}) []sharding.ShardId {
	if len(rebalanceInProgress) >= s.MaxSimultaneousRebalance {
		return nil
	}
	if len(current.Order) == 0 {
		return nil
	}

	leastSize := -1
	for _, region := range current.Order {
		l := current.Len(region)
		if leastSize == -1 || l < leastSize {
			leastSize = l
		}
	}

	mostSize := -1
	var candidateShard sharding.ShardId
	found := false
	for _, region := range current.Order {
		shards := current.ShardsByRegion[region]
		var remaining []sharding.ShardId
		for _, sh := range shards {
			if _, inProgress := rebalanceInProgress[sh]; !inProgress {
				remaining = append(remaining, sh)
			}
		}
		if len(remaining) == 0 {
			continue
		}
		if len(remaining) > mostSize {
			mostSize = len(remaining)
			candidateShard = remaining[0]
			found = true
		}
	}

	if !found || mostSize-leastSize < s.RebalanceThreshold {
		return nil
	}
	return []sharding.ShardId{candidateShard}
}
