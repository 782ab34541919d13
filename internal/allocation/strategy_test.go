package allocation_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dreamware/shardkit/internal/allocation"
	"github.com/dreamware/shardkit/internal/sharding"
)

func TestLeastShardStrategyAllocateTiesBreakByRegistrationOrder(t *testing.T) {
	strat := allocation.NewLeastShardStrategy(1, 1)
	current := allocation.Allocations{
		Order: []sharding.RegionRef{"r1", "r2"},
		ShardsByRegion: map[sharding.RegionRef][]sharding.ShardId{
			"r1": {},
			"r2": {},
		},
	}

	region, err := strat.Allocate("r2", "A", current)
	require.NoError(t, err)
	assert.Equal(t, sharding.RegionRef("r1"), region)
}

func TestLeastShardStrategyAllocatePicksFewestShards(t *testing.T) {
	strat := allocation.NewLeastShardStrategy(1, 1)
	current := allocation.Allocations{
		Order: []sharding.RegionRef{"r1", "r2"},
		ShardsByRegion: map[sharding.RegionRef][]sharding.ShardId{
			"r1": {"A", "B"},
			"r2": {},
		},
	}

	region, err := strat.Allocate("r1", "C", current)
	require.NoError(t, err)
	assert.Equal(t, sharding.RegionRef("r2"), region)
}

func TestLeastShardStrategyAllocateNoRegions(t *testing.T) {
	strat := allocation.NewLeastShardStrategy(1, 1)
	_, err := strat.Allocate("r1", "A", allocation.Allocations{})
	assert.ErrorIs(t, err, allocation.ErrNoRegions)
}

func TestLeastShardStrategyRebalanceBelowThreshold(t *testing.T) {
	strat := allocation.NewLeastShardStrategy(2, 1)
	current := allocation.Allocations{
		Order: []sharding.RegionRef{"r1", "r2"},
		ShardsByRegion: map[sharding.RegionRef][]sharding.ShardId{
			"r1": {"A"},
			"r2": {},
		},
	}

	got := strat.Rebalance(current, nil)
	assert.Empty(t, got)
}

func TestLeastShardStrategyRebalancePicksFirstShardOfBusiest(t *testing.T) {
	strat := allocation.NewLeastShardStrategy(1, 1)
	current := allocation.Allocations{
		Order: []sharding.RegionRef{"r1", "r2"},
		ShardsByRegion: map[sharding.RegionRef][]sharding.ShardId{
			"r1": {"A", "B"},
			"r2": {},
		},
	}

	got := strat.Rebalance(current, nil)
	require.Len(t, got, 1)
	assert.Equal(t, sharding.ShardId("A"), got[0])
}

func TestLeastShardStrategyRebalanceCapsAtMaxSimultaneous(t *testing.T) {
	strat := allocation.NewLeastShardStrategy(1, 1)
	current := allocation.Allocations{
		Order: []sharding.RegionRef{"r1", "r2"},
		ShardsByRegion: map[sharding.RegionRef][]sharding.ShardId{
			"r1": {"A", "B"},
			"r2": {},
		},
	}

	inProgress := map[sharding.ShardId]struct{}{"X": {}}
	got := strat.Rebalance(current, inProgress)
	assert.Empty(t, got)
}

func TestLeastShardStrategyRebalanceIgnoresShardsAlreadyInFlight(t *testing.T) {
	strat := allocation.NewLeastShardStrategy(1, 2)
	current := allocation.Allocations{
		Order: []sharding.RegionRef{"r1", "r2"},
		ShardsByRegion: map[sharding.RegionRef][]sharding.ShardId{
			"r1": {"A", "B"},
			"r2": {},
		},
	}

	inProgress := map[sharding.ShardId]struct{}{"A": {}, "B": {}}
	got := strat.Rebalance(current, inProgress)
	assert.Empty(t, got)
}
