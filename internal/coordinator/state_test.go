package coordinator_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dreamware/shardkit/internal/coordinator"
	"github.com/dreamware/shardkit/internal/sharding"
)

func TestApplyShardRegionRegisteredAppendsOnce(t *testing.T) {
	s := coordinator.NewState()
	s.Apply(coordinator.Event{Kind: coordinator.ShardRegionRegistered, Region: "r1"})
	s.Apply(coordinator.Event{Kind: coordinator.ShardRegionRegistered, Region: "r2"})
	s.Apply(coordinator.Event{Kind: coordinator.ShardRegionRegistered, Region: "r1"})

	assert.Equal(t, []sharding.RegionRef{"r1", "r2"}, s.RegionOrder)
	assert.True(t, s.KnownRegion("r1"))
	assert.True(t, s.KnownRegion("r2"))
}

func TestApplyShardHomeAllocatedTracksAssignment(t *testing.T) {
	s := coordinator.NewState()
	s.Apply(coordinator.Event{Kind: coordinator.ShardRegionRegistered, Region: "r1"})
	s.Apply(coordinator.Event{Kind: coordinator.ShardHomeAllocated, Shard: "A", Region: "r1"})

	assert.Equal(t, sharding.RegionRef("r1"), s.Shards["A"])
	assert.Equal(t, []sharding.ShardId{"A"}, s.Regions["r1"])
	assert.NotContains(t, s.UnallocatedShards, sharding.ShardId("A"))
}

func TestApplyShardHomeDeallocatedRemovesAssignment(t *testing.T) {
	s := coordinator.NewState()
	s.Apply(coordinator.Event{Kind: coordinator.ShardRegionRegistered, Region: "r1"})
	s.Apply(coordinator.Event{Kind: coordinator.ShardHomeAllocated, Shard: "A", Region: "r1"})
	s.Apply(coordinator.Event{Kind: coordinator.ShardHomeDeallocated, Shard: "A"})

	assert.NotContains(t, s.Shards, sharding.ShardId("A"))
	assert.Empty(t, s.Regions["r1"])
}

func TestApplyShardRegionTerminatedUnallocatesItsShards(t *testing.T) {
	s := coordinator.NewState()
	s.Apply(coordinator.Event{Kind: coordinator.ShardRegionRegistered, Region: "r1"})
	s.Apply(coordinator.Event{Kind: coordinator.ShardRegionRegistered, Region: "r2"})
	s.Apply(coordinator.Event{Kind: coordinator.ShardHomeAllocated, Shard: "A", Region: "r1"})
	s.Apply(coordinator.Event{Kind: coordinator.ShardHomeAllocated, Shard: "B", Region: "r1"})

	s.Apply(coordinator.Event{Kind: coordinator.ShardRegionTerminated, Region: "r1"})

	assert.NotContains(t, s.Shards, sharding.ShardId("A"))
	assert.NotContains(t, s.Shards, sharding.ShardId("B"))
	assert.Contains(t, s.UnallocatedShards, sharding.ShardId("A"))
	assert.Contains(t, s.UnallocatedShards, sharding.ShardId("B"))
	assert.Equal(t, []sharding.RegionRef{"r2"}, s.RegionOrder)
	assert.False(t, s.KnownRegion("r1"))
}

func TestApplyRegionProxyRegisteredAndTerminated(t *testing.T) {
	s := coordinator.NewState()
	s.Apply(coordinator.Event{Kind: coordinator.ShardRegionProxyRegistered, Region: "proxy1"})
	assert.True(t, s.KnownRegion("proxy1"))
	assert.NotContains(t, s.RegionOrder, sharding.RegionRef("proxy1"))

	s.Apply(coordinator.Event{Kind: coordinator.ShardRegionProxyTerminated, Region: "proxy1"})
	assert.False(t, s.KnownRegion("proxy1"))
}

func TestAllocationsProjectsACopyNotTheLiveState(t *testing.T) {
	s := coordinator.NewState()
	s.Apply(coordinator.Event{Kind: coordinator.ShardRegionRegistered, Region: "r1"})
	s.Apply(coordinator.Event{Kind: coordinator.ShardHomeAllocated, Shard: "A", Region: "r1"})

	alloc := s.Allocations()
	alloc.Order[0] = "mutated"
	alloc.ShardsByRegion["r1"][0] = "mutated"

	require.Equal(t, sharding.RegionRef("r1"), s.RegionOrder[0])
	require.Equal(t, sharding.ShardId("A"), s.Regions["r1"][0])
}
