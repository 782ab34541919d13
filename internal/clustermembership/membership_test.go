package clustermembership_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dreamware/shardkit/internal/clustermembership"
)

func TestStaticSnapshotOrdersOldestFirst(t *testing.T) {
	s := clustermembership.NewStatic(clustermembership.Member{Name: "r1", Addr: "a1", Role: "shard"})
	s.Up(clustermembership.Member{Name: "r2", Addr: "a2", Role: "shard"})
	s.Up(clustermembership.Member{Name: "r3", Addr: "a3", Role: "shard"})

	snap := s.Snapshot("shard")
	require.Len(t, snap, 3)
	assert.Equal(t, "r1", snap[0].Name)
	assert.Equal(t, "r2", snap[1].Name)
	assert.Equal(t, "r3", snap[2].Name)
}

func TestStaticSnapshotFiltersByRole(t *testing.T) {
	s := clustermembership.NewStatic(clustermembership.Member{Name: "r1", Role: "coordinator"})
	s.Up(clustermembership.Member{Name: "r2", Role: "shard"})

	snap := s.Snapshot("shard")
	require.Len(t, snap, 1)
	assert.Equal(t, "r2", snap[0].Name)
}

func TestStaticDownEmitsRemovedEvent(t *testing.T) {
	s := clustermembership.NewStatic(clustermembership.Member{Name: "r1"})
	s.Up(clustermembership.Member{Name: "r2"})
	<-s.Events() // r1's implicit nothing; drain r2's Up
	s.Down("r2")

	ev := <-s.Events()
	assert.Equal(t, clustermembership.MemberRemoved, ev.Kind)
	assert.Equal(t, "r2", ev.Member.Name)

	snap := s.Snapshot("")
	require.Len(t, snap, 1)
	assert.Equal(t, "r1", snap[0].Name)
}

func TestStaticIsOlderThan(t *testing.T) {
	s := clustermembership.NewStatic(clustermembership.Member{Name: "r1"})
	s.Up(clustermembership.Member{Name: "r2"})

	snap := s.Snapshot("")
	require.Len(t, snap, 2)
	assert.True(t, s.IsOlderThan(snap[0], snap[1]))
	assert.False(t, s.IsOlderThan(snap[1], snap[0]))
}
