package registry_test

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dreamware/shardkit/internal/actorkit"
	"github.com/dreamware/shardkit/internal/allocation"
	"github.com/dreamware/shardkit/internal/clustermembership"
	"github.com/dreamware/shardkit/internal/config"
	"github.com/dreamware/shardkit/internal/entrykit"
	"github.com/dreamware/shardkit/internal/persistence"
	"github.com/dreamware/shardkit/internal/registry"
	"github.com/dreamware/shardkit/internal/sharding"
	"github.com/dreamware/shardkit/internal/storage"
)

func newMemStore() storage.Store { return storage.NewMemoryStore() }

func newGuardian(t *testing.T, role string) (*registry.Guardian, *http.ServeMux, string) {
	t.Helper()

	srv := httptest.NewServer(nil)
	t.Cleanup(srv.Close)

	mux := http.NewServeMux()
	srv.Config.Handler = mux

	self := clustermembership.Member{Name: "n1", Addr: srv.URL, Role: role}
	g := registry.New(registry.Config{
		BaseAddr:   srv.URL,
		Role:       role,
		System:     actorkit.NewSystem(),
		Membership: clustermembership.NewStatic(self),
		Journal:    persistence.NewInMemoryJournal(),
		HTTPMux:    mux,
		Node:       config.Defaults(),
	})
	return g, mux, srv.URL
}

func strategy() allocation.Strategy {
	return allocation.NewLeastShardStrategy(3, 1)
}

func TestGuardianStartHostsCoordinatorWhenRoleMatches(t *testing.T) {
	g, _, baseAddr := newGuardian(t, "worker")

	ref, err := g.Start(
		context.Background(),
		sharding.TypeName("counter"),
		registry.EntryProps{Factory: entrykit.NewCounterFactory()},
		"worker",
		false,
		entrykit.NewIdExtractor(),
		entrykit.NewHashShardResolver(4),
		strategy(),
	)
	require.NoError(t, err)
	assert.Equal(t, sharding.RegionRef(baseAddr+"/types/counter"), ref)
}

func TestGuardianStartSkipsCoordinatorWhenRoleDiffers(t *testing.T) {
	g, _, _ := newGuardian(t, "worker")

	_, err := g.Start(
		context.Background(),
		sharding.TypeName("counter"),
		registry.EntryProps{Factory: entrykit.NewCounterFactory()},
		"coordinator-only",
		false,
		entrykit.NewIdExtractor(),
		entrykit.NewHashShardResolver(4),
		strategy(),
	)
	require.NoError(t, err)
	// No coordinator-owned resource leaks out through Guardian's public
	// surface to assert on directly; absence of a panic/deadlock plus the
	// Region-always-created case below is what this package can observe
	// from the outside.
}

func TestGuardianStartIsIdempotent(t *testing.T) {
	g, _, _ := newGuardian(t, "")

	ref1, err := g.Start(
		context.Background(),
		sharding.TypeName("kv"),
		registry.EntryProps{Factory: entrykit.NewKVFactory(newMemStore)},
		"",
		false,
		entrykit.NewIdExtractor(),
		entrykit.NewHashShardResolver(4),
		strategy(),
	)
	require.NoError(t, err)

	ref2, err := g.Start(
		context.Background(),
		sharding.TypeName("kv"),
		registry.EntryProps{Factory: entrykit.NewKVFactory(newMemStore)},
		"",
		false,
		entrykit.NewIdExtractor(),
		entrykit.NewHashShardResolver(4),
		strategy(),
	)
	require.NoError(t, err)
	assert.Equal(t, ref1, ref2)
}

func TestGuardianLookupReturnsStartedRegion(t *testing.T) {
	g, _, _ := newGuardian(t, "")

	_, ok := g.Lookup(sharding.TypeName("unstarted"))
	assert.False(t, ok)

	ref, err := g.Start(
		context.Background(),
		sharding.TypeName("counter"),
		registry.EntryProps{Factory: entrykit.NewCounterFactory()},
		"",
		false,
		entrykit.NewIdExtractor(),
		entrykit.NewHashShardResolver(4),
		strategy(),
	)
	require.NoError(t, err)

	got, ok := g.Lookup(sharding.TypeName("counter"))
	require.True(t, ok)
	assert.Equal(t, ref, got)
}

func TestGuardianStartRejectsEmptyTypeName(t *testing.T) {
	g, _, _ := newGuardian(t, "")

	_, err := g.Start(
		context.Background(),
		sharding.TypeName(""),
		registry.EntryProps{Factory: entrykit.NewCounterFactory()},
		"",
		false,
		entrykit.NewIdExtractor(),
		entrykit.NewHashShardResolver(4),
		strategy(),
	)
	assert.Error(t, err)
}

func TestGuardianStartRejectsMissingFactoryWhenNotProxy(t *testing.T) {
	g, _, _ := newGuardian(t, "")

	_, err := g.Start(
		context.Background(),
		sharding.TypeName("broken"),
		registry.EntryProps{},
		"",
		false,
		entrykit.NewIdExtractor(),
		entrykit.NewHashShardResolver(4),
		strategy(),
	)
	assert.Error(t, err)
}

func TestGuardianStartAllowsProxyWithoutFactory(t *testing.T) {
	g, _, _ := newGuardian(t, "")

	_, err := g.Start(
		context.Background(),
		sharding.TypeName("proxy-only"),
		registry.EntryProps{Proxy: true},
		"",
		false,
		entrykit.NewIdExtractor(),
		entrykit.NewHashShardResolver(4),
		strategy(),
	)
	assert.NoError(t, err)
}

func TestGuardianTellRejectsUnstartedType(t *testing.T) {
	g, _, _ := newGuardian(t, "")

	err := g.Tell(sharding.TypeName("nope"), entrykit.CounterOp{Key: "a", Delta: 1})
	assert.Error(t, err)
}

func TestGuardianTellDeliversToLocalRegion(t *testing.T) {
	g, _, _ := newGuardian(t, "")

	_, err := g.Start(
		context.Background(),
		sharding.TypeName("counter"),
		registry.EntryProps{Factory: entrykit.NewCounterFactory()},
		"",
		false,
		entrykit.NewIdExtractor(),
		entrykit.NewHashShardResolver(4),
		strategy(),
	)
	require.NoError(t, err)

	reply := make(chan int64, 1)
	err = g.Tell(sharding.TypeName("counter"), entrykit.CounterOp{Key: "a", Delta: 3, Reply: reply})
	require.NoError(t, err)

	select {
	case total := <-reply:
		assert.Equal(t, int64(3), total)
	case <-time.After(3 * time.Second):
		t.Fatal("timed out waiting for counter reply")
	}
}

func TestGuardianMountsTransportUnderPerTypePrefix(t *testing.T) {
	g, mux, baseAddr := newGuardian(t, "")

	ref, err := g.Start(
		context.Background(),
		sharding.TypeName("counter"),
		registry.EntryProps{Factory: entrykit.NewCounterFactory()},
		"",
		false,
		entrykit.NewIdExtractor(),
		entrykit.NewHashShardResolver(4),
		strategy(),
	)
	require.NoError(t, err)
	assert.Equal(t, sharding.RegionRef(baseAddr+"/types/counter"), ref)

	req := httptest.NewRequest(http.MethodGet, "/types/counter/sharding/health", nil)
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code)
}
