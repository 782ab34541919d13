package region_test

import (
	"context"
	"encoding/json"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dreamware/shardkit/internal/actorkit"
	"github.com/dreamware/shardkit/internal/clustermembership"
	"github.com/dreamware/shardkit/internal/metrics"
	"github.com/dreamware/shardkit/internal/persistence"
	"github.com/dreamware/shardkit/internal/region"
	"github.com/dreamware/shardkit/internal/sharding"
)

// fakeSend records every outbound Send call instead of touching the
// network, so tests can assert on the protocol traffic a Region generates.
type fakeSend struct {
	mu    sync.Mutex
	calls []sentCall
}

type sentCall struct {
	target sharding.RegionRef
	from   sharding.RegionRef
	kind   string
	msg    sharding.Message
}

func (f *fakeSend) Send(ctx context.Context, target, from sharding.RegionRef, kind string, msg sharding.Message) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, sentCall{target: target, from: from, kind: kind, msg: msg})
	return nil
}

func (f *fakeSend) kinds() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]string, len(f.calls))
	for i, c := range f.calls {
		out[i] = c.kind
	}
	return out
}

func (f *fakeSend) last(kind string) (sentCall, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for i := len(f.calls) - 1; i >= 0; i-- {
		if f.calls[i].kind == kind {
			return f.calls[i], true
		}
	}
	return sentCall{}, false
}

type echoMessage struct {
	Entry sharding.EntryId
	Body  string
}

func extractor(msg sharding.Message) (sharding.EntryId, sharding.Message, bool) {
	e, ok := msg.(echoMessage)
	if !ok || e.Entry == "" {
		return "", nil, false
	}
	return e.Entry, e.Body, true
}

func resolver(msg sharding.Message) sharding.ShardId {
	e, ok := msg.(echoMessage)
	if !ok || e.Entry == "" {
		return ""
	}
	return sharding.ShardId(e.Entry[:1])
}

type noopEntry struct{ received chan sharding.Message }

func (e *noopEntry) Receive(payload sharding.Message) error {
	if e.received != nil {
		e.received <- payload
	}
	return nil
}
func (e *noopEntry) Stop() error { return nil }

func newTestRegion(t *testing.T, self string, proxy bool, send *fakeSend, membership clustermembership.Provider) *region.Region {
	t.Helper()
	received := make(chan sharding.Message, 8)
	cfg := region.Config{
		TypeName:        "counter",
		Self:            sharding.RegionRef(self),
		Role:            "",
		Proxy:           proxy,
		ShardResolver:   resolver,
		IdExtractor:     extractor,
		EntryFactory:    func(id sharding.EntryId) (sharding.EntryHandler, error) { return &noopEntry{received: received}, nil },
		RememberEntries: false,
		Journal:         persistence.NewInMemoryJournal(),
		System:          actorkit.NewSystem(),
		Membership:      membership,
		Send:            send.Send,
		Watcher:         nil,

		RetryInterval:       50 * time.Millisecond,
		BufferSize:          100,
		EntryBufferSize:     4,
		ShardFailureBackoff: 10 * time.Millisecond,
		EntryRestartBackoff: 10 * time.Millisecond,
	}
	return region.Start(context.Background(), cfg)
}

func staticMembership(selfName, selfAddr string) *clustermembership.Static {
	return clustermembership.NewStatic(clustermembership.Member{Name: selfName, Addr: selfAddr, Role: ""})
}

// newTestRegionWithBuffer is newTestRegion with a caller-chosen BufferSize
// and a real *metrics.Metrics (wired to reg) instead of a nil one, so a test
// can shrink the buffer to force the overflow path and then read the
// dead-letter counter straight out of reg.
func newTestRegionWithBuffer(t *testing.T, self string, send *fakeSend, membership clustermembership.Provider, bufferSize int, reg *prometheus.Registry) *region.Region {
	t.Helper()
	cfg := region.Config{
		TypeName:        "counter",
		Self:            sharding.RegionRef(self),
		Proxy:           false,
		ShardResolver:   resolver,
		IdExtractor:     extractor,
		EntryFactory:    func(id sharding.EntryId) (sharding.EntryHandler, error) { return &noopEntry{}, nil },
		RememberEntries: false,
		Journal:         persistence.NewInMemoryJournal(),
		System:          actorkit.NewSystem(),
		Membership:      membership,
		Send:            send.Send,
		Watcher:         nil,

		RetryInterval:       50 * time.Millisecond,
		BufferSize:          bufferSize,
		EntryBufferSize:     4,
		ShardFailureBackoff: 10 * time.Millisecond,
		EntryRestartBackoff: 10 * time.Millisecond,

		Metrics: metrics.New(reg),
	}
	return region.Start(context.Background(), cfg)
}

func TestDeliverMessageDeadLettersWhenBufferFull(t *testing.T) {
	send := &fakeSend{}
	members := staticMembership("self", "http://self")
	reg := prometheus.NewRegistry()
	r := newTestRegionWithBuffer(t, "http://self", send, members, 1, reg)

	// "a1" and "b1" resolve to distinct shards ("a", "b"), so both land in
	// deliverMessage's buffering branch instead of one queuing behind the
	// other on the same shard. The first fills the one slot BufferSize
	// allows; the second finds bufferedCount already at the limit.
	r.Tell(echoMessage{Entry: "a1", Body: "first"})
	r.Tell(echoMessage{Entry: "b1", Body: "second"})

	require.Eventually(t, func() bool {
		families, err := reg.Gather()
		require.NoError(t, err)
		for _, f := range families {
			if f.GetName() != "shardkit_region_dead_letters_total" {
				continue
			}
			for _, m := range f.Metric {
				for _, l := range m.GetLabel() {
					if l.GetName() == "reason" && l.GetValue() == "buffer-full" {
						return m.GetCounter().GetValue() >= 1
					}
				}
			}
		}
		return false
	}, time.Second, 5*time.Millisecond, "expected a buffer-full dead letter to be recorded")
}

func TestRegionRegistersWithOldestMember(t *testing.T) {
	send := &fakeSend{}
	members := staticMembership("self", "http://self")
	members.Up(clustermembership.Member{Name: "coord", Addr: "http://coord"})

	newTestRegion(t, "http://self", false, send, members)

	require.Eventually(t, func() bool {
		_, ok := send.last(sharding.KindRegister)
		return ok
	}, time.Second, 5*time.Millisecond)
}

func TestProxyRegionSendsRegisterProxy(t *testing.T) {
	send := &fakeSend{}
	members := staticMembership("self", "http://self")

	newTestRegion(t, "http://self", true, send, members)

	require.Eventually(t, func() bool {
		_, ok := send.last(sharding.KindRegisterProxy)
		return ok
	}, time.Second, 5*time.Millisecond)
}

func TestDeliverMessageBuffersUnknownShardAndRequestsHome(t *testing.T) {
	send := &fakeSend{}
	members := staticMembership("self", "http://self")
	r := newTestRegion(t, "http://self", false, send, members)

	r.Tell(echoMessage{Entry: "e1", Body: "hi"})

	require.Eventually(t, func() bool {
		call, ok := send.last(sharding.KindGetShardHome)
		return ok && call.msg.(sharding.GetShardHome).Shard == "e"
	}, time.Second, 5*time.Millisecond)
}

func TestHostShardCreatesLocalShardAndAcks(t *testing.T) {
	send := &fakeSend{}
	members := staticMembership("self", "http://self")
	r := newTestRegion(t, "http://self", false, send, members)

	r.HandleRemote("http://coord", sharding.RegisterAck{Coordinator: "http://coord"})
	time.Sleep(20 * time.Millisecond)

	r.HandleRemote("http://coord", sharding.HostShard{Shard: "e"})

	require.Eventually(t, func() bool {
		_, ok := send.last(sharding.KindShardStarted)
		return ok
	}, time.Second, 5*time.Millisecond)
}

func TestHandOffWithNoLocalShardRepliesShardStoppedImmediately(t *testing.T) {
	send := &fakeSend{}
	members := staticMembership("self", "http://self")
	r := newTestRegion(t, "http://self", false, send, members)

	r.HandleRemote("http://coord", sharding.RegisterAck{Coordinator: "http://coord"})
	time.Sleep(20 * time.Millisecond)

	r.HandleRemote("http://coord", sharding.HandOff{Shard: "unhosted"})

	require.Eventually(t, func() bool {
		call, ok := send.last(sharding.KindShardStopped)
		return ok && call.msg.(sharding.ShardStopped).Shard == "unhosted"
	}, time.Second, 5*time.Millisecond)
}

func TestForwardedMessageIsDeliveredToLocalShard(t *testing.T) {
	send := &fakeSend{}
	members := staticMembership("self", "http://self")
	r := newTestRegion(t, "http://self", false, send, members)

	r.HandleRemote("http://coord", sharding.RegisterAck{Coordinator: "http://coord"})
	time.Sleep(20 * time.Millisecond)
	r.HandleRemote("http://coord", sharding.HostShard{Shard: "e"})

	require.Eventually(t, func() bool {
		_, ok := send.last(sharding.KindShardStarted)
		return ok
	}, time.Second, 5*time.Millisecond)

	body, err := json.Marshal(echoMessage{Entry: "e1", Body: "forwarded"})
	require.NoError(t, err)
	r.HandleRemote("http://peer", region.Forwarded{Shard: "e", Body: body})

	// No assertion on entry receipt here: local forwarding itself is
	// exercised by internal/shard's own tests. This confirms accepting a
	// Forward for a shard this region actually owns doesn't disrupt the
	// region's own outbound traffic (no unexpected Send calls appear).
	time.Sleep(20 * time.Millisecond)
	assert.NotContains(t, send.kinds(), sharding.KindShardStopped)
}
