package actorkit_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dreamware/shardkit/internal/actorkit"
	"github.com/dreamware/shardkit/internal/sharding"
)

func TestMailboxSendAndReceive(t *testing.T) {
	mb := actorkit.NewMailbox("unit-a", 4)
	ref := mb.Ref()

	ok := ref.Send("hello", actorkit.Ref{})
	require.True(t, ok)

	select {
	case env := <-mb.C():
		assert.Equal(t, "hello", env.Msg)
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for envelope")
	}
}

func TestSendAfterCloseReturnsFalse(t *testing.T) {
	mb := actorkit.NewMailbox("unit-b", 1)
	sys := actorkit.NewSystem()
	ref := mb.Ref()

	mb.Close(sys)

	ok := ref.Send("too late", actorkit.Ref{})
	assert.False(t, ok)
}

func TestSystemNotifiesWatchersOnClose(t *testing.T) {
	sys := actorkit.NewSystem()
	target := actorkit.NewMailbox("target", 1)
	watcher := actorkit.NewMailbox("watcher", 1)

	sys.Watch(target.Ref(), watcher.Ref())
	target.Close(sys)

	select {
	case env := <-watcher.C():
		term, ok := env.Msg.(sharding.Terminated)
		require.True(t, ok)
		assert.Equal(t, target.Ref().ID(), term.Ref.(actorkit.Ref).ID())
	case <-time.After(time.Second):
		t.Fatal("watcher was not notified")
	}
}

func TestUnwatchStopsNotification(t *testing.T) {
	sys := actorkit.NewSystem()
	target := actorkit.NewMailbox("target2", 1)
	watcher := actorkit.NewMailbox("watcher2", 1)

	sys.Watch(target.Ref(), watcher.Ref())
	sys.Unwatch(target.Ref(), watcher.Ref())
	target.Close(sys)

	select {
	case env := <-watcher.C():
		t.Fatalf("unexpected envelope after unwatch: %+v", env)
	case <-time.After(50 * time.Millisecond):
	}
}

func TestScheduleOnceFiresAfterDelay(t *testing.T) {
	mb := actorkit.NewMailbox("timer-target", 1)
	ref := mb.Ref()

	actorkit.ScheduleOnce(10*time.Millisecond, ref, "fire", actorkit.Ref{})

	select {
	case env := <-mb.C():
		assert.Equal(t, "fire", env.Msg)
	case <-time.After(time.Second):
		t.Fatal("timer never fired")
	}
}

func TestPeriodicTimerStops(t *testing.T) {
	mb := actorkit.NewMailbox("periodic-target", 4)
	ref := mb.Ref()

	pt := actorkit.SchedulePeriodic(5*time.Millisecond, ref, "tick", actorkit.Ref{})
	time.Sleep(25 * time.Millisecond)
	pt.Stop()

	// Drain whatever fired before Stop.
	drained := 0
drain:
	for {
		select {
		case <-mb.C():
			drained++
		case <-time.After(20 * time.Millisecond):
			break drain
		}
	}
	assert.Greater(t, drained, 0)
}
