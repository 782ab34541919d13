package entrykit

import (
	"sync"

	"github.com/dreamware/shardkit/internal/sharding"
)

// CounterOp is the request type a CounterEntry understands. Delta is added
// to the running total; a zero Delta is a plain read. Reply, if non-nil,
// receives the total after applying Delta.
type CounterOp struct {
	Key   sharding.EntryId
	Delta int64
	Reply chan<- int64
}

// EntryKey implements Keyed.
func (op CounterOp) EntryKey() sharding.EntryId { return op.Key }

// CounterEntry is a minimal stateful entry: one int64 total, mutated by
// CounterOp messages. It exists mainly as the simplest possible
// sharding.EntryHandler, exercising the contract without any storage
// dependency.
type CounterEntry struct {
	mu    sync.Mutex
	total int64
}

// NewCounterFactory returns a sharding.EntryFactory that starts one fresh
// CounterEntry per id. State does not survive a restart; combine with
// RememberEntries=false (a restarted entry simply starts back at zero).
func NewCounterFactory() sharding.EntryFactory {
	return func(sharding.EntryId) (sharding.EntryHandler, error) {
		return &CounterEntry{}, nil
	}
}

// Receive implements sharding.EntryHandler.
func (c *CounterEntry) Receive(payload sharding.Message) error {
	op, ok := payload.(CounterOp)
	if !ok {
		return nil
	}
	c.mu.Lock()
	c.total += op.Delta
	total := c.total
	c.mu.Unlock()

	if op.Reply != nil {
		op.Reply <- total
	}
	return nil
}

// Stop implements sharding.EntryHandler. CounterEntry holds no resources.
func (c *CounterEntry) Stop() error { return nil }
