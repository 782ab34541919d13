package sharding

import (
	"errors"
	"fmt"
)

// ShardId identifies a group of entries that are relocated together. It is
// an opaque, application-defined, non-empty string.
type ShardId string

// EntryId identifies a single application-level entry within a shard. Like
// ShardId it is an opaque, non-empty string.
type EntryId string

// TypeName names an entry type registered with the Guardian (internal/registry).
// One Coordinator and one Region per node exist per TypeName.
type TypeName string

// RegionRef is a keyed handle to a Region: the Region's externally reachable
// address, which internal/registry builds as the node's base address plus
// "/types/<typeName>" (e.g. "http://10.0.0.4:7070/types/kv"). It deliberately carries no
// pointer or channel so it can be compared, hashed and persisted as-is — see
// spec.md §9 "cyclic ownership".
type RegionRef string

// Message is the opaque application payload carried once past the
// IdExtractor. The system never interprets it.
type Message any

// IdExtractor is a partial function from an inbound application message to
// the EntryId it is addressed to plus the remaining application payload.
// It returns ok=false for messages the application doesn't want routed by
// entry id (spec.md §9 "partial functions over messages"); such messages
// are the caller's responsibility to dead-letter.
type IdExtractor func(msg Message) (id EntryId, payload Message, ok bool)

// ShardResolver maps an inbound message to the ShardId that owns it. A
// Region calls this directly on the raw message to decide where to route
// it, ahead of (and independent from) the IdExtractor a Shard later uses to
// pick the specific entry; it should return "" for anything it can't place.
type ShardResolver func(msg Message) ShardId

// EntryFactory constructs the application-defined behavior for a newly
// started entry. A nil EntryFactory marks a proxy-only region/type: it
// participates in routing but never hosts entries locally (spec.md §4.8).
type EntryFactory func(id EntryId) (EntryHandler, error)

// EntryHandler is the minimal application contract an entry must satisfy.
// Receive is invoked at most once at a time for a given entry (spec.md §5);
// Stop is invoked when the entry is asked to terminate, whether by handoff,
// passivation or restart-replacement.
type EntryHandler interface {
	Receive(payload Message) error
	Stop() error
}

// Sentinel errors shared across the sharding protocol implementation.
var (
	// ErrEmptyShardId names the zero-value ShardId condition. No function in
	// this module returns it: a Region dead-letters a message whose shard id
	// resolves to "".
	ErrEmptyShardId = errors.New("sharding: empty shard id")
	// ErrEmptyEntryId names the empty-EntryId condition. No function in this
	// module returns it: a Shard drops (with a log line) a message whose
	// IdExtractor yields an empty EntryId, per spec.md §4.2.
	ErrEmptyEntryId = errors.New("sharding: empty entry id")
	// ErrUnknownShard is returned when a caller references a ShardId the
	// Coordinator has never allocated and has no region to ask.
	ErrUnknownShard = errors.New("sharding: unknown shard")
	// ErrProxyOnly is returned when something attempts to host an entry on
	// a region that was started without an EntryFactory.
	ErrProxyOnly = errors.New("sharding: region is proxy-only")
	// ErrBufferFull is returned when the region- or shard-wide message
	// buffer has reached its configured bufferSize (spec.md §5 backpressure).
	ErrBufferFull = errors.New("sharding: message buffer full")
)

// FatalError marks a protocol inconsistency (spec.md §7): a condition that,
// rather than being transient or a caller mistake, indicates this unit's
// internal invariants have been violated (e.g. a shard believed local was
// reassigned without a handoff). A FatalError should propagate to the
// owning supervisor rather than be swallowed.
type FatalError struct {
	Op  string
	Err error
}

func (e *FatalError) Error() string {
	return fmt.Sprintf("sharding: fatal protocol inconsistency in %s: %v", e.Op, e.Err)
}

func (e *FatalError) Unwrap() error { return e.Err }

// NewFatalError wraps err as a FatalError tagged with the operation name it
// was raised from, for supervisors to log and act on.
func NewFatalError(op string, err error) error {
	return &FatalError{Op: op, Err: err}
}
