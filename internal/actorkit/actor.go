package actorkit

import (
	"sync"
	"time"

	"github.com/dreamware/shardkit/internal/sharding"
)

// Envelope is one mailbox entry: a message plus the Ref of whoever sent it,
// so a handler can reply without needing an out-of-band registry (spec.md
// §6 "sender preservation").
type Envelope struct {
	Sender Ref
	Msg    any
}

// Ref is a keyed handle to a unit's mailbox. The zero Ref is valid and
// simply unreachable (Send on it is a no-op returning false), which lets
// callers use it as "no sender" / "nobody to reply to" without a pointer
// nil-check.
type Ref struct {
	id   string
	ch   chan<- Envelope
	done <-chan struct{}
}

// ID returns the handle's stable name, used for logging and as a map key
// alongside/instead of the Ref itself when only identity (not liveness)
// matters.
func (r Ref) ID() string { return r.id }

// IsZero reports whether r names no mailbox at all.
func (r Ref) IsZero() bool { return r.ch == nil }

// Send delivers msg to r's mailbox with sender as the reply-to handle. It
// returns false without blocking forever if r's owner has already stopped;
// a full mailbox still blocks the caller, matching a real single-threaded
// unit's backpressure (callers that must not block — e.g. Region delivery —
// use TrySend instead).
func (r Ref) Send(msg any, sender Ref) bool {
	if r.ch == nil {
		return false
	}
	select {
	case r.ch <- Envelope{Sender: sender, Msg: msg}:
		return true
	case <-r.done:
		return false
	}
}

// TrySend is Send's non-blocking variant: it fails immediately (rather than
// waiting) if the mailbox is momentarily full, instead of stalling the
// caller's own unit.
func (r Ref) TrySend(msg any, sender Ref) bool {
	if r.ch == nil {
		return false
	}
	select {
	case r.ch <- Envelope{Sender: sender, Msg: msg}:
		return true
	case <-r.done:
		return false
	default:
		return false
	}
}

// Mailbox is the receiving end a unit owns privately; Ref is the handle it
// hands out to others.
type Mailbox struct {
	ch   chan Envelope
	done chan struct{}
	id   string
}

// NewMailbox allocates a buffered mailbox. size bounds how many envelopes
// may queue before Send blocks; 0 is a valid (synchronous) mailbox.
func NewMailbox(id string, size int) *Mailbox {
	return &Mailbox{
		ch:   make(chan Envelope, size),
		done: make(chan struct{}),
		id:   id,
	}
}

// Ref returns the handle other units should use to reach this mailbox.
func (m *Mailbox) Ref() Ref {
	return Ref{id: m.id, ch: m.ch, done: m.done}
}

// C exposes the receive channel for use in a unit's own select loop
// alongside timers and a shutdown context.
func (m *Mailbox) C() <-chan Envelope { return m.ch }

// Close marks the mailbox terminated: Ref.Send on it starts returning false
// instead of blocking, and any System watching this mailbox's Ref is
// notified. Close never closes the underlying channel itself, so a racing
// Send cannot panic — the done channel is what unblocks senders.
func (m *Mailbox) Close(sys *System) {
	select {
	case <-m.done:
		return // already closed
	default:
		close(m.done)
	}
	if sys != nil {
		sys.NotifyTerminated(m.Ref())
	}
}

// System is the per-process death-watch registry: it remembers who is
// watching whom and delivers a sharding.Terminated envelope when a watched
// Ref's Mailbox closes. It holds no other unit state and never blocks a
// unit's own message processing.
type System struct {
	mu       sync.Mutex
	watchers map[string][]Ref // target ID -> watchers
}

// NewSystem returns an empty death-watch registry.
func NewSystem() *System {
	return &System{watchers: make(map[string][]Ref)}
}

// Watch registers watcher to receive a sharding.Terminated{Ref: target}
// envelope once target's mailbox closes. Watching an already-stopped target
// is a no-op from the caller's point of view (the spec relies on units
// checking liveness via Send's return value in that window).
func (s *System) Watch(target, watcher Ref) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.watchers[target.id] = append(s.watchers[target.id], watcher)
}

// Unwatch removes a prior Watch registration. Missing entries are ignored.
func (s *System) Unwatch(target, watcher Ref) {
	s.mu.Lock()
	defer s.mu.Unlock()
	list := s.watchers[target.id]
	for i, w := range list {
		if w == watcher {
			s.watchers[target.id] = append(list[:i], list[i+1:]...)
			break
		}
	}
}

// NotifyTerminated sends sharding.Terminated{Ref: target} to every current
// watcher of target and forgets them. Mailbox.Close calls this; units
// generally don't call it directly.
func (s *System) NotifyTerminated(target Ref) {
	s.mu.Lock()
	watchers := s.watchers[target.id]
	delete(s.watchers, target.id)
	s.mu.Unlock()

	for _, w := range watchers {
		w.TrySend(sharding.Terminated{Ref: target}, Ref{})
	}
}

// ScheduleOnce fires msg at target after d elapses, as sender. The returned
// timer can be cancelled with Stop if the unit no longer cares (e.g.
// ShardStarted arrived before shardStartTimeout).
func ScheduleOnce(d time.Duration, target Ref, msg any, sender Ref) *time.Timer {
	return time.AfterFunc(d, func() {
		target.TrySend(msg, sender)
	})
}

// PeriodicTimer drives a recurring self-message (e.g. RebalanceTick,
// SnapshotTick, a Region's Retry) until Stop is called.
type PeriodicTimer struct {
	ticker *time.Ticker
	stop   chan struct{}
}

// SchedulePeriodic sends msg to target every d until the returned
// PeriodicTimer is stopped.
func SchedulePeriodic(d time.Duration, target Ref, msg any, sender Ref) *PeriodicTimer {
	pt := &PeriodicTimer{ticker: time.NewTicker(d), stop: make(chan struct{})}
	go func() {
		for {
			select {
			case <-pt.ticker.C:
				target.TrySend(msg, sender)
			case <-pt.stop:
				return
			}
		}
	}()
	return pt
}

// Stop cancels the periodic send. Safe to call more than once.
func (p *PeriodicTimer) Stop() {
	select {
	case <-p.stop:
	default:
		close(p.stop)
	}
	p.ticker.Stop()
}
