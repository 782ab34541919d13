package clustermembership

import (
	"sort"
	"sync"
	"time"
)

// Member is one up node as this collaborator sees it.
type Member struct {
	// Name is the node's stable identifier, the key membership and join
	// order are tracked under.
	Name string
	// Addr is the node's externally reachable transport address.
	Addr string
	// Role gates hosting of the Coordinator & Entries (spec.md §6 "role").
	Role string
	// joinedAt is this process's own first-observed time for Name; it is
	// what IsOlderThan compares (see DESIGN.md's age-ordering caveat).
	joinedAt time.Time
}

// EventKind distinguishes the two membership transitions spec.md §6 names.
type EventKind int

const (
	// MemberUp fires whenever a member is added or re-added: on every
	// Static.Up call and on every gossip join or metadata update, so it can
	// repeat for a member that is already up.
	MemberUp EventKind = iota
	// MemberRemoved fires once a member is no longer considered up.
	MemberRemoved
)

// Event is one membership transition.
type Event struct {
	Kind   EventKind
	Member Member
}

// Provider is the cluster membership collaborator spec.md §6 names: the
// current up-member snapshot, a stream of transitions, and a stable age
// ordering oldest-first.
type Provider interface {
	// Snapshot returns every currently up member satisfying role (role=""
	// meaning "all roles").
	Snapshot(role string) []Member
	// Events returns a channel of membership transitions. Static.Close
	// closes it; GossipProvider.Close leaves it open.
	Events() <-chan Event
	// IsOlderThan reports whether a was observed joining before b.
	IsOlderThan(a, b Member) bool
	// Self returns this process's own Member record.
	Self() Member
	// Close releases any resources (gossip socket, goroutines) the
	// provider holds.
	Close() error
}

// Static is an in-memory Provider test double: membership is whatever the
// test pushes via Up/Down, with join order tracked in call order.
type Static struct {
	mu      sync.Mutex
	self    Member
	members map[string]Member
	order   []string
	events  chan Event
}

// NewStatic returns a Static provider seeded with self as the local member.
func NewStatic(self Member) *Static {
	self.joinedAt = time.Now()
	return &Static{
		self:    self,
		members: map[string]Member{self.Name: self},
		order:   []string{self.Name},
		events:  make(chan Event, 64),
	}
}

// Up adds or re-adds m as an up member, assigning it a join time after
// every currently-known member (so test setups can control age ordering by
// call sequence).
func (s *Static) Up(m Member) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.members[m.Name]; !exists {
		s.order = append(s.order, m.Name)
	}
	m.joinedAt = time.Now()
	s.members[m.Name] = m
	s.events <- Event{Kind: MemberUp, Member: m}
}

// Down removes name from the up set, if present.
func (s *Static) Down(name string) {
	s.mu.Lock()
	m, ok := s.members[name]
	if ok {
		delete(s.members, name)
	}
	s.mu.Unlock()

	if ok {
		s.events <- Event{Kind: MemberRemoved, Member: m}
	}
}

// Snapshot implements Provider.
func (s *Static) Snapshot(role string) []Member {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]Member, 0, len(s.order))
	for _, name := range s.order {
		m, ok := s.members[name]
		if !ok {
			continue
		}
		if role != "" && m.Role != role {
			continue
		}
		out = append(out, m)
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].joinedAt.Before(out[j].joinedAt) })
	return out
}

// Events implements Provider.
func (s *Static) Events() <-chan Event { return s.events }

// IsOlderThan implements Provider.
func (s *Static) IsOlderThan(a, b Member) bool { return a.joinedAt.Before(b.joinedAt) }

// Self implements Provider.
func (s *Static) Self() Member { return s.self }

// Close implements Provider.
func (s *Static) Close() error {
	close(s.events)
	return nil
}
