package clustermembership

import (
	"fmt"
	"net"
	"sync"
	"time"

	"github.com/hashicorp/memberlist"
	"golang.org/x/exp/slices"
)

// GossipProvider is a Provider backed by github.com/hashicorp/memberlist's
// SWIM-style gossip membership. It approximates spec.md §6's age ordering
// with each process's own first-observed join time per peer name (see
// DESIGN.md's age-ordering caveat) — sufficient for coordinator-singleton
// placement, which only needs *a* stable total order, not a linearizable
// one.
type GossipProvider struct {
	list *memberlist.Memberlist

	mu      sync.Mutex
	joined  map[string]time.Time
	roleOf  map[string]string
	events  chan Event
	selfRec Member
}

// GossipConfig configures a GossipProvider.
type GossipConfig struct {
	// Name is this node's stable identifier.
	Name string
	// BindAddr/BindPort is where memberlist listens for gossip traffic.
	BindAddr string
	BindPort int
	// AdvertiseAddr is the RegionRef-facing address peers should use to
	// reach this node's HTTP transport (internal/transport), which is
	// unrelated to the gossip port above.
	AdvertiseAddr string
	// Role gates coordinator/entry hosting eligibility (spec.md §6).
	Role string
	// Seeds are existing cluster members to join through.
	Seeds []string
}

type eventDelegate struct{ p *GossipProvider }

func (d *eventDelegate) NotifyJoin(n *memberlist.Node) { d.p.recordJoin(n) }
func (d *eventDelegate) NotifyLeave(n *memberlist.Node) { d.p.recordLeave(n) }
func (d *eventDelegate) NotifyUpdate(n *memberlist.Node) { d.p.recordJoin(n) }

// metaDelegate carries this node's role + advertised HTTP address as
// memberlist node metadata, the only payload memberlist gossips for us.
type metaDelegate struct {
	meta []byte
}

func (d *metaDelegate) NodeMeta(limit int) []byte {
	if len(d.meta) > limit {
		return d.meta[:limit]
	}
	return d.meta
}
func (d *metaDelegate) NotifyMsg([]byte)                           {}
func (d *metaDelegate) GetBroadcasts(overhead, limit int) [][]byte { return nil }
func (d *metaDelegate) LocalState(join bool) []byte                { return nil }
func (d *metaDelegate) MergeRemoteState(buf []byte, join bool)     {}

// NewGossipProvider starts gossiping and, if Seeds is non-empty, joins the
// existing cluster through them.
func NewGossipProvider(cfg GossipConfig) (*GossipProvider, error) {
	p := &GossipProvider{
		joined: make(map[string]time.Time),
		roleOf: make(map[string]string),
		events: make(chan Event, 256),
	}

	mlCfg := memberlist.DefaultLocalConfig()
	mlCfg.Name = cfg.Name
	if cfg.BindAddr != "" {
		mlCfg.BindAddr = cfg.BindAddr
	}
	if cfg.BindPort != 0 {
		mlCfg.BindPort = cfg.BindPort
		mlCfg.AdvertisePort = cfg.BindPort
	}
	mlCfg.Events = &eventDelegate{p: p}
	mlCfg.Delegate = &metaDelegate{meta: encodeMeta(cfg.Role, cfg.AdvertiseAddr)}

	list, err := memberlist.Create(mlCfg)
	if err != nil {
		return nil, fmt.Errorf("clustermembership: create gossip node: %w", err)
	}
	p.list = list
	p.selfRec = Member{Name: cfg.Name, Addr: cfg.AdvertiseAddr, Role: cfg.Role}
	p.mu.Lock()
	p.joined[cfg.Name] = time.Now()
	p.roleOf[cfg.Name] = cfg.Role
	p.mu.Unlock()

	if len(cfg.Seeds) > 0 {
		if _, err := list.Join(cfg.Seeds); err != nil {
			return nil, fmt.Errorf("clustermembership: join cluster: %w", err)
		}
	}
	return p, nil
}

func encodeMeta(role, addr string) []byte {
	return []byte(role + "\x00" + addr)
}

func decodeMeta(meta []byte) (role, addr string) {
	for i, b := range meta {
		if b == 0 {
			return string(meta[:i]), string(meta[i+1:])
		}
	}
	return string(meta), ""
}

func (p *GossipProvider) recordJoin(n *memberlist.Node) {
	role, addr := decodeMeta(n.Meta)
	if addr == "" {
		addr = net.JoinHostPort(n.Addr.String(), fmt.Sprintf("%d", n.Port))
	}

	p.mu.Lock()
	if _, already := p.joined[n.Name]; !already {
		p.joined[n.Name] = time.Now()
	}
	p.roleOf[n.Name] = role
	p.mu.Unlock()

	p.events <- Event{Kind: MemberUp, Member: Member{Name: n.Name, Addr: addr, Role: role}}
}

func (p *GossipProvider) recordLeave(n *memberlist.Node) {
	role, addr := decodeMeta(n.Meta)
	p.mu.Lock()
	delete(p.joined, n.Name)
	delete(p.roleOf, n.Name)
	p.mu.Unlock()

	p.events <- Event{Kind: MemberRemoved, Member: Member{Name: n.Name, Addr: addr, Role: role}}
}

// Snapshot implements Provider.
func (p *GossipProvider) Snapshot(role string) []Member {
	nodes := p.list.Members()

	p.mu.Lock()
	defer p.mu.Unlock()

	out := make([]Member, 0, len(nodes))
	for _, n := range nodes {
		nodeRole, addr := decodeMeta(n.Meta)
		if addr == "" {
			addr = net.JoinHostPort(n.Addr.String(), fmt.Sprintf("%d", n.Port))
		}
		if role != "" && nodeRole != role {
			continue
		}
		out = append(out, Member{Name: n.Name, Addr: addr, Role: nodeRole, joinedAt: p.joined[n.Name]})
	}
	slices.SortFunc(out, func(a, b Member) int {
		switch {
		case a.joinedAt.Before(b.joinedAt):
			return -1
		case b.joinedAt.Before(a.joinedAt):
			return 1
		default:
			return 0
		}
	})
	return out
}

// Events implements Provider.
func (p *GossipProvider) Events() <-chan Event { return p.events }

// IsOlderThan implements Provider.
func (p *GossipProvider) IsOlderThan(a, b Member) bool {
	p.mu.Lock()
	defer p.mu.Unlock()

	ja := a.joinedAt
	if ja.IsZero() {
		ja = p.joined[a.Name]
	}
	jb := b.joinedAt
	if jb.IsZero() {
		jb = p.joined[b.Name]
	}
	return ja.Before(jb)
}

// Self implements Provider.
func (p *GossipProvider) Self() Member { return p.selfRec }

// Close implements Provider.
func (p *GossipProvider) Close() error {
	if err := p.list.Leave(2 * time.Second); err != nil {
		return err
	}
	return p.list.Shutdown()
}
