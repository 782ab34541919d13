package coordinator

import (
	"encoding/json"

	"github.com/dreamware/shardkit/internal/sharding"
	"github.com/dreamware/shardkit/internal/transport"
)

// AttachTransport registers one handler per Kind the Coordinator accepts
// over the wire, decoding each Envelope body before handing it to
// HandleRemote.
func (c *Coordinator) AttachTransport(mux *transport.ServeMux) {
	attachDecoders(mux, c)
}

// AttachTransport wires the ServeMux to whichever Coordinator instance is
// currently running, so a restart under the hood doesn't require the
// registry to re-attach anything.
func (s *Supervisor) AttachTransport(mux *transport.ServeMux) {
	attachDecoders(mux, s)
}

// remoteReceiver is satisfied by both Coordinator and Supervisor, letting
// attachDecoders wire either one identically.
type remoteReceiver interface {
	HandleRemote(from sharding.RegionRef, msg sharding.Message)
}

func attachDecoders(mux *transport.ServeMux, r remoteReceiver) {
	decode := func(kind string, newMsg func() sharding.Message) {
		mux.Register(kind, func(from sharding.RegionRef, body json.RawMessage) error {
			msg := newMsg()
			if err := json.Unmarshal(body, msg); err != nil {
				return err
			}
			r.HandleRemote(from, derefMessage(msg))
			return nil
		})
	}

	decode(sharding.KindRegister, func() sharding.Message { return &sharding.Register{} })
	decode(sharding.KindRegisterProxy, func() sharding.Message { return &sharding.RegisterProxy{} })
	decode(sharding.KindGetShardHome, func() sharding.Message { return &sharding.GetShardHome{} })
	decode(sharding.KindShardStarted, func() sharding.Message { return &sharding.ShardStarted{} })
	decode(sharding.KindBeginHandOffAck, func() sharding.Message { return &sharding.BeginHandOffAck{} })
	decode(sharding.KindShardStopped, func() sharding.Message { return &sharding.ShardStopped{} })
}

func derefMessage(msg sharding.Message) sharding.Message {
	switch m := msg.(type) {
	case *sharding.Register:
		return *m
	case *sharding.RegisterProxy:
		return *m
	case *sharding.GetShardHome:
		return *m
	case *sharding.ShardStarted:
		return *m
	case *sharding.BeginHandOffAck:
		return *m
	case *sharding.ShardStopped:
		return *m
	default:
		return msg
	}
}
