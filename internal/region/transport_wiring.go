package region

import (
	"encoding/json"

	"github.com/dreamware/shardkit/internal/sharding"
	"github.com/dreamware/shardkit/internal/transport"
)

// marshalMessage is the sending side of Forwarded.Body: it encodes an
// application message so it can be carried as opaque JSON to the region
// that actually owns the shard.
func marshalMessage(msg sharding.Message) (json.RawMessage, error) {
	return json.Marshal(msg)
}

// attachDecoders registers one handler per Kind a Region can receive,
// decoding each Envelope body into its concrete type before handing it to
// r.HandleRemote.
func attachDecoders(mux *transport.ServeMux, r *Region) {
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

	decode(sharding.KindRegisterAck, func() sharding.Message { return &sharding.RegisterAck{} })
	decode(sharding.KindShardHome, func() sharding.Message { return &sharding.ShardHome{} })
	decode(sharding.KindHostShard, func() sharding.Message { return &sharding.HostShard{} })
	decode(sharding.KindBeginHandOff, func() sharding.Message { return &sharding.BeginHandOff{} })
	decode(sharding.KindHandOff, func() sharding.Message { return &sharding.HandOff{} })
	decode(sharding.KindForward, func() sharding.Message { return &Forwarded{} })
}

// derefMessage unwraps the pointer newMsg allocated so handleRemote's type
// switch matches against the plain value types the rest of the package
// works with.
func derefMessage(msg sharding.Message) sharding.Message {
	switch m := msg.(type) {
	case *sharding.RegisterAck:
		return *m
	case *sharding.ShardHome:
		return *m
	case *sharding.HostShard:
		return *m
	case *sharding.BeginHandOff:
		return *m
	case *sharding.HandOff:
		return *m
	case *Forwarded:
		return *m
	default:
		return msg
	}
}
