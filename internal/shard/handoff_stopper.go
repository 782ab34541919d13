package shard

import (
	"github.com/dreamware/shardkit/internal/actorkit"
	"github.com/dreamware/shardkit/internal/sharding"
)

// handoffStopper is the Handoff-Stopper from spec.md §4.3: given a shard id,
// a reply target and the entry set live at the moment handoff began, it
// watches every entry, sends each the shutdown message, and once all have
// terminated replies ShardStopped to replyTo and stops itself. There is no
// timeout here by design: the coordinator's Rebalance Worker is the unit
// that enforces handOffTimeout.
type handoffStopper struct {
	shardID sharding.ShardId
	replyTo actorkit.Ref
	mailbox *actorkit.Mailbox
	sys     *actorkit.System
}

func startHandoffStopper(sys *actorkit.System, shardID sharding.ShardId, replyTo actorkit.Ref, entries []*entryUnit, stopMsg sharding.Message) *handoffStopper {
	h := &handoffStopper{
		shardID: shardID,
		replyTo: replyTo,
		mailbox: actorkit.NewMailbox("handoff-"+string(shardID), len(entries)+1),
		sys:     sys,
	}
	go h.run(entries, stopMsg)
	return h
}

func (h *handoffStopper) run(entries []*entryUnit, stopMsg sharding.Message) {
	defer h.mailbox.Close(h.sys)

	remaining := len(entries)
	if remaining == 0 {
		h.replyTo.Send(sharding.ShardStopped{Shard: h.shardID}, h.mailbox.Ref())
		return
	}

	self := h.mailbox.Ref()
	for _, e := range entries {
		h.sys.Watch(e.ref(), self)
		if stopMsg != nil {
			e.ref().Send(stopMsg, self)
		} else {
			e.ref().Send(stopEntry{}, self)
		}
	}

	for env := range h.mailbox.C() {
		if _, ok := env.Msg.(sharding.Terminated); ok {
			remaining--
			if remaining <= 0 {
				h.replyTo.Send(sharding.ShardStopped{Shard: h.shardID}, self)
				return
			}
		}
	}
}
