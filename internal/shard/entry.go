package shard

import (
	"github.com/dreamware/shardkit/internal/actorkit"
	"github.com/dreamware/shardkit/internal/sharding"
)

// stopEntry is the default poison-pill sent to an entry's mailbox, used
// both for Handoff-Stopper's shutdown and for passivation when the
// application supplies no specific stop message.
type stopEntry struct{}

// entryUnit is one live Entry: a goroutine draining its own mailbox,
// calling into the application-supplied sharding.EntryHandler for every
// payload, until it sees stopEntry (or the mailbox's owner closes it).
type entryUnit struct {
	id      sharding.EntryId
	handler sharding.EntryHandler
	mailbox *actorkit.Mailbox
}

func startEntry(sys *actorkit.System, id sharding.EntryId, handler sharding.EntryHandler, bufferSize int) *entryUnit {
	mb := actorkit.NewMailbox(string(id), bufferSize)
	u := &entryUnit{id: id, handler: handler, mailbox: mb}
	go u.run(sys)
	return u
}

func (u *entryUnit) run(sys *actorkit.System) {
	defer u.mailbox.Close(sys)
	for env := range u.mailbox.C() {
		if _, stop := env.Msg.(stopEntry); stop {
			_ = u.handler.Stop()
			return
		}
		_ = u.handler.Receive(env.Msg)
	}
}

func (u *entryUnit) ref() actorkit.Ref { return u.mailbox.Ref() }
