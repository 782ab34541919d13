// Package actorkit is the single-threaded cooperative-unit substrate used
// by every long-lived component in this module (Coordinator, Region, Shard,
// Handoff-Stopper, Rebalance Worker, Entry). Each unit owns exactly one
// Mailbox and processes one Envelope at a time on a dedicated goroutine, so
// its state never needs locking (spec.md §5).
//
// Units reference each other through Ref, a small comparable handle rather
// than an owning pointer (spec.md §9 "cyclic ownership"): a Ref can be put
// in a map, compared with ==, and stays valid after the unit it names has
// stopped (sends to a dead mailbox are simply dropped).
//
// Cross-process communication (Region-to-Region, Region-to-Coordinator) is
// not modeled here — it goes over internal/transport instead, which adapts
// network peers into the same Envelope shape local units consume. This
// package only covers what happens inside one OS process.
package actorkit
