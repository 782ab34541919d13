// Package transport is the location-transparent message send collaborator
// from spec.md §6: HTTP/JSON delivery between nodes with sender
// preservation, plus a liveness-polling Watcher that approximates the same
// collaborator's death-watch contract (true push-based death watch isn't
// available over plain HTTP without a persistent connection; see Watcher's
// doc comment for the tradeoff this makes).
//
// It is adapted from the teacher's internal/cluster package (PostJSON/
// GetJSON, and the coordinator's health monitor): the request/response
// shape is generalized from "coordinator talks to nodes" into "any two
// addressable units tell each other a sharding.* message", which is what
// internal/region and internal/coordinator need to exchange the
// wire-observable messages spec.md §6 names.
package transport
