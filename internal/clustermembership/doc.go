// Package clustermembership defines the "Cluster membership (collaborator)"
// interface from spec.md §6 — a snapshot of up members, a stream of
// MemberUp/MemberRemoved events, a role query, and an age ordering used for
// coordinator-singleton placement — plus a gossip-backed implementation on
// github.com/hashicorp/memberlist and an in-memory test double.
package clustermembership
