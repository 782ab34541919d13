package transport

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/dreamware/shardkit/internal/sharding"
)

// Envelope is the wire-level wrapper around a sharding.Message: a sender
// address plus a type tag so the receiving side's mux can route it back
// into the correct Go type before handing it to the local actor.
type Envelope struct {
	// From is the RegionRef of the sender, preserved across the hop so the
	// receiver can reply (spec.md §6's "sender preserved across a send").
	From sharding.RegionRef `json:"from"`
	// Kind names the message type ("Register", "GetShardHome", ...), used
	// by ServeMux to pick the decode target and dispatch to a handler.
	Kind string `json:"kind"`
	// Body is the JSON encoding of the message payload itself.
	Body json.RawMessage `json:"body"`
}

// httpClient is shared across every Send call for connection reuse, the
// same tradeoff the coordinator's node registration client makes.
var httpClient = &http.Client{Timeout: 5 * time.Second}

// Handler decodes an Envelope's Body into a concrete message and acts on
// it. Handlers run on the HTTP server's goroutine and must hand off to the
// owning actor's mailbox rather than blocking.
type Handler func(from sharding.RegionRef, body json.RawMessage) error

// ServeMux dispatches inbound envelopes to registered Handlers by Kind. It
// is the transport-side counterpart of a Region or Coordinator's public
// address: one ServeMux per listening node.
type ServeMux struct {
	self     sharding.RegionRef
	handlers map[string]Handler
}

// NewServeMux returns a mux with no handlers registered. self is stored on
// the mux but no method reads it; the From address of an inbound Envelope
// is whatever the sender put there.
func NewServeMux(self sharding.RegionRef) *ServeMux {
	return &ServeMux{self: self, handlers: make(map[string]Handler)}
}

// Register binds kind (as produced by the sending side's Send call) to a
// handler. Registering the same kind twice overwrites the prior handler.
func (m *ServeMux) Register(kind string, h Handler) {
	m.handlers[kind] = h
}

// ServeHTTP implements http.Handler. It expects POST requests carrying a
// JSON-encoded Envelope at the mux's tell endpoint.
func (m *ServeMux) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	var env Envelope
	if err := json.NewDecoder(r.Body).Decode(&env); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	h, ok := m.handlers[env.Kind]
	if !ok {
		http.Error(w, fmt.Sprintf("transport: no handler for %q", env.Kind), http.StatusNotFound)
		return
	}
	if err := h(env.From, env.Body); err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	w.WriteHeader(http.StatusAccepted)
}

// HealthHandler answers liveness probes from Watcher (and from any load
// balancer in front of a node). It always reports healthy once the process
// is serving; readiness is a separate concern left to the caller.
func (m *ServeMux) HealthHandler(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
}

// Send delivers msg to target's tell endpoint, tagging it with kind and
// preserving from as the reply address. It is fire-and-forget from the
// caller's perspective: any reply the receiver wants to make is itself a
// later, independent Send back to from.
func Send(ctx context.Context, target sharding.RegionRef, from sharding.RegionRef, kind string, msg sharding.Message) error {
	body, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("transport: marshal %s: %w", kind, err)
	}
	env := Envelope{From: from, Kind: kind, Body: body}
	reqBody, err := json.Marshal(env)
	if err != nil {
		return fmt.Errorf("transport: marshal envelope: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, tellURL(target), bytes.NewReader(reqBody))
	if err != nil {
		return fmt.Errorf("transport: build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("transport: send %s to %s: %w", kind, target, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		return fmt.Errorf("transport: %s to %s: http %d", kind, target, resp.StatusCode)
	}
	return nil
}

func tellURL(target sharding.RegionRef) string {
	return string(target) + "/sharding/tell"
}

func healthURL(target sharding.RegionRef) string {
	return string(target) + "/sharding/health"
}
