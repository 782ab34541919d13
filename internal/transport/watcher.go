package transport

import (
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/dreamware/shardkit/internal/sharding"
)

// Watcher polls a remote RegionRef's health endpoint and reports it
// Terminated after a run of consecutive failures, approximating the
// death-watch contract spec.md §6 asks of the local actorkit.System for
// cross-process peers. It is adapted from the coordinator's HealthMonitor:
// same ticker-plus-context shutdown shape, generalized from "mark node
// unhealthy, trigger redistribution" into "notify watchers that a specific
// RegionRef is gone."
//
// This is strictly weaker than a push-based watch: a peer that crashes
// between polls is detected only at the next tick, and a peer behind a
// network partition looks identical to a dead one. Callers that need
// tighter bounds should shorten Interval at the cost of poll traffic.
type Watcher struct {
	client      *http.Client
	interval    time.Duration
	maxFailures int

	mu       sync.Mutex
	fails    map[sharding.RegionRef]int
	watchers map[sharding.RegionRef][]func(sharding.RegionRef)

	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewWatcher returns a Watcher that polls every interval and declares a
// target Terminated after maxFailures consecutive failed health checks.
func NewWatcher(interval time.Duration, maxFailures int) *Watcher {
	return &Watcher{
		client:      &http.Client{Timeout: 2 * time.Second},
		interval:    interval,
		maxFailures: maxFailures,
		fails:       make(map[sharding.RegionRef]int),
		watchers:    make(map[sharding.RegionRef][]func(sharding.RegionRef)),
	}
}

// Watch registers onTerminated to be called (at most once per Watch call)
// once target fails maxFailures consecutive health checks.
func (w *Watcher) Watch(target sharding.RegionRef, onTerminated func(sharding.RegionRef)) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if _, tracked := w.fails[target]; !tracked {
		w.fails[target] = 0
	}
	w.watchers[target] = append(w.watchers[target], onTerminated)
}

// Unwatch removes every watcher registered for target.
func (w *Watcher) Unwatch(target sharding.RegionRef) {
	w.mu.Lock()
	defer w.mu.Unlock()
	delete(w.watchers, target)
	delete(w.fails, target)
}

// Start begins polling in the current goroutine until ctx is canceled.
func (w *Watcher) Start(ctx context.Context) {
	ctx, cancel := context.WithCancel(ctx)
	w.cancel = cancel
	w.wg.Add(1)
	defer w.wg.Done()

	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			w.pollAll()
		case <-ctx.Done():
			return
		}
	}
}

// Stop cancels polling and waits for Start to return.
func (w *Watcher) Stop() {
	if w.cancel != nil {
		w.cancel()
	}
	w.wg.Wait()
}

func (w *Watcher) pollAll() {
	w.mu.Lock()
	targets := make([]sharding.RegionRef, 0, len(w.fails))
	for t := range w.fails {
		targets = append(targets, t)
	}
	w.mu.Unlock()

	for _, t := range targets {
		w.poll(t)
	}
}

func (w *Watcher) poll(target sharding.RegionRef) {
	resp, err := w.client.Get(healthURL(target))
	healthy := err == nil
	if resp != nil {
		healthy = healthy && resp.StatusCode == http.StatusOK
		resp.Body.Close()
	}

	w.mu.Lock()
	if healthy {
		w.fails[target] = 0
		w.mu.Unlock()
		return
	}
	w.fails[target]++
	terminated := w.fails[target] >= w.maxFailures
	var callbacks []func(sharding.RegionRef)
	if terminated {
		callbacks = w.watchers[target]
		delete(w.watchers, target)
		delete(w.fails, target)
	}
	w.mu.Unlock()

	for _, cb := range callbacks {
		cb(target)
	}
}
