// Package nexus is the inbound multiplexer: every ingress (CLI, HTTP, chat,
// missions) submits requests here. A bounded priority queue orders them and a
// weighted semaphore caps how many run through the controller at once.
package nexus

import (
	"container/heap"
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sync/semaphore"

	"aura/internal/logging"
	"aura/internal/types"
)

// Handler processes one dispatched request and returns the reply text.
type Handler func(ctx context.Context, req *types.Request) string

// Stats is a snapshot of nexus telemetry.
type Stats struct {
	Enqueued   int64
	Dispatched int64
	Completed  int64
	Shed       int64
	Rejected   int64
	QueueDepth int
}

// item wraps a request with a monotonic sequence so equal priorities stay FIFO.
type item struct {
	req *types.Request
	seq uint64
}

// requestHeap orders by priority (lower value first), then arrival.
type requestHeap []*item

func (h requestHeap) Len() int { return len(h) }
func (h requestHeap) Less(i, j int) bool {
	if h[i].req.Priority != h[j].req.Priority {
		return h[i].req.Priority < h[j].req.Priority
	}
	return h[i].seq < h[j].seq
}
func (h requestHeap) Swap(i, j int) { h[i], h[j] = h[j], h[i] }
func (h *requestHeap) Push(x interface{}) {
	*h = append(*h, x.(*item))
}
func (h *requestHeap) Pop() interface{} {
	old := *h
	n := len(old)
	it := old[n-1]
	old[n-1] = nil
	*h = old[:n-1]
	return it
}

// Nexus owns the queue and the dispatch loop.
type Nexus struct {
	handler Handler
	bound   int
	sem     *semaphore.Weighted

	mu    sync.Mutex
	queue requestHeap
	seq   uint64
	wake  chan struct{}

	running atomic.Bool
	wg      sync.WaitGroup

	enqueued   atomic.Int64
	dispatched atomic.Int64
	completed  atomic.Int64
	shed       atomic.Int64
	rejected   atomic.Int64
}

// New builds a nexus. bound caps queue depth; maxConcurrent caps in-flight
// controller invocations.
func New(handler Handler, bound, maxConcurrent int) *Nexus {
	if bound < 1 {
		bound = 64
	}
	if maxConcurrent < 1 {
		maxConcurrent = 4
	}
	return &Nexus{
		handler: handler,
		bound:   bound,
		sem:     semaphore.NewWeighted(int64(maxConcurrent)),
		wake:    make(chan struct{}, 1),
	}
}

// Submit enqueues a request. When the queue is full the lowest-priority entry
// is shed to make room; if the incoming request itself is the lowest, it is
// rejected instead.
func (n *Nexus) Submit(req *types.Request) error {
	if req == nil || req.Text == "" {
		return fmt.Errorf("empty request")
	}
	if req.Enqueued.IsZero() {
		req.Enqueued = time.Now()
	}

	n.mu.Lock()
	if len(n.queue) >= n.bound {
		victim := n.lowestLocked()
		if victim == nil || victim.req.Priority <= req.Priority {
			n.mu.Unlock()
			n.rejected.Add(1)
			logging.NexusWarn("queue full, rejecting %s request from %s", priorityName(req.Priority), req.Source)
			return fmt.Errorf("queue full")
		}
		n.removeLocked(victim)
		n.shed.Add(1)
		logging.NexusWarn("queue full, shed %s request %s for %s request %s",
			priorityName(victim.req.Priority), victim.req.ID, priorityName(req.Priority), req.ID)
		if victim.req.Reply != nil {
			go victim.req.Reply("I had to drop this request under load. Please ask again.")
		}
	}
	n.seq++
	heap.Push(&n.queue, &item{req: req, seq: n.seq})
	n.mu.Unlock()

	n.enqueued.Add(1)
	select {
	case n.wake <- struct{}{}:
	default:
	}
	return nil
}

// Start runs the dispatch loop until ctx is cancelled.
func (n *Nexus) Start(ctx context.Context) {
	if !n.running.CompareAndSwap(false, true) {
		return
	}
	n.wg.Add(1)
	go func() {
		defer n.wg.Done()
		logging.Nexus("dispatch loop up (bound=%d)", n.bound)
		for {
			it := n.pop()
			if it == nil {
				select {
				case <-ctx.Done():
					return
				case <-n.wake:
					continue
				}
			}
			if err := n.sem.Acquire(ctx, 1); err != nil {
				return
			}
			n.dispatched.Add(1)
			n.wg.Add(1)
			go n.process(ctx, it.req)
		}
	}()
}

func (n *Nexus) process(ctx context.Context, req *types.Request) {
	defer n.wg.Done()
	defer n.sem.Release(1)
	defer func() {
		if r := recover(); r != nil {
			logging.NexusError("handler panic on request %s: %v", req.ID, r)
			if req.Reply != nil {
				req.Reply("Something went badly wrong handling that. It has been logged.")
			}
		}
	}()

	waited := time.Since(req.Enqueued)
	logging.NexusDebug("dispatch %s from %s after %v in queue", req.ID, req.Source, waited)
	result := n.handler(ctx, req)
	n.completed.Add(1)
	if req.Reply != nil {
		req.Reply(result)
	}
}

// Stop waits for the loop and all in-flight requests to finish. Call after
// cancelling the Start context.
func (n *Nexus) Stop() {
	n.wg.Wait()
	n.running.Store(false)
	logging.Nexus("dispatch loop down")
}

// Telemetry returns current counters.
func (n *Nexus) Telemetry() Stats {
	n.mu.Lock()
	depth := len(n.queue)
	n.mu.Unlock()
	return Stats{
		Enqueued:   n.enqueued.Load(),
		Dispatched: n.dispatched.Load(),
		Completed:  n.completed.Load(),
		Shed:       n.shed.Load(),
		Rejected:   n.rejected.Load(),
		QueueDepth: depth,
	}
}

func (n *Nexus) pop() *item {
	n.mu.Lock()
	defer n.mu.Unlock()
	if len(n.queue) == 0 {
		return nil
	}
	return heap.Pop(&n.queue).(*item)
}

// lowestLocked finds the entry with the worst (highest-valued) priority.
func (n *Nexus) lowestLocked() *item {
	var worst *item
	for _, it := range n.queue {
		if worst == nil || it.req.Priority > worst.req.Priority ||
			(it.req.Priority == worst.req.Priority && it.seq > worst.seq) {
			worst = it
		}
	}
	return worst
}

func (n *Nexus) removeLocked(target *item) {
	for i, it := range n.queue {
		if it == target {
			heap.Remove(&n.queue, i)
			return
		}
	}
}

func priorityName(p types.Priority) string {
	switch p {
	case types.PriorityUrgent:
		return "urgent"
	case types.PriorityProactive:
		return "proactive"
	default:
		return "standard"
	}
}
