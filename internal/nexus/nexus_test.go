package nexus

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"go.uber.org/goleak"

	"aura/internal/types"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

func collectReply(mu *sync.Mutex, got *[]string) types.ReplyFunc {
	return func(result string) {
		mu.Lock()
		*got = append(*got, result)
		mu.Unlock()
	}
}

func TestDispatchOrdersByPriority(t *testing.T) {
	var mu sync.Mutex
	var order []string

	n := New(func(ctx context.Context, req *types.Request) string {
		mu.Lock()
		order = append(order, req.ID)
		mu.Unlock()
		return "ok"
	}, 16, 1)

	// Queue everything before the loop starts so heap order, not arrival
	// order, decides dispatch.
	reqs := []*types.Request{
		{ID: "proactive", Text: "a", Priority: types.PriorityProactive},
		{ID: "standard", Text: "b", Priority: types.PriorityStandard},
		{ID: "urgent", Text: "c", Priority: types.PriorityUrgent},
	}
	for _, r := range reqs {
		if err := n.Submit(r); err != nil {
			t.Fatal(err)
		}
	}

	ctx, cancel := context.WithCancel(context.Background())
	n.Start(ctx)

	deadline := time.After(5 * time.Second)
	for {
		mu.Lock()
		done := len(order) == 3
		mu.Unlock()
		if done {
			break
		}
		select {
		case <-deadline:
			t.Fatal("requests never finished")
		case <-time.After(10 * time.Millisecond):
		}
	}
	cancel()
	n.Stop()

	for i, want := range []string{"urgent", "standard", "proactive"} {
		if order[i] != want {
			t.Fatalf("dispatch order = %v", order)
		}
	}
}

func TestFullQueueShedsLowestPriority(t *testing.T) {
	// No Start: requests pile up in the queue.
	n := New(func(ctx context.Context, req *types.Request) string { return "" }, 2, 1)

	var mu sync.Mutex
	var shedReplies []string

	if err := n.Submit(&types.Request{ID: "a", Text: "x", Priority: types.PriorityStandard}); err != nil {
		t.Fatal(err)
	}
	if err := n.Submit(&types.Request{
		ID: "b", Text: "x", Priority: types.PriorityProactive,
		Reply: collectReply(&mu, &shedReplies),
	}); err != nil {
		t.Fatal(err)
	}

	// Queue full: the urgent arrival evicts the proactive entry.
	if err := n.Submit(&types.Request{ID: "c", Text: "x", Priority: types.PriorityUrgent}); err != nil {
		t.Fatalf("urgent request should displace, got %v", err)
	}

	stats := n.Telemetry()
	if stats.Shed != 1 {
		t.Errorf("shed = %d, want 1", stats.Shed)
	}
	if stats.QueueDepth != 2 {
		t.Errorf("depth = %d, want 2", stats.QueueDepth)
	}

	deadline := time.After(time.Second)
	for {
		mu.Lock()
		notified := len(shedReplies) == 1
		mu.Unlock()
		if notified {
			break
		}
		select {
		case <-deadline:
			t.Fatal("shed request never got a reply")
		case <-time.After(5 * time.Millisecond):
		}
	}
}

func TestFullQueueRejectsLowestIncoming(t *testing.T) {
	n := New(func(ctx context.Context, req *types.Request) string { return "" }, 1, 1)

	if err := n.Submit(&types.Request{ID: "a", Text: "x", Priority: types.PriorityUrgent}); err != nil {
		t.Fatal(err)
	}
	err := n.Submit(&types.Request{ID: "b", Text: "x", Priority: types.PriorityProactive})
	if err == nil {
		t.Fatal("lowest-priority arrival should be rejected when full")
	}
	if got := n.Telemetry().Rejected; got != 1 {
		t.Errorf("rejected = %d, want 1", got)
	}
}

func TestConcurrencyCap(t *testing.T) {
	var inFlight, peak atomic.Int64
	n := New(func(ctx context.Context, req *types.Request) string {
		cur := inFlight.Add(1)
		for {
			p := peak.Load()
			if cur <= p || peak.CompareAndSwap(p, cur) {
				break
			}
		}
		time.Sleep(20 * time.Millisecond)
		inFlight.Add(-1)
		return "ok"
	}, 64, 2)

	ctx, cancel := context.WithCancel(context.Background())
	n.Start(ctx)

	for i := 0; i < 8; i++ {
		if err := n.Submit(&types.Request{ID: fmt.Sprintf("r%d", i), Text: "x"}); err != nil {
			t.Fatal(err)
		}
	}

	deadline := time.After(5 * time.Second)
	for n.Telemetry().Completed < 8 {
		select {
		case <-deadline:
			t.Fatalf("only %d of 8 completed", n.Telemetry().Completed)
		case <-time.After(10 * time.Millisecond):
		}
	}
	cancel()
	n.Stop()

	if p := peak.Load(); p > 2 {
		t.Errorf("peak concurrency = %d, want <= 2", p)
	}
}

func TestHandlerPanicIsContained(t *testing.T) {
	var mu sync.Mutex
	var replies []string

	n := New(func(ctx context.Context, req *types.Request) string {
		panic("boom")
	}, 8, 1)

	ctx, cancel := context.WithCancel(context.Background())
	n.Start(ctx)

	if err := n.Submit(&types.Request{
		ID: "p", Text: "x", Reply: collectReply(&mu, &replies),
	}); err != nil {
		t.Fatal(err)
	}

	deadline := time.After(2 * time.Second)
	for {
		mu.Lock()
		got := len(replies)
		mu.Unlock()
		if got == 1 {
			break
		}
		select {
		case <-deadline:
			t.Fatal("panicking handler never replied")
		case <-time.After(5 * time.Millisecond):
		}
	}
	cancel()
	n.Stop()
}

func TestSubmitRejectsEmpty(t *testing.T) {
	n := New(func(ctx context.Context, req *types.Request) string { return "" }, 8, 1)
	if err := n.Submit(&types.Request{}); err == nil {
		t.Error("empty request should be rejected")
	}
	if err := n.Submit(nil); err == nil {
		t.Error("nil request should be rejected")
	}
}
