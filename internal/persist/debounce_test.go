package persist

import (
	"sync/atomic"
	"testing"
	"time"
)

func TestDebounceCoalesces(t *testing.T) {
	var saves int64
	d := New(func() error {
		atomic.AddInt64(&saves, 1)
		return nil
	}, 30*time.Millisecond, 200*time.Millisecond)

	for i := 0; i < 5; i++ {
		d.MarkDirty()
		time.Sleep(5 * time.Millisecond)
	}

	time.Sleep(100 * time.Millisecond)
	if got := atomic.LoadInt64(&saves); got != 1 {
		t.Errorf("expected 1 coalesced save, got %d", got)
	}
}

func TestMaxDelayBound(t *testing.T) {
	var saves int64
	d := New(func() error {
		atomic.AddInt64(&saves, 1)
		return nil
	}, 40*time.Millisecond, 100*time.Millisecond)

	// Keep resetting the quiet window past maxDelay.
	deadline := time.Now().Add(250 * time.Millisecond)
	for time.Now().Before(deadline) {
		d.MarkDirty()
		time.Sleep(10 * time.Millisecond)
	}

	time.Sleep(60 * time.Millisecond)
	if got := atomic.LoadInt64(&saves); got < 2 {
		t.Errorf("max delay should have forced at least 2 saves during sustained writes, got %d", got)
	}
}

func TestFlushImmediate(t *testing.T) {
	var saves int64
	d := New(func() error {
		atomic.AddInt64(&saves, 1)
		return nil
	}, time.Hour, 2*time.Hour)

	d.MarkDirty()
	if err := d.Flush(); err != nil {
		t.Fatalf("Flush failed: %v", err)
	}
	if got := atomic.LoadInt64(&saves); got != 1 {
		t.Errorf("expected immediate save on flush, got %d", got)
	}
}

func TestFlushCleanIsNoop(t *testing.T) {
	var saves int64
	d := New(func() error {
		atomic.AddInt64(&saves, 1)
		return nil
	}, 10*time.Millisecond, 50*time.Millisecond)

	if err := d.Flush(); err != nil {
		t.Fatalf("Flush failed: %v", err)
	}
	if got := atomic.LoadInt64(&saves); got != 0 {
		t.Errorf("flush without dirty state should not save, got %d", got)
	}
}

func TestStopCancelsPending(t *testing.T) {
	var saves int64
	d := New(func() error {
		atomic.AddInt64(&saves, 1)
		return nil
	}, 20*time.Millisecond, 100*time.Millisecond)

	d.MarkDirty()
	d.Stop()
	time.Sleep(60 * time.Millisecond)
	if got := atomic.LoadInt64(&saves); got != 0 {
		t.Errorf("stop should cancel pending save, got %d", got)
	}
}
