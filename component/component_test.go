package component

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/c360/maf/queue"
)

type recordingDispatcher struct {
	mu    sync.Mutex
	items []any
}

func (d *recordingDispatcher) Dispatch(_ context.Context, item any) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.items = append(d.items, item)
}

func (d *recordingDispatcher) snapshot() []any {
	d.mu.Lock()
	defer d.mu.Unlock()
	out := make([]any, len(d.items))
	copy(out, d.items)
	return out
}

func TestComponentDispatchesInFIFOOrder(t *testing.T) {
	d := &recordingDispatcher{}
	c := New(1, d)

	done := make(chan struct{})
	go func() {
		_ = c.Run(context.Background())
		close(done)
	}()

	c.Post("a", queue.PriorityNormal)
	c.Post("b", queue.PriorityNormal)
	c.Post("c", queue.PriorityNormal)
	c.Stop()
	<-done

	items := d.snapshot()
	if len(items) != 3 || items[0] != "a" || items[1] != "b" || items[2] != "c" {
		t.Fatalf("unexpected dispatch order: %v", items)
	}
}

func TestFromContextInsideDispatch(t *testing.T) {
	var resolved *Component
	d := dispatcherFunc(func(ctx context.Context, item any) {
		resolved = FromContext(ctx)
	})
	c := New(7, d)

	done := make(chan struct{})
	go func() {
		_ = c.Run(context.Background())
		close(done)
	}()
	c.Post("x", queue.PriorityNormal)
	c.Stop()
	<-done

	if resolved == nil || resolved.ID() != 7 {
		t.Fatalf("expected to resolve component 7, got %v", resolved)
	}
}

func TestFromContextPanicsOffLoop(t *testing.T) {
	defer func() {
		if r := recover(); r == nil {
			t.Fatal("expected panic calling FromContext outside a Run loop")
		}
	}()
	FromContext(context.Background())
}

func TestTimerFiresOnComponentLoop(t *testing.T) {
	d := &recordingDispatcher{}
	c := New(1, d)

	var fired atomic.Int32
	done := make(chan struct{})
	go func() {
		_ = c.Run(context.Background())
		close(done)
	}()

	c.Timers().StartOnce(10*time.Millisecond, func() {
		fired.Add(1)
	})

	time.Sleep(100 * time.Millisecond)
	c.Stop()
	<-done

	if fired.Load() != 1 {
		t.Fatalf("expected timer to fire exactly once, got %d", fired.Load())
	}
}

func TestCyclicTimerFiresFixedCountThenStops(t *testing.T) {
	d := &recordingDispatcher{}
	c := New(1, d)

	var fired atomic.Int32
	done := make(chan struct{})
	go func() {
		_ = c.Run(context.Background())
		close(done)
	}()

	c.Timers().StartCyclicN(5*time.Millisecond, 5, func() {
		fired.Add(1)
	})

	time.Sleep(150 * time.Millisecond)
	c.Stop()
	<-done

	if fired.Load() != 5 {
		t.Fatalf("expected exactly 5 firings, got %d", fired.Load())
	}
}

func TestStoppedTimerDoesNotFire(t *testing.T) {
	d := &recordingDispatcher{}
	c := New(1, d)

	var fired atomic.Int32
	done := make(chan struct{})
	go func() {
		_ = c.Run(context.Background())
		close(done)
	}()

	id := c.Timers().StartOnce(50*time.Millisecond, func() {
		fired.Add(1)
	})
	c.Timers().Stop(id)

	time.Sleep(100 * time.Millisecond)
	c.Stop()
	<-done

	if fired.Load() != 0 {
		t.Fatalf("expected stopped timer not to fire, got %d firings", fired.Load())
	}
}

func TestRestartReArmsTimer(t *testing.T) {
	d := &recordingDispatcher{}
	c := New(1, d)

	var fired atomic.Int32
	done := make(chan struct{})
	go func() {
		_ = c.Run(context.Background())
		close(done)
	}()

	id := c.Timers().StartOnce(200*time.Millisecond, func() {
		fired.Add(1)
	})

	time.Sleep(50 * time.Millisecond)
	if !c.Timers().Restart(id) {
		t.Fatal("expected Restart to report the timer as running")
	}

	// The original 200ms delay would have fired by 220ms; Restart pushed
	// that out another 200ms from the 50ms mark.
	time.Sleep(200 * time.Millisecond)
	if fired.Load() != 0 {
		t.Fatalf("expected Restart to delay firing, but it already fired %d times", fired.Load())
	}

	time.Sleep(100 * time.Millisecond)
	c.Stop()
	<-done

	if fired.Load() != 1 {
		t.Fatalf("expected exactly one firing after restart, got %d", fired.Load())
	}
}

func TestRestartUnknownTimerReturnsFalse(t *testing.T) {
	d := &recordingDispatcher{}
	c := New(1, d)
	if c.Timers().Restart(999) {
		t.Fatal("expected Restart of an unknown timer ID to return false")
	}
}

func TestSetCyclicStopsFutureRepeats(t *testing.T) {
	d := &recordingDispatcher{}
	c := New(1, d)

	var fired atomic.Int32
	done := make(chan struct{})
	go func() {
		_ = c.Run(context.Background())
		close(done)
	}()

	id := c.Timers().StartCyclic(10*time.Millisecond, func() {
		fired.Add(1)
	})

	time.Sleep(25 * time.Millisecond)
	if !c.Timers().SetCyclic(id, false) {
		t.Fatal("expected SetCyclic to report the timer as running")
	}

	time.Sleep(50 * time.Millisecond)
	count := fired.Load()
	if count == 0 {
		t.Fatal("expected at least one firing before SetCyclic(false) took effect")
	}

	time.Sleep(50 * time.Millisecond)
	if fired.Load() != count {
		t.Fatalf("expected no further firings after SetCyclic(false), went from %d to %d", count, fired.Load())
	}

	c.Stop()
	<-done
}

func TestIsRunningReflectsTimerLifecycle(t *testing.T) {
	d := &recordingDispatcher{}
	c := New(1, d)

	id := c.Timers().StartOnce(time.Hour, func() {})
	if !c.Timers().IsRunning(id) {
		t.Fatal("expected newly started timer to report running")
	}

	c.Timers().Stop(id)
	if c.Timers().IsRunning(id) {
		t.Fatal("expected stopped timer to report not running")
	}

	if c.Timers().IsRunning(999) {
		t.Fatal("expected unknown timer ID to report not running")
	}
}

type dispatcherFunc func(ctx context.Context, item any)

func (f dispatcherFunc) Dispatch(ctx context.Context, item any) { f(ctx, item) }
