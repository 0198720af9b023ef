package component

import (
	"context"
	"strconv"
	"sync"
	"time"

	"github.com/c360/maf/queue"
)

// TimerManager schedules one-shot and cyclic timers for a single
// Component. Timers fire on their own goroutine (via time.AfterFunc) but
// only ever invoke user callbacks on the owning Component's loop, by
// posting a TimeoutMessage and letting handleTimeout run it from there.
//
// A timer stopped after it has already fired but before its
// TimeoutMessage has been delivered is tolerated: handleTimeout checks
// the stopped set first and silently drops the stale delivery.
type TimerManager struct {
	comp *Component

	mu      sync.Mutex
	timers  map[uint64]*timerState
	stopped map[uint64]bool
	nextID  uint64
	closed  bool
}

type timerState struct {
	cyclic    bool
	interval  time.Duration
	callback  func()
	fireCount int
	maxFires  int // 0 means unlimited
	t         *time.Timer
}

func newTimerManager(c *Component) *TimerManager {
	return &TimerManager{
		comp:    c,
		timers:  make(map[uint64]*timerState),
		stopped: make(map[uint64]bool),
	}
}

func (tm *TimerManager) start(_ context.Context) {}

// stop cancels every outstanding timer. Called once from Component.Run
// after the message loop exits.
func (tm *TimerManager) stop() {
	tm.mu.Lock()
	tm.closed = true
	for _, st := range tm.timers {
		st.t.Stop()
	}
	tm.timers = make(map[uint64]*timerState)
	tm.mu.Unlock()
	tm.recordTimersActive(0)
}

// StartOnce schedules callback to run once, after delay, on the
// Component's loop. It returns the timer ID.
func (tm *TimerManager) StartOnce(delay time.Duration, callback func()) uint64 {
	return tm.schedule(delay, false, 0, callback)
}

// StartCyclic schedules callback to run every interval, indefinitely,
// until Stop is called.
func (tm *TimerManager) StartCyclic(interval time.Duration, callback func()) uint64 {
	return tm.schedule(interval, true, 0, callback)
}

// StartCyclicN schedules callback to run every interval, for at most n
// firings, after which the timer stops itself.
func (tm *TimerManager) StartCyclicN(interval time.Duration, n int, callback func()) uint64 {
	return tm.schedule(interval, true, n, callback)
}

func (tm *TimerManager) schedule(interval time.Duration, cyclic bool, maxFires int, callback func()) uint64 {
	tm.mu.Lock()
	if tm.closed {
		tm.mu.Unlock()
		return 0
	}
	tm.nextID++
	id := tm.nextID
	st := &timerState{cyclic: cyclic, interval: interval, maxFires: maxFires, callback: callback}
	tm.timers[id] = st
	tm.arm(id, st, interval)
	count := len(tm.timers)
	tm.mu.Unlock()
	tm.recordTimersActive(count)
	return id
}

// recordTimersActive reports the current number of scheduled timers, if
// the owning Component has metrics enabled. Must be called without tm.mu
// held.
func (tm *TimerManager) recordTimersActive(count int) {
	if tm.comp == nil || tm.comp.metrics == nil {
		return
	}
	tm.comp.metrics.TimersActive.WithLabelValues(strconv.FormatUint(tm.comp.id, 10)).Set(float64(count))
}

// arm must be called with tm.mu held.
func (tm *TimerManager) arm(id uint64, st *timerState, delay time.Duration) {
	st.t = time.AfterFunc(delay, func() { tm.fire(id) })
}

// fire runs on the timer's own goroutine. It decides whether a cyclic
// timer reschedules, then hands off to the Component's loop.
func (tm *TimerManager) fire(id uint64) {
	tm.mu.Lock()
	st, ok := tm.timers[id]
	if !ok || tm.closed {
		tm.mu.Unlock()
		return
	}
	st.fireCount++
	if st.cyclic && (st.maxFires == 0 || st.fireCount < st.maxFires) {
		tm.arm(id, st, st.interval)
	}
	tm.mu.Unlock()

	tm.comp.Post(TimeoutMessage{TimerID: id}, queue.PriorityTimeout)
}

// Stop cancels the timer with the given ID. If it has already fired but
// its TimeoutMessage has not yet been delivered, the pending delivery is
// dropped when it arrives.
func (tm *TimerManager) Stop(id uint64) {
	tm.mu.Lock()
	if st, ok := tm.timers[id]; ok {
		st.t.Stop()
		delete(tm.timers, id)
	}
	tm.stopped[id] = true
	count := len(tm.timers)
	tm.mu.Unlock()
	tm.recordTimersActive(count)
}

// Restart re-arms the timer with the given ID using its original interval,
// resetting its fire count as if it had just been started. It reports
// false if no timer with that ID is currently running.
func (tm *TimerManager) Restart(id uint64) bool {
	tm.mu.Lock()
	defer tm.mu.Unlock()
	st, ok := tm.timers[id]
	if !ok || tm.closed {
		return false
	}
	st.t.Stop()
	st.fireCount = 0
	tm.arm(id, st, st.interval)
	return true
}

// SetCyclic changes whether the timer with the given ID repeats after it
// next fires, without affecting a firing already in flight. It reports
// false if no timer with that ID is currently running.
func (tm *TimerManager) SetCyclic(id uint64, cyclic bool) bool {
	tm.mu.Lock()
	defer tm.mu.Unlock()
	st, ok := tm.timers[id]
	if !ok {
		return false
	}
	st.cyclic = cyclic
	if cyclic {
		st.maxFires = 0
	}
	return true
}

// IsRunning reports whether the timer with the given ID is still
// scheduled: started, not yet Stop'd, and (for a bounded cyclic timer)
// not yet exhausted its fire count.
func (tm *TimerManager) IsRunning(id uint64) bool {
	tm.mu.Lock()
	defer tm.mu.Unlock()
	_, ok := tm.timers[id]
	return ok && !tm.closed
}

// handleTimeout runs on the Component's loop when a TimeoutMessage is
// popped from the queue.
func (tm *TimerManager) handleTimeout(msg TimeoutMessage) {
	tm.mu.Lock()
	if tm.stopped[msg.TimerID] {
		delete(tm.stopped, msg.TimerID)
		tm.mu.Unlock()
		return
	}

	st, ok := tm.timers[msg.TimerID]
	if !ok {
		tm.mu.Unlock()
		return
	}
	continuing := st.cyclic && (st.maxFires == 0 || st.fireCount < st.maxFires)
	if !continuing {
		delete(tm.timers, msg.TimerID)
	}
	cb := st.callback
	count := len(tm.timers)
	tm.mu.Unlock()
	if !continuing {
		tm.recordTimersActive(count)
	}

	cb()
}
