package component

import (
	"context"
	"fmt"
	"strconv"
	"sync"
	"time"

	"github.com/c360/maf/metric"
	"github.com/c360/maf/queue"
)

// Dispatcher handles the items a Component pops off its queue. Post
// accepts any value; it is the Dispatcher's job to type-switch on it
// (typically csmsg.Message and component.TimeoutMessage).
type Dispatcher interface {
	Dispatch(ctx context.Context, item any)
}

// Component is a single-threaded message-loop executor: exactly one
// goroutine, started by Run, pops items from its MessageQueue and hands
// them to its Dispatcher in priority then FIFO order.
type Component struct {
	id         uint64
	q          *queue.MessageQueue
	dispatcher Dispatcher
	timers     *TimerManager

	mu         sync.Mutex
	state      State
	startedAt  time.Time
	lastError  string
	errorCount int
	lastCheck  time.Time

	metrics *metric.Metrics
}

// Option configures optional Component behavior at construction.
type Option func(*Component)

// WithMetrics records this component's queue depth, active timer count and
// dispatch error rate to m, labeled by its ID.
func WithMetrics(m *metric.Metrics) Option {
	return func(c *Component) { c.metrics = m }
}

// HealthStatus is a point-in-time snapshot of a Component's health, for
// conversion into a health.Status by the health package.
type HealthStatus struct {
	Healthy    bool
	LastError  string
	Uptime     time.Duration
	ErrorCount int
	LastCheck  time.Time
}

// New constructs a Component with the given ID and Dispatcher. The
// Component owns a fresh MessageQueue and TimerManager; call Run to start
// draining it.
func New(id uint64, dispatcher Dispatcher, opts ...Option) *Component {
	c := &Component{
		id:         id,
		q:          queue.New(),
		dispatcher: dispatcher,
		state:      StateCreated,
	}
	for _, opt := range opts {
		opt(c)
	}
	c.timers = newTimerManager(c)
	return c
}

// ID returns the component's identifier.
func (c *Component) ID() uint64 { return c.id }

// Timers returns the component's TimerManager.
func (c *Component) Timers() *TimerManager { return c.timers }

// State returns the component's current lifecycle state.
func (c *Component) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Post enqueues item for delivery to the Dispatcher at priority. Safe to
// call from any goroutine, including the Component's own loop.
func (c *Component) Post(item any, priority queue.Priority) {
	c.q.Push(item, priority)
	if c.metrics != nil {
		c.metrics.SetQueueDepth(strconv.FormatUint(c.id, 10), float64(c.q.Len()))
	}
}

// Run drains the message queue on the calling goroutine until Stop is
// called or ctx is cancelled. It returns once the queue is closed and
// drained. Run must be called at most once per Component.
func (c *Component) Run(ctx context.Context) error {
	c.mu.Lock()
	if c.state != StateCreated {
		c.mu.Unlock()
		return fmt.Errorf("component %d: Run called in state %s", c.id, c.state)
	}
	c.state = StateRunning
	c.startedAt = time.Now()
	c.mu.Unlock()

	ctx = withComponent(ctx, c)
	c.timers.start(ctx)

	done := make(chan struct{})
	if ctx.Done() != nil {
		go func() {
			select {
			case <-ctx.Done():
				c.Stop()
			case <-done:
			}
		}()
		defer close(done)
	}

	for {
		item, ok := c.q.Pop()
		if !ok {
			break
		}
		if c.metrics != nil {
			c.metrics.SetQueueDepth(strconv.FormatUint(c.id, 10), float64(c.q.Len()))
		}
		if t, isTimeout := item.(TimeoutMessage); isTimeout {
			c.timers.handleTimeout(t)
			continue
		}
		c.dispatcher.Dispatch(ctx, item)
	}

	c.timers.stop()

	c.mu.Lock()
	c.state = StateStopped
	c.mu.Unlock()
	return nil
}

// Stop closes the message queue, causing Run to drain remaining items and
// return. Stop is safe to call multiple times and from any goroutine.
func (c *Component) Stop() {
	c.mu.Lock()
	if c.state == StateRunning {
		c.state = StateStopping
	}
	c.mu.Unlock()
	c.q.Close()
}

// QueueLen returns the number of items currently queued, for diagnostics
// and tests.
func (c *Component) QueueLen() int { return c.q.Len() }

// RecordError records err as the component's most recent dispatch failure.
// A Dispatcher calls this from within Dispatch; it does not affect the
// message loop itself.
func (c *Component) RecordError(err error) {
	c.mu.Lock()
	c.lastError = err.Error()
	c.errorCount++
	c.lastCheck = time.Now()
	c.mu.Unlock()
	if c.metrics != nil {
		c.metrics.RecordDispatchError(strconv.FormatUint(c.id, 10))
	}
}

// Health returns a snapshot of the component's current health: running,
// with no dispatch error ever recorded, counts as healthy.
func (c *Component) Health() HealthStatus {
	c.mu.Lock()
	defer c.mu.Unlock()
	var uptime time.Duration
	if !c.startedAt.IsZero() {
		uptime = time.Since(c.startedAt)
	}
	lastCheck := c.lastCheck
	if lastCheck.IsZero() {
		lastCheck = time.Now()
	}
	return HealthStatus{
		Healthy:    c.lastError == "" && c.state == StateRunning,
		LastError:  c.lastError,
		Uptime:     uptime,
		ErrorCount: c.errorCount,
		LastCheck:  lastCheck,
	}
}

type componentCtxKey struct{}

func withComponent(ctx context.Context, c *Component) context.Context {
	return context.WithValue(ctx, componentCtxKey{}, c)
}

// FromContext returns the Component that is driving the call stack ctx
// belongs to. It panics if ctx did not originate from that Component's
// Run loop — callers inside a Dispatcher always have such a ctx.
func FromContext(ctx context.Context) *Component {
	c, ok := ctx.Value(componentCtxKey{}).(*Component)
	if !ok {
		panic("component: FromContext called outside a Component's Run loop")
	}
	return c
}

// FromContextOK is the non-panicking form of FromContext, for code that
// may legitimately run off a Component's loop.
func FromContextOK(ctx context.Context) (*Component, bool) {
	c, ok := ctx.Value(componentCtxKey{}).(*Component)
	return c, ok
}
