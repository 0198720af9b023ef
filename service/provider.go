package service

import (
	"context"
	"log/slog"
	"strconv"
	"sync"
	"time"

	"github.com/c360/maf/csmsg"
	"github.com/c360/maf/metric"
	"github.com/c360/maf/pkg/worker"
)

type broadcastJob struct {
	msg    csmsg.Message
	sender Sender
}

// Provider is the serving side of the client-server protocol: it answers
// requests for a ServiceID, tracks per-request state via RequestKeeper,
// and pushes status/signal updates to subscribed requesters.
//
// Its four tables — request handlers, active requests, subscribers and
// cached statuses — are each guarded by their own lock so that, for
// example, a slow handler lookup never blocks a concurrent subscribe.
type Provider struct {
	serviceID uint64
	sender    Sender

	handlersMu sync.RWMutex
	handlers   map[uint64]RequestHandler

	activeMu sync.Mutex
	active   map[uint64]*RequestKeeper // requestID -> keeper

	subMu       sync.Mutex
	subscribers map[uint64]map[csmsg.Address]bool // opID -> addr -> true

	statusMu sync.Mutex
	statuses map[uint64]csmsg.Payload // opID -> last broadcast value

	broadcastPool *worker.Pool[broadcastJob]

	metrics *metric.Metrics

	poolMetricsReg *metric.MetricsRegistry
	poolMetricsPfx string
}

// ProviderOption configures optional Provider behavior at construction.
type ProviderOption func(*Provider)

// WithProviderMetrics records inbound request volume, aborts and current
// subscriber counts to m.
func WithProviderMetrics(m *metric.Metrics) ProviderOption {
	return func(p *Provider) { p.metrics = m }
}

// WithProviderBroadcastPoolMetrics exports the broadcast worker pool's
// queue depth, utilization and processing-time histograms to registry under
// the given Prometheus metric name prefix.
func WithProviderBroadcastPoolMetrics(registry *metric.MetricsRegistry, prefix string) ProviderOption {
	return func(p *Provider) { p.poolMetricsReg, p.poolMetricsPfx = registry, prefix }
}

// NewProvider constructs a Provider for serviceID, sending responses and
// pushes through sender. broadcastWorkers bounds how many subscriber
// deliveries run concurrently per SetStatus/BroadcastSignal call; pass 0
// for a sensible default.
func NewProvider(serviceID uint64, sender Sender, broadcastWorkers int, opts ...ProviderOption) *Provider {
	if broadcastWorkers <= 0 {
		broadcastWorkers = 8
	}
	p := &Provider{
		serviceID:   serviceID,
		sender:      sender,
		handlers:    make(map[uint64]RequestHandler),
		active:      make(map[uint64]*RequestKeeper),
		subscribers: make(map[uint64]map[csmsg.Address]bool),
		statuses:    make(map[uint64]csmsg.Payload),
	}
	for _, opt := range opts {
		opt(p)
	}
	var poolOpts []worker.Option[broadcastJob]
	if p.poolMetricsReg != nil {
		poolOpts = append(poolOpts, worker.WithMetricsRegistry[broadcastJob](p.poolMetricsReg, p.poolMetricsPfx))
	}
	p.broadcastPool = worker.NewPool(broadcastWorkers, 256, func(ctx context.Context, job broadcastJob) error {
		return job.sender.Send(ctx, job.msg)
	}, poolOpts...)
	_ = p.broadcastPool.Start(context.Background())
	return p
}

// Close stops the broadcast worker pool. Call once the provider is no
// longer serving requests.
func (p *Provider) Close() error {
	return p.broadcastPool.Stop(5 * time.Second)
}

// RegisterHandler installs the handler that answers requests for opID.
// Registering a second handler for the same opID replaces the first.
func (p *Provider) RegisterHandler(opID uint64, handler RequestHandler) {
	p.handlersMu.Lock()
	defer p.handlersMu.Unlock()
	p.handlers[opID] = handler
}

// UnregisterHandler removes the handler for opID, if any.
func (p *Provider) UnregisterHandler(opID uint64) {
	p.handlersMu.Lock()
	defer p.handlersMu.Unlock()
	delete(p.handlers, opID)
}

// SetStatus records value as the current status for opID and pushes it
// to every subscriber of opID, unless it is semantically equal
// (Payload.Equal) to the value previously recorded for opID, in which
// case nothing is recorded or pushed.
func (p *Provider) SetStatus(ctx context.Context, opID uint64, value csmsg.Payload) {
	p.statusMu.Lock()
	prev, had := p.statuses[opID]
	if had && prev != nil && value != nil && prev.Equal(value) {
		p.statusMu.Unlock()
		return
	}
	p.statuses[opID] = value
	p.statusMu.Unlock()

	p.broadcast(ctx, opID, csmsg.OpStatusRegister, value)
}

// BroadcastSignal pushes value to every subscriber of opID unconditionally,
// without the SetStatus redundancy check — signals are events, not state.
func (p *Provider) BroadcastSignal(ctx context.Context, opID uint64, value csmsg.Payload) {
	p.broadcast(ctx, opID, csmsg.OpSignalRegister, value)
}

func (p *Provider) broadcast(ctx context.Context, opID uint64, opCode csmsg.OpCode, value csmsg.Payload) {
	p.subMu.Lock()
	var targets []csmsg.Address
	for addr := range p.subscribers[opID] {
		targets = append(targets, addr)
	}
	p.subMu.Unlock()

	for _, addr := range targets {
		msg := csmsg.Message{
			ServiceID:     p.serviceID,
			OperationID:   opID,
			OperationCode: opCode,
			Source:        addr,
			Payload:       value,
		}
		job := broadcastJob{msg: msg, sender: p.sender}
		if err := p.broadcastPool.Submit(job); err != nil {
			// Pool queue full or stopped: fall back to a direct,
			// synchronous send so the update is never silently dropped.
			_ = p.sender.Send(ctx, msg)
		}
	}
}

// Status returns the last value SetStatus recorded for opID.
func (p *Provider) Status(opID uint64) (csmsg.Payload, bool) {
	p.statusMu.Lock()
	defer p.statusMu.Unlock()
	v, ok := p.statuses[opID]
	return v, ok
}

// OnIncomingMessage dispatches a message addressed to this provider's
// ServiceID.
func (p *Provider) OnIncomingMessage(ctx context.Context, msg csmsg.Message) {
	switch msg.OperationCode {
	case csmsg.OpRequest:
		p.handleRequest(ctx, msg)
	case csmsg.OpAbort:
		p.handleAbort(msg)
	case csmsg.OpStatusRegister, csmsg.OpSignalRegister:
		p.handleSubscribe(msg)
	case csmsg.OpUnregister:
		p.handleUnsubscribe(msg)
	case csmsg.OpStatusGet:
		p.handleStatusGet(ctx, msg)
	case csmsg.OpServiceStatusUpdate:
		p.handleClientGone(msg)
	default:
		slog.Warn("service: provider dropping unrecognized opcode",
			"service_id", p.serviceID, "operation_id", msg.OperationID, "opcode", msg.OperationCode)
	}
}

// handleClientGone drops every subscription and aborts every in-flight
// request belonging to a requester address that has gone away, so this
// provider never holds state for a client it can no longer reach.
func (p *Provider) handleClientGone(msg csmsg.Message) {
	p.subMu.Lock()
	var affected []uint64
	for opID, subs := range p.subscribers {
		if _, ok := subs[msg.Source]; !ok {
			continue
		}
		delete(subs, msg.Source)
		affected = append(affected, opID)
		if len(subs) == 0 {
			delete(p.subscribers, opID)
		}
	}
	counts := make(map[uint64]int, len(affected))
	for _, opID := range affected {
		counts[opID] = len(p.subscribers[opID])
	}
	p.subMu.Unlock()
	for opID, count := range counts {
		p.recordSubscriberCount(opID, count)
	}

	p.activeMu.Lock()
	var orphaned []*RequestKeeper
	for requestID, keeper := range p.active {
		if keeper.Source() != msg.Source {
			continue
		}
		orphaned = append(orphaned, keeper)
		delete(p.active, requestID)
	}
	p.activeMu.Unlock()

	for _, keeper := range orphaned {
		keeper.abort()
	}
}

func (p *Provider) handleRequest(ctx context.Context, msg csmsg.Message) {
	p.handlersMu.RLock()
	handler, ok := p.handlers[msg.OperationID]
	p.handlersMu.RUnlock()
	if !ok {
		if p.metrics != nil {
			p.metrics.RecordRequest(strconv.FormatUint(p.serviceID, 10), csmsg.StatusInvalidParam.String())
		}
		_ = p.sender.Send(ctx, csmsg.Message{
			ServiceID:     p.serviceID,
			OperationID:   msg.OperationID,
			OperationCode: csmsg.OpResponse,
			RequestID:     msg.RequestID,
			Source:        msg.Source,
			Payload:       nil,
		})
		return
	}
	if p.metrics != nil {
		p.metrics.RecordRequest(strconv.FormatUint(p.serviceID, 10), csmsg.StatusSuccess.String())
	}

	keeper := newRequestKeeper(msg.RequestID, p.serviceID, msg.OperationID, msg.Source, p.sender)
	p.activeMu.Lock()
	p.active[msg.RequestID] = keeper
	p.activeMu.Unlock()

	handler(keeper, msg.Payload)

	// A handler that already called Respond synchronously has made the
	// keeper invalid; one that will answer later keeps it registered
	// until Respond/abort runs.
	if !keeper.Valid() {
		p.activeMu.Lock()
		delete(p.active, msg.RequestID)
		p.activeMu.Unlock()
	}
}

func (p *Provider) handleAbort(msg csmsg.Message) {
	p.activeMu.Lock()
	keeper, ok := p.active[msg.RequestID]
	if ok {
		delete(p.active, msg.RequestID)
	}
	p.activeMu.Unlock()
	if ok {
		keeper.abort()
		if p.metrics != nil {
			p.metrics.RecordAbort(strconv.FormatUint(p.serviceID, 10))
		}
	}
}

func (p *Provider) handleSubscribe(msg csmsg.Message) {
	p.subMu.Lock()
	if p.subscribers[msg.OperationID] == nil {
		p.subscribers[msg.OperationID] = make(map[csmsg.Address]bool)
	}
	p.subscribers[msg.OperationID][msg.Source] = true // idempotent: map key
	count := len(p.subscribers[msg.OperationID])
	p.subMu.Unlock()
	p.recordSubscriberCount(msg.OperationID, count)

	// Immediately push the current cached value, if any, so a new
	// subscriber doesn't wait for the next change.
	p.statusMu.Lock()
	value, has := p.statuses[msg.OperationID]
	p.statusMu.Unlock()
	if has {
		_ = p.sender.Send(context.Background(), csmsg.Message{
			ServiceID:     p.serviceID,
			OperationID:   msg.OperationID,
			OperationCode: msg.OperationCode,
			Source:        msg.Source,
			Payload:       value,
		})
	}
}

func (p *Provider) handleUnsubscribe(msg csmsg.Message) {
	p.subMu.Lock()
	var count int
	if subs := p.subscribers[msg.OperationID]; subs != nil {
		delete(subs, msg.Source)
		count = len(subs)
		if count == 0 {
			delete(p.subscribers, msg.OperationID)
		}
	}
	p.subMu.Unlock()
	p.recordSubscriberCount(msg.OperationID, count)
}

// recordSubscriberCount reports the current subscriber count for opID, if
// metrics are enabled.
func (p *Provider) recordSubscriberCount(opID uint64, count int) {
	if p.metrics == nil {
		return
	}
	p.metrics.SubscribersGauge.WithLabelValues(
		strconv.FormatUint(p.serviceID, 10), strconv.FormatUint(opID, 10),
	).Set(float64(count))
}

func (p *Provider) handleStatusGet(ctx context.Context, msg csmsg.Message) {
	p.statusMu.Lock()
	value := p.statuses[msg.OperationID]
	p.statusMu.Unlock()

	_ = p.sender.Send(ctx, csmsg.Message{
		ServiceID:     p.serviceID,
		OperationID:   msg.OperationID,
		OperationCode: csmsg.OpResponse,
		RequestID:     msg.RequestID,
		Source:        msg.Source,
		Payload:       value,
	})
}
