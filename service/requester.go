package service

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"sync"
	"time"

	"github.com/c360/maf/csmsg"
	"github.com/c360/maf/idmgr"
	"github.com/c360/maf/metric"
	"github.com/c360/maf/pkg/cache"
)

type pendingRequest struct {
	serviceID uint64
	opID      uint64
	callback  RequestCallback
}

type notifyRegistration struct {
	serviceID uint64
	opID      uint64
	observer  NotificationObserver
}

type availObserver struct {
	serviceID uint64
	observer  StatusObserver
}

// Requester is the calling side of the client-server protocol: it sends
// requests and status queries to providers addressed by ServiceID, and
// tracks pending requests (SendRequest waits on one of these too),
// notification registrations, a cache of the last-known status value per
// subscribed operation, and per-service availability, each under its own
// lock so one table's contention never blocks another.
type Requester struct {
	addr   csmsg.Address
	sender Sender

	requestIDs *idmgr.Manager
	regIDs     *idmgr.Manager

	pendingMu       sync.Mutex
	pendingRequests map[uint64]*pendingRequest

	regMu         sync.Mutex
	registrations map[uint64]map[uint64]*notifyRegistration // opID -> regID -> registration

	cache cache.Cache[csmsg.Payload] // keyed by propertyCacheKey(serviceID, opID)

	availMu      sync.Mutex
	availability map[uint64]csmsg.Availability  // serviceID -> last known availability
	availObs     map[uint64]map[uint64]*availObserver // serviceID -> regID -> observer

	metrics *metric.Metrics
}

type requesterSettings struct {
	metrics  *metric.Metrics
	cacheReg *metric.MetricsRegistry
	cachePfx string
}

// RequesterOption configures optional Requester behavior at construction.
type RequesterOption func(*requesterSettings)

// WithRequesterMetrics records request volume, timeouts, aborts and
// availability transitions to m. Without this option a Requester runs with
// no metrics overhead, matching the teacher's own opt-in instrumentation
// pattern for its cache and buffer types.
func WithRequesterMetrics(m *metric.Metrics) RequesterOption {
	return func(s *requesterSettings) { s.metrics = m }
}

// WithRequesterCacheMetrics exports the property cache's hit/miss/eviction
// counters to registry under the given Prometheus metric name prefix.
func WithRequesterCacheMetrics(registry *metric.MetricsRegistry, prefix string) RequesterOption {
	return func(s *requesterSettings) { s.cacheReg, s.cachePfx = registry, prefix }
}

type syncResult struct {
	status  csmsg.ActionCallStatus
	payload csmsg.Payload
}

// NewRequester constructs a Requester bound to addr (its own address, used
// as Source on outgoing messages) sending through sender.
func NewRequester(addr csmsg.Address, sender Sender, opts ...RequesterOption) *Requester {
	var settings requesterSettings
	for _, opt := range opts {
		opt(&settings)
	}

	var cacheOpts []cache.Option[csmsg.Payload]
	if settings.cacheReg != nil {
		cacheOpts = append(cacheOpts, cache.WithMetrics[csmsg.Payload](settings.cacheReg, settings.cachePfx))
	}
	// A cached property lives exactly as long as its registration: Unregister
	// and OnAvailabilityChanged both delete the entry explicitly, so there is
	// no TTL to enforce and no eviction policy this cache should apply on its
	// own — same reasoning as Provider.statuses (see DESIGN.md's pkg/cache
	// entry), applied consistently to the requester's equivalent table.
	propertyCache, err := cache.NewSimple[csmsg.Payload](cacheOpts...)
	if err != nil {
		// Only fails on invalid options; NewSimple is called with none here.
		panic(fmt.Sprintf("service: construct property cache: %v", err))
	}
	r := &Requester{
		addr:            addr,
		sender:          sender,
		requestIDs:      idmgr.New(),
		regIDs:          idmgr.New(),
		pendingRequests: make(map[uint64]*pendingRequest),
		registrations:   make(map[uint64]map[uint64]*notifyRegistration),
		cache:           propertyCache,
		availability:    make(map[uint64]csmsg.Availability),
		availObs:        make(map[uint64]map[uint64]*availObserver),
		metrics:         settings.metrics,
	}
	return r
}

func propertyCacheKey(serviceID, opID uint64) string {
	return fmt.Sprintf("%d:%d", serviceID, opID)
}

// SendRequestAsync sends a request to serviceID/opID and returns
// immediately. cb is invoked from OnIncomingMessage for every response
// (once per Incomplete response and once for the final one), from
// AbortRequest when the request is aborted, or from OnAvailabilityChanged
// when the provider becomes unavailable before the final response.
func (r *Requester) SendRequestAsync(ctx context.Context, serviceID, opID uint64, payload csmsg.Payload, cb RequestCallback) (uint64, csmsg.ActionCallStatus) {
	if r.Availability(serviceID) != csmsg.AvailabilityAvailable {
		return 0, csmsg.StatusServiceUnavailable
	}

	requestID := r.requestIDs.Allocate()

	r.pendingMu.Lock()
	r.pendingRequests[requestID] = &pendingRequest{serviceID: serviceID, opID: opID, callback: cb}
	r.pendingMu.Unlock()

	msg := csmsg.Message{
		ServiceID:     serviceID,
		OperationID:   opID,
		OperationCode: csmsg.OpRequest,
		RequestID:     requestID,
		Source:        r.addr,
		Payload:       payload,
	}
	if err := r.sender.Send(ctx, msg); err != nil {
		r.pendingMu.Lock()
		delete(r.pendingRequests, requestID)
		r.pendingMu.Unlock()
		r.requestIDs.Release(requestID)
		return 0, csmsg.StatusReceiverUnavailable
	}

	return requestID, csmsg.StatusSuccess
}

// SendRequest sends a request and blocks until a response arrives, the
// context is cancelled, or timeout elapses.
func (r *Requester) SendRequest(ctx context.Context, serviceID, opID uint64, payload csmsg.Payload, timeout time.Duration) (csmsg.Payload, csmsg.ActionCallStatus) {
	ch := make(chan syncResult, 1)

	requestID, status := r.SendRequestAsync(ctx, serviceID, opID, payload, func(status csmsg.ActionCallStatus, payload csmsg.Payload) {
		select {
		case ch <- syncResult{status: status, payload: payload}:
		default:
		}
	})
	if status != csmsg.StatusSuccess {
		return nil, status
	}

	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case res := <-ch:
		return res.payload, res.status
	case <-timer.C:
		r.AbortRequest(requestID)
		if r.metrics != nil {
			r.metrics.RecordTimeout(strconv.FormatUint(serviceID, 10))
		}
		return nil, csmsg.StatusTimeout
	case <-ctx.Done():
		r.AbortRequest(requestID)
		if r.metrics != nil {
			r.metrics.RecordTimeout(strconv.FormatUint(serviceID, 10))
		}
		return nil, csmsg.StatusTimeout
	}
}

// AbortRequest cancels a pending request. The registered callback, if
// any, is invoked at most once with StatusFailedUnknown; a request that
// has already been answered or aborted is a no-op.
func (r *Requester) AbortRequest(requestID uint64) bool {
	r.pendingMu.Lock()
	pr, ok := r.pendingRequests[requestID]
	if ok {
		delete(r.pendingRequests, requestID)
	}
	r.pendingMu.Unlock()
	if !ok {
		return false
	}

	r.requestIDs.Release(requestID)

	abortMsg := csmsg.Message{
		ServiceID:     pr.serviceID,
		OperationID:   pr.opID,
		OperationCode: csmsg.OpAbort,
		RequestID:     requestID,
		Source:        r.addr,
	}
	_ = r.sender.Send(context.Background(), abortMsg)

	if r.metrics != nil {
		r.metrics.RecordAbort(strconv.FormatUint(pr.serviceID, 10))
	}
	if pr.callback != nil {
		pr.callback(csmsg.StatusFailedUnknown, nil)
	}
	return true
}

// RegisterNotification subscribes to status/signal pushes for opID on
// serviceID. opCode selects which registration kind is announced to the
// provider (csmsg.OpStatusRegister or csmsg.OpSignalRegister); the
// returned regID unregisters via Unregister.
func (r *Requester) RegisterNotification(ctx context.Context, serviceID, opID uint64, opCode csmsg.OpCode, observer NotificationObserver) uint64 {
	regID := r.regIDs.Allocate()

	r.regMu.Lock()
	if r.registrations[opID] == nil {
		r.registrations[opID] = make(map[uint64]*notifyRegistration)
	}
	r.registrations[opID][regID] = &notifyRegistration{serviceID: serviceID, opID: opID, observer: observer}
	r.regMu.Unlock()

	msg := csmsg.Message{
		ServiceID:     serviceID,
		OperationID:   opID,
		OperationCode: opCode,
		RequestID:     regID,
		Source:        r.addr,
	}
	_ = r.sender.Send(ctx, msg)

	return regID
}

// Unregister removes a prior RegisterNotification and, if it was the last
// registration for opID, drops the cached value.
func (r *Requester) Unregister(ctx context.Context, serviceID, opID, regID uint64) {
	r.regMu.Lock()
	regs := r.registrations[opID]
	if regs != nil {
		delete(regs, regID)
		if len(regs) == 0 {
			delete(r.registrations, opID)
			_, _ = r.cache.Delete(propertyCacheKey(serviceID, opID))
		}
	}
	r.regMu.Unlock()
	r.regIDs.Release(regID)

	msg := csmsg.Message{
		ServiceID:     serviceID,
		OperationID:   opID,
		OperationCode: csmsg.OpUnregister,
		RequestID:     regID,
		Source:        r.addr,
	}
	_ = r.sender.Send(ctx, msg)
}

// CachedProperty returns the last value observed for serviceID/opID, if
// any registration for it is active and a push has arrived.
func (r *Requester) CachedProperty(serviceID, opID uint64) (csmsg.Payload, bool) {
	return r.cache.Get(propertyCacheKey(serviceID, opID))
}

// GetStatus returns the cached value for serviceID/opID when an active
// status registration holds one, without sending anything. Otherwise it
// sends an ordinary request (OpRequest, not OpStatusGet) for opID and
// blocks like SendRequest.
func (r *Requester) GetStatus(ctx context.Context, serviceID, opID uint64, timeout time.Duration) (csmsg.Payload, csmsg.ActionCallStatus) {
	if v, ok := r.cache.Get(propertyCacheKey(serviceID, opID)); ok {
		return v, csmsg.StatusSuccess
	}
	return r.SendRequest(ctx, serviceID, opID, nil, timeout)
}

// RegisterServiceStatusObserver is notified whenever serviceID's
// availability changes, per OnAvailabilityChanged.
func (r *Requester) RegisterServiceStatusObserver(serviceID uint64, observer StatusObserver) uint64 {
	regID := r.regIDs.Allocate()
	r.availMu.Lock()
	if r.availObs[serviceID] == nil {
		r.availObs[serviceID] = make(map[uint64]*availObserver)
	}
	r.availObs[serviceID][regID] = &availObserver{serviceID: serviceID, observer: observer}
	r.availMu.Unlock()
	return regID
}

// UnregisterServiceStatusObserver removes a prior availability observer.
func (r *Requester) UnregisterServiceStatusObserver(serviceID, regID uint64) {
	r.availMu.Lock()
	defer r.availMu.Unlock()
	if obs := r.availObs[serviceID]; obs != nil {
		delete(obs, regID)
	}
	r.regIDs.Release(regID)
}

// Availability returns the last known availability for serviceID.
func (r *Requester) Availability(serviceID uint64) csmsg.Availability {
	r.availMu.Lock()
	defer r.availMu.Unlock()
	if a, ok := r.availability[serviceID]; ok {
		return a
	}
	return csmsg.AvailabilityUnknown
}

// OnAvailabilityChanged is invoked by the router when a provider for
// serviceID becomes available or unavailable. Losing availability clears
// all pending requests, all notification registrations and cached values
// for that service, and notifies every callback/observer exactly once.
// Registrations are not replayed when the service becomes available
// again; the caller must re-register.
func (r *Requester) OnAvailabilityChanged(serviceID uint64, availability csmsg.Availability) {
	if r.metrics != nil {
		r.metrics.RecordAvailability(strconv.FormatUint(serviceID, 10), float64(availability))
	}

	r.availMu.Lock()
	r.availability[serviceID] = availability
	type entry struct {
		regID    uint64
		observer StatusObserver
	}
	var observers []entry
	if obs := r.availObs[serviceID]; obs != nil {
		for regID, o := range obs {
			observers = append(observers, entry{regID: regID, observer: o.observer})
		}
	}
	r.availMu.Unlock()

	var dead []uint64
	for _, e := range observers {
		if e.observer(availability) == ObserverDead {
			dead = append(dead, e.regID)
		}
	}
	if len(dead) > 0 {
		r.availMu.Lock()
		if obs := r.availObs[serviceID]; obs != nil {
			for _, regID := range dead {
				delete(obs, regID)
			}
		}
		r.availMu.Unlock()
	}

	if availability != csmsg.AvailabilityUnavailable {
		return
	}

	// Pending requests for this service fail with ServiceUnavailable.
	r.pendingMu.Lock()
	var deadRequests []*pendingRequest
	for id, pr := range r.pendingRequests {
		if pr.serviceID == serviceID {
			deadRequests = append(deadRequests, pr)
			delete(r.pendingRequests, id)
		}
	}
	r.pendingMu.Unlock()
	for _, pr := range deadRequests {
		if pr.callback != nil {
			pr.callback(csmsg.StatusServiceUnavailable, nil)
		}
	}

	// Registrations for this service no longer mean anything once the
	// provider is gone: drop them and their cached values. The caller is
	// expected to re-register after the service becomes available again;
	// registrations are never replayed automatically.
	r.regMu.Lock()
	var releasedRegIDs []uint64
	for opID, regs := range r.registrations {
		matched := false
		for regID, reg := range regs {
			if reg.serviceID != serviceID {
				continue
			}
			delete(regs, regID)
			releasedRegIDs = append(releasedRegIDs, regID)
			matched = true
		}
		if len(regs) == 0 {
			delete(r.registrations, opID)
		}
		if matched {
			r.cache.Delete(propertyCacheKey(serviceID, opID))
		}
	}
	r.regMu.Unlock()
	for _, regID := range releasedRegIDs {
		r.regIDs.Release(regID)
	}
}

// OnIncomingMessage dispatches a message delivered to this requester's
// address: responses resolve pending requests; OpStatusRegister and
// OpSignalRegister carry pushed values for an active subscription.
func (r *Requester) OnIncomingMessage(msg csmsg.Message) {
	switch msg.OperationCode {
	case csmsg.OpResponse:
		r.handleResponse(msg)
	case csmsg.OpStatusRegister, csmsg.OpSignalRegister:
		r.handlePush(msg)
	default:
		slog.Warn("service: requester dropping unrecognized opcode",
			"service_id", msg.ServiceID, "operation_id", msg.OperationID, "opcode", msg.OperationCode)
	}
}

func (r *Requester) handleResponse(msg csmsg.Message) {
	final := msg.Status != csmsg.ResponseIncomplete

	r.pendingMu.Lock()
	pr, ok := r.pendingRequests[msg.RequestID]
	if ok && final {
		delete(r.pendingRequests, msg.RequestID)
	}
	r.pendingMu.Unlock()
	if !ok {
		slog.Warn("service: requester response with no matching pending request",
			"service_id", msg.ServiceID, "operation_id", msg.OperationID, "request_id", msg.RequestID)
		return
	}
	if final {
		r.requestIDs.Release(msg.RequestID)
	}
	if r.metrics != nil && final {
		r.metrics.RecordRequest(strconv.FormatUint(pr.serviceID, 10), csmsg.StatusSuccess.String())
	}

	if pr.callback != nil {
		pr.callback(csmsg.StatusSuccess, msg.Payload)
	}
}

func (r *Requester) handlePush(msg csmsg.Message) {
	key := propertyCacheKey(msg.ServiceID, msg.OperationID)

	type target struct {
		regID uint64
		reg   *notifyRegistration
	}

	r.regMu.Lock()
	regs := r.registrations[msg.OperationID]
	var observers []target
	for regID, reg := range regs {
		if reg.serviceID == msg.ServiceID {
			observers = append(observers, target{regID: regID, reg: reg})
		}
	}
	r.regMu.Unlock()

	if len(observers) == 0 {
		// No live registration for this (serviceID, opID): the subscription
		// was cleared locally (e.g. by a prior availability loss) even
		// though the provider has not been told to stop pushing. Honoring
		// invariant 4 means never repopulating the cache without an active
		// registration to back it.
		return
	}

	// Only status pushes are cached and de-duplicated; signals are events
	// and reach every observer each time.
	if msg.OperationCode == csmsg.OpStatusRegister {
		if cached, ok := r.cache.Get(key); ok && cached != nil && msg.Payload != nil && cached.Equal(msg.Payload) {
			return // setStatus semantic-equality guard: no redundant notification
		}
		_, _ = r.cache.Set(key, msg.Payload)
	}

	var dead []uint64
	for _, t := range observers {
		if t.reg.observer(msg.Payload) == ObserverDead {
			dead = append(dead, t.regID)
		}
	}
	if len(dead) == 0 {
		return
	}

	r.regMu.Lock()
	if regs := r.registrations[msg.OperationID]; regs != nil {
		for _, regID := range dead {
			delete(regs, regID)
		}
		if len(regs) == 0 {
			delete(r.registrations, msg.OperationID)
		}
	}
	remaining := false
	for _, reg := range r.registrations[msg.OperationID] {
		if reg.serviceID == msg.ServiceID {
			remaining = true
			break
		}
	}
	if !remaining {
		_, _ = r.cache.Delete(key)
	}
	r.regMu.Unlock()
}
