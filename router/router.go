// Package router provides the in-process (and, via a Transport, cross-
// process) message router that connects service.Requester instances to
// the service.Provider registered for the ServiceID they address.
//
// A Router holds two registries — ServiceID to Provider, and ServiceID to
// the set of Requesters interested in that service's availability — and
// hands out two Sender implementations (RequesterSender, ProviderSender)
// that requesters and providers use to reach each other without either
// side holding a direct reference to the other.
package router

import (
	"context"
	"fmt"
	"sync"

	"github.com/c360/maf/csmsg"
	"github.com/c360/maf/service"
	"github.com/c360/maf/transport"
)

// Router is safe for concurrent use. Close tears down client-side state
// (registered requesters) and server-side state (registered providers)
// independently and exactly once each; calling Close more than once is a
// no-op rather than a double-teardown.
type Router struct {
	mu sync.RWMutex

	providers  map[uint64]*service.Provider                // serviceID -> provider
	requesters map[uint64]map[csmsg.Address]*service.Requester // serviceID -> addr -> requester
	addrIndex  map[csmsg.Address]*service.Requester         // addr -> requester, for delivery regardless of serviceID

	transport transport.Transport // optional: used when no local provider/requester matches

	closeClientOnce sync.Once
	closeServerOnce sync.Once
}

// New returns an empty Router with no transport attached: only locally
// registered requesters and providers can reach each other.
func New() *Router {
	return &Router{
		providers:  make(map[uint64]*service.Provider),
		requesters: make(map[uint64]map[csmsg.Address]*service.Requester),
		addrIndex:  make(map[csmsg.Address]*service.Requester),
	}
}

// WithTransport attaches t so messages that don't match a local registry
// entry are forwarded across it instead of failing outright.
func (r *Router) WithTransport(t transport.Transport) *Router {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.transport = t
	if t != nil {
		t.SetInboundHandler(r.deliverInbound)
	}
	return r
}

// RegisterProvider makes provider the handler for serviceID. Any
// requester already registered with interest in serviceID is notified
// Available immediately, matching how a newly-registered provider
// resolves an existing Unknown/Unavailable observation without waiting
// for the next explicit status push.
func (r *Router) RegisterProvider(serviceID uint64, provider *service.Provider) {
	r.mu.Lock()
	r.providers[serviceID] = provider
	var interested []*service.Requester
	for _, req := range r.requesters[serviceID] {
		interested = append(interested, req)
	}
	r.mu.Unlock()

	for _, req := range interested {
		req.OnAvailabilityChanged(serviceID, csmsg.AvailabilityAvailable)
	}
}

// UnregisterProvider removes the provider for serviceID and notifies
// every requester registered with interest in it that the service is now
// unavailable.
func (r *Router) UnregisterProvider(serviceID uint64) {
	r.mu.Lock()
	delete(r.providers, serviceID)
	var interested []*service.Requester
	for _, req := range r.requesters[serviceID] {
		interested = append(interested, req)
	}
	r.mu.Unlock()

	for _, req := range interested {
		req.OnAvailabilityChanged(serviceID, csmsg.AvailabilityUnavailable)
	}
}

// RegisterRequester records req's interest in serviceID's availability
// and makes it reachable at addr for inbound delivery. If a provider for
// serviceID is already registered, req is notified Available immediately.
func (r *Router) RegisterRequester(serviceID uint64, addr csmsg.Address, req *service.Requester) {
	r.mu.Lock()
	if r.requesters[serviceID] == nil {
		r.requesters[serviceID] = make(map[csmsg.Address]*service.Requester)
	}
	r.requesters[serviceID][addr] = req
	r.addrIndex[addr] = req
	_, available := r.providers[serviceID]
	r.mu.Unlock()

	if available {
		req.OnAvailabilityChanged(serviceID, csmsg.AvailabilityAvailable)
	} else {
		req.OnAvailabilityChanged(serviceID, csmsg.AvailabilityUnavailable)
	}
}

// UnregisterRequester removes req's interest in serviceID and its
// reachability at addr, and tells every locally registered provider that
// addr is gone so it can drop subscriptions and abort in-flight requests
// from it rather than holding them until they time out.
func (r *Router) UnregisterRequester(serviceID uint64, addr csmsg.Address) {
	r.mu.Lock()
	if reqs := r.requesters[serviceID]; reqs != nil {
		delete(reqs, addr)
		if len(reqs) == 0 {
			delete(r.requesters, serviceID)
		}
	}
	delete(r.addrIndex, addr)
	var providers []*service.Provider
	for _, p := range r.providers {
		providers = append(providers, p)
	}
	r.mu.Unlock()

	goneMsg := csmsg.Message{OperationCode: csmsg.OpServiceStatusUpdate, Source: addr}
	for _, p := range providers {
		p.OnIncomingMessage(context.Background(), goneMsg)
	}
}

// RequesterSender returns the Sender every service.Requester registered
// on this Router should use: it resolves the destination provider from
// msg.ServiceID.
func (r *Router) RequesterSender() service.Sender { return requesterSender{r} }

// ProviderSender returns the Sender every service.Provider registered on
// this Router should use: it resolves the destination requester from
// msg.Source (a Provider always stamps the requester's address there).
func (r *Router) ProviderSender() service.Sender { return providerSender{r} }

type requesterSender struct{ r *Router }

func (s requesterSender) Send(ctx context.Context, msg csmsg.Message) error {
	s.r.mu.RLock()
	p := s.r.providers[msg.ServiceID]
	t := s.r.transport
	s.r.mu.RUnlock()

	if p != nil {
		p.OnIncomingMessage(ctx, msg)
		return nil
	}
	if t != nil {
		return t.Send(ctx, msg)
	}
	return fmt.Errorf("router: no provider registered for service %d", msg.ServiceID)
}

type providerSender struct{ r *Router }

func (s providerSender) Send(ctx context.Context, msg csmsg.Message) error {
	s.r.mu.RLock()
	req := s.r.addrIndex[msg.Source]
	t := s.r.transport
	s.r.mu.RUnlock()

	if req != nil {
		req.OnIncomingMessage(msg)
		return nil
	}
	if t != nil {
		return t.Send(ctx, msg)
	}
	return fmt.Errorf("router: no requester registered at address %+v", msg.Source)
}

// deliverInbound is the transport's callback for messages that arrived
// from a remote peer: it re-runs the same local-registry lookup outbound
// sends use, so a message that happens to name a locally registered
// provider or requester is delivered directly instead of bouncing back
// out over the transport.
func (r *Router) deliverInbound(ctx context.Context, msg csmsg.Message) {
	r.mu.RLock()
	p := r.providers[msg.ServiceID]
	req := r.addrIndex[msg.Source]
	r.mu.RUnlock()

	switch msg.OperationCode {
	case csmsg.OpRequest, csmsg.OpAbort, csmsg.OpStatusRegister, csmsg.OpSignalRegister, csmsg.OpUnregister, csmsg.OpStatusGet:
		if p != nil {
			p.OnIncomingMessage(ctx, msg)
		}
	case csmsg.OpResponse:
		if req != nil {
			req.OnIncomingMessage(msg)
		}
	case csmsg.OpServiceStatusUpdate:
		r.handleRemoteAvailability(msg)
	}
}

func (r *Router) handleRemoteAvailability(msg csmsg.Message) {
	availability := csmsg.Availability(msg.OperationID)
	r.mu.RLock()
	var interested []*service.Requester
	for _, req := range r.requesters[msg.ServiceID] {
		interested = append(interested, req)
	}
	r.mu.RUnlock()
	for _, req := range interested {
		req.OnAvailabilityChanged(msg.ServiceID, availability)
	}
}

// CloseClient tears down every registered requester's reachability. It
// is the client-side half of the original framework's combined deinit;
// calling it more than once is a no-op.
func (r *Router) CloseClient() {
	r.closeClientOnce.Do(func() {
		r.mu.Lock()
		r.requesters = make(map[uint64]map[csmsg.Address]*service.Requester)
		r.addrIndex = make(map[csmsg.Address]*service.Requester)
		r.mu.Unlock()
	})
}

// CloseServer tears down every registered provider. It is the
// server-side half of the original framework's combined deinit, kept
// distinct from CloseClient (the original's IAMessageRouter::deinit
// called the client-side teardown twice instead of also calling the
// server-side one; Close here calls each exactly once).
func (r *Router) CloseServer() {
	r.closeServerOnce.Do(func() {
		r.mu.Lock()
		r.providers = make(map[uint64]*service.Provider)
		r.mu.Unlock()
	})
}

// Close tears down both the client and server sides exactly once each.
func (r *Router) Close() {
	r.CloseClient()
	r.CloseServer()
}
