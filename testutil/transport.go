package testutil

import (
	"context"
	"fmt"
	"sync"

	"github.com/c360/maf/csmsg"
	"github.com/c360/maf/transport"
)

// Bus is a shared in-memory switchboard connecting MockTransport instances,
// standing in for a real NATS or WebSocket deployment in tests that need
// two (or more) router.Router processes to exchange messages without a
// live broker. Messages are delivered synchronously on the sender's
// goroutine, the same way natstransport and wstransport deliver inbound
// callbacks from their own read loops.
type Bus struct {
	mu    sync.RWMutex
	peers map[*MockTransport]struct{}
}

// NewBus returns an empty switchboard.
func NewBus() *Bus {
	return &Bus{peers: make(map[*MockTransport]struct{})}
}

func (b *Bus) join(t *MockTransport) {
	b.mu.Lock()
	b.peers[t] = struct{}{}
	b.mu.Unlock()
}

func (b *Bus) leave(t *MockTransport) {
	b.mu.Lock()
	delete(b.peers, t)
	b.mu.Unlock()
}

func (b *Bus) broadcast(ctx context.Context, from *MockTransport, msg csmsg.Message) {
	b.mu.RLock()
	peers := make([]*MockTransport, 0, len(b.peers))
	for p := range b.peers {
		if p != from {
			peers = append(peers, p)
		}
	}
	b.mu.RUnlock()

	for _, p := range peers {
		p.deliver(ctx, msg)
	}
}

// MockTransport implements transport.Transport over a Bus. It claims
// interest in service IDs and requester addresses the same way
// natstransport.Transport subscribes to subjects, so a Bus can route a
// message only to the peer(s) that declared interest in its destination.
type MockTransport struct {
	bus *Bus

	mu         sync.RWMutex
	serviceIDs map[uint64]bool
	addrs      map[csmsg.Address]bool
	closed     bool

	inbound      transport.InboundHandler
	availability transport.AvailabilityHandler

	sendErr error // when set, Send always fails with this error
}

// NewMockTransport returns a MockTransport joined to bus.
func NewMockTransport(bus *Bus) *MockTransport {
	t := &MockTransport{
		bus:        bus,
		serviceIDs: make(map[uint64]bool),
		addrs:      make(map[csmsg.Address]bool),
	}
	bus.join(t)
	return t
}

// ProvidesService declares this transport as a destination for requester
// traffic addressed to serviceID, mirroring natstransport.ProvidesService.
func (t *MockTransport) ProvidesService(serviceID uint64) {
	t.mu.Lock()
	t.serviceIDs[serviceID] = true
	t.mu.Unlock()
}

// HostsRequester declares this transport as a destination for provider
// traffic addressed to addr, mirroring natstransport.HostsRequester.
func (t *MockTransport) HostsRequester(addr csmsg.Address) {
	t.mu.Lock()
	t.addrs[addr] = true
	t.mu.Unlock()
}

// FailSends makes every subsequent Send return err; pass nil to clear it,
// simulating a transport recovering from an outage.
func (t *MockTransport) FailSends(err error) {
	t.mu.Lock()
	t.sendErr = err
	t.mu.Unlock()
}

func (t *MockTransport) Send(ctx context.Context, msg csmsg.Message) error {
	t.mu.RLock()
	closed := t.closed
	err := t.sendErr
	t.mu.RUnlock()
	if closed {
		return fmt.Errorf("testutil: transport closed")
	}
	if err != nil {
		return err
	}
	t.bus.broadcast(ctx, t, msg)
	return nil
}

func (t *MockTransport) SetInboundHandler(handler transport.InboundHandler) {
	t.mu.Lock()
	t.inbound = handler
	t.mu.Unlock()
}

func (t *MockTransport) SetAvailabilityHandler(handler transport.AvailabilityHandler) {
	t.mu.Lock()
	t.availability = handler
	t.mu.Unlock()
}

func (t *MockTransport) Start(ctx context.Context) error {
	return nil
}

func (t *MockTransport) Close() error {
	t.mu.Lock()
	if t.closed {
		t.mu.Unlock()
		return nil
	}
	t.closed = true
	t.mu.Unlock()
	t.bus.leave(t)
	return nil
}

// deliver is invoked by the Bus for every message a peer sent; it hands
// the message to this transport's inbound handler only if the message
// names a service ID or requester address this transport declared
// interest in, mirroring a subject subscription filter.
func (t *MockTransport) deliver(ctx context.Context, msg csmsg.Message) {
	t.mu.RLock()
	interested := t.serviceIDs[msg.ServiceID] || t.addrs[msg.Source]
	handler := t.inbound
	t.mu.RUnlock()

	if interested && handler != nil {
		handler(ctx, msg)
	}
}

// NotifyAvailability fires the registered AvailabilityHandler, simulating a
// transport detecting a peer's connectivity change independent of any
// ServiceStatusUpdate envelope.
func (t *MockTransport) NotifyAvailability(serviceID uint64, availability csmsg.Availability) {
	t.mu.RLock()
	handler := t.availability
	t.mu.RUnlock()
	if handler != nil {
		handler(serviceID, availability)
	}
}
