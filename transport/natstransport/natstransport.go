// Package natstransport implements transport.Transport over a NATS
// connection, for routers whose peers are other processes attached to the
// same NATS deployment. It reuses natsclient.Client for connection
// management, reconnection and circuit-breaking rather than talking to
// *nats.Conn directly.
package natstransport

import (
	"context"
	"fmt"
	"sync"

	"github.com/c360/maf/csmsg"
	"github.com/c360/maf/natsclient"
	"github.com/c360/maf/transport"
)

// subjectPrefix namespaces every subject this transport touches so a NATS
// deployment can host multiple unrelated MAF meshes.
const subjectPrefix = "maf."

// toServerSubject is where a requester-side message for serviceID is
// published; every provider process for that service subscribes here.
func toServerSubject(serviceID uint64) string {
	return fmt.Sprintf("%sservice.%d.request", subjectPrefix, serviceID)
}

// toClientSubject is where a provider-side message addressed to a specific
// requester is published; that requester's process subscribes here.
func toClientSubject(addr csmsg.Address) string {
	return fmt.Sprintf("%sclient.%d.%d", subjectPrefix, addr.ComponentID, addr.RegID)
}

// statusSubject carries ServiceStatusUpdate envelopes for serviceID,
// published by whichever process currently provides it.
func statusSubject(serviceID uint64) string {
	return fmt.Sprintf("%sservice.%d.status", subjectPrefix, serviceID)
}

// Transport moves csmsg.Message frames across NATS subjects derived from a
// message's ServiceID (requester-to-provider traffic) or Source address
// (provider-to-requester traffic).
type Transport struct {
	client *natsclient.Client

	mu         sync.RWMutex
	serviceIDs map[uint64]bool        // services this process provides, so they get toServerSubject subscriptions
	addrs      map[csmsg.Address]bool // addresses this process hosts requesters at

	inbound      transport.InboundHandler
	availability transport.AvailabilityHandler
}

// New wraps an already-configured natsclient.Client. The caller owns the
// client's lifetime independent of this Transport's Close.
func New(client *natsclient.Client) *Transport {
	return &Transport{
		client:     client,
		serviceIDs: make(map[uint64]bool),
		addrs:      make(map[csmsg.Address]bool),
	}
}

// ProvidesService records serviceID so that Start subscribes to the subject
// a remote requester publishes requests for serviceID on, and to that
// service's status subject. Call before Start for every service this
// process's router provides.
func (t *Transport) ProvidesService(serviceID uint64) {
	t.mu.Lock()
	t.serviceIDs[serviceID] = true
	t.mu.Unlock()
}

// HostsRequester records addr so that Start subscribes to the subject a
// remote provider pushes responses and status updates to addr on. Call
// before Start for every
// requester address this process's router registers.
func (t *Transport) HostsRequester(addr csmsg.Address) {
	t.mu.Lock()
	t.addrs[addr] = true
	t.mu.Unlock()
}

func (t *Transport) SetInboundHandler(handler transport.InboundHandler) { t.inbound = handler }

func (t *Transport) SetAvailabilityHandler(handler transport.AvailabilityHandler) {
	t.availability = handler
}

// Start connects the underlying client if needed and subscribes to every
// subject ProvidesService/HostsRequester registered beforehand.
func (t *Transport) Start(ctx context.Context) error {
	if t.client.Status() != natsclient.StatusConnected {
		if err := t.client.Connect(ctx); err != nil {
			return err
		}
	}

	t.mu.RLock()
	serviceIDs := make([]uint64, 0, len(t.serviceIDs))
	for id := range t.serviceIDs {
		serviceIDs = append(serviceIDs, id)
	}
	addrs := make([]csmsg.Address, 0, len(t.addrs))
	for a := range t.addrs {
		addrs = append(addrs, a)
	}
	t.mu.RUnlock()

	for _, id := range serviceIDs {
		if err := t.client.Subscribe(ctx, toServerSubject(id), t.decodeAndDeliver); err != nil {
			return err
		}
		if err := t.client.Subscribe(ctx, statusSubject(id), t.decodeAndDeliver); err != nil {
			return err
		}
	}
	for _, addr := range addrs {
		if err := t.client.Subscribe(ctx, toClientSubject(addr), t.decodeAndDeliver); err != nil {
			return err
		}
	}

	t.client.OnHealthChange(func(healthy bool) {
		if t.availability == nil {
			return
		}
		availability := csmsg.AvailabilityUnavailable
		if healthy {
			availability = csmsg.AvailabilityAvailable
		}
		t.mu.RLock()
		defer t.mu.RUnlock()
		for id := range t.serviceIDs {
			t.availability(id, availability)
		}
	})

	return nil
}

func (t *Transport) decodeAndDeliver(ctx context.Context, data []byte) {
	if t.inbound == nil {
		return
	}
	msg, err := csmsg.DecodeFrame(data)
	if err != nil {
		return
	}
	t.inbound(ctx, msg)
}

// Send publishes msg on the subject derived from its direction: requests
// and subscription/abort traffic (anything but a response) go to the
// service's subject, everything else goes to the destination requester's
// subject.
func (t *Transport) Send(ctx context.Context, msg csmsg.Message) error {
	frame := csmsg.EncodeFrame(msg)

	var subject string
	switch msg.OperationCode {
	case csmsg.OpResponse, csmsg.OpStatusRegister, csmsg.OpSignalRegister:
		subject = toClientSubject(msg.Source)
	case csmsg.OpServiceStatusUpdate:
		subject = statusSubject(msg.ServiceID)
	default:
		subject = toServerSubject(msg.ServiceID)
	}

	return t.client.Publish(ctx, subject, frame)
}

// Close does nothing: the subscriptions made by Start stay in place, and
// the underlying natsclient.Client, which the caller owns, is not closed.
func (t *Transport) Close() error {
	return nil
}
