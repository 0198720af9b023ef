// Package transport defines the interface a Router uses to move
// CSMessage traffic to and from peers outside the current process: an
// opaque, framed delivery channel plus availability events. Concrete
// transports (NATS, WebSocket) live in subpackages; this package only
// names the contract router.Router depends on.
package transport

import (
	"context"

	"github.com/c360/maf/csmsg"
)

// InboundHandler receives a csmsg.Message a Transport decoded off the
// wire. It is invoked on a goroutine the Transport owns; implementations
// (router.Router.deliverInbound) must return quickly or hand off work.
type InboundHandler func(ctx context.Context, msg csmsg.Message)

// AvailabilityHandler is invoked when a Transport's connectivity to a
// given service ID changes, independent of any explicit
// OpServiceStatusUpdate message.
type AvailabilityHandler func(serviceID uint64, availability csmsg.Availability)

// Transport moves CSMessage frames between this process and a peer. It
// has no knowledge of requesters, providers or routing; it only frames,
// sends and delivers.
type Transport interface {
	// Send encodes and transmits msg toward its peer.
	Send(ctx context.Context, msg csmsg.Message) error

	// SetInboundHandler registers the callback invoked for every message
	// this Transport receives. Must be called before Start.
	SetInboundHandler(handler InboundHandler)

	// SetAvailabilityHandler registers the callback invoked when the
	// transport's own connectivity state changes.
	SetAvailabilityHandler(handler AvailabilityHandler)

	// Start begins receiving. It returns once the transport is ready or
	// an error prevents it from ever becoming ready.
	Start(ctx context.Context) error

	// Close releases the transport's resources. Safe to call more than
	// once.
	Close() error
}
