package service

import (
	"context"

	"github.com/c360/maf/csmsg"
)

// Sender delivers a csmsg.Message toward its destination. A Requester is
// given a Sender that routes to the provider for its ServiceID; a
// Provider is given a Sender that routes back to a specific requester
// Address. Implemented by router.Router.
type Sender interface {
	Send(ctx context.Context, msg csmsg.Message) error
}

// ObserverResult is returned by a status or signal observer callback to
// tell the Requester whether to keep it registered. There is no Go
// analogue to an exception escaping a callback, so liveness is
// communicated by return value instead.
type ObserverResult int

const (
	// ObserverOK keeps the observer registered.
	ObserverOK ObserverResult = iota
	// ObserverDead removes the observer; no further notifications are
	// delivered to it.
	ObserverDead
)

// StatusObserver is notified when a provider's availability for a
// service ID changes.
type StatusObserver func(availability csmsg.Availability) ObserverResult

// NotificationObserver is notified when a subscribed operation's status
// or signal payload changes.
type NotificationObserver func(payload csmsg.Payload) ObserverResult

// RequestCallback receives the outcome of an asynchronous request.
type RequestCallback func(status csmsg.ActionCallStatus, payload csmsg.Payload)

// RequestHandler is registered by a Provider to answer requests for one
// operation ID. It runs on the goroutine that delivered the request to
// Provider.OnIncomingMessage; implementations that need to answer later
// hold onto the RequestKeeper and call Respond from elsewhere.
type RequestHandler func(keeper *RequestKeeper, payload csmsg.Payload)
