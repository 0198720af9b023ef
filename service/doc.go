// Package service implements the client-server protocol state machine:
// Requester (the calling side of a service) and Provider (the serving
// side), plus the RequestKeeper handle a Provider uses to answer one
// in-flight request.
//
// Requester and Provider are not tied to a component.Component loop: their
// methods run on whichever goroutine calls them, including the goroutine
// that delivers an incoming csmsg.Message to OnIncomingMessage. Every
// table they hold is guarded by its own lock, so SendRequestAsync,
// RegisterNotification, SetStatus and the rest can be called from any
// goroutine.
package service
