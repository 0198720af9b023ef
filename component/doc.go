// Package component provides the single-threaded message-loop executor
// that every service.Requester and service.Provider runs on.
//
// A Component owns one queue.MessageQueue and drains it on exactly one
// goroutine, started by Run. Everything posted to a Component — CSMessage
// traffic, timer timeouts — is delivered to a single Dispatcher in FIFO
// order within a priority band, so a Dispatcher never needs its own
// locking to stay consistent with itself.
//
// Code running inside a Dispatcher callback can recover the Component it
// is running on via FromContext, without the caller threading a *Component
// through every function signature by hand.
package component
