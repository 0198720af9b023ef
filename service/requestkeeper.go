package service

import (
	"context"
	"sync"

	"github.com/c360/maf/csmsg"
)

// RequestKeeper is the handle a Provider's RequestHandler uses to answer
// one in-flight request, synchronously or from any later point (including
// another goroutine). Once Respond or Abort has run, the keeper is no
// longer Valid and further calls are no-ops: a request may be finalized
// exactly once.
type RequestKeeper struct {
	requestID uint64
	serviceID uint64
	opID      uint64
	source    csmsg.Address
	sender    Sender

	mu        sync.Mutex
	valid     bool
	abortedBy func()
}

func newRequestKeeper(requestID, serviceID, opID uint64, source csmsg.Address, sender Sender) *RequestKeeper {
	return &RequestKeeper{
		requestID: requestID,
		serviceID: serviceID,
		opID:      opID,
		source:    source,
		sender:    sender,
		valid:     true,
	}
}

// RequestID returns the ID of the request this keeper answers.
func (k *RequestKeeper) RequestID() uint64 { return k.requestID }

// Source returns the requester address this request came from.
func (k *RequestKeeper) Source() csmsg.Address { return k.source }

// Valid reports whether this keeper can still be used to answer its
// request. It becomes false after Respond or Abort, whichever runs
// first.
func (k *RequestKeeper) Valid() bool {
	k.mu.Lock()
	defer k.mu.Unlock()
	return k.valid
}

// Respond sends payload back to the requester as the final answer. It is
// a no-op, returning false, if the request has already been answered or
// aborted. Use Update instead to send an intermediate response that
// leaves the request open for a later Respond or further Updates.
func (k *RequestKeeper) Respond(ctx context.Context, payload csmsg.Payload) bool {
	return k.respond(ctx, payload, csmsg.ResponseComplete)
}

// Update sends payload as an intermediate response: the requester's
// callback runs, but the request stays pending and this keeper remains
// Valid for further Update or Respond calls. Returns false if the
// request had already been finalized.
func (k *RequestKeeper) Update(ctx context.Context, payload csmsg.Payload) bool {
	return k.respond(ctx, payload, csmsg.ResponseIncomplete)
}

func (k *RequestKeeper) respond(ctx context.Context, payload csmsg.Payload, status csmsg.ResponseStatus) bool {
	k.mu.Lock()
	if !k.valid {
		k.mu.Unlock()
		return false
	}
	if status != csmsg.ResponseIncomplete {
		k.valid = false
	}
	k.mu.Unlock()

	_ = k.sender.Send(ctx, csmsg.Message{
		ServiceID:     k.serviceID,
		OperationID:   k.opID,
		OperationCode: csmsg.OpResponse,
		RequestID:     k.requestID,
		Source:        k.source,
		Payload:       payload,
		Status:        status,
	})
	return true
}

// OnAbortedBy registers a callback invoked if the requester aborts this
// request before Respond runs. At most one callback may be registered;
// a later call replaces the earlier one.
func (k *RequestKeeper) OnAbortedBy(fn func()) {
	k.mu.Lock()
	defer k.mu.Unlock()
	k.abortedBy = fn
}

// abort marks the keeper invalid and invokes the registered abort
// callback, if any and if the keeper had not already been finalized.
// Called by Provider when it receives an OpAbort for this request.
func (k *RequestKeeper) abort() {
	k.mu.Lock()
	if !k.valid {
		k.mu.Unlock()
		return
	}
	k.valid = false
	cb := k.abortedBy
	k.mu.Unlock()

	if cb != nil {
		cb()
	}
}
