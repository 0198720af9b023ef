// Package csmsg defines the client-server message envelope that flows
// between requesters, providers and the router: CSMessage, its operation
// and status vocabularies, the wire frame and the payload codec contract.
package csmsg

// Address identifies one endpoint of a message: either a requester or a
// provider, addressable by the router for delivery and availability
// notification.
type Address struct {
	ComponentID uint64
	RegID       uint64
}

// Payload is an opaque, codec-produced value carried inside a CSMessage.
// Core packages never inspect payload contents; they only clone, compare
// and hand payloads to a Codec on the caller's behalf.
type Payload interface {
	// Bytes returns the wire representation of this payload.
	Bytes() []byte
	// Clone returns a deep copy so the same logical payload can be
	// delivered to more than one callback without aliasing.
	Clone() Payload
	// Equal reports semantic equality with another payload, used to
	// suppress redundant status broadcasts. Implementations compare
	// content, never pointer identity.
	Equal(other Payload) bool
}

// RawPayload is the default Payload implementation: an immutable byte
// slice compared and cloned by value.
type RawPayload []byte

// Bytes implements Payload.
func (p RawPayload) Bytes() []byte { return []byte(p) }

// Clone implements Payload.
func (p RawPayload) Clone() Payload {
	c := make(RawPayload, len(p))
	copy(c, p)
	return c
}

// Equal implements Payload.
func (p RawPayload) Equal(other Payload) bool {
	o, ok := other.(RawPayload)
	if !ok {
		return false
	}
	if len(p) != len(o) {
		return false
	}
	for i := range p {
		if p[i] != o[i] {
			return false
		}
	}
	return true
}

// Message is the envelope exchanged between requesters, providers, the
// router and any transport. ServiceID identifies the logical service,
// OperationID the specific operation/property within it.
type Message struct {
	ServiceID     uint64
	OperationID   uint64
	OperationCode OpCode
	RequestID     uint64
	Source        Address
	Payload       Payload
	// Status distinguishes a final OpResponse from an intermediate one.
	// Unused on every other OpCode. Zero value is ResponseComplete.
	Status ResponseStatus
}

// Clone returns a deep copy of m, including a cloned Payload if one is
// present. The zero RequestID/Source fields copy by value already.
func (m Message) Clone() Message {
	c := m
	if m.Payload != nil {
		c.Payload = m.Payload.Clone()
	}
	return c
}
