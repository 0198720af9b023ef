// Package types holds the JSON-configurable descriptors shared between
// config, cmd/maf and the service bootstrap path: the declarative shape of
// a provider, a requester and the router that pairs them, as loaded from a
// Config file or pushed through NATS KV by config.Manager.
package types

import "encoding/json"

// ProviderConfig describes one service this process serves: the ServiceID
// it answers for, which transport to register it on, and an opaque blob
// the provider constructor interprets (request handler wiring, initial
// status values, etc).
type ProviderConfig struct {
	Name      string          `json:"name"`
	ServiceID uint64          `json:"service_id"`
	Enabled   bool            `json:"enabled"`
	Transport string          `json:"transport,omitempty"` // "", "nats", "ws" — empty means in-process
	Config    json.RawMessage `json:"config,omitempty"`
}

// RequesterConfig describes one service this process consumes.
type RequesterConfig struct {
	Name      string          `json:"name"`
	ServiceID uint64          `json:"service_id"`
	Enabled   bool            `json:"enabled"`
	Transport string          `json:"transport,omitempty"`
	Config    json.RawMessage `json:"config,omitempty"`
}

// RouterConfig describes the router's own behavior: which ServiceIDs it
// expects to pair locally versus hand off to a named transport.
type RouterConfig struct {
	// TransportRoutes maps a ServiceID to the name of the transport
	// backend that owns it ("nats", "ws"). ServiceIDs absent from this
	// map are routed in-process.
	TransportRoutes map[uint64]string `json:"transport_routes,omitempty"`
}

// ProviderConfigs is the "providers" section of Config, keyed by the
// instance name used for KV watch paths and log correlation.
type ProviderConfigs map[string]ProviderConfig

// RequesterConfigs is the "requesters" section of Config.
type RequesterConfigs map[string]RequesterConfig

// Clone returns a deep copy: a new map whose entries carry their own copy
// of the Config bytes.
func (p ProviderConfigs) Clone() ProviderConfigs {
	if p == nil {
		return nil
	}
	out := make(ProviderConfigs, len(p))
	for k, v := range p {
		v.Config = append(json.RawMessage(nil), v.Config...)
		out[k] = v
	}
	return out
}

// Clone returns a deep copy of RequesterConfigs.
func (r RequesterConfigs) Clone() RequesterConfigs {
	if r == nil {
		return nil
	}
	out := make(RequesterConfigs, len(r))
	for k, v := range r {
		v.Config = append(json.RawMessage(nil), v.Config...)
		out[k] = v
	}
	return out
}
