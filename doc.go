// Package maf implements the Messaging App Framework: a client-server
// messaging system built around a small, explicit service protocol state
// machine, a component message loop with timer support, and a router that
// can operate purely in-process or bridge to a wire transport.
//
// # Architecture
//
//	┌─────────────────────────────────────┐
//	│            Router                    │  address book, message fan-out
//	│  (in-process dispatch + transport)   │
//	└──────────────┬───────────┬───────────┘
//	               │           │
//	        ┌──────┘           └──────┐
//	        ↓                         ↓
//	┌───────────────┐         ┌───────────────┐
//	│ ServiceRequester│         │ ServiceProvider│   protocol state machines
//	│ (client side)  │         │ (server side)  │
//	└───────┬────────┘         └───────┬────────┘
//	        │                          │
//	        ↓                          ↓
//	┌───────────────────────────────────────────┐
//	│              Component                     │   message loop, timers
//	└───────────────────────────────────────────┘
//	               ↓ optionally bridged by
//	┌───────────────────────────────────────────┐
//	│   Transport (NATS or WebSocket)            │
//	└───────────────────────────────────────────┘
//
// A message envelope (package csmsg) carries one of eight opcodes -
// Request, Response, Abort, SignalRegister, StatusRegister, StatusGet,
// Unregister and ServiceStatusUpdate - between requesters and providers.
// The Router delivers a requester's messages to the provider registered
// for the message's ServiceID and a provider's messages to the requester
// at the message's Source address; when the destination is not registered
// locally it forwards through a Transport implementation. Messages arriving
// from a transport are routed by opcode, and ServiceStatusUpdate messages
// become availability changes.
//
// # Packages
//
// Core protocol:
//   - idmgr: reusable request/subscription ID allocation
//   - queue: priority message queue feeding a component's read loop
//   - component: message loop, timer manager, per-component logging
//   - csmsg: wire envelope, opcodes, status payloads, codecs
//   - service: ServiceRequester and ServiceProvider state machines
//   - router: address registration and message dispatch
//   - transport: the Transport interface plus natstransport and
//     wstransport implementations
//
// Ambient and domain stack:
//   - errors: transient/invalid/fatal error classification
//   - metric: Prometheus instrumentation
//   - health: liveness/readiness probes
//   - config: layered JSON configuration with NATS KV-backed live reload
//   - natsclient: NATS connection management used by transport/natstransport
//   - pkg/cache, pkg/buffer, pkg/retry, pkg/security, pkg/tlsutil, pkg/worker:
//     generic infrastructure shared by the service and transport layers
//   - types: JSON-configurable descriptors for providers, requesters and
//     routers
//   - testutil: an in-memory transport double (Bus, MockTransport) for unit
//     tests
//   - cmd/maf: a demonstration binary wiring a Router, a NATS transport,
//     one provider and one requester
//
// # Usage
//
//	r := router.New()
//	defer r.Close()
//
//	provider := service.NewProvider(1, r.ProviderSender(), 0)
//	r.RegisterProvider(1, provider)
//	provider.RegisterHandler(7, func(k *service.RequestKeeper, p csmsg.Payload) {
//	    k.Respond(ctx, p)
//	})
//
//	addr := csmsg.Address{ComponentID: 1, RegID: 1}
//	requester := service.NewRequester(addr, r.RequesterSender())
//	r.RegisterRequester(1, addr, requester)
//
//	resp, status := requester.SendRequest(ctx, 1, 7, csmsg.RawPayload("ping"), time.Second)
package maf
