// Package testutil provides testing doubles for integration tests that
// exercise multiple router.Router instances without a live NATS or
// WebSocket deployment.
//
// # Core Components
//
// Bus - an in-memory switchboard joining any number of MockTransport
// instances, standing in for a NATS subject space or a WebSocket mesh.
//
// MockTransport - a transport.Transport implementation backed by a Bus.
// It honors the same subscription-style filtering natstransport and
// wstransport apply (ProvidesService, HostsRequester), so tests can wire
// two router.Router instances and exercise availability changes, request
// routing and status propagation purely in-process.
//
// # Usage
//
//	bus := testutil.NewBus()
//
//	serverTransport := testutil.NewMockTransport(bus)
//	serverTransport.ProvidesService(7)
//	serverRouter := router.New().WithTransport(serverTransport)
//
//	clientTransport := testutil.NewMockTransport(bus)
//	clientTransport.HostsRequester(csmsg.Address{ComponentID: 1, RegID: 1})
//	clientRouter := router.New().WithTransport(clientTransport)
//
// Provider and requester registered on their respective routers now
// exchange messages across the mock transport layer exactly as they
// would across a real NATS deployment.
package testutil
