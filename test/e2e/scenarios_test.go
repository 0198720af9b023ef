// Package e2e exercises requester, provider and router together the way a
// deployed mesh would use them: every test wires a fresh router.Router,
// registers a provider and a requester against it, and drives the
// interaction purely through the public service.Requester / service.Provider
// surface, with no loopback shortcuts internal to the service package.
package e2e

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/c360/maf/csmsg"
	"github.com/c360/maf/router"
	"github.com/c360/maf/service"
)

const echoServiceID uint64 = 100

func newRoutedPair(t *testing.T) (*router.Router, *service.Requester, *service.Provider) {
	t.Helper()
	r := router.New()
	t.Cleanup(r.Close)

	provider := service.NewProvider(echoServiceID, r.ProviderSender(), 2)
	r.RegisterProvider(echoServiceID, provider)
	t.Cleanup(func() { _ = provider.Close() })

	requester := service.NewRequester(csmsg.Address{ComponentID: 1, RegID: 1}, r.RequesterSender())
	r.RegisterRequester(echoServiceID, csmsg.Address{ComponentID: 1, RegID: 1}, requester)

	return r, requester, provider
}

// Async request: a provider that echoes its payload back must deliver it
// to the requester's callback promptly.
func TestAsyncEchoRequest(t *testing.T) {
	_, requester, provider := newRoutedPair(t)

	provider.RegisterHandler(1, func(keeper *service.RequestKeeper, payload csmsg.Payload) {
		keeper.Respond(context.Background(), payload)
	})

	done := make(chan csmsg.Payload, 1)
	_, status := requester.SendRequestAsync(context.Background(), echoServiceID, 1,
		csmsg.RawPayload{0x01, 0x02}, func(_ csmsg.ActionCallStatus, payload csmsg.Payload) {
			done <- payload
		})
	if status != csmsg.StatusSuccess {
		t.Fatalf("expected StatusSuccess, got %v", status)
	}

	select {
	case payload := <-done:
		if got := payload.Bytes(); len(got) != 2 || got[0] != 0x01 || got[1] != 0x02 {
			t.Fatalf("expected echoed [0x01 0x02], got %v", got)
		}
	case <-time.After(100 * time.Millisecond):
		t.Fatal("callback never invoked within 100ms")
	}
}

// Sync request timeout: a provider that never answers must cause the sync
// call to report StatusTimeout, and the provider must observe an Abort for
// that request shortly after.
func TestSyncRequestTimeoutTriggersAbort(t *testing.T) {
	_, requester, provider := newRoutedPair(t)

	aborted := make(chan struct{}, 1)
	provider.RegisterHandler(2, func(keeper *service.RequestKeeper, _ csmsg.Payload) {
		keeper.OnAbortedBy(func() {
			select {
			case aborted <- struct{}{}:
			default:
			}
		})
	})

	_, status := requester.SendRequest(context.Background(), echoServiceID, 2, nil, 50*time.Millisecond)
	if status != csmsg.StatusTimeout {
		t.Fatalf("expected StatusTimeout, got %v", status)
	}

	select {
	case <-aborted:
	case <-time.After(50 * time.Millisecond):
		t.Fatal("provider never observed an abort after the sync timeout")
	}
}

// Status subscription: the current value delivers immediately on
// registration, subsequent pushes deliver only on semantic change, and a
// synchronous getStatus call is served from cache without wire traffic.
func TestStatusSubscriptionAndCacheCoherency(t *testing.T) {
	_, requester, provider := newRoutedPair(t)

	provider.SetStatus(context.Background(), 9, csmsg.RawPayload("p1"))

	var mu sync.Mutex
	var seen []string
	requester.RegisterNotification(context.Background(), echoServiceID, 9, csmsg.OpStatusRegister,
		func(payload csmsg.Payload) service.ObserverResult {
			mu.Lock()
			seen = append(seen, string(payload.Bytes()))
			mu.Unlock()
			return service.ObserverOK
		})

	time.Sleep(20 * time.Millisecond)
	provider.SetStatus(context.Background(), 9, csmsg.RawPayload("p2"))
	time.Sleep(20 * time.Millisecond)

	mu.Lock()
	got := append([]string(nil), seen...)
	mu.Unlock()
	if len(got) != 2 || got[0] != "p1" || got[1] != "p2" {
		t.Fatalf("expected [p1 p2] deliveries, got %v", got)
	}

	cached, ok := requester.CachedProperty(echoServiceID, 9)
	if !ok || string(cached.Bytes()) != "p2" {
		t.Fatalf("expected cache to hold p2, got %v (ok=%v)", cached, ok)
	}

	if v, status := requester.GetStatus(context.Background(), echoServiceID, 9, 50*time.Millisecond); status != csmsg.StatusSuccess || v == nil || string(v.Bytes()) != "p2" {
		t.Fatalf("expected GetStatus to return cached p2, got %v (status=%v)", v, status)
	}
}

// Availability loss: pending requests and cached state must clear, and a
// subsequent send must fail fast with ServiceUnavailable.
func TestAvailabilityLossClearsOutstandingState(t *testing.T) {
	r, requester, provider := newRoutedPair(t)

	requester.RegisterNotification(context.Background(), echoServiceID, 3, csmsg.OpStatusRegister,
		func(csmsg.Payload) service.ObserverResult { return service.ObserverOK })
	provider.SetStatus(context.Background(), 3, csmsg.RawPayload("up"))
	time.Sleep(20 * time.Millisecond)

	// A handler that never responds keeps the request pending.
	provider.RegisterHandler(3, func(*service.RequestKeeper, csmsg.Payload) {})

	pending := make(chan csmsg.ActionCallStatus, 1)
	requester.SendRequestAsync(context.Background(), echoServiceID, 3, nil,
		func(status csmsg.ActionCallStatus, _ csmsg.Payload) { pending <- status })

	r.UnregisterProvider(echoServiceID)

	select {
	case status := <-pending:
		if status != csmsg.StatusServiceUnavailable {
			t.Fatalf("expected StatusServiceUnavailable, got %v", status)
		}
	case <-time.After(time.Second):
		t.Fatal("pending async request never resolved after provider loss")
	}

	if _, ok := requester.CachedProperty(echoServiceID, 3); ok {
		t.Fatal("expected cached property cleared on availability loss")
	}

	_, status := requester.SendRequest(context.Background(), echoServiceID, 3, nil, 50*time.Millisecond)
	if status != csmsg.StatusServiceUnavailable {
		t.Fatalf("expected send after unavailability to fail fast, got %v", status)
	}
}

// Abort path: aborting a request notifies the provider's abortedBy
// callback exactly once, and a late Respond on that keeper is a no-op.
func TestAbortRequestInvokesProviderCallbackOnce(t *testing.T) {
	_, requester, provider := newRoutedPair(t)

	var mu sync.Mutex
	abortCount := 0
	keeperCh := make(chan *service.RequestKeeper, 1)

	provider.RegisterHandler(4, func(keeper *service.RequestKeeper, _ csmsg.Payload) {
		keeper.OnAbortedBy(func() {
			mu.Lock()
			abortCount++
			mu.Unlock()
		})
		keeperCh <- keeper
	})

	requestID, _ := requester.SendRequestAsync(context.Background(), echoServiceID, 4, nil,
		func(csmsg.ActionCallStatus, csmsg.Payload) {})
	keeper := <-keeperCh

	if ok := requester.AbortRequest(requestID); !ok {
		t.Fatal("expected AbortRequest to report the request as found")
	}
	time.Sleep(20 * time.Millisecond)

	keeper.Respond(context.Background(), csmsg.RawPayload("too late"))
	time.Sleep(20 * time.Millisecond)

	mu.Lock()
	defer mu.Unlock()
	if abortCount != 1 {
		t.Fatalf("expected abortedBy invoked exactly once, got %d", abortCount)
	}
}
