package router

import (
	"context"
	"testing"
	"time"

	"github.com/c360/maf/csmsg"
	"github.com/c360/maf/service"
)

func TestRouterEchoRoundTrip(t *testing.T) {
	r := New()
	prov := service.NewProvider(1, r.ProviderSender(), 0)
	defer prov.Close()
	prov.RegisterHandler(1, func(keeper *service.RequestKeeper, payload csmsg.Payload) {
		keeper.Respond(context.Background(), payload)
	})
	r.RegisterProvider(1, prov)

	addr := csmsg.Address{ComponentID: 100}
	req := service.NewRequester(addr, r.RequesterSender())
	r.RegisterRequester(1, addr, req)

	done := make(chan csmsg.Payload, 1)
	req.SendRequestAsync(context.Background(), 1, 1, csmsg.RawPayload("hi"), func(status csmsg.ActionCallStatus, payload csmsg.Payload) {
		done <- payload
	})

	select {
	case payload := <-done:
		if string(payload.Bytes()) != "hi" {
			t.Fatalf("expected echoed payload, got %q", payload.Bytes())
		}
	case <-time.After(time.Second):
		t.Fatal("request never answered")
	}
}

func TestRegisterRequesterBeforeProviderReportsUnavailable(t *testing.T) {
	r := New()
	addr := csmsg.Address{ComponentID: 1}
	req := service.NewRequester(addr, r.RequesterSender())

	var got csmsg.Availability
	done := make(chan struct{}, 1)
	req.RegisterServiceStatusObserver(1, func(a csmsg.Availability) service.ObserverResult {
		got = a
		done <- struct{}{}
		return service.ObserverOK
	})
	r.RegisterRequester(1, addr, req)
	<-done

	if got != csmsg.AvailabilityUnavailable {
		t.Fatalf("expected Unavailable before any provider registers, got %v", got)
	}
}

func TestRegisterProviderNotifiesWaitingRequesterAvailable(t *testing.T) {
	r := New()
	addr := csmsg.Address{ComponentID: 1}
	req := service.NewRequester(addr, r.RequesterSender())
	r.RegisterRequester(1, addr, req)

	var transitions []csmsg.Availability
	done := make(chan struct{}, 1)
	req.RegisterServiceStatusObserver(1, func(a csmsg.Availability) service.ObserverResult {
		transitions = append(transitions, a)
		if a == csmsg.AvailabilityAvailable {
			done <- struct{}{}
		}
		return service.ObserverOK
	})

	prov := service.NewProvider(1, r.ProviderSender(), 0)
	defer prov.Close()
	r.RegisterProvider(1, prov)

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("requester never observed Available transition")
	}
}

func TestUnregisterProviderNotifiesUnavailable(t *testing.T) {
	r := New()
	prov := service.NewProvider(1, r.ProviderSender(), 0)
	defer prov.Close()
	r.RegisterProvider(1, prov)

	addr := csmsg.Address{ComponentID: 1}
	req := service.NewRequester(addr, r.RequesterSender())
	r.RegisterRequester(1, addr, req)

	done := make(chan csmsg.Availability, 2)
	req.RegisterServiceStatusObserver(1, func(a csmsg.Availability) service.ObserverResult {
		done <- a
		return service.ObserverOK
	})

	r.UnregisterProvider(1)

	select {
	case a := <-done:
		if a != csmsg.AvailabilityUnavailable {
			t.Fatalf("expected Unavailable, got %v", a)
		}
	case <-time.After(time.Second):
		t.Fatal("requester never observed Unavailable transition")
	}
}

func TestCloseIsIdempotentAndTearsDownBothSides(t *testing.T) {
	r := New()
	prov := service.NewProvider(1, r.ProviderSender(), 0)
	defer prov.Close()
	r.RegisterProvider(1, prov)

	addr := csmsg.Address{ComponentID: 1}
	req := service.NewRequester(addr, r.RequesterSender())
	r.RegisterRequester(1, addr, req)

	r.Close()
	r.Close() // must not panic or double-teardown

	_, status := req.SendRequestAsync(context.Background(), 1, 1, nil, func(csmsg.ActionCallStatus, csmsg.Payload) {})
	if status == csmsg.StatusSuccess {
		t.Fatal("expected send to fail after Close tore down the provider registry")
	}
}
