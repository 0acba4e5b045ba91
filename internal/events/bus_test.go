/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package events

import "testing"

func TestPublishDeliversToSubscribersOfType(t *testing.T) {
	bus := NewBus()
	status := bus.Subscribe(EventStatus)
	library := bus.Subscribe(EventLibraryChanged)

	bus.Publish(EventStatus, Payload{"kind": "miss"})

	select {
	case p := <-status:
		if p["kind"] != "miss" {
			t.Fatalf("payload = %v", p)
		}
	default:
		t.Fatal("status subscriber received nothing")
	}
	select {
	case p := <-library:
		t.Fatalf("library subscriber got %v", p)
	default:
	}
}

func TestPublishDropsWhenSubscriberFull(t *testing.T) {
	bus := NewBus()
	sub := bus.SubscribeBuffered(EventStatus, 1)

	bus.Publish(EventStatus, Payload{"n": 1})
	bus.Publish(EventStatus, Payload{"n": 2})

	if got := (<-sub)["n"]; got != 1 {
		t.Fatalf("first payload n = %v", got)
	}
	select {
	case p := <-sub:
		t.Fatalf("expected overflow to be dropped, got %v", p)
	default:
	}
}

func TestUnsubscribeClosesOnce(t *testing.T) {
	bus := NewBus()
	sub := bus.Subscribe(EventStatus)
	bus.Unsubscribe(EventStatus, sub)
	bus.Unsubscribe(EventStatus, sub)

	if _, ok := <-sub; ok {
		t.Fatal("subscriber should be closed")
	}
	bus.Publish(EventStatus, Payload{})
}
