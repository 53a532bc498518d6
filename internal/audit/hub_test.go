package audit

import (
	"testing"

	"github.com/campusgate/gatepass/internal/model"
)

// newTestSubscriber builds a Subscriber with a buffered send channel but no
// real network connection, enough to exercise the broadcast fan-out and
// removal paths without a websocket server.
func newTestSubscriber(id uint64, buf int) *Subscriber {
	return &Subscriber{id: id, send: make(chan []byte, buf)}
}

func TestBroadcastDeliversToAllSubscribers(t *testing.T) {
	h := NewHub(nil)
	a := newTestSubscriber(1, 4)
	b := newTestSubscriber(2, 4)
	h.subscribers[a.id] = a
	h.subscribers[b.id] = b

	h.Broadcast(model.ScanLog{ID: 1, Result: model.ResultSuccess})

	for _, sub := range []*Subscriber{a, b} {
		select {
		case <-sub.send:
		default:
			t.Errorf("subscriber %d did not receive broadcast", sub.id)
		}
	}
}

func TestBroadcastFullChannelDoesNotBlockOrAffectOthers(t *testing.T) {
	h := NewHub(nil)
	slow := newTestSubscriber(1, 0) // unbuffered, never drained: send must not block
	healthy := newTestSubscriber(2, 4)
	h.subscribers[slow.id] = slow
	h.subscribers[healthy.id] = healthy

	done := make(chan struct{})
	go func() {
		h.Broadcast(model.ScanLog{ID: 1})
		close(done)
	}()
	<-done // Broadcast must return promptly even though slow's channel is full.

	select {
	case <-healthy.send:
	default:
		t.Error("healthy subscriber did not receive broadcast despite slow peer")
	}
}

func TestRemoveSubscriberStopsFurtherDelivery(t *testing.T) {
	h := NewHub(nil)
	sub := newTestSubscriber(1, 4)
	h.subscribers[sub.id] = sub

	h.remove(sub.id)

	if h.SubscriberCount() != 0 {
		t.Errorf("SubscriberCount after remove = %d, want 0", h.SubscriberCount())
	}
}

func TestSubscriberCountReflectsRegistrations(t *testing.T) {
	h := NewHub(nil)
	h.subscribers[1] = newTestSubscriber(1, 1)
	h.subscribers[2] = newTestSubscriber(2, 1)

	if h.SubscriberCount() != 2 {
		t.Errorf("SubscriberCount = %d, want 2", h.SubscriberCount())
	}
}
