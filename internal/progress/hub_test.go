package progress

import "testing"

func TestPublishDeliversToSubscriber(t *testing.T) {
	h := NewHub()
	ch, unsubscribe := h.Subscribe("T1")
	defer unsubscribe()

	h.Publish("T1", "hello")
	select {
	case line := <-ch:
		if line != "hello" {
			t.Fatalf("got %q", line)
		}
	default:
		t.Fatalf("expected buffered line to be immediately available")
	}
}

func TestPublishWithNoSubscribersIsNoop(t *testing.T) {
	h := NewHub()
	h.Publish("ghost", "line") // must not panic
}

func TestCloseClosesChannel(t *testing.T) {
	h := NewHub()
	ch, _ := h.Subscribe("T1")
	h.Close("T1")

	_, ok := <-ch
	if ok {
		t.Fatalf("expected channel to be closed")
	}
}

func TestUnsubscribeStopsDelivery(t *testing.T) {
	h := NewHub()
	ch, unsubscribe := h.Subscribe("T1")
	unsubscribe()

	h.Publish("T1", "missed")
	if _, ok := <-ch; ok {
		t.Fatalf("expected channel closed after unsubscribe")
	}
}

func TestSlowSubscriberDoesNotBlockPublish(t *testing.T) {
	h := NewHub()
	_, unsubscribe := h.Subscribe("T1")
	defer unsubscribe()

	for i := 0; i < subscriberBuffer+10; i++ {
		h.Publish("T1", "line") // must never block even once the buffer is full
	}
}
