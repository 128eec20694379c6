package broadcast

import (
	"testing"

	"github.com/novapush/dispatcher/internal/domain"
	"go.uber.org/zap"
)

func TestHubPublishReachesAllSubscribers(t *testing.T) {
	t.Parallel()

	hub := NewHub(zap.NewNop(), nil)
	defer hub.Close()

	first, stopFirst := hub.Subscribe()
	second, stopSecond := hub.Subscribe()
	defer stopFirst()
	defer stopSecond()

	if got := hub.SubscriberCount(); got != 2 {
		t.Fatalf("SubscriberCount() = %d, want 2", got)
	}

	hub.Publish(domain.Delivery{ID: "d1", Status: domain.StatusSent})

	for name, ch := range map[string]<-chan domain.Delivery{"first": first, "second": second} {
		select {
		case got := <-ch:
			if got.ID != "d1" {
				t.Fatalf("%s subscriber got id %q, want d1", name, got.ID)
			}
		default:
			t.Fatalf("%s subscriber received no update", name)
		}
	}
}

func TestHubUnsubscribeClosesChannel(t *testing.T) {
	t.Parallel()

	hub := NewHub(zap.NewNop(), nil)
	ch, unsubscribe := hub.Subscribe()

	unsubscribe()
	unsubscribe() // second call is a no-op

	if _, open := <-ch; open {
		t.Fatal("channel should be closed after unsubscribe")
	}
	if got := hub.SubscriberCount(); got != 0 {
		t.Fatalf("SubscriberCount() = %d, want 0", got)
	}

	// Publishing after the last subscriber left must not panic.
	hub.Publish(domain.Delivery{ID: "d2"})
}

func TestHubSlowSubscriberDoesNotBlock(t *testing.T) {
	t.Parallel()

	hub := NewHub(zap.NewNop(), nil)
	defer hub.Close()

	ch, stop := hub.Subscribe()
	defer stop()

	for i := 0; i < defaultSubscriberBuffer+10; i++ {
		hub.Publish(domain.Delivery{ID: "flood"})
	}

	received := 0
	for {
		select {
		case <-ch:
			received++
			continue
		default:
		}
		break
	}

	if received != defaultSubscriberBuffer {
		t.Fatalf("received = %d, want %d buffered updates", received, defaultSubscriberBuffer)
	}
}
