package broadcast

import (
	"sync"

	"github.com/novapush/dispatcher/internal/domain"
	"github.com/novapush/dispatcher/internal/observability"
	"go.uber.org/zap"
)

const defaultSubscriberBuffer = 32

// Hub fans delivery updates out to connected observers. Publish is
// at-most-once per subscriber: a slow subscriber whose buffer is full
// misses the update instead of blocking the worker.
type Hub struct {
	mu          sync.Mutex
	subscribers map[int]chan domain.Delivery
	nextID      int
	bufferSize  int
	logger      *zap.Logger
	metrics     *observability.Metrics
}

func NewHub(logger *zap.Logger, metrics *observability.Metrics) *Hub {
	if logger == nil {
		logger = zap.NewNop()
	}

	return &Hub{
		subscribers: make(map[int]chan domain.Delivery),
		bufferSize:  defaultSubscriberBuffer,
		logger:      logger,
		metrics:     metrics,
	}
}

// Subscribe registers an observer and returns its update channel plus an
// unsubscribe func. Unsubscribe closes the channel and is safe to call once.
func (h *Hub) Subscribe() (<-chan domain.Delivery, func()) {
	h.mu.Lock()
	defer h.mu.Unlock()

	id := h.nextID
	h.nextID++

	ch := make(chan domain.Delivery, h.bufferSize)
	h.subscribers[id] = ch
	h.metrics.IncBroadcastSubscribers()

	var once sync.Once
	unsubscribe := func() {
		once.Do(func() {
			h.mu.Lock()
			defer h.mu.Unlock()

			if _, ok := h.subscribers[id]; !ok {
				return
			}
			delete(h.subscribers, id)
			close(ch)
			h.metrics.DecBroadcastSubscribers()
		})
	}

	return ch, unsubscribe
}

// Publish delivers the record to every subscriber without blocking.
func (h *Hub) Publish(delivery domain.Delivery) {
	if h == nil {
		return
	}

	h.mu.Lock()
	defer h.mu.Unlock()

	for id, ch := range h.subscribers {
		select {
		case ch <- delivery:
		default:
			h.logger.Debug("broadcast dropped for slow subscriber",
				zap.Int("subscriberId", id),
				zap.String("deliveryId", delivery.ID),
			)
		}
	}
}

// SubscriberCount reports the number of connected observers.
func (h *Hub) SubscriberCount() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.subscribers)
}

// Close drops every subscriber and closes their channels.
func (h *Hub) Close() {
	h.mu.Lock()
	defer h.mu.Unlock()

	for id, ch := range h.subscribers {
		delete(h.subscribers, id)
		close(ch)
		h.metrics.DecBroadcastSubscribers()
	}
}
