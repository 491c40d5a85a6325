package broadcast

import (
	"sync"

	apperrors "github.com/tradewell/backoffice-session/internal/errors"
)

// DefaultChannelName is the well-known channel shared by all client
// contexts of the application.
const DefaultChannelName = "session_sync"

// Channel is a named pub/sub conduit. Delivery is fan-out to every
// subscriber, including subscribers belonging to the publishing
// context; handlers must be idempotent.
type Channel interface {
	Publish(msg Message) error
	Subscribe(fn func(Message)) (cancel func())
	Close() error
}

// Hub is the in-process Channel implementation. A single dispatcher
// goroutine preserves publish order and keeps handlers free to
// publish again without deadlocking.
type Hub struct {
	name string

	mu      sync.Mutex
	subs    map[int]func(Message)
	nextSub int

	queue     chan Message
	done      chan struct{}
	closeOnce sync.Once
}

// NewHub creates a Channel with the given name and starts its
// dispatcher.
func NewHub(name string) *Hub {
	h := &Hub{
		name:  name,
		subs:  make(map[int]func(Message)),
		queue: make(chan Message, 64),
		done:  make(chan struct{}),
	}
	go h.dispatch()
	return h
}

var _ Channel = (*Hub)(nil)

// Name returns the channel identifier.
func (h *Hub) Name() string { return h.name }

func (h *Hub) Publish(msg Message) error {
	select {
	case <-h.done:
		return apperrors.ErrChannelClosed
	default:
	}
	// Non-blocking enqueue: a handler publishing while the queue is
	// full would otherwise block the dispatcher against itself.
	select {
	case h.queue <- msg:
		return nil
	default:
		return apperrors.ErrChannelFull
	}
}

func (h *Hub) Subscribe(fn func(Message)) (cancel func()) {
	h.mu.Lock()
	id := h.nextSub
	h.nextSub++
	h.subs[id] = fn
	h.mu.Unlock()

	return func() {
		h.mu.Lock()
		delete(h.subs, id)
		h.mu.Unlock()
	}
}

func (h *Hub) Close() error {
	h.closeOnce.Do(func() {
		close(h.done)
	})
	return nil
}

func (h *Hub) dispatch() {
	for {
		select {
		case <-h.done:
			return
		case msg := <-h.queue:
			h.mu.Lock()
			subs := make([]func(Message), 0, len(h.subs))
			for _, fn := range h.subs {
				subs = append(subs, fn)
			}
			h.mu.Unlock()
			for _, fn := range subs {
				fn(msg)
			}
		}
	}
}
