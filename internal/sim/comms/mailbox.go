package comms

import (
	"context"
	"errors"
	"sync"
)

// ErrChannelClosed is returned for sends and receives on a closed mailbox,
// and for operations abandoned because the caller's context ended.
var ErrChannelClosed = errors.New("channel closed")

// Mailbox is a bounded FIFO event queue. Events from one sender are always
// received in the order they were sent.
type Mailbox struct {
	ch     chan Event
	closed chan struct{}
	once   sync.Once
}

func NewMailbox(capacity int) *Mailbox {
	if capacity < 1 {
		capacity = 1
	}
	return &Mailbox{
		ch:     make(chan Event, capacity),
		closed: make(chan struct{}),
	}
}

// Send enqueues ev, blocking while the mailbox is full. The only failures
// are a closed mailbox or a canceled context; a slow consumer just means
// waiting.
func (m *Mailbox) Send(ctx context.Context, ev Event) error {
	select {
	case <-m.closed:
		return ErrChannelClosed
	default:
	}
	select {
	case m.ch <- ev:
		return nil
	case <-m.closed:
		return ErrChannelClosed
	case <-ctx.Done():
		return ErrChannelClosed
	}
}

// TrySend enqueues without blocking. Used for best-effort pushes where the
// sender prefers dropping to waiting.
func (m *Mailbox) TrySend(ev Event) bool {
	select {
	case <-m.closed:
		return false
	default:
	}
	select {
	case m.ch <- ev:
		return true
	default:
		return false
	}
}

// Receive dequeues the next event, blocking while the mailbox is empty.
// Events already buffered at close time are still delivered; only a drained
// closed mailbox reports ErrChannelClosed.
func (m *Mailbox) Receive(ctx context.Context) (Event, error) {
	select {
	case ev := <-m.ch:
		return ev, nil
	default:
	}
	select {
	case ev := <-m.ch:
		return ev, nil
	case <-m.closed:
		select {
		case ev := <-m.ch:
			return ev, nil
		default:
			return nil, ErrChannelClosed
		}
	case <-ctx.Done():
		return nil, ErrChannelClosed
	}
}

// TryReceive dequeues without blocking.
func (m *Mailbox) TryReceive() (Event, bool) {
	select {
	case ev := <-m.ch:
		return ev, true
	default:
		return nil, false
	}
}

// Close stops future sends. Buffered events remain receivable. Closing twice
// is harmless.
func (m *Mailbox) Close() {
	m.once.Do(func() { close(m.closed) })
}

func (m *Mailbox) Len() int { return len(m.ch) }
func (m *Mailbox) Cap() int { return cap(m.ch) }
