package bus

import (
	"context"
	"errors"
	"fmt"
	"sync"
)

var (
	// ErrConsumerGone is returned by TrySend once the consumer closed the bus.
	ErrConsumerGone = errors.New("bus consumer has exited")
	// ErrClosed is returned by Recv when the bus is closed and drained.
	ErrClosed = errors.New("bus closed")
)

// Sender is the producer side of a bus.
type Sender interface {
	// Send delivers m or panics if the consumer is gone.
	Send(m Message)
	// TrySend delivers m or returns ErrConsumerGone.
	TrySend(m Message) error
}

// Bus is an unbounded FIFO queue with a single consumer.
type Bus struct {
	name string

	mu     sync.Mutex
	items  []Message
	closed bool
	ready  chan struct{}
}

var _ Sender = (*Bus)(nil)

// New creates an empty bus. The name shows up in panics and logs.
func New(name string) *Bus {
	return &Bus{
		name:  name,
		ready: make(chan struct{}, 1),
	}
}

func (b *Bus) Name() string { return b.name }

// Send appends m to the queue. Sending after the consumer has closed the bus
// means shutdown ran out of order, so it panics.
func (b *Bus) Send(m Message) {
	if err := b.TrySend(m); err != nil {
		panic(fmt.Errorf("send %T on %s: %w", m, b.name, err))
	}
}

func (b *Bus) TrySend(m Message) error {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return ErrConsumerGone
	}
	b.items = append(b.items, m)
	b.mu.Unlock()
	b.notify()
	return nil
}

func (b *Bus) notify() {
	select {
	case b.ready <- struct{}{}:
	default:
	}
}

// TryRecv pops the oldest message without blocking.
func (b *Bus) TryRecv() (Message, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if len(b.items) == 0 {
		return nil, false
	}
	m := b.items[0]
	b.items[0] = nil
	b.items = b.items[1:]
	if len(b.items) == 0 {
		b.items = nil
	}
	return m, true
}

// Recv blocks until a message is available, the bus is closed and empty, or
// ctx is done.
func (b *Bus) Recv(ctx context.Context) (Message, error) {
	for {
		if m, ok := b.TryRecv(); ok {
			return m, nil
		}
		b.mu.Lock()
		closed := b.closed
		b.mu.Unlock()
		if closed {
			return nil, ErrClosed
		}

		select {
		case <-b.ready:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
}

// Ready is signalled after a send. Consumers selecting on it must drain with
// TryRecv, since one signal may cover several messages.
func (b *Bus) Ready() <-chan struct{} {
	return b.ready
}

// Close is called by the consumer when it stops reading. Later sends fail.
func (b *Bus) Close() {
	b.mu.Lock()
	b.closed = true
	b.mu.Unlock()
	b.notify()
}

// Len returns the number of queued messages.
func (b *Bus) Len() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.items)
}
