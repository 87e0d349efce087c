package jackpot

import (
	"context"
	"sync"
)

// Broadcaster fans pool updates out to every listener. Each listener has its
// own buffer; a slow listener loses updates instead of blocking the others.
type Broadcaster struct {
	mu        sync.RWMutex
	buffer    int
	listeners map[chan Update]struct{}
}

// NewBroadcaster creates a broadcaster whose listeners buffer up to buffer updates.
func NewBroadcaster(buffer int) *Broadcaster {
	if buffer <= 0 {
		buffer = 1
	}
	return &Broadcaster{
		buffer:    buffer,
		listeners: make(map[chan Update]struct{}),
	}
}

// Send publishes an update to all listeners without blocking.
// It returns how many listeners received it.
func (b *Broadcaster) Send(update Update) int {
	b.mu.RLock()
	defer b.mu.RUnlock()

	delivered := 0
	for ch := range b.listeners {
		select {
		case ch <- update:
			delivered++
		default:
		}
	}
	return delivered
}

// Listen registers a listener. The channel is closed once ctx is done or the
// returned cancel function is called.
func (b *Broadcaster) Listen(ctx context.Context) (<-chan Update, context.CancelFunc) {
	listenerCtx, cancel := context.WithCancel(ctx)
	ch := make(chan Update, b.buffer)

	b.mu.Lock()
	b.listeners[ch] = struct{}{}
	b.mu.Unlock()

	go func() {
		<-listenerCtx.Done()
		b.mu.Lock()
		delete(b.listeners, ch)
		close(ch)
		b.mu.Unlock()
	}()

	return ch, cancel
}

// Listeners returns the number of registered listeners.
func (b *Broadcaster) Listeners() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.listeners)
}
