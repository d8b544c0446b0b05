package response

import (
	"io"
	"sync"

	"github.com/google/uuid"
	zlog "github.com/rs/zerolog/log"
)

// DefaultSubscriberBuffer is the number of lines a subscriber may lag
// behind before lines are dropped for it.
const DefaultSubscriberBuffer = 256

// subscription represents a subscriber's subscription.
type subscription struct {
	id      string
	lines   chan string
	dropped uint64
}

// Broadcaster writes every response to the primary output and mirrors it to
// all subscribers. A subscriber that does not keep up loses lines; the
// primary output and other subscribers are never held up by it.
type Broadcaster struct {
	outMu sync.Mutex
	out   io.Writer

	mu            sync.RWMutex
	subscriptions map[string]*subscription
	closed        bool
}

// NewBroadcaster creates a broadcaster writing to out. out may be nil.
func NewBroadcaster(out io.Writer) *Broadcaster {
	return &Broadcaster{
		out:           out,
		subscriptions: make(map[string]*subscription),
	}
}

// Subscribe adds a new subscription and returns its ID and line channel.
// The channel is closed by Unsubscribe or Close.
func (b *Broadcaster) Subscribe(buffer int) (string, <-chan string) {
	if buffer <= 0 {
		buffer = DefaultSubscriberBuffer
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	id := uuid.New().String()
	sub := &subscription{
		id:    id,
		lines: make(chan string, buffer),
	}
	if b.closed {
		close(sub.lines)
		return id, sub.lines
	}
	b.subscriptions[id] = sub
	zlog.Debug().Msgf("response: subscriber %s attached", id)
	return id, sub.lines
}

// Unsubscribe removes a subscription.
func (b *Broadcaster) Unsubscribe(id string) {
	b.mu.Lock()
	defer b.mu.Unlock()

	sub, ok := b.subscriptions[id]
	if !ok {
		return
	}
	delete(b.subscriptions, id)
	close(sub.lines)
	zlog.Debug().Msgf("response: subscriber %s detached, %d lines dropped", id, sub.dropped)
}

// Emit writes r to the output and every subscriber.
func (b *Broadcaster) Emit(r Response) {
	line := r.String()

	if b.out != nil {
		b.outMu.Lock()
		_, err := io.WriteString(b.out, line+"\n")
		b.outMu.Unlock()
		if err != nil {
			zlog.Error().Msgf("response: failed to write %q: %v", line, err)
		}
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	for _, sub := range b.subscriptions {
		select {
		case sub.lines <- line:
		default:
			sub.dropped++
		}
	}
}

// SubscriberCount returns the number of active subscribers.
func (b *Broadcaster) SubscriberCount() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subscriptions)
}

// Close removes all subscriptions and closes their channels.
func (b *Broadcaster) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()

	for id, sub := range b.subscriptions {
		close(sub.lines)
		delete(b.subscriptions, id)
	}
	b.closed = true
}
