package command

import (
	"math/big"
	"sync"

	zlog "github.com/rs/zerolog/log"
)

// Queue is the handoff point between input workers and the dispatch loop.
// Enqueue may be called from any goroutine; Dequeue coalesces redundant
// commands before returning one.
type Queue struct {
	mu    sync.Mutex
	items []Command
	ready chan struct{}
}

// NewQueue creates an empty queue.
func NewQueue() *Queue {
	return &Queue{
		items: make([]Command, 0),
		ready: make(chan struct{}, 1),
	}
}

// Enqueue appends a command and wakes the consumer.
func (q *Queue) Enqueue(c Command) {
	q.mu.Lock()
	q.items = append(q.items, c)
	q.mu.Unlock()

	q.notify()
}

// Ready returns a channel that receives a value whenever commands may be
// available. A single wake may stand for several commands.
func (q *Queue) Ready() <-chan struct{} {
	return q.ready
}

// Len returns the number of queued commands.
func (q *Queue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.items)
}

// Dequeue removes and returns one logical command, or ok=false when the
// queue is empty.
//
// Repeated pause and rec collapse into the first one. Consecutive skips are
// summed into a single skip. replay is never collapsed.
func (q *Queue) Dequeue() (Command, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()

	if len(q.items) == 0 {
		return Command{}, false
	}

	for len(q.items) >= 2 {
		head, next := q.items[0], q.items[1]
		if head.Name != next.Name {
			break
		}

		if head.Name == NamePause || head.Name == NameRecord {
			zlog.Debug().Msgf("queue: dropping duplicated %s", next.Name)
			q.items = append(q.items[:1], q.items[2:]...)
			continue
		}

		if head.Name == NameSkip {
			sum, ok := sumSeconds(head.Arg(0), next.Arg(0))
			if !ok {
				break
			}
			zlog.Debug().Msgf("queue: merging skip %s and %s", head.Arg(0), next.Arg(0))
			q.items[1] = Command{Name: NameSkip, Args: []string{sum}}
			q.items = q.items[1:]
			continue
		}

		break
	}

	c := q.items[0]
	q.items = q.items[1:]
	if len(q.items) > 0 {
		q.notify()
	}
	return c, true
}

// Clear drops every queued command.
func (q *Queue) Clear() {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.items = q.items[:0]
}

func (q *Queue) notify() {
	select {
	case q.ready <- struct{}{}:
	default:
	}
}

func sumSeconds(a, b string) (string, bool) {
	x, ok := new(big.Int).SetString(a, 10)
	if !ok {
		return "", false
	}
	y, ok := new(big.Int).SetString(b, 10)
	if !ok {
		return "", false
	}
	return x.Add(x, y).String(), true
}
