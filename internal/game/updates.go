package game

import (
	"context"
	"sync"

	"github.com/scythe504/werewolf-backend/internal"
)

// UpdateChannel is an unbounded FIFO queue with a single consumer. Push
// never blocks; Next blocks until an update is available.
type UpdateChannel struct {
	mu     sync.Mutex
	queue  []internal.Update
	notify chan struct{}
}

func NewUpdateChannel() *UpdateChannel {
	return &UpdateChannel{notify: make(chan struct{}, 1)}
}

func (c *UpdateChannel) Push(u internal.Update) {
	c.mu.Lock()
	c.queue = append(c.queue, u)
	c.mu.Unlock()

	select {
	case c.notify <- struct{}{}:
	default:
	}
}

// Next pops the oldest update, waiting for one if the queue is empty. A done
// ctx leaves the queue untouched.
func (c *UpdateChannel) Next(ctx context.Context) (internal.Update, error) {
	for {
		if err := ctx.Err(); err != nil {
			return internal.Update{}, err
		}

		c.mu.Lock()
		if len(c.queue) > 0 {
			u := c.queue[0]
			c.queue[0] = internal.Update{}
			c.queue = c.queue[1:]
			c.mu.Unlock()
			return u, nil
		}
		c.mu.Unlock()

		select {
		case <-c.notify:
		case <-ctx.Done():
			return internal.Update{}, ctx.Err()
		}
	}
}

func (c *UpdateChannel) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.queue)
}
