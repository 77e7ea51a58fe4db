package dispatch

import (
	"TargetFetcher/pkg/target"
	"context"
	"errors"
	"fmt"
)

var ErrQueueClosed = errors.New("dispatch: queue closed")

func NewQueue() *Queue {
	return &Queue{notify: make(chan struct{})}
}

// Send appends msg without blocking; the queue has no capacity limit.
func (q *Queue) Send(msg Message) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.closed {
		return ErrQueueClosed
	}
	q.items = append(q.items, msg)

	// Wake every idle receiver; the first one to take the lock wins the message.
	close(q.notify)
	q.notify = make(chan struct{})
	return nil
}

// Receive hands the oldest pending message to exactly one caller. Pending
// messages are still drained after Close; ErrQueueClosed is returned once
// the queue is both closed and empty.
func (q *Queue) Receive(ctx context.Context) (Message, error) {
	for {
		q.mu.Lock()
		if len(q.items) > 0 {
			msg := q.items[0]
			q.items[0] = Message{}
			q.items = q.items[1:]
			q.mu.Unlock()
			return msg, nil
		}
		if q.closed {
			q.mu.Unlock()
			return Message{}, ErrQueueClosed
		}
		wait := q.notify
		q.mu.Unlock()

		select {
		case <-wait:
		case <-ctx.Done():
			return Message{}, ctx.Err()
		}
	}
}

func (q *Queue) Close() {
	q.mu.Lock()
	defer q.mu.Unlock()

	if !q.closed {
		q.closed = true
		close(q.notify)
	}
}

func (q *Queue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.items)
}

// Submit validates t, then enqueues it with a fresh reply for the caller to
// wait on. Invalid targets never reach a worker.
func Submit(q *Queue, t target.Target) (*Reply, error) {
	if err := t.Validate(); err != nil {
		return nil, fmt.Errorf("invalid target: %w", err)
	}
	reply := NewReply()
	if err := q.Send(Message{Target: t, Reply: reply}); err != nil {
		return nil, err
	}
	return reply, nil
}
