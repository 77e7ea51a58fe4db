package dispatch

import (
	"context"
	"errors"
)

var (
	ErrReplyDropped = errors.New("dispatch: reply receiver dropped")
	ErrReplyUsed    = errors.New("dispatch: reply already sent")
)

func NewReply() *Reply {
	return &Reply{
		ch:        make(chan Status, 1),
		abandoned: make(chan struct{}),
	}
}

// Send delivers the single completion status. It never blocks.
func (r *Reply) Send(s Status) error {
	if r == nil {
		return ErrReplyDropped
	}
	select {
	case <-r.abandoned:
		return ErrReplyDropped
	default:
	}
	if !r.sent.CompareAndSwap(false, true) {
		return ErrReplyUsed
	}
	r.ch <- s
	return nil
}

func (r *Reply) C() <-chan Status {
	return r.ch
}

// Wait blocks for the status. When ctx ends first the reply is abandoned,
// so the worker that eventually answers sees ErrReplyDropped.
func (r *Reply) Wait(ctx context.Context) (Status, error) {
	select {
	case s := <-r.ch:
		return s, nil
	case <-ctx.Done():
		r.Abandon()
		return Failed, ctx.Err()
	}
}

// Await is Wait without abandoning. When ctx ends first the caller simply
// stops listening; the buffered status is still accepted by the worker and
// discarded with the reply.
func (r *Reply) Await(ctx context.Context) (Status, error) {
	select {
	case s := <-r.ch:
		return s, nil
	case <-ctx.Done():
		return Failed, ctx.Err()
	}
}

// Abandon tells the worker nobody is listening any more. Producers call this
// instead of closing the channel.
func (r *Reply) Abandon() {
	r.abandonOnce.Do(func() { close(r.abandoned) })
}
