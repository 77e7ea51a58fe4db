package dispatch

import (
	"TargetFetcher/pkg/target"
	"sync"
	"sync/atomic"
)

type Status int

const (
	Success Status = iota
	Failed
)

func (s Status) String() string {
	if s == Success {
		return "success"
	}
	return "failed"
}

// Message pairs one target with the reply that answers it. It is consumed
// by exactly one worker.
type Message struct {
	Target target.Target
	Reply  *Reply
}

type Reply struct {
	ch          chan Status
	abandoned   chan struct{}
	abandonOnce sync.Once
	sent        atomic.Bool
}

type Queue struct {
	mu     sync.Mutex
	items  []Message
	closed bool
	notify chan struct{} // closed and replaced on every Send, closed for good on Close
}
