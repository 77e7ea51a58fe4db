package worker

import (
	"TargetFetcher/internal/logging"
	"TargetFetcher/pkg/dispatch"
	"TargetFetcher/pkg/target"
	"context"
	"sync"
	"sync/atomic"
)

type Materializer interface {
	Materialize(ctx context.Context, t target.Target) error
}

type Worker struct {
	Id           int
	Materializer Materializer
	Queue        *dispatch.Queue
	Logger       *logging.Logger
	wg           *sync.WaitGroup
	live         *atomic.Int32 // shared with the pool, nil for standalone workers
}

type Pool struct {
	ThreadCount int
	Queue       *dispatch.Queue
	Workers     []*Worker
	wg          *sync.WaitGroup
	live        atomic.Int32
}
