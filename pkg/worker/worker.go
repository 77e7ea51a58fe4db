package worker

import (
	"TargetFetcher/internal/logging"
	"TargetFetcher/pkg/dispatch"
	"context"
	"errors"
	"fmt"
	"strconv"
	"sync"
)

func NewWorker(id int, m Materializer, queue *dispatch.Queue, wg *sync.WaitGroup) *Worker {
	return &Worker{
		Id:           id,
		Materializer: m,
		Queue:        queue,
		Logger:       logging.GlobalLogger.With("worker", strconv.Itoa(id)),
		wg:           wg,
	}
}

// Start spawns a worker that runs until the queue is closed or a reply can
// no longer be delivered. There is nothing to wait on.
func Start(id int, m Materializer, queue *dispatch.Queue) {
	NewWorker(id, m, queue, &sync.WaitGroup{}).Start()
}

func (worker *Worker) Start() {
	worker.Logger.Debug("Started worker " + strconv.Itoa(worker.Id))

	worker.wg.Add(1)
	if worker.live != nil {
		worker.live.Add(1)
	}
	go func() {
		defer worker.wg.Done()
		if worker.live != nil {
			defer worker.live.Add(-1)
		}
		err := worker.work()
		if errors.Is(err, dispatch.ErrQueueClosed) {
			worker.Logger.Debug("Worker " + strconv.Itoa(worker.Id) + " stopped: " + err.Error())
			return
		}
		worker.Logger.Error("Worker " + strconv.Itoa(worker.Id) + " terminated: " + err.Error())
	}()
}

// work handles one message at a time. Materialization failures are answered
// with Failed; only queue and reply errors end the loop.
func (worker *Worker) work() error {
	ctx := context.Background()
	for {
		msg, err := worker.Queue.Receive(ctx)
		if err != nil {
			return fmt.Errorf("receive: %w", err)
		}

		status := dispatch.Success
		if err := worker.Materializer.Materialize(ctx, msg.Target); err != nil {
			status = dispatch.Failed
		}

		if err := msg.Reply.Send(status); err != nil {
			return fmt.Errorf("reply %s for %s: %w", status, msg.Target, err)
		}
	}
}

func NewPool(threadCount int, m Materializer, queue *dispatch.Queue) *Pool {
	logging.GlobalLogger.Info("Initializing worker pool with " + strconv.Itoa(threadCount) + " workers")

	p := &Pool{
		ThreadCount: threadCount,
		Queue:       queue,
		Workers:     make([]*Worker, threadCount),
		wg:          &sync.WaitGroup{},
	}

	for i := 0; i < threadCount; i++ {
		p.Workers[i] = NewWorker(i, m, queue, p.wg)
		p.Workers[i].live = &p.live
		p.Workers[i].Start()
	}

	return p
}

// Live counts workers whose loop has not ended yet.
func (p *Pool) Live() int {
	return int(p.live.Load())
}

// Stop closes the queue, lets the workers drain what is already queued and
// waits for them to exit.
func (p *Pool) Stop() {
	p.Queue.Close()
	p.wg.Wait()
	logging.GlobalLogger.Info("Worker pool stopped")
}

// Wait blocks until every worker has terminated, for whatever reason.
func (p *Pool) Wait() {
	p.wg.Wait()
}
