package worker

import (
	"TargetFetcher/internal/config"
	"TargetFetcher/internal/logging"
	"TargetFetcher/pkg/dispatch"
	"TargetFetcher/pkg/materializer"
	"TargetFetcher/pkg/target"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"
)

func newTestMaterializer() *materializer.Materializer {
	m := materializer.NewMaterializer(config.Default())
	m.Logger = logging.NewWriterLogger(io.Discard)
	m.Elevated = func() bool { return false }
	return m
}

type funcMaterializer func(ctx context.Context, t target.Target) error

func (f funcMaterializer) Materialize(ctx context.Context, t target.Target) error {
	return f(ctx, t)
}

func waitStatus(t *testing.T, r *dispatch.Reply) dispatch.Status {
	t.Helper()
	select {
	case s := <-r.C():
		return s
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for reply")
		return dispatch.Failed
	}
}

func waitPool(t *testing.T, p *Pool) {
	t.Helper()
	done := make(chan struct{})
	go func() {
		p.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("workers did not terminate")
	}
}

func TestFanOut(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		// Echo the path so each file can be matched to its request.
		fmt.Fprint(w, r.URL.Path)
	}))
	defer server.Close()

	const (
		workers = 4
		targets = 40
	)
	root := t.TempDir()
	q := dispatch.NewQueue()
	pool := NewPool(workers, newTestMaterializer(), q)
	defer pool.Stop()

	replies := make([]*dispatch.Reply, targets)
	dests := make([]string, targets)
	for i := 0; i < targets; i++ {
		var tgt target.Target
		if i%2 == 0 {
			dests[i] = filepath.Join(root, fmt.Sprintf("dir%d", i))
			tgt = target.NewDirectory(dests[i])
		} else {
			dests[i] = filepath.Join(root, "files", fmt.Sprintf("f%d.txt", i))
			tgt = target.NewFile(dests[i], fmt.Sprintf("%s/f%d", server.URL, i))
		}
		reply, err := dispatch.Submit(q, tgt)
		if err != nil {
			t.Fatalf("Submit: %v", err)
		}
		replies[i] = reply
	}

	for i, reply := range replies {
		if s := waitStatus(t, reply); s != dispatch.Success {
			t.Errorf("target %d: expected success, got %v", i, s)
		}
	}

	for i, dest := range dests {
		info, err := os.Stat(dest)
		if err != nil {
			t.Errorf("target %d missing: %v", i, err)
			continue
		}
		if i%2 == 0 {
			if !info.IsDir() {
				t.Errorf("target %d should be a directory", i)
			}
			continue
		}
		got, _ := os.ReadFile(dest)
		if want := fmt.Sprintf("/f%d", i); string(got) != want {
			t.Errorf("target %d: expected %q, got %q", i, want, got)
		}
	}
}

func TestFailureIsReported(t *testing.T) {
	q := dispatch.NewQueue()
	pool := NewPool(1, newTestMaterializer(), q)
	defer pool.Stop()

	dest := filepath.Join(t.TempDir(), "nosrc.bin")
	reply := dispatch.NewReply()
	// Bypass Submit's validation to reach the materializer's own check.
	if err := q.Send(dispatch.Message{Target: target.NewFile(dest, ""), Reply: reply}); err != nil {
		t.Fatalf("Send: %v", err)
	}
	if s := waitStatus(t, reply); s != dispatch.Failed {
		t.Fatalf("expected failed, got %v", s)
	}
	if _, err := os.Stat(dest); !os.IsNotExist(err) {
		t.Errorf("destination must not exist: %v", err)
	}

	// The worker survives a failed target.
	next, err := dispatch.Submit(q, target.NewDirectory(filepath.Join(t.TempDir(), "next")))
	if err != nil {
		t.Fatalf("Submit: %v", err)
	}
	if s := waitStatus(t, next); s != dispatch.Success {
		t.Errorf("expected success, got %v", s)
	}
}

func TestIdempotentThroughPool(t *testing.T) {
	q := dispatch.NewQueue()
	pool := NewPool(2, newTestMaterializer(), q)
	defer pool.Stop()

	dest := filepath.Join(t.TempDir(), "twice")
	for i := 0; i < 2; i++ {
		reply, err := dispatch.Submit(q, target.NewDirectory(dest))
		if err != nil {
			t.Fatalf("Submit: %v", err)
		}
		if s := waitStatus(t, reply); s != dispatch.Success {
			t.Errorf("run %d: expected success, got %v", i, s)
		}
	}
}

func TestQueueCloseTerminatesWorkers(t *testing.T) {
	q := dispatch.NewQueue()
	pool := NewPool(3, newTestMaterializer(), q)
	if n := pool.Live(); n != 3 {
		t.Fatalf("expected 3 live workers, got %d", n)
	}

	q.Close()
	waitPool(t, pool)
	if n := pool.Live(); n != 0 {
		t.Errorf("expected no live workers after close, got %d", n)
	}
}

func TestPoolLiveCountsTerminatedWorkers(t *testing.T) {
	q := dispatch.NewQueue()
	pool := NewPool(2, funcMaterializer(func(ctx context.Context, tgt target.Target) error {
		return nil
	}), q)
	defer pool.Stop()

	abandoned := dispatch.NewReply()
	abandoned.Abandon()
	if err := q.Send(dispatch.Message{Target: target.NewDirectory("x"), Reply: abandoned}); err != nil {
		t.Fatalf("Send: %v", err)
	}

	deadline := time.Now().Add(5 * time.Second)
	for pool.Live() != 1 {
		if time.Now().After(deadline) {
			t.Fatalf("expected 1 live worker, got %d", pool.Live())
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func TestDroppedReplyTerminatesOnlyThatWorker(t *testing.T) {
	var mu sync.Mutex
	handled := 0
	m := funcMaterializer(func(ctx context.Context, tgt target.Target) error {
		mu.Lock()
		handled++
		mu.Unlock()
		return nil
	})

	q := dispatch.NewQueue()
	wg := &sync.WaitGroup{}
	dying := NewWorker(0, m, q, wg)
	dying.Logger = logging.NewWriterLogger(io.Discard)
	dying.Start()

	abandoned := dispatch.NewReply()
	abandoned.Abandon()
	if err := q.Send(dispatch.Message{Target: target.NewDirectory("x"), Reply: abandoned}); err != nil {
		t.Fatalf("Send: %v", err)
	}

	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("worker should terminate after a dropped reply")
	}

	// A sibling started on the same queue is unaffected.
	sibling := NewPool(1, m, q)
	defer sibling.Stop()
	reply, err := dispatch.Submit(q, target.NewDirectory("y"))
	if err != nil {
		t.Fatalf("Submit: %v", err)
	}
	if s := waitStatus(t, reply); s != dispatch.Success {
		t.Errorf("expected success, got %v", s)
	}

	mu.Lock()
	defer mu.Unlock()
	if handled != 2 {
		t.Errorf("expected 2 materializations, got %d", handled)
	}
}

func TestStartFireAndForget(t *testing.T) {
	q := dispatch.NewQueue()
	defer q.Close()
	m := funcMaterializer(func(ctx context.Context, tgt target.Target) error {
		return errors.New("boom")
	})
	Start(7, m, q)

	reply, err := dispatch.Submit(q, target.NewDirectory("z"))
	if err != nil {
		t.Fatalf("Submit: %v", err)
	}
	if s := waitStatus(t, reply); s != dispatch.Failed {
		t.Errorf("expected failed, got %v", s)
	}
}
