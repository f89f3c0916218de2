package services

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"go.uber.org/zap"
)

type countingEvaluator struct {
	mu        sync.Mutex
	processed []uuid.UUID
	done      chan struct{}
}

func (c *countingEvaluator) EvaluateCandidate(_ context.Context, evalID uuid.UUID) error {
	c.mu.Lock()
	c.processed = append(c.processed, evalID)
	c.mu.Unlock()
	select {
	case c.done <- struct{}{}:
	default:
	}
	return nil
}

func TestWorkerProcessesEnqueuedJobs(t *testing.T) {
	evaluator := &countingEvaluator{done: make(chan struct{}, 4)}
	w := NewWorker(&fakeEvalRepo{}, evaluator, 2, zap.NewNop())

	w.Start(context.Background())
	defer w.Stop()

	ids := []uuid.UUID{uuid.New(), uuid.New(), uuid.New()}
	for _, id := range ids {
		w.EnqueueJob(id)
	}

	for range ids {
		select {
		case <-evaluator.done:
		case <-time.After(2 * time.Second):
			t.Fatal("timed out waiting for worker to process jobs")
		}
	}

	evaluator.mu.Lock()
	defer evaluator.mu.Unlock()
	assert.ElementsMatch(t, ids, evaluator.processed)
}

func TestWorkerStopDrainsGoroutines(t *testing.T) {
	evaluator := &countingEvaluator{done: make(chan struct{}, 1)}
	w := NewWorker(&fakeEvalRepo{}, evaluator, 1, zap.NewNop())

	w.Start(context.Background())

	stopped := make(chan struct{})
	go func() {
		w.Stop()
		close(stopped)
	}()

	select {
	case <-stopped:
	case <-time.After(2 * time.Second):
		t.Fatal("worker did not stop")
	}
}
