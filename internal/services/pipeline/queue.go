package pipeline

import (
	"context"
	"sync"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Queue decouples the HTTP request from the AI scoring call: Submit enqueues
// the task id and a pool of goroutines runs the scoring pass. A full queue
// never blocks a request; dropped ids are picked up again by Recover.
type Queue struct {
	jobs    chan uuid.UUID
	process func(ctx context.Context, taskID uuid.UUID) error
	log     *zap.Logger
	wg      sync.WaitGroup
}

func NewQueue(size int, process func(ctx context.Context, taskID uuid.UUID) error, log *zap.Logger) *Queue {
	if size <= 0 {
		size = 256
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &Queue{
		jobs:    make(chan uuid.UUID, size),
		process: process,
		log:     log,
	}
}

// Start launches n scoring workers. They drain until ctx is cancelled.
func (q *Queue) Start(ctx context.Context, n int) {
	if n <= 0 {
		n = 1
	}
	for i := 0; i < n; i++ {
		q.wg.Add(1)
		go func() {
			defer q.wg.Done()
			for {
				select {
				case <-ctx.Done():
					return
				case id := <-q.jobs:
					if err := q.process(ctx, id); err != nil {
						q.log.Error("scoring job failed",
							zap.String("task_id", id.String()), zap.Error(err))
					}
				}
			}
		}()
	}
}

// Enqueue hands a task to the pool without blocking the caller.
func (q *Queue) Enqueue(taskID uuid.UUID) {
	select {
	case q.jobs <- taskID:
	default:
		q.log.Warn("scoring queue full, deferring to recovery scan",
			zap.String("task_id", taskID.String()))
	}
}

// Wait blocks until all workers have exited. Call after cancelling the ctx
// passed to Start.
func (q *Queue) Wait() { q.wg.Wait() }
