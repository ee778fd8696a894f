package queue

import (
	"context"
	"sync"

	"github.com/waveroom/api/internal/model"
)

// MemoryQueue is an in-process Queue used by tests and local development
// without Redis. FIFO order, duplicate enqueues of the same job collapse.
type MemoryQueue struct {
	mu  sync.Mutex
	ids []string
}

func NewMemoryQueue() *MemoryQueue {
	return &MemoryQueue{}
}

func (q *MemoryQueue) Enqueue(ctx context.Context, job *model.Job) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	for _, id := range q.ids {
		if id == job.ID {
			return nil
		}
	}
	q.ids = append(q.ids, job.ID)
	return nil
}

func (q *MemoryQueue) Dequeue(ctx context.Context, jobID string) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	for i, id := range q.ids {
		if id == jobID {
			q.ids = append(q.ids[:i], q.ids[i+1:]...)
			return nil
		}
	}
	return nil
}

func (q *MemoryQueue) Depth(ctx context.Context) (int, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.ids), nil
}

// Contains reports whether a job is currently queued. Test helper.
func (q *MemoryQueue) Contains(jobID string) bool {
	q.mu.Lock()
	defer q.mu.Unlock()

	for _, id := range q.ids {
		if id == jobID {
			return true
		}
	}
	return false
}
