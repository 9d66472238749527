package pipeline

import (
	"context"
	"sync"

	"github.com/starford/laguz/internal/models"
)

type job struct {
	correlationID string
	candidate     models.RawCandidate
}

// ingestQueue is the single admission point for asynchronous ingestion.
// It grows without bound under backpressure rather than dropping
// candidates; capacity is only an initial allocation hint.
type ingestQueue struct {
	mu     sync.Mutex
	items  []job
	signal chan struct{}
}

func newIngestQueue(capacity int) *ingestQueue {
	if capacity < 0 {
		capacity = 0
	}
	return &ingestQueue{
		items:  make([]job, 0, capacity),
		signal: make(chan struct{}, 1),
	}
}

// push appends a job and wakes one waiting worker.
func (q *ingestQueue) push(j job) {
	q.mu.Lock()
	q.items = append(q.items, j)
	q.mu.Unlock()

	select {
	case q.signal <- struct{}{}:
	default:
	}
}

// pop blocks until a job is available or ctx is done.
func (q *ingestQueue) pop(ctx context.Context) (job, error) {
	for {
		q.mu.Lock()
		if len(q.items) > 0 {
			j := q.items[0]
			q.items = q.items[1:]
			remaining := len(q.items)
			q.mu.Unlock()
			// Keep the signal hot so other workers drain the backlog.
			if remaining > 0 {
				select {
				case q.signal <- struct{}{}:
				default:
				}
			}
			return j, nil
		}
		q.mu.Unlock()

		select {
		case <-q.signal:
		case <-ctx.Done():
			return job{}, ctx.Err()
		}
	}
}

// size returns the current backlog length.
func (q *ingestQueue) size() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.items)
}
