package queue

import (
	"container/heap"
	"context"
	"errors"
	"sync"

	"github.com/studybuddy/studybuddy-api/internal/domain"
)

// ErrQueueClosed is returned when dequeueing from a closed queue.
var ErrQueueClosed = errors.New("queue is closed")

// queuedJob wraps a job record with the FIFO sequence number used to
// break priority ties.
type queuedJob struct {
	record *domain.JobRecord
	seq    uint64
}

// jobHeap orders jobs by descending priority, then FIFO.
type jobHeap []*queuedJob

func (h jobHeap) Len() int { return len(h) }

func (h jobHeap) Less(i, j int) bool {
	if h[i].record.Priority != h[j].record.Priority {
		return h[i].record.Priority > h[j].record.Priority
	}
	return h[i].seq < h[j].seq
}

func (h jobHeap) Swap(i, j int) { h[i], h[j] = h[j], h[i] }

func (h *jobHeap) Push(x any) { *h = append(*h, x.(*queuedJob)) }

func (h *jobHeap) Pop() any {
	old := *h
	n := len(old)
	item := old[n-1]
	old[n-1] = nil
	*h = old[:n-1]
	return item
}

// namedQueue is one named, in-process dispatch queue. Workers block in
// Dequeue until a job is available; enqueueing signals a single waiter.
// Paused queues accept new jobs but dispatch nothing.
type namedQueue struct {
	mu     sync.Mutex
	jobs   jobHeap
	seq    uint64
	notify chan struct{}
	paused bool
	closed bool
}

func newNamedQueue() *namedQueue {
	return &namedQueue{
		notify: make(chan struct{}, 1),
	}
}

// Push adds a job for dispatch.
func (q *namedQueue) Push(record *domain.JobRecord) {
	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		return
	}
	q.seq++
	heap.Push(&q.jobs, &queuedJob{record: record, seq: q.seq})
	q.mu.Unlock()

	q.wake()
}

// Dequeue blocks until a job is available, the context is cancelled, or
// the queue is closed.
func (q *namedQueue) Dequeue(ctx context.Context) (*domain.JobRecord, error) {
	for {
		q.mu.Lock()
		if q.closed {
			q.mu.Unlock()
			return nil, ErrQueueClosed
		}
		if !q.paused && q.jobs.Len() > 0 {
			item := heap.Pop(&q.jobs).(*queuedJob)
			remaining := q.jobs.Len()
			q.mu.Unlock()
			if remaining > 0 {
				// Hand the wakeup on so other blocked workers drain the
				// backlog instead of waiting for the next push.
				q.wake()
			}
			return item.record, nil
		}
		q.mu.Unlock()

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-q.notify:
		}
	}
}

// Pause stops dispatch without aborting in-flight jobs.
func (q *namedQueue) Pause() {
	q.mu.Lock()
	q.paused = true
	q.mu.Unlock()
}

// Resume re-enables dispatch.
func (q *namedQueue) Resume() {
	q.mu.Lock()
	q.paused = false
	q.mu.Unlock()

	q.wake()
}

// Close shuts the queue down; blocked Dequeue calls return ErrQueueClosed.
func (q *namedQueue) Close() {
	q.mu.Lock()
	q.closed = true
	close(q.notify)
	q.mu.Unlock()
}

// Len returns the number of jobs waiting for dispatch.
func (q *namedQueue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.jobs.Len()
}

func (q *namedQueue) wake() {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.closed {
		return
	}
	select {
	case q.notify <- struct{}{}:
	default:
	}
}
