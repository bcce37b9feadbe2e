package build

import (
	"context"
	"sync"

	"github.com/conneroisu/pagewright/internal/render"
)

// Queue error definitions
var (
	ErrQueueClosed = &QueueError{Code: "QUEUE_CLOSED", Message: "job queue has been closed"}
)

// QueueError represents an error in queue operations.
type QueueError struct {
	Code    string
	Message string
}

func (qe *QueueError) Error() string {
	return qe.Message
}

// jobQueue is an unbounded FIFO of render jobs. Push never blocks, so event
// handlers on the dispatcher goroutine can submit follow-up jobs while the
// workers are busy emitting.
type jobQueue struct {
	mutex  sync.Mutex
	jobs   []render.Job
	notify chan struct{}
	closed bool
}

func newJobQueue() *jobQueue {
	return &jobQueue{notify: make(chan struct{}, 1)}
}

// Push appends job. It fails once the queue is closed.
func (q *jobQueue) Push(job render.Job) error {
	q.mutex.Lock()
	defer q.mutex.Unlock()
	if q.closed {
		return ErrQueueClosed
	}
	q.jobs = append(q.jobs, job)
	q.signal()
	return nil
}

// Pop waits for the next job. Jobs queued before Close are still handed
// out; after that Pop returns ErrQueueClosed.
func (q *jobQueue) Pop(ctx context.Context) (render.Job, error) {
	for {
		q.mutex.Lock()
		if len(q.jobs) > 0 {
			job := q.jobs[0]
			q.jobs[0] = render.Job{}
			q.jobs = q.jobs[1:]
			if len(q.jobs) > 0 || q.closed {
				q.signal()
			}
			q.mutex.Unlock()
			return job, nil
		}
		if q.closed {
			q.signal()
			q.mutex.Unlock()
			return render.Job{}, ErrQueueClosed
		}
		q.mutex.Unlock()

		select {
		case <-ctx.Done():
			return render.Job{}, ctx.Err()
		case <-q.notify:
		}
	}
}

// Close stops accepting jobs and wakes every waiting Pop.
func (q *jobQueue) Close() {
	q.mutex.Lock()
	defer q.mutex.Unlock()
	if !q.closed {
		q.closed = true
		q.signal()
	}
}

// Len returns the number of queued jobs.
func (q *jobQueue) Len() int {
	q.mutex.Lock()
	defer q.mutex.Unlock()
	return len(q.jobs)
}

// signal wakes one waiter. The mutex must be held.
func (q *jobQueue) signal() {
	select {
	case q.notify <- struct{}{}:
	default:
	}
}
