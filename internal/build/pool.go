package build

import (
	"context"
	"sync"

	"github.com/conneroisu/pagewright/internal/render"
)

// pageWorker renders jobs and owns one event channel.
type pageWorker interface {
	render.PageRenderer
	Close()
}

// workerPool runs one goroutine per worker, each pulling jobs from a shared
// queue until the queue is closed or the context is cancelled.
type workerPool struct {
	workers  []pageWorker
	queue    *jobQueue
	onFailed func(job render.Job, err error)
	workerWg sync.WaitGroup
}

func newWorkerPool(workers []pageWorker, queue *jobQueue, onFailed func(render.Job, error)) *workerPool {
	return &workerPool{
		workers:  workers,
		queue:    queue,
		onFailed: onFailed,
	}
}

// Start begins the worker goroutines.
func (wp *workerPool) Start(ctx context.Context) {
	for _, w := range wp.workers {
		wp.workerWg.Add(1)
		go wp.worker(ctx, w)
	}
}

// Wait blocks until every worker goroutine has returned.
func (wp *workerPool) Wait() {
	wp.workerWg.Wait()
}

func (wp *workerPool) worker(ctx context.Context, w pageWorker) {
	defer wp.workerWg.Done()
	defer w.Close()

	for {
		job, err := wp.queue.Pop(ctx)
		if err != nil {
			return
		}
		if err := w.RenderPage(ctx, job); err != nil {
			wp.onFailed(job, err)
		}
	}
}
