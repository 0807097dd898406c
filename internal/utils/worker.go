package utils

import (
	"errors"

	"github.com/rs/zerolog/log"
	tomb "gopkg.in/tomb.v2"
)

const (
	TASK_CHAN_SIZE = 100
)

var ErrPoolStopped = errors.New("worker pool stopped")

type WorkerFunction = func(t *tomb.Tomb, task any) error

// WorkerPool runs a fixed number of workers under a tomb. Tasks are
// short-lived; a worker that wants to see a task again pushes it back with
// AddTask. A worker requeueing never blocks as long as no more than
// Capacity tasks are alive at once.
type WorkerPool struct {
	n     int      // number of workers
	tasks chan any // pending tasks
	t     *tomb.Tomb
}

// NewWorkerPool creates size workers sharing a queue of capacity tasks.
// Zero values default to one worker and TASK_CHAN_SIZE tasks.
func NewWorkerPool(size, capacity uint) *WorkerPool {
	if size == 0 {
		size = 1
	}
	if capacity == 0 {
		capacity = TASK_CHAN_SIZE
	}
	return &WorkerPool{
		n:     int(size),
		tasks: make(chan any, capacity),
	}
}

// Capacity is the number of tasks the queue holds.
func (pool *WorkerPool) Capacity() int {
	return cap(pool.tasks)
}

// Size is the number of workers the pool runs.
func (pool *WorkerPool) Size() int {
	return pool.n
}

// Setup starts the workers on t. A worker error kills the tomb.
func (pool *WorkerPool) Setup(t *tomb.Tomb, work WorkerFunction) {
	pool.t = t
	for id := 0; id < pool.n; id++ {
		t.Go(func() error {
			return pool.worker(t, id, work)
		})
	}
}

// AddTask queues a task, waiting for space. It fails once the pool's tomb
// is dying.
func (pool *WorkerPool) AddTask(task any) error {
	if pool.t == nil {
		return ErrPoolStopped
	}
	select {
	case pool.tasks <- task:
		return nil
	case <-pool.t.Dying():
		return ErrPoolStopped
	}
}

// Pending is the number of queued tasks.
func (pool *WorkerPool) Pending() int {
	return len(pool.tasks)
}

// Workers wait on tasks in the task pool and action them.
func (pool *WorkerPool) worker(t *tomb.Tomb, id int, work WorkerFunction) error {
	for {
		select {
		case <-t.Dying():
			return nil
		case task := <-pool.tasks:
			if err := work(t, task); err != nil {
				log.Error().Err(err).Int("id", id).Msg("worker exiting")
				return err
			}
		}
	}
}
