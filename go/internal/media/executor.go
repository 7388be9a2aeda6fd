package media

import (
	"sync"

	"github.com/rs/zerolog/log"
)

// SerialExecutor runs submitted jobs one at a time, in submission order,
// on a single worker goroutine. Leave always completes before a later join.
type SerialExecutor struct {
	jobs chan func()
	once sync.Once
	done chan struct{}
}

// NewSerialExecutor starts a worker with the given queue size
func NewSerialExecutor(queue int) *SerialExecutor {
	e := &SerialExecutor{
		jobs: make(chan func(), queue),
		done: make(chan struct{}),
	}
	go e.worker()
	return e
}

// Run queues a job
func (e *SerialExecutor) Run(job func()) {
	select {
	case e.jobs <- job:
	case <-e.done:
		log.Warn().Msg("media executor stopped, dropping job")
	}
}

// Stop ends the worker after the queued jobs
func (e *SerialExecutor) Stop() {
	e.once.Do(func() { close(e.done) })
}

func (e *SerialExecutor) worker() {
	for {
		select {
		case job := <-e.jobs:
			job()
		case <-e.done:
			for {
				select {
				case job := <-e.jobs:
					job()
				default:
					return
				}
			}
		}
	}
}
