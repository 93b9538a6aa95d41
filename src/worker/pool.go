package worker

import (
	"context"
	"sync"

	log "github.com/sirupsen/logrus"
)

// Pool runs signal producer calls on a fixed number of goroutines so one day
// of fan-out cannot spawn unbounded goroutines. Tasks carry their own
// contexts; the pool drains whatever was accepted, which keeps day barriers
// from hanging on shutdown.
type Pool struct {
	size  int
	tasks chan func()
	wg    sync.WaitGroup

	startOnce sync.Once
	stopOnce  sync.Once
}

func NewPool(size int) *Pool {
	if size <= 0 {
		size = 1
	}

	return &Pool{
		size:  size,
		tasks: make(chan func(), size*2),
	}
}

func (p *Pool) Start() {
	p.startOnce.Do(func() {
		for i := 0; i < p.size; i++ {
			p.wg.Add(1)

			go func() {
				defer p.wg.Done()

				for task := range p.tasks {
					task()
				}
			}()
		}

		log.Infof("worker pool: started %d workers", p.size)
	})
}

// Submit enqueues a task, blocking while the queue is full. The ctx bounds
// only the wait for a slot; an accepted task always runs.
func (p *Pool) Submit(ctx context.Context, task func()) error {
	select {
	case p.tasks <- task:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Stop waits for accepted tasks to finish. Submit must not be called after
// Stop.
func (p *Pool) Stop() {
	p.stopOnce.Do(func() {
		close(p.tasks)
		p.wg.Wait()

		log.Info("worker pool: stopped")
	})
}
