package worker

import (
	"context"
	"errors"
	"sync"

	"github.com/rs/zerolog"
)

// Task is one unit of background work, typically an enrichment poll for a
// single session. Tasks for the same session must be submitted sequentially;
// the pool provides no per-session ordering on its own.
type Task func(ctx context.Context) error

// Pool runs submitted tasks on a fixed set of workers with a bounded queue.
type Pool struct {
	wg   sync.WaitGroup
	jobs chan Task
	quit chan struct{}
	n    int
	log  *zerolog.Logger
}

func NewPool(workers int, log *zerolog.Logger) *Pool {
	if workers <= 0 {
		workers = 4
	}
	return &Pool{jobs: make(chan Task, workers*4), quit: make(chan struct{}), n: workers, log: log}
}

func (p *Pool) Start(ctx context.Context) {
	for i := 0; i < p.n; i++ {
		p.wg.Add(1)
		go func(id int) {
			defer p.wg.Done()
			for {
				select {
				case <-ctx.Done():
					return
				case <-p.quit:
					return
				case task := <-p.jobs:
					if task == nil {
						continue
					}
					if err := task(ctx); err != nil {
						p.log.Warn().Int("worker", id).Err(err).Msg("task failed")
					}
				}
			}
		}(i)
	}
}

func (p *Pool) Stop() {
	close(p.quit)
	p.wg.Wait()
}

func (p *Pool) Submit(task Task) error {
	if task == nil {
		return errors.New("nil task")
	}
	select {
	case p.jobs <- task:
		return nil
	default:
		// Drop when saturated; the next state poll re-submits.
		return errors.New("worker queue full")
	}
}
