package delivery

import (
	"context"
	"errors"
	"sync"

	"go.uber.org/multierr"

	"github.com/angelmondragon/newsletter-backend/pkg/logger"
)

const defaultConcurrency = 4

type runner interface {
	Run(ctx context.Context) error
}

// Pool runs several copies of a worker loop against the same queue.
type Pool struct {
	worker      runner
	logg        *logger.Logger
	concurrency int
}

func NewPool(worker runner, logg *logger.Logger, concurrency int) (*Pool, error) {
	if worker == nil {
		return nil, errors.New("worker is required")
	}
	if logg == nil {
		return nil, errors.New("logger is required")
	}
	if concurrency <= 0 {
		concurrency = defaultConcurrency
	}
	return &Pool{worker: worker, logg: logg, concurrency: concurrency}, nil
}

// Run blocks until every loop returns. Cancellation is a clean shutdown.
func (p *Pool) Run(ctx context.Context) error {
	var (
		wg   sync.WaitGroup
		mu   sync.Mutex
		errs error
	)

	for i := 0; i < p.concurrency; i++ {
		wg.Add(1)
		workerCtx := p.logg.WithWorkerID(ctx, i)
		go func() {
			defer wg.Done()
			p.logg.Info(workerCtx, "delivery worker started")
			err := p.worker.Run(workerCtx)
			if err != nil && !errors.Is(err, context.Canceled) {
				p.logg.Error(workerCtx, "delivery worker stopped", err)
				mu.Lock()
				errs = multierr.Append(errs, err)
				mu.Unlock()
				return
			}
			p.logg.Info(workerCtx, "delivery worker stopped")
		}()
	}

	wg.Wait()
	return errs
}
