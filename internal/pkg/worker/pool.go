// Package worker runs fan-out work on a bounded ants goroutine pool.
package worker

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/panjf2000/ants/v2"
	"go.uber.org/zap"

	"datatoken/internal/pkg/logger"
)

var ErrPoolClosed = errors.New("worker pool is closed")

const DefaultSize = 16

type Pool struct {
	pool *ants.Pool
	name string
	log  *zap.Logger
}

type Stats struct {
	Name    string `json:"name"`
	Running int    `json:"running"`
	Free    int    `json:"free"`
	Cap     int    `json:"cap"`
}

// New creates a blocking pool of the given size. A panicking task is logged
// and does not take the process down.
func New(name string, size int, log *zap.Logger) (*Pool, error) {
	if size <= 0 {
		size = DefaultSize
	}
	log = logger.OrNop(log).With(zap.String("pool", name))
	p, err := ants.NewPool(size,
		ants.WithPanicHandler(func(v any) {
			log.Error("worker panic recovered", zap.Any("panic", v), zap.Stack("stack"))
		}),
		ants.WithNonblocking(false),
		ants.WithExpiryDuration(10*time.Second),
	)
	if err != nil {
		return nil, fmt.Errorf("create %s pool: %w", name, err)
	}
	return &Pool{pool: p, name: name, log: log}, nil
}

// Each runs fn(ctx, i) for every i in [0, n) and waits for all accepted
// tasks. Tasks still run after ctx is canceled and are expected to check it.
func (p *Pool) Each(ctx context.Context, n int, fn func(ctx context.Context, i int)) error {
	if p == nil || p.pool.IsClosed() {
		return ErrPoolClosed
	}
	var wg sync.WaitGroup
	var submitErr error
	for i := 0; i < n; i++ {
		if err := ctx.Err(); err != nil {
			submitErr = err
			break
		}
		i := i
		wg.Add(1)
		err := p.pool.Submit(func() {
			defer wg.Done()
			fn(ctx, i)
		})
		if err != nil {
			wg.Done()
			if errors.Is(err, ants.ErrPoolClosed) {
				err = ErrPoolClosed
			}
			submitErr = err
			break
		}
	}
	wg.Wait()
	return submitErr
}

func (p *Pool) Stats() Stats {
	return Stats{Name: p.name, Running: p.pool.Running(), Free: p.pool.Free(), Cap: p.pool.Cap()}
}

// Release waits up to timeout for running tasks and closes the pool.
func (p *Pool) Release(timeout time.Duration) {
	if err := p.pool.ReleaseTimeout(timeout); err != nil {
		p.log.Warn("pool release timed out", zap.Error(err))
	}
}
