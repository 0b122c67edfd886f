package worker

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/panjf2000/ants/v2"
)

// ErrPoolClosed is returned for jobs submitted after Release
var ErrPoolClosed = errors.New("worker pool closed")

// Job represents a unit of work to be executed
type Job interface {
	Execute(ctx context.Context) Result
}

// Result represents the result of a job execution
type Result interface {
	GetError() error
}

// errResult is the slot value for jobs that never ran or panicked
type errResult struct {
	err error
}

func (r *errResult) GetError() error { return r.err }

// Pool runs jobs on a bounded ants goroutine pool
type Pool struct {
	pool    *ants.Pool
	workers int
}

// NewPool creates a pool with at most workers concurrent jobs
func NewPool(workers int) (*Pool, error) {
	if workers <= 0 {
		workers = 1
	}

	p, err := ants.NewPool(workers,
		ants.WithExpiryDuration(10*time.Second),
		ants.WithNonblocking(false),
	)
	if err != nil {
		return nil, fmt.Errorf("create ants pool: %w", err)
	}

	return &Pool{pool: p, workers: workers}, nil
}

// Workers returns the pool capacity
func (p *Pool) Workers() int {
	return p.workers
}

// Run executes all jobs and returns their results in job order.
// Results are matched to jobs by index, never by completion order.
// A job that panics, or that could not start because ctx ended, yields an error result.
func (p *Pool) Run(ctx context.Context, jobs []Job) []Result {
	results := make([]Result, len(jobs))
	if len(jobs) == 0 {
		return results
	}

	var wg sync.WaitGroup
	for i, job := range jobs {
		if err := ctx.Err(); err != nil {
			results[i] = &errResult{err: err}
			continue
		}

		idx, j := i, job
		wg.Add(1)
		submitErr := p.pool.Submit(func() {
			defer wg.Done()
			defer func() {
				if r := recover(); r != nil {
					results[idx] = &errResult{err: fmt.Errorf("job panicked: %v", r)}
				}
			}()
			results[idx] = j.Execute(ctx)
		})
		if submitErr != nil {
			wg.Done()
			if errors.Is(submitErr, ants.ErrPoolClosed) {
				submitErr = ErrPoolClosed
			}
			results[i] = &errResult{err: submitErr}
		}
	}

	wg.Wait()
	return results
}

// Release stops the pool; later Run calls return ErrPoolClosed results
func (p *Pool) Release() {
	p.pool.Release()
}

// FuncJob adapts a function to the Job interface
type FuncJob func(ctx context.Context) Result

// Execute runs the function
func (f FuncJob) Execute(ctx context.Context) Result {
	return f(ctx)
}
