package worker

import (
	"context"
	"log/slog"
	"sync"
)

// Result pairs a job with whether its webhook acknowledged it.
type Result struct {
	Job Job
	OK  bool
}

// Pool fans one batch of jobs out across a bounded number of goroutines.
// Jobs are independent: one failing never cancels its siblings.
type Pool struct {
	numWorkers int
	deliverer  *Deliverer
	logger     *slog.Logger
}

// NewPool creates a worker pool with the given number of workers.
func NewPool(numWorkers int, deliverer *Deliverer, logger *slog.Logger) *Pool {
	if numWorkers <= 0 {
		numWorkers = 1
	}
	return &Pool{
		numWorkers: numWorkers,
		deliverer:  deliverer,
		logger:     logger,
	}
}

type indexedJob struct {
	idx int
	job Job
}

// Run delivers every job and waits for all of them. Results are in job order.
func (p *Pool) Run(ctx context.Context, jobs []Job) []Result {
	results := make([]Result, len(jobs))
	if len(jobs) == 0 {
		return results
	}

	workers := p.numWorkers
	if workers > len(jobs) {
		workers = len(jobs)
	}

	queue := make(chan indexedJob, len(jobs))
	for i, job := range jobs {
		queue <- indexedJob{idx: i, job: job}
	}
	close(queue)

	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for ij := range queue {
				results[ij.idx] = Result{Job: ij.job, OK: p.deliverer.DeliverJob(ctx, ij.job)}
			}
		}()
	}
	wg.Wait()

	p.logger.Debug("batch delivered", "jobs", len(jobs), "workers", workers)
	return results
}
