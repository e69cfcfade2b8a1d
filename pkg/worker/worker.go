package worker

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"github.com/yusufsyaifudin/bulkmail/pkg/logger"
	"go.uber.org/multierr"
)

var (
	ErrPreExecute = errors.New("pre-execute job error")
	ErrExecute    = errors.New("execute job error")
	ErrStopped    = errors.New("worker already stopped")
)

// Job holds all information regarding the Job
type Job interface {
	// ID return uint64 unique identifier of the job
	ID() uint64

	// Context to tracks down all Job information that important.
	Context() context.Context

	// PreExecute called before Execute, when error Execute never be called.
	// PostExecute always called after PreExecute or Execute is done.
	PreExecute() error

	// Execute is the real logic of the Job.
	Execute() error

	// PostExecute called after Execute is done.
	// When Execute return error, it will pass to PostExecute, otherwise it returns nil.
	PostExecute(err error)
}

type Service interface {
	AddJob(job Job) error
	RunJob(job Job)
	Wait()
}

type Worker struct {
	waitGroup   sync.WaitGroup
	jobQueue    chan Job
	jobQueueNum int64

	// mu orders waitGroup.Add in AddJob against the Wait in Done
	mu       sync.RWMutex
	stopped  bool
	stopOnce sync.Once
	stop     chan struct{}
	workers  sync.WaitGroup
}

var _ Service = (*Worker)(nil)

func NewWorker(num, maxJob int) *Worker {
	if num < 1 {
		num = 1
	}

	if maxJob < 1 {
		maxJob = 1
	}

	w := &Worker{
		jobQueue: make(chan Job, maxJob),
		stop:     make(chan struct{}),
	}

	w.workers.Add(num)
	for i := 0; i < num; i++ {
		go w.worker(i + 1)
	}

	return w
}

func (w *Worker) worker(id int) {
	defer w.workers.Done()

	for {
		select {
		case job := <-w.jobQueue:
			t0 := time.Now()
			w.RunJob(job)
			w.waitGroup.Done()

			logger.Debug(job.Context(), "job done",
				logger.KV("worker", id),
				logger.KV("job_id", job.ID()),
				logger.KV("ongoing_queue", atomic.AddInt64(&w.jobQueueNum, -1)),
				logger.KV("duration", time.Since(t0).String()),
			)

		case <-w.stop:
			return
		}
	}
}

// AddJob queues job, blocking while the queue is full. Nil job is ignored.
func (w *Worker) AddJob(job Job) error {
	if job == nil {
		return nil
	}

	w.mu.RLock()
	if w.stopped {
		w.mu.RUnlock()
		return ErrStopped
	}

	w.waitGroup.Add(1)
	w.mu.RUnlock()

	// workers keep draining until the counter above reaches zero
	atomic.AddInt64(&w.jobQueueNum, 1)
	w.jobQueue <- job
	return nil
}

// RunJob executes job on the caller goroutine.
func (w *Worker) RunJob(job Job) {
	if job == nil {
		return
	}

	err := job.PreExecute()
	if err != nil {
		job.PostExecute(multierr.Append(err, ErrPreExecute))
		return
	}

	err = job.Execute()
	if err != nil {
		err = multierr.Append(err, ErrExecute)
	}

	job.PostExecute(err)
}

// Wait blocks until every queued job is done.
func (w *Worker) Wait() {
	w.waitGroup.Wait()
}

// Done ensures all registered Job is done before stop the worker.
func (w *Worker) Done() {
	w.stopOnce.Do(func() {
		w.mu.Lock()
		w.stopped = true
		w.mu.Unlock()

		w.waitGroup.Wait()
		close(w.stop)
		w.workers.Wait()
	})
}
