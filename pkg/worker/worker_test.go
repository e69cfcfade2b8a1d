package worker_test

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/yusufsyaifudin/bulkmail/pkg/worker"
)

type Job struct {
	id         uint64
	preExecErr error
	execErr    error

	executed *int64
	post     *int64
	postErr  chan error
}

func (s *Job) ID() uint64 {
	return s.id
}

func (s *Job) Context() context.Context {
	return context.Background()
}

func (s *Job) PreExecute() error {
	return s.preExecErr
}

func (s *Job) Execute() error {
	time.Sleep(10 * time.Millisecond)
	if s.executed != nil {
		atomic.AddInt64(s.executed, 1)
	}

	return s.execErr
}

func (s *Job) PostExecute(err error) {
	if s.post != nil {
		atomic.AddInt64(s.post, 1)
	}

	if s.postErr != nil {
		s.postErr <- err
	}
}

func TestNewWorker(t *testing.T) {
	t.Run("worker lower than 1", func(t *testing.T) {
		t.Parallel()

		dispatcher := worker.NewWorker(0, 100)
		defer dispatcher.Done()
		assert.NoError(t, dispatcher.AddJob(&Job{id: 1}))
	})

	t.Run("max job lower than 1", func(t *testing.T) {
		t.Parallel()

		dispatcher := worker.NewWorker(4, 0)
		defer dispatcher.Done()
		assert.NoError(t, dispatcher.AddJob(&Job{id: 1}))
	})

	t.Run("ok", func(t *testing.T) {
		t.Parallel()

		var executed, post int64
		dispatcher := worker.NewWorker(4, 100)
		for i := 0; i < 100; i++ {
			assert.NoError(t, dispatcher.AddJob(&Job{id: uint64(i), executed: &executed, post: &post}))
		}

		dispatcher.Wait()
		assert.EqualValues(t, 100, atomic.LoadInt64(&executed))
		assert.EqualValues(t, 100, atomic.LoadInt64(&post))

		dispatcher.Done()
		assert.ErrorIs(t, dispatcher.AddJob(&Job{id: 101}), worker.ErrStopped)
	})

	t.Run("job is nil", func(t *testing.T) {
		t.Parallel()

		dispatcher := worker.NewWorker(4, 100)
		defer dispatcher.Done()

		for i := 0; i < 100; i++ {
			assert.NoError(t, dispatcher.AddJob(nil))
		}
	})

	t.Run("pre execute is error", func(t *testing.T) {
		t.Parallel()

		var executed int64
		postErr := make(chan error, 1)
		dispatcher := worker.NewWorker(4, 100)
		defer dispatcher.Done()

		assert.NoError(t, dispatcher.AddJob(&Job{id: 1, preExecErr: errors.New("shit happen"), executed: &executed, postErr: postErr}))

		err := <-postErr
		assert.ErrorIs(t, err, worker.ErrPreExecute)
		assert.Zero(t, atomic.LoadInt64(&executed))
	})

	t.Run("execute is error", func(t *testing.T) {
		t.Parallel()

		postErr := make(chan error, 1)
		dispatcher := worker.NewWorker(4, 100)
		defer dispatcher.Done()

		assert.NoError(t, dispatcher.AddJob(&Job{id: 1, execErr: errors.New("shit happen"), postErr: postErr}))

		err := <-postErr
		assert.ErrorIs(t, err, worker.ErrExecute)
	})
}

func TestWorker_RunJob(t *testing.T) {
	var executed int64
	postErr := make(chan error, 1)

	dispatcher := worker.NewWorker(1, 1)
	defer dispatcher.Done()

	dispatcher.RunJob(&Job{id: 1, executed: &executed, postErr: postErr})
	assert.NoError(t, <-postErr)
	assert.EqualValues(t, 1, executed)
}

func TestWorker_AddJobDuringDone(t *testing.T) {
	var executed, post, accepted int64
	dispatcher := worker.NewWorker(2, 4)

	var adders sync.WaitGroup
	for i := 0; i < 16; i++ {
		adders.Add(1)
		go func(i int) {
			defer adders.Done()
			for j := 0; j < 10; j++ {
				err := dispatcher.AddJob(&Job{id: uint64(i*10 + j), executed: &executed, post: &post})
				if err == nil {
					atomic.AddInt64(&accepted, 1)
					continue
				}

				assert.ErrorIs(t, err, worker.ErrStopped)
			}
		}(i)
	}

	finished := make(chan struct{})
	go func() {
		time.Sleep(15 * time.Millisecond)
		dispatcher.Done()
		adders.Wait()
		close(finished)
	}()

	select {
	case <-finished:
	case <-time.After(10 * time.Second):
		t.Fatal("AddJob and Done did not return")
	}

	// every accepted job ran before Done returned
	assert.Equal(t, atomic.LoadInt64(&accepted), atomic.LoadInt64(&executed))
	assert.Equal(t, atomic.LoadInt64(&accepted), atomic.LoadInt64(&post))
	assert.ErrorIs(t, dispatcher.AddJob(&Job{id: 999}), worker.ErrStopped)
}

func BenchmarkNewWorker(b *testing.B) {
	dispatcher := worker.NewWorker(8, 100)
	defer dispatcher.Done()

	for i := 0; i < b.N; i++ {
		_ = dispatcher.AddJob(&Job{id: uint64(i)})
	}
}
