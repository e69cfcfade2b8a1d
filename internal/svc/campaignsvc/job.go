package campaignsvc

import (
	"context"

	"github.com/yusufsyaifudin/bulkmail/internal/submitter"
	"github.com/yusufsyaifudin/bulkmail/pkg/ledger"
	"github.com/yusufsyaifudin/bulkmail/pkg/logger"
	"github.com/yusufsyaifudin/bulkmail/pkg/worker"
	"go.uber.org/multierr"
)

// batchJob submits one sender batch and folds the outcome into the campaign ledger.
type batchJob struct {
	id    uint64
	ctx   context.Context
	svc   *DefaultService
	run   *run
	batch submitter.Batch

	// retry jobs start from keys already marked retrying
	retry bool
	done  func()

	report submitter.Report
	err    error
}

var _ worker.Job = (*batchJob)(nil)

func (j *batchJob) ID() uint64 {
	return j.id
}

func (j *batchJob) Context() context.Context {
	return j.ctx
}

func (j *batchJob) PreExecute() error {
	if j.retry {
		return nil
	}

	l := j.run.campaign.Ledger
	keys := make([]ledger.Key, 0, len(j.batch.Recipients))
	for _, r := range j.batch.Recipients {
		key := ledger.KeyOf(j.batch.Sender, r)
		if err := l.Transition(key, ledger.StatusSending); err != nil {
			j.err = multierr.Append(j.err, err)
			continue
		}

		keys = append(keys, key)
	}

	j.svc.publishEntries(j.ctx, j.run, keys)
	j.svc.save(j.ctx, j.run)
	return j.err
}

func (j *batchJob) Execute() error {
	if err := j.svc.sem.Acquire(j.ctx, 1); err != nil {
		j.err = err
		return err
	}

	defer j.svc.sem.Release(1)

	j.report, j.err = j.svc.Config.Submitter.Submit(j.ctx, j.batch)
	return j.err
}

func (j *batchJob) PostExecute(err error) {
	if j.done != nil {
		defer j.done()
	}

	l := j.run.campaign.Ledger
	cause := j.err
	if cause == nil {
		cause = err
	}

	var (
		keys    []ledger.Key
		foldErr error
	)

	if cause != nil {
		logger.Error(j.ctx, "batch submission failed",
			logger.KV("campaign_id", j.run.campaign.ID),
			logger.KV("sender", j.batch.Sender.Email()),
			logger.KV("error", cause),
		)

		keys, foldErr = submitter.FailAll(l, j.batch, cause)
	} else {
		keys, foldErr = submitter.Fold(l, j.batch, j.report)
	}

	if foldErr != nil {
		logger.Error(j.ctx, "cannot write batch result to ledger",
			logger.KV("campaign_id", j.run.campaign.ID),
			logger.KV("error", foldErr),
		)
	}

	j.svc.record(j.ctx, j.run, keys)
	j.svc.save(j.ctx, j.run)
}
