package submitter_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/yusufsyaifudin/bulkmail/internal/submitter"
	"github.com/yusufsyaifudin/bulkmail/pkg/batch"
	"github.com/yusufsyaifudin/bulkmail/pkg/ledger"
)

func newLedger(b submitter.Batch) *ledger.Ledger {
	l := ledger.New()
	l.Initialize(batch.Assignment{Batches: []batch.Batch{{Sender: b.Sender, Recipients: b.Recipients}}})
	return l
}

func TestFold(t *testing.T) {
	b := sampleBatch()
	l := newLedger(b)

	keys, err := submitter.Fold(l, b, submitter.Report{
		Sender: b.Sender,
		Results: []submitter.Result{
			{Recipient: rec("", "BUDI@x.io"), Status: ledger.StatusSent, TimeTaken: time.Second},
			{Recipient: rec("Cici", "cici@x.io"), Status: ledger.StatusFailed, Detail: "mailbox full"},
			{Recipient: rec("Stranger", "stranger@x.io"), Status: ledger.StatusSent},
		},
	})
	require.NoError(t, err)
	assert.Len(t, keys, 3)

	snap := l.Snapshot()
	e, _ := snap.Get(ledger.KeyOf(b.Sender, b.Recipients[0]))
	assert.Equal(t, ledger.StatusSent, e.Status)
	assert.Equal(t, time.Second, e.Duration)

	e, _ = snap.Get(ledger.KeyOf(b.Sender, b.Recipients[1]))
	assert.Equal(t, ledger.StatusFailed, e.Status)
	assert.Equal(t, "mailbox full", e.Detail)

	e, _ = snap.Get(ledger.KeyOf(b.Sender, b.Recipients[2]))
	assert.Equal(t, ledger.StatusFailed, e.Status)
	assert.Equal(t, submitter.DetailNoResult, e.Detail)

	assert.Equal(t, 3, snap.Summary().Total)
}

func TestFold_UnknownKey(t *testing.T) {
	b := sampleBatch()
	l := ledger.New()

	_, err := submitter.Fold(l, b, submitter.Report{})
	assert.ErrorIs(t, err, ledger.ErrUnknownKey)
}

func TestFailAll(t *testing.T) {
	b := sampleBatch()
	l := newLedger(b)

	keys, err := submitter.FailAll(l, b, errors.New("backend down"))
	require.NoError(t, err)
	assert.Len(t, keys, 3)

	for _, e := range l.Snapshot().Entries {
		assert.Equal(t, ledger.StatusFailed, e.Status)
		assert.Equal(t, "backend down", e.Detail)
	}
}

func TestNoop(t *testing.T) {
	b := sampleBatch()
	report, err := (&submitter.Noop{}).Submit(context.Background(), b)
	require.NoError(t, err)
	require.Len(t, report.Results, 3)

	for _, res := range report.Results {
		assert.Equal(t, ledger.StatusSent, res.Status)
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = (&submitter.Noop{Delay: time.Second}).Submit(ctx, b)
	assert.ErrorIs(t, err, context.Canceled)
}
