package submitter

import (
	"context"
	"time"

	"github.com/yusufsyaifudin/bulkmail/pkg/ledger"
)

// Noop reports every recipient as sent without delivering anything.
type Noop struct {
	Delay time.Duration
}

var _ Submitter = (*Noop)(nil)

func (n *Noop) Submit(ctx context.Context, b Batch) (Report, error) {
	report := Report{Sender: b.Sender, Results: make([]Result, 0, len(b.Recipients))}
	for _, r := range b.Recipients {
		if n.Delay > 0 {
			select {
			case <-ctx.Done():
				return Report{}, ctx.Err()
			case <-time.After(n.Delay):
			}
		}

		report.Results = append(report.Results, Result{
			Recipient: r,
			Status:    ledger.StatusSent,
			TimeTaken: n.Delay,
		})
	}

	return report, nil
}
