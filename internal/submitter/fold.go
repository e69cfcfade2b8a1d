package submitter

import (
	"fmt"

	"github.com/yusufsyaifudin/bulkmail/pkg/ledger"
	"go.uber.org/multierr"
)

const DetailNoResult = "no result returned"

// Fold writes report into l for every recipient of b and returns the keys it touched, in batch order.
// Recipients missing from the report become failed, results for unknown recipients are ignored.
func Fold(l *ledger.Ledger, b Batch, report Report) (keys []ledger.Key, err error) {
	byEmail := make(map[string]Result, len(report.Results))
	for _, res := range report.Results {
		email := res.Recipient.Email()
		if _, exist := byEmail[email]; exist {
			continue
		}

		byEmail[email] = res
	}

	keys = make([]ledger.Key, 0, len(b.Recipients))
	for _, r := range b.Recipients {
		key := ledger.KeyOf(b.Sender, r)
		res, ok := byEmail[r.Email()]
		if !ok {
			err = multierr.Append(err, l.Transition(key, ledger.StatusFailed, ledger.WithDetail(DetailNoResult)))
			keys = append(keys, key)
			continue
		}

		status := res.Status
		if !status.Terminal() {
			status = ledger.StatusFailed
		}

		err = multierr.Append(err, l.Transition(key, status,
			ledger.WithDetail(res.Detail),
			ledger.WithDuration(res.TimeTaken),
		))
		keys = append(keys, key)
	}

	return
}

// FailAll marks every recipient of b as failed with cause.
func FailAll(l *ledger.Ledger, b Batch, cause error) (keys []ledger.Key, err error) {
	detail := "submission failed"
	if cause != nil {
		detail = cause.Error()
	}

	keys = make([]ledger.Key, 0, len(b.Recipients))
	for _, r := range b.Recipients {
		key := ledger.KeyOf(b.Sender, r)
		if _err := l.Transition(key, ledger.StatusFailed, ledger.WithDetail(detail)); _err != nil {
			err = multierr.Append(err, fmt.Errorf("fail %s: %w", key, _err))
			continue
		}

		keys = append(keys, key)
	}

	return
}
