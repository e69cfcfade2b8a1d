// Package submitter hands one sender batch to whatever actually delivers the messages
// and reports the outcome per recipient.
package submitter

import (
	"context"
	"strconv"
	"strings"
	"time"

	"github.com/yusufsyaifudin/bulkmail/pkg/csvrecord"
	"github.com/yusufsyaifudin/bulkmail/pkg/ledger"
)

type Submitter interface {
	// Submit delivers every recipient of b. A returned error means nothing is known about any recipient.
	Submit(ctx context.Context, b Batch) (Report, error)
}

// Batch is one sender with its recipients and the unrendered templates.
type Batch struct {
	Sender     csvrecord.Record
	Recipients []csvrecord.Record
	Subject    string
	Body       string
}

type Result struct {
	Recipient csvrecord.Record
	Status    ledger.Status // sent or failed
	Detail    string
	TimeTaken time.Duration
}

type Report struct {
	Sender  csvrecord.Record
	Results []Result
}

const (
	statusSent       = "sent"
	statusFailedPref = "failed"
)

// parseStatus maps a remote status text like "sent" or "failed: reason" to a ledger status and detail.
func parseStatus(s string) (ledger.Status, string) {
	s = strings.TrimSpace(s)
	lower := strings.ToLower(s)
	switch {
	case lower == statusSent:
		return ledger.StatusSent, ""
	case strings.HasPrefix(lower, statusFailedPref):
		detail := strings.TrimSpace(s[len(statusFailedPref):])
		detail = strings.TrimSpace(strings.TrimPrefix(detail, ":"))
		return ledger.StatusFailed, detail
	}

	return ledger.StatusFailed, s
}

// parseTimeTaken reads "1.23 seconds" as a duration, anything unreadable is zero.
func parseTimeTaken(s string) time.Duration {
	fields := strings.Fields(s)
	if len(fields) == 0 {
		return 0
	}

	secs, err := strconv.ParseFloat(fields[0], 64)
	if err != nil || secs < 0 {
		return 0
	}

	return time.Duration(secs * float64(time.Second))
}
