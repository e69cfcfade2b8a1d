// Package batch splits a recipient list across senders, each sender taking at most quota recipients.
package batch

import (
	"errors"
	"fmt"

	"github.com/yusufsyaifudin/bulkmail/pkg/csvrecord"
)

var ErrInvalidQuota = errors.New("recipients per sender must be a positive number")

type Batch struct {
	Sender     csvrecord.Record   `json:"sender"`
	Recipients []csvrecord.Record `json:"recipients"`
}

type Assignment struct {
	Batches []Batch `json:"batches"`

	// UnassignedCount is the number of trailing recipients no sender has room for.
	UnassignedCount int `json:"unassigned_count"`
}

// AssignedCount returns total recipients across all batches.
func (a Assignment) AssignedCount() (n int) {
	for _, b := range a.Batches {
		n += len(b.Recipients)
	}

	return
}

func (a Assignment) SenderCount() int {
	return len(a.Batches)
}

// Assign gives sender i the recipients[i*quota : (i+1)*quota] slice, preserving input order.
// Senders left without recipients get no batch.
func Assign(senders, recipients []csvrecord.Record, quota int) (out Assignment, err error) {
	if quota <= 0 {
		err = fmt.Errorf("%w: got %d", ErrInvalidQuota, quota)
		return
	}

	out.Batches = make([]Batch, 0)

	// start only grows by chunk sizes, so it never exceeds len(recipients)
	start := 0
	for _, sender := range senders {
		left := len(recipients) - start
		if left <= 0 {
			break
		}

		n := quota
		if n > left {
			n = left
		}

		chunk := make([]csvrecord.Record, n)
		copy(chunk, recipients[start:start+n])
		out.Batches = append(out.Batches, Batch{
			Sender:     sender,
			Recipients: chunk,
		})

		start += n
	}

	out.UnassignedCount = len(recipients) - start
	return
}

// RequiredSenderCount returns how many senders are needed to cover recipientCount under quota.
func RequiredSenderCount(recipientCount, quota int) (int, error) {
	if quota <= 0 {
		return 0, fmt.Errorf("%w: got %d", ErrInvalidQuota, quota)
	}

	if recipientCount <= 0 {
		return 0, nil
	}

	n := recipientCount / quota
	if recipientCount%quota != 0 {
		n++
	}

	return n, nil
}
