package campaignsvc

import (
	"sync"

	"github.com/yusufsyaifudin/bulkmail/internal/storage/campaignrepo"
	"github.com/yusufsyaifudin/bulkmail/pkg/progress"
)

// run is a campaign held in memory while it is dispatched or retried.
// mu guards the campaign scalar fields, estimator and dispatching, and serializes saves.
// The ledger has its own lock.
type run struct {
	mu          sync.Mutex
	campaign    *campaignrepo.Campaign
	estimator   *progress.Estimator
	dispatching bool

	// refs is guarded by DefaultService.mu
	refs int
}

func (r *run) view() Campaign {
	r.mu.Lock()
	defer r.mu.Unlock()

	c := r.campaign
	return Campaign{
		ID:              c.ID,
		Subject:         c.Subject,
		Body:            c.Body,
		Quota:           c.Quota,
		UserName:        c.UserName,
		UserEmail:       c.UserEmail,
		SenderCount:     len(c.Senders),
		RecipientCount:  len(c.Recipients),
		UnassignedCount: c.Assignment.UnassignedCount,
		Running:         r.dispatching,
		CreatedAt:       c.CreatedAt,
		StartedAt:       c.StartedAt,
		FinishedAt:      c.FinishedAt,
	}
}
