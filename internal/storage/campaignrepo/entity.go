package campaignrepo

import (
	"time"

	"github.com/yusufsyaifudin/bulkmail/pkg/batch"
	"github.com/yusufsyaifudin/bulkmail/pkg/csvrecord"
	"github.com/yusufsyaifudin/bulkmail/pkg/ledger"
)

// Campaign is the whole state of one dispatch. It is owned by the caller and saved as a unit.
type Campaign struct {
	ID        string `json:"id"`
	Subject   string `json:"subject"`
	Body      string `json:"body"`
	Quota     int    `json:"quota"`
	UserName  string `json:"user_name,omitempty"`
	UserEmail string `json:"user_email,omitempty"`

	Senders    []csvrecord.Record `json:"senders"`
	Recipients []csvrecord.Record `json:"recipients"`
	Assignment batch.Assignment   `json:"assignment"`
	Ledger     *ledger.Ledger     `json:"ledger"`

	CreatedAt  time.Time `json:"created_at"`
	StartedAt  time.Time `json:"started_at"`
	FinishedAt time.Time `json:"finished_at"`
}

// Running reports whether the campaign was dispatched and has not finished.
func (c *Campaign) Running() bool {
	return !c.StartedAt.IsZero() && c.FinishedAt.IsZero()
}
