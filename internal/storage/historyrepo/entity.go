package historyrepo

import (
	"time"
)

// Record is one finished delivery attempt. It never carries credentials.
type Record struct {
	ID             int64     `db:"id" json:"id"`
	CampaignID     string    `db:"campaign_id" json:"campaign_id"`
	SenderEmail    string    `db:"sender_email" json:"sender_email"`
	RecipientEmail string    `db:"recipient_email" json:"recipient_email"`
	Status         string    `db:"status" json:"status"`
	Detail         string    `db:"detail" json:"detail"`
	DurationMs     int64     `db:"duration_ms" json:"duration_ms"`
	CreatedAt      time.Time `db:"created_at" json:"created_at"`
}
