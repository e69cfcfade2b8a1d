package handlercampaign

import (
	"time"

	"github.com/yusufsyaifudin/bulkmail/internal/storage/historyrepo"
	"github.com/yusufsyaifudin/bulkmail/internal/svc/campaignsvc"
	"github.com/yusufsyaifudin/bulkmail/pkg/ledger"
	"github.com/yusufsyaifudin/bulkmail/pkg/placeholder"
)

// campaignForm is the non-file part of the multipart campaign form.
type campaignForm struct {
	UserName            string `schema:"user_name"`
	UserEmail           string `schema:"user_email"`
	Subject             string `schema:"subject"`
	Body                string `schema:"body"`
	RecipientsPerSender *int   `schema:"recipients_per_sender"`
	Sync                bool   `schema:"sync"`
}

type requiredSendersQuery struct {
	Recipients int `schema:"recipients"`
	Quota      int `schema:"quota"`
}

type historyQuery struct {
	Limit int64 `schema:"limit"`
}

type resubmitQuery struct {
	Sync bool `schema:"sync"`
}

type RetryReq struct {
	SenderEmail    string `json:"sender_email"`
	RecipientEmail string `json:"recipient_email"`
}

type CampaignEntity struct {
	ID              string     `json:"id"`
	Subject         string     `json:"subject"`
	Body            string     `json:"body"`
	RecipientsPer   int        `json:"recipients_per_sender"`
	UserName        string     `json:"user_name,omitempty"`
	UserEmail       string     `json:"user_email,omitempty"`
	SenderCount     int        `json:"sender_count"`
	RecipientCount  int        `json:"recipient_count"`
	UnassignedCount int        `json:"unassigned_count"`
	Running         bool       `json:"running"`
	CreatedAt       time.Time  `json:"created_at"`
	StartedAt       time.Time  `json:"started_at"`
	FinishedAt      *time.Time `json:"finished_at,omitempty"`
}

func campaignEntityFromSvc(c campaignsvc.Campaign) CampaignEntity {
	out := CampaignEntity{
		ID:              c.ID,
		Subject:         c.Subject,
		Body:            c.Body,
		RecipientsPer:   c.Quota,
		UserName:        c.UserName,
		UserEmail:       c.UserEmail,
		SenderCount:     c.SenderCount,
		RecipientCount:  c.RecipientCount,
		UnassignedCount: c.UnassignedCount,
		Running:         c.Running,
		CreatedAt:       c.CreatedAt,
		StartedAt:       c.StartedAt,
	}

	if !c.FinishedAt.IsZero() {
		finished := c.FinishedAt
		out.FinishedAt = &finished
	}

	return out
}

type BatchEntity struct {
	SenderName     string `json:"sender_name"`
	SenderEmail    string `json:"sender_email"`
	RecipientCount int    `json:"recipient_count"`
}

type PlanResp struct {
	SenderCount       int                    `json:"sender_count"`
	SkippedSenders    int                    `json:"skipped_senders"`
	RecipientCount    int                    `json:"recipient_count"`
	SkippedRecipients int                    `json:"skipped_recipients"`
	RequiredSenders   int                    `json:"required_senders"`
	UnassignedCount   int                    `json:"unassigned_count"`
	Batches           []BatchEntity          `json:"batches"`
	Tokens            []string               `json:"tokens"`
	Preview           []placeholder.Rendered `json:"preview"`
	Warnings          []string               `json:"warnings"`
}

func planRespFromSvc(out campaignsvc.OutPlan) PlanResp {
	batches := make([]BatchEntity, 0, len(out.Batches))
	for _, b := range out.Batches {
		batches = append(batches, BatchEntity{
			SenderName:     b.SenderName,
			SenderEmail:    b.SenderEmail,
			RecipientCount: b.RecipientCount,
		})
	}

	warnings := out.Warnings
	if warnings == nil {
		warnings = []string{}
	}

	return PlanResp{
		SenderCount:       out.SenderCount,
		SkippedSenders:    out.SkippedSenders,
		RecipientCount:    out.RecipientCount,
		SkippedRecipients: out.SkippedRecipients,
		RequiredSenders:   out.RequiredSenders,
		UnassignedCount:   out.UnassignedCount,
		Batches:           batches,
		Tokens:            out.Tokens,
		Preview:           out.Preview,
		Warnings:          warnings,
	}
}

type CampaignResp struct {
	Campaign CampaignEntity `json:"campaign"`
	Entries  []ledger.Entry `json:"entries"`
	Summary  ledger.Summary `json:"summary"`
	Progress float64        `json:"progress"`
	Warnings []string       `json:"warnings,omitempty"`
}

type RetryResp struct {
	Entry   ledger.Entry   `json:"entry"`
	Summary ledger.Summary `json:"summary"`
}

type HistoryResp struct {
	Records []historyrepo.Record `json:"records"`
}

type RequiredSendersResp struct {
	Recipients int `json:"recipients"`
	Quota      int `json:"quota"`
	Required   int `json:"required"`
}
