package campaignsvc

import (
	"context"
	"errors"
	"time"

	"github.com/yusufsyaifudin/bulkmail/internal/storage/historyrepo"
	"github.com/yusufsyaifudin/bulkmail/pkg/ledger"
	"github.com/yusufsyaifudin/bulkmail/pkg/placeholder"
)

var (
	ErrValidation       = errors.New("validation error")
	ErrInvalidCSV       = errors.New("invalid csv file")
	ErrCampaignNotFound = errors.New("campaign not found")
	ErrCampaignRunning  = errors.New("campaign is still being dispatched")
	ErrRetryInFlight    = errors.New("delivery is already in progress")
)

// ValidationError carries the failed form rules. errors.Is(err, ErrValidation) holds for it.
type ValidationError struct {
	Err error
}

func (e *ValidationError) Error() string {
	return ErrValidation.Error() + ": " + e.Err.Error()
}

func (e *ValidationError) Unwrap() error {
	return e.Err
}

func (e *ValidationError) Is(target error) bool {
	return target == ErrValidation
}

// Service is an interface of final business logic.
// Input and output are safe for any transport to consume, they carry no transport tags.
type Service interface {
	Plan(ctx context.Context, input InputPlan) (out OutPlan, err error)
	Submit(ctx context.Context, input InputSubmit) (out OutSubmit, err error)
	Resubmit(ctx context.Context, input InputResubmit) (out OutSubmit, err error)
	Get(ctx context.Context, input InputGet) (out OutGet, err error)
	Retry(ctx context.Context, input InputRetry) (out OutRetry, err error)
	History(ctx context.Context, input InputHistory) (out OutHistory, err error)
	RequiredSenders(ctx context.Context, input InputRequiredSenders) (out OutRequiredSenders, err error)
}

// InputPlan only needs the files, the rest is optional while the form is being filled.
type InputPlan struct {
	SenderFile          []byte `form:"sender_file" validate:"required"`
	ReceiverFile        []byte `form:"receiver_file" validate:"required"`
	Subject             string `form:"subject"`
	Body                string `form:"body"`
	RecipientsPerSender int    `form:"recipients_per_sender" validate:"max=100"`
	UserEmail           string `form:"user_email" validate:"omitempty,email"`
}

type BatchSummary struct {
	SenderName     string
	SenderEmail    string
	RecipientCount int
}

type OutPlan struct {
	SenderCount       int
	SkippedSenders    int
	RecipientCount    int
	SkippedRecipients int
	RequiredSenders   int
	UnassignedCount   int
	Batches           []BatchSummary
	Tokens            []string
	Preview           []placeholder.Rendered
	Warnings          []string
}

type InputSubmit struct {
	UserName            string `form:"user_name" validate:"omitempty,min=2"`
	UserEmail           string `form:"user_email" validate:"omitempty,email"`
	Subject             string `form:"subject" validate:"required,min=3"`
	Body                string `form:"body" validate:"required,min=10"`
	RecipientsPerSender int    `form:"recipients_per_sender" validate:"max=100"`
	SenderFile          []byte `form:"sender_file" validate:"required"`
	ReceiverFile        []byte `form:"receiver_file" validate:"required"`

	// Sync waits for every batch to finish before returning.
	Sync bool `form:"sync"`
}

type InputResubmit struct {
	CampaignID string `validate:"required"`
	Sync       bool
}

type OutSubmit struct {
	Campaign Campaign
	Entries  []ledger.Entry
	Summary  ledger.Summary
	Warnings []string
}

// Campaign is the public view of a stored campaign, it never carries sender passwords.
type Campaign struct {
	ID              string
	Subject         string
	Body            string
	Quota           int
	UserName        string
	UserEmail       string
	SenderCount     int
	RecipientCount  int
	UnassignedCount int
	Running         bool
	CreatedAt       time.Time
	StartedAt       time.Time
	FinishedAt      time.Time
}

type InputGet struct {
	CampaignID string `validate:"required"`
}

type OutGet struct {
	Campaign Campaign
	Entries  []ledger.Entry
	Summary  ledger.Summary

	// Progress is an elapsed time estimate in percent, 100 only when dispatch finished.
	Progress float64
}

type InputRetry struct {
	CampaignID     string `validate:"required"`
	SenderEmail    string `form:"sender_email" validate:"required,email"`
	RecipientEmail string `form:"recipient_email" validate:"required,email"`
}

type OutRetry struct {
	Entry   ledger.Entry
	Summary ledger.Summary
}

type InputHistory struct {
	CampaignID string `validate:"required"`
	Limit      int64  `form:"limit" validate:"min=0"`
}

type OutHistory struct {
	Records []historyrepo.Record
}

type InputRequiredSenders struct {
	Recipients int `form:"recipients" validate:"min=0"`
	Quota      int `form:"quota"`
}

type OutRequiredSenders struct {
	Count int
}

type EventType string

const (
	EventEntry    EventType = "entry"
	EventFinished EventType = "finished"
)

// Event is one ledger change of a campaign. Entry is nil for EventFinished.
type Event struct {
	CampaignID string
	Type       EventType
	Entry      *ledger.Entry
	Summary    ledger.Summary
	Progress   float64
}

// Publisher receives every ledger change, it must not block.
type Publisher interface {
	Publish(ctx context.Context, event Event)
}
