package ledger

import (
	"strings"
	"time"

	"github.com/yusufsyaifudin/bulkmail/pkg/csvrecord"
)

type Status string

const (
	StatusPending  Status = "pending"
	StatusSending  Status = "sending"
	StatusSent     Status = "sent"
	StatusFailed   Status = "failed"
	StatusRetrying Status = "retrying"
)

// Terminal reports whether no further transition is expected without a retry.
func (s Status) Terminal() bool {
	return s == StatusSent || s == StatusFailed
}

// InFlight reports whether a submission for the entry is in progress.
func (s Status) InFlight() bool {
	return s == StatusSending || s == StatusRetrying
}

func (s Status) Valid() bool {
	switch s {
	case StatusPending, StatusSending, StatusSent, StatusFailed, StatusRetrying:
		return true
	}

	return false
}

// Key identifies one (sender, recipient) delivery. Emails are compared lower-cased.
type Key struct {
	SenderEmail    string `json:"sender_email"`
	RecipientEmail string `json:"recipient_email"`
}

func NewKey(senderEmail, recipientEmail string) Key {
	return Key{
		SenderEmail:    strings.ToLower(strings.TrimSpace(senderEmail)),
		RecipientEmail: strings.ToLower(strings.TrimSpace(recipientEmail)),
	}
}

// KeyOf builds the Key of a sender and recipient record.
func KeyOf(sender, recipient csvrecord.Record) Key {
	return NewKey(sender.Email(), recipient.Email())
}

func (k Key) normalize() Key {
	return NewKey(k.SenderEmail, k.RecipientEmail)
}

func (k Key) String() string {
	return k.SenderEmail + "->" + k.RecipientEmail
}

type Entry struct {
	Key       Key              `json:"key"`
	Status    Status           `json:"status"`
	Sender    csvrecord.Record `json:"sender"`
	Recipient csvrecord.Record `json:"recipient"`
	UpdatedAt time.Time        `json:"updated_at"`
	Duration  time.Duration    `json:"duration"`
	Detail    string           `json:"detail,omitempty"`
}

// Payload is what a retry needs to resend one message.
type Payload struct {
	Sender    csvrecord.Record
	Recipient csvrecord.Record
}

type Summary struct {
	Total    int `json:"total"`
	Pending  int `json:"pending"`
	Sending  int `json:"sending"`
	Sent     int `json:"sent"`
	Failed   int `json:"failed"`
	Retrying int `json:"retrying"`
}

// Done reports whether every entry reached sent or failed.
func (s Summary) Done() bool {
	return s.Total == s.Sent+s.Failed
}

// Snapshot is a copy of the ledger at one point in time.
type Snapshot struct {
	Entries []Entry `json:"entries"`
}

func (s Snapshot) Get(key Key) (Entry, bool) {
	key = key.normalize()
	for _, e := range s.Entries {
		if e.Key == key {
			return e, true
		}
	}

	return Entry{}, false
}

func (s Snapshot) Summary() (out Summary) {
	out.Total = len(s.Entries)
	for _, e := range s.Entries {
		switch e.Status {
		case StatusPending:
			out.Pending++
		case StatusSending:
			out.Sending++
		case StatusSent:
			out.Sent++
		case StatusFailed:
			out.Failed++
		case StatusRetrying:
			out.Retrying++
		}
	}

	return
}
